// Package server implements a reference MPC party.
//
// A Party holds one Shamir share of every bid and evaluates the primitives
// an auction driver sequences over HTTP: resharing for multiplication,
// additive and XOR shares, shared random values, the masked comparison
// value, z-tables and the zZ stack, and reconstruction of opened values.
// Products are degree-reduced by resharing the local product with a fresh
// degree t-1 polynomial and recombining the received sub-shares with the
// Lagrange coefficients at zero, which requires n >= 2t-1.
//
// Parties exchange sub-shares and shares directly through their internal
// endpoints. The driver never sees a share, only acknowledgements and
// explicitly opened values; protocol.Openable lists the names that may be
// opened. A party that is down is skipped during resharing, and the rest
// recombine over the senders that delivered, as long as 2t-1 of them did.
//
// The party is honest-but-curious only. It performs no verification of the
// values it receives from other parties.
package server
