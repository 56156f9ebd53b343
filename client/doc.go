// Package client drives MPC primitives across every party of a roster.
//
// Each primitive is one fan-out: the same (or a per-party) request is sent to
// all parties concurrently and the call returns once every party answered or
// failed. Failures never abort the fan-out; they are reported per party as
// *NetworkError or *ProtocolError inside the returned Outcomes, and
// Outcomes.Err aggregates them into a *FanOutError naming each party.
//
// Bearer tokens are passed explicitly as a map from party address to token.
//
// Poller watches party reachability for dashboards and CLIs. It owns its own
// cancellation and in-flight flag, so several independent pollers can run.
package client
