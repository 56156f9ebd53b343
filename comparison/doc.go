// Package comparison drives the secure comparison of two shared bids.
//
// A Protocol session walks every party through the same sequence of MPC
// primitives:
//
//	Idle -> RandomShared -> AComputed -> AOpened -> ZTablesReady
//	     -> RombRound (l times) -> ResComputed -> Done
//
// The parties first share l+k+1 random bits and combine them into a random
// r. They then open a = 2^(l+k+1) - r + 2^l + bid_winner - bid_contender,
// which hides the difference behind r. Bit l of a + r is 1 exactly when the
// winner's bid is at least the contender's; it equals a_l XOR r_l XOR the
// carry out of the low l bits, and the carry is folded bit by bit from the
// (propagate, carry) pairs of a and r.
//
// Two strategies compute the carry. ZTableStrategy keeps the pairs in
// per-bit tables and folds them into named accumulators. ZStackStrategy keeps
// them on a party-side stack and merges the top two entries per round.
//
// Any error moves the session to Failed. Only Reset is accepted from there,
// and calling a step in the wrong state returns ErrIllegalTransition.
package comparison
