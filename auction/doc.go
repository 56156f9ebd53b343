// Package auction runs sealed-bid reverse auctions on top of the comparison
// protocol.
//
// Bids are Shamir-shared across the parties with SubmitBid. RunAuction then
// checks that every party knows the same bidders and runs a single
// elimination tournament: each comparison opens only one bit, whether the
// contender's bid is lower or equal to the current winner's, so the parties
// and the orchestrator learn the winner and nothing about the other bids.
//
// Every finished auction is sealed into a Record whose ID is the BLAKE3
// digest of its deterministic CBOR encoding, and saved to a ResultStore.
package auction
