// Package protocol defines the wire contract between the auction driver and
// the MPC parties, and the public parameters they share.
//
// Every endpoint has an explicit request and response struct so that call
// sites in the driver and handlers in the reference party are checked
// against the same types. Field elements travel as hex strings (EncodeHex,
// DecodeHex); errors travel as {"detail": "..."} with a non-2xx status.
//
// # Parameters
//
// Params holds the bit length l of bids, the statistical slack k, the prime,
// how many times each random bit is sampled, and which carry strategy the
// comparison runs. Params.Validate must pass before any network call.
//
// # Named shares
//
// Intermediate values live at the parties under names (u, v, x, Z, res, ...).
// The driver treats them as opaque handles and only ever sees values that
// are explicitly opened through reconstruct-secret.
package protocol
