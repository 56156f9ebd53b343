// Package crypto provides the finite field primitives used by the auction
// protocol.
//
// This package implements:
//
//   - Field arithmetic modulo a public prime (FieldAdd, FieldSub, FieldMul)
//   - Modular exponentiation and inversion (ModExp, ModInverse)
//   - Square roots modulo small primes (DiscreteSqrt)
//   - Unbiased random integers from a caller supplied reader (SecureRandomInt)
//   - Shamir secret sharing and Lagrange interpolation (Split, Interpolate)
//   - Parameter checks for the comparison protocol (MaxBid, ValidatePrime)
//
// Note: none of the operations are constant-time. DiscreteSqrt is a linear
// scan over the field and must only be used with the small primes the
// comparison protocol is configured with.
//
// # Parameters
//
// Bids are l-bit integers in [1, 2^l - 1]. Comparisons mask the difference of
// two bids with a random (l+k+1)-bit number, so the prime has to exceed
// 2^(l+k+1) + 2^(l+1) for the masked value to never wrap around the field.
package crypto
