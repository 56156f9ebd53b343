package crypto

import (
	"errors"
	"fmt"
	"io"
	"math/big"
)

var (
	// ErrArithmetic marks a modular operation that has no result for its inputs.
	ErrArithmetic = errors.New("arithmetic error")

	// ErrNoSquareRoot is returned by DiscreteSqrt for quadratic non-residues.
	ErrNoSquareRoot = fmt.Errorf("%w: no square root", ErrArithmetic)

	// ErrInvalidParameters marks a bad threshold, party count, prime or bit length.
	ErrInvalidParameters = errors.New("invalid parameters")

	// ErrMaxIterations is returned when rejection sampling fails to produce a value.
	ErrMaxIterations = errors.New("sampling exceeded max iterations")
)

// maxSampleIterations bounds rejection sampling. With a mask sized to the
// range every draw succeeds with probability above 1/2.
const maxSampleIterations = 255

var (
	one = big.NewInt(1)
	two = big.NewInt(2)
)

// Reduce returns v mod modulus in [0, modulus).
func Reduce(v, modulus *big.Int) *big.Int {
	return new(big.Int).Mod(v, modulus)
}

// FieldAdd returns (l + r) mod fieldOrder. Inputs must already be reduced.
func FieldAdd(l, r, fieldOrder *big.Int) *big.Int {
	res := new(big.Int).Add(l, r)
	if res.Cmp(fieldOrder) >= 0 {
		res.Sub(res, fieldOrder)
	}
	return res
}

// FieldSub returns (l - r) mod fieldOrder. Inputs must already be reduced.
func FieldSub(l, r, fieldOrder *big.Int) *big.Int {
	res := new(big.Int).Sub(l, r)
	if res.Sign() < 0 {
		res.Add(res, fieldOrder)
	}
	return res
}

// FieldMul returns (l * r) mod fieldOrder.
func FieldMul(l, r, fieldOrder *big.Int) *big.Int {
	res := new(big.Int).Mul(l, r)
	return res.Mod(res, fieldOrder)
}

// FieldNeg returns -v mod fieldOrder.
func FieldNeg(v, fieldOrder *big.Int) *big.Int {
	if v.Sign() == 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(fieldOrder, Reduce(v, fieldOrder))
}

// ModExp computes base^exponent mod modulus by square-and-multiply over the
// bits of the exponent, most significant first.
//
// The loop structure only depends on the exponent. It is not constant time.
// Panics on a negative exponent or a non-positive modulus.
func ModExp(base, exponent, modulus *big.Int) *big.Int {
	if exponent.Sign() < 0 {
		panic("crypto: negative exponent")
	}
	if modulus.Sign() <= 0 {
		panic("crypto: non-positive modulus")
	}

	b := Reduce(base, modulus)
	result := Reduce(one, modulus)
	for i := exponent.BitLen() - 1; i >= 0; i-- {
		result.Mul(result, result).Mod(result, modulus)
		if exponent.Bit(i) == 1 {
			result.Mul(result, b).Mod(result, modulus)
		}
	}
	return result
}

// ModInverse returns x in [0, modulus) with value*x ≡ 1 (mod modulus), using
// the extended Euclidean algorithm.
func ModInverse(value, modulus *big.Int) (*big.Int, error) {
	if modulus.Sign() <= 0 {
		return nil, fmt.Errorf("%w: modulus %s must be positive", ErrInvalidParameters, modulus)
	}

	oldR, r := Reduce(value, modulus), new(big.Int).Set(modulus)
	oldS, s := big.NewInt(1), big.NewInt(0)
	q, tmp := new(big.Int), new(big.Int)

	for r.Sign() != 0 {
		q.Quo(oldR, r)

		tmp.Mul(q, r)
		oldR, r = r, new(big.Int).Sub(oldR, tmp)

		tmp.Mul(q, s)
		oldS, s = s, new(big.Int).Sub(oldS, tmp)
	}

	if oldR.Cmp(one) != 0 {
		return nil, fmt.Errorf("%w: %s has no inverse modulo %s", ErrArithmetic, value, modulus)
	}
	return oldS.Mod(oldS, modulus), nil
}

// DiscreteSqrt returns the smallest x in [0, modulus) with x² ≡ value.
//
// This is a linear scan and costs O(modulus) additions. It is only meant for
// the small primes the comparison protocol runs over; never call it with a
// cryptographically sized modulus.
func DiscreteSqrt(value, modulus *big.Int) (*big.Int, error) {
	if modulus.Sign() <= 0 {
		return nil, fmt.Errorf("%w: modulus %s must be positive", ErrInvalidParameters, modulus)
	}
	target := Reduce(value, modulus)

	if modulus.IsUint64() && modulus.Uint64() <= 1<<32 {
		m, v := modulus.Uint64(), target.Uint64()
		// square holds x² mod m; (x+1)² = x² + 2x + 1.
		var square uint64
		for x := uint64(0); x < m; x++ {
			if square == v {
				return new(big.Int).SetUint64(x), nil
			}
			square = (square + 2*x + 1) % m
		}
		return nil, fmt.Errorf("%w: %s modulo %s", ErrNoSquareRoot, value, modulus)
	}

	square, step := new(big.Int), big.NewInt(1)
	for x := new(big.Int); x.Cmp(modulus) < 0; x.Add(x, one) {
		if square.Cmp(target) == 0 {
			return x, nil
		}
		square.Add(square, step)
		if square.Cmp(modulus) >= 0 {
			square.Mod(square, modulus)
		}
		step.Add(step, two)
	}
	return nil, fmt.Errorf("%w: %s modulo %s", ErrNoSquareRoot, value, modulus)
}

// SecureRandomInt returns a uniformly random integer in [min, max) read from
// rand. Candidates are drawn with exactly BitLen(max-min) bits and rejected
// when out of range, so the result carries no modulo bias.
func SecureRandomInt(rand io.Reader, min, max *big.Int) (*big.Int, error) {
	span := new(big.Int).Sub(max, min)
	if span.Sign() <= 0 {
		return nil, fmt.Errorf("%w: empty range [%s, %s)", ErrInvalidParameters, min, max)
	}

	bits := span.BitLen()
	buf := make([]byte, (bits+7)/8)
	// Mask off the excess bits in the most significant byte.
	topMask := byte(0xff >> (uint(len(buf)*8 - bits)))

	candidate := new(big.Int)
	for i := 0; i < maxSampleIterations; i++ {
		if _, err := io.ReadFull(rand, buf); err != nil {
			return nil, fmt.Errorf("reading randomness: %w", err)
		}
		buf[0] &= topMask
		candidate.SetBytes(buf)
		if candidate.Cmp(span) < 0 {
			return candidate.Add(candidate, min), nil
		}
	}
	return nil, ErrMaxIterations
}

// MaxBid returns the largest bid representable with l bits, 2^l - 1.
func MaxBid(l int) *big.Int {
	res := new(big.Int).Lsh(one, uint(l))
	return res.Sub(res, one)
}

// MinPrimeBound returns 2^(l+k+1) + 2^(l+1). A usable prime must be strictly
// greater, otherwise the masked difference opened during a comparison can
// wrap around the field.
func MinPrimeBound(l, k int) *big.Int {
	bound := new(big.Int).Lsh(one, uint(l+k+1))
	return bound.Add(bound, new(big.Int).Lsh(one, uint(l+1)))
}

// ValidatePrime checks that p is prime and large enough for comparisons of
// l-bit values with statistical slack k.
func ValidatePrime(p *big.Int, l, k int) error {
	if l < 1 || k < 0 {
		return fmt.Errorf("%w: l=%d k=%d", ErrInvalidParameters, l, k)
	}
	if p == nil {
		return fmt.Errorf("%w: prime not set", ErrInvalidParameters)
	}
	if bound := MinPrimeBound(l, k); p.Cmp(bound) <= 0 {
		return fmt.Errorf("%w: prime %s must exceed %s for l=%d k=%d", ErrInvalidParameters, p, bound, l, k)
	}
	if !p.ProbablyPrime(20) {
		return fmt.Errorf("%w: %s is not prime", ErrInvalidParameters, p)
	}
	return nil
}
