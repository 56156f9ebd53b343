package crypto

import (
	"fmt"
	"io"
	"math/big"
)

// Share is one party's point on a sharing polynomial. Index is the
// evaluation point, starting at 1 for the first party.
type Share struct {
	Index int
	Value *big.Int
}

// RandomPolynomial returns degree+1 coefficients over Z_prime, lowest first,
// with coefficient 0 set to constant. The top coefficient is re-drawn from
// [1, prime) when zero so the polynomial has exactly the requested degree.
func RandomPolynomial(rand io.Reader, prime *big.Int, degree int, constant *big.Int) ([]*big.Int, error) {
	if degree < 0 {
		return nil, fmt.Errorf("%w: negative degree %d", ErrInvalidParameters, degree)
	}

	coeffs := make([]*big.Int, degree+1)
	coeffs[0] = Reduce(constant, prime)
	for i := 1; i <= degree; i++ {
		c, err := SecureRandomInt(rand, big.NewInt(0), prime)
		if err != nil {
			return nil, err
		}
		coeffs[i] = c
	}

	if degree > 0 && coeffs[degree].Sign() == 0 {
		c, err := SecureRandomInt(rand, one, prime)
		if err != nil {
			return nil, err
		}
		coeffs[degree] = c
	}

	return coeffs, nil
}

// EvaluatePolynomial evaluates coeffs (lowest first) at x using Horner's rule.
func EvaluatePolynomial(coeffs []*big.Int, x, prime *big.Int) *big.Int {
	res := new(big.Int)
	for i := len(coeffs) - 1; i >= 0; i-- {
		res.Mul(res, x)
		res.Add(res, coeffs[i])
		res.Mod(res, prime)
	}
	return res
}

// Split shares secret t-out-of-n over Z_prime: a random polynomial of degree
// t-1 with the secret as constant term, evaluated at 1..n.
func Split(rand io.Reader, prime *big.Int, t, n int, secret *big.Int) ([]Share, error) {
	if t <= 0 || n <= 0 || t > n {
		return nil, fmt.Errorf("%w: threshold %d of %d", ErrInvalidParameters, t, n)
	}
	if prime == nil || prime.Cmp(two) < 0 {
		return nil, fmt.Errorf("%w: prime %v", ErrInvalidParameters, prime)
	}
	if secret.Sign() < 0 || secret.Cmp(prime) >= 0 {
		return nil, fmt.Errorf("%w: secret outside [0, %s)", ErrInvalidParameters, prime)
	}

	coeffs, err := RandomPolynomial(rand, prime, t-1, secret)
	if err != nil {
		return nil, err
	}

	shares := make([]Share, n)
	for i := range shares {
		x := big.NewInt(int64(i + 1))
		shares[i] = Share{Index: i + 1, Value: EvaluatePolynomial(coeffs, x, prime)}
	}
	return shares, nil
}

// LagrangeCoefficientsAt returns λ_j such that f(at) = Σ λ_j·f(xs[j]) for any
// polynomial f of degree below len(xs). The xs must be distinct mod prime.
func LagrangeCoefficientsAt(xs []*big.Int, at, prime *big.Int) ([]*big.Int, error) {
	coeffs := make([]*big.Int, len(xs))
	num, den, diff := new(big.Int), new(big.Int), new(big.Int)

	for j, xj := range xs {
		num.SetInt64(1)
		den.SetInt64(1)
		for m, xm := range xs {
			if m == j {
				continue
			}
			diff.Sub(at, xm)
			num.Mul(num, diff).Mod(num, prime)
			diff.Sub(xj, xm)
			den.Mul(den, diff).Mod(den, prime)
		}

		inv, err := ModInverse(den, prime)
		if err != nil {
			return nil, fmt.Errorf("duplicate evaluation point %s: %w", xj, err)
		}
		coeffs[j] = FieldMul(num, inv, prime)
	}
	return coeffs, nil
}

// Interpolate evaluates at `at` the polynomial passing through shares.
// Reconstructing a secret is Interpolate(shares, 0, prime).
func Interpolate(shares []Share, at, prime *big.Int) (*big.Int, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("%w: no shares", ErrInvalidParameters)
	}

	xs := make([]*big.Int, len(shares))
	for i, s := range shares {
		xs[i] = big.NewInt(int64(s.Index))
	}

	lambdas, err := LagrangeCoefficientsAt(xs, at, prime)
	if err != nil {
		return nil, err
	}

	res := new(big.Int)
	for i, s := range shares {
		res.Add(res, new(big.Int).Mul(lambdas[i], s.Value))
	}
	return res.Mod(res, prime), nil
}
