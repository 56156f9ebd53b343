package crypto

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluatePolynomial(t *testing.T) {
	// 7x^3 + 3x^2 + 5x + 7 over Z_101
	coeffs := []*big.Int{big.NewInt(7), big.NewInt(5), big.NewInt(3), big.NewInt(7)}
	p := big.NewInt(101)

	require.Equal(t, int64(7), EvaluatePolynomial(coeffs, big.NewInt(0), p).Int64())
	require.Equal(t, int64(22), EvaluatePolynomial(coeffs, big.NewInt(1), p).Int64())
	// 56 + 12 + 10 + 7 = 85
	require.Equal(t, int64(85), EvaluatePolynomial(coeffs, big.NewInt(2), p).Int64())
	// 189 + 27 + 15 + 7 = 238 = 36 mod 101
	require.Equal(t, int64(36), EvaluatePolynomial(coeffs, big.NewInt(3), p).Int64())
}

func TestInterpolation(t *testing.T) {
	p := big.NewInt(101)
	coeffs := []*big.Int{big.NewInt(7), big.NewInt(5), big.NewInt(3), big.NewInt(7)}

	shares := make([]Share, 4)
	for i := range shares {
		x := big.NewInt(int64(i + 2))
		shares[i] = Share{Index: i + 2, Value: EvaluatePolynomial(coeffs, x, p)}
	}

	at0, err := Interpolate(shares, big.NewInt(0), p)
	require.NoError(t, err)
	require.Equal(t, int64(7), at0.Int64())

	at1, err := Interpolate(shares, big.NewInt(1), p)
	require.NoError(t, err)
	require.Equal(t, int64(22), at1.Int64())

	_, err = Interpolate(nil, big.NewInt(0), p)
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = Interpolate([]Share{shares[0], shares[0]}, big.NewInt(0), p)
	require.ErrorIs(t, err, ErrArithmetic)
}

func TestLagrangeCoefficientsSumToOne(t *testing.T) {
	p := big.NewInt(131591)
	xs := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3), big.NewInt(4), big.NewInt(5)}

	lambdas, err := LagrangeCoefficientsAt(xs, big.NewInt(0), p)
	require.NoError(t, err)

	sum := new(big.Int)
	for _, l := range lambdas {
		sum.Add(sum, l)
	}
	// interpolating the constant polynomial 1
	require.Equal(t, int64(1), sum.Mod(sum, p).Int64())
}

func TestSplitScenario(t *testing.T) {
	p := big.NewInt(17)
	shares, err := Split(rand.Reader, p, 2, 3, big.NewInt(5))
	require.NoError(t, err)
	require.Len(t, shares, 3)

	for i := range shares {
		require.Equal(t, i+1, shares[i].Index)
		for j := i + 1; j < len(shares); j++ {
			secret, err := Interpolate([]Share{shares[i], shares[j]}, big.NewInt(0), p)
			require.NoError(t, err)
			require.Equal(t, int64(5), secret.Int64())
		}
	}
}

func TestSplitAnyThresholdSubset(t *testing.T) {
	p := big.NewInt(131591)

	for n := 1; n <= 6; n++ {
		for th := 1; th <= n; th++ {
			secret, err := SecureRandomInt(rand.Reader, big.NewInt(0), p)
			require.NoError(t, err)

			shares, err := Split(rand.Reader, p, th, n, secret)
			require.NoError(t, err)

			// every window of th consecutive shares, wrapping around
			for start := 0; start < n; start++ {
				subset := make([]Share, th)
				for i := range subset {
					subset[i] = shares[(start+i)%n]
				}
				got, err := Interpolate(subset, big.NewInt(0), p)
				require.NoError(t, err)
				require.Zero(t, secret.Cmp(got), "t=%d n=%d start=%d", th, n, start)
			}
		}
	}
}

func TestSplitInvalid(t *testing.T) {
	p := big.NewInt(17)
	cases := []struct {
		name   string
		t, n   int
		secret int64
	}{
		{"zero threshold", 0, 3, 5},
		{"zero parties", 2, 0, 5},
		{"threshold above parties", 4, 3, 5},
		{"secret equals prime", 2, 3, 17},
		{"negative secret", 2, 3, -1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Split(rand.Reader, p, tc.t, tc.n, big.NewInt(tc.secret))
			require.ErrorIs(t, err, ErrInvalidParameters)
		})
	}
}

func TestRandomPolynomialTopCoefficientNonZero(t *testing.T) {
	p := big.NewInt(17)

	// An all-zero randomness source draws zero for every coefficient, so
	// the top one has to be re-drawn from [1, p).
	zeros := bytes.NewReader(make([]byte, 64))
	coeffs, err := RandomPolynomial(zeros, p, 3, big.NewInt(5))
	require.NoError(t, err)
	require.Len(t, coeffs, 4)
	require.Equal(t, int64(5), coeffs[0].Int64())
	require.Equal(t, int64(1), coeffs[3].Int64())

	for i := 0; i < 200; i++ {
		coeffs, err := RandomPolynomial(rand.Reader, big.NewInt(3), 2, big.NewInt(1))
		require.NoError(t, err)
		require.NotZero(t, coeffs[2].Sign())
	}
}

func TestRandomPolynomialConstantOnly(t *testing.T) {
	coeffs, err := RandomPolynomial(rand.Reader, big.NewInt(17), 0, big.NewInt(20))
	require.NoError(t, err)
	require.Len(t, coeffs, 1)
	require.Equal(t, int64(3), coeffs[0].Int64())
}
