package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"math/big"
	"testing"

	"github.com/cronokirby/saferith"
	"github.com/stretchr/testify/require"
)

func TestModExpBruteForce(t *testing.T) {
	for n := int64(1); n <= 23; n++ {
		for b := int64(0); b < 2*n; b++ {
			expected := int64(1) % n
			for k := int64(0); k <= 12; k++ {
				res := ModExp(big.NewInt(b), big.NewInt(k), big.NewInt(n))
				require.Equal(t, expected, res.Int64(), "%d^%d mod %d", b, k, n)
				expected = expected * b % n
			}
		}
	}
}

func TestModExpMatchesSaferith(t *testing.T) {
	p := big.NewInt(131591)
	mod := saferith.ModulusFromUint64(p.Uint64())

	for i := 0; i < 50; i++ {
		base, err := SecureRandomInt(rand.Reader, big.NewInt(0), p)
		require.NoError(t, err)
		exp, err := SecureRandomInt(rand.Reader, big.NewInt(0), big.NewInt(1<<40))
		require.NoError(t, err)

		expected := new(saferith.Nat).Exp(new(saferith.Nat).SetBig(base, 64), new(saferith.Nat).SetBig(exp, 64), mod)
		require.Zero(t, expected.Big().Cmp(ModExp(base, exp, p)))
	}
}

func TestModExpPanics(t *testing.T) {
	require.Panics(t, func() { ModExp(big.NewInt(2), big.NewInt(-1), big.NewInt(7)) })
	require.Panics(t, func() { ModExp(big.NewInt(2), big.NewInt(3), big.NewInt(0)) })
}

func TestModInverse(t *testing.T) {
	p := big.NewInt(163)
	mod := saferith.ModulusFromUint64(163)

	for a := int64(1); a < 163; a++ {
		inv, err := ModInverse(big.NewInt(a), p)
		require.NoError(t, err)
		require.True(t, inv.Sign() >= 0 && inv.Cmp(p) < 0)
		require.Equal(t, int64(1), new(big.Int).Mod(new(big.Int).Mul(big.NewInt(a), inv), p).Int64())

		oracle := new(saferith.Nat).ModInverse(new(saferith.Nat).SetUint64(uint64(a)), mod)
		require.Zero(t, oracle.Big().Cmp(inv))
	}

	// negative input is normalised first
	inv, err := ModInverse(big.NewInt(-1), p)
	require.NoError(t, err)
	require.Equal(t, int64(162), inv.Int64())
}

func TestModInverseNotCoprime(t *testing.T) {
	_, err := ModInverse(big.NewInt(6), big.NewInt(9))
	require.ErrorIs(t, err, ErrArithmetic)

	_, err = ModInverse(big.NewInt(0), big.NewInt(17))
	require.ErrorIs(t, err, ErrArithmetic)

	_, err = ModInverse(big.NewInt(3), big.NewInt(0))
	require.ErrorIs(t, err, ErrInvalidParameters)
}

func TestDiscreteSqrt(t *testing.T) {
	for _, prime := range []int64{7, 17, 163, 131591} {
		p := big.NewInt(prime)
		residues := map[int64]bool{}
		for x := int64(0); x < prime && x < 2000; x++ {
			residues[x*x%prime] = true
		}

		for v := range residues {
			root, err := DiscreteSqrt(big.NewInt(v), p)
			require.NoError(t, err)
			require.Equal(t, v, new(big.Int).Mod(new(big.Int).Mul(root, root), p).Int64())

			// smallest root: nothing below it squares to v
			for y := int64(0); y < root.Int64(); y++ {
				require.NotEqual(t, v, y*y%prime)
			}
		}
	}
}

func TestDiscreteSqrtNonResidue(t *testing.T) {
	// 3 is not a square modulo 7: squares are {0, 1, 2, 4}.
	_, err := DiscreteSqrt(big.NewInt(3), big.NewInt(7))
	require.ErrorIs(t, err, ErrNoSquareRoot)
	require.ErrorIs(t, err, ErrArithmetic)
}

func TestDiscreteSqrtLargeModulusPath(t *testing.T) {
	p, ok := new(big.Int).SetString("4294967311", 10) // 2^32 + 15, prime
	require.True(t, ok)

	root, err := DiscreteSqrt(big.NewInt(1024), p)
	require.NoError(t, err)
	require.Equal(t, int64(32), root.Int64())
}

func TestSecureRandomIntRange(t *testing.T) {
	min, max := big.NewInt(10), big.NewInt(20)
	counts := make([]int, 10)

	const draws = 10000
	for i := 0; i < draws; i++ {
		v, err := SecureRandomInt(rand.Reader, min, max)
		require.NoError(t, err)
		require.True(t, v.Cmp(min) >= 0 && v.Cmp(max) < 0, "out of range: %s", v)
		counts[v.Int64()-10]++
	}

	// Chi-square with 9 degrees of freedom; 27.88 is the 0.999 quantile.
	expected := float64(draws) / 10
	var chi2 float64
	for _, c := range counts {
		d := float64(c) - expected
		chi2 += d * d / expected
	}
	require.Less(t, chi2, 27.88)
}

func TestSecureRandomIntInvalid(t *testing.T) {
	_, err := SecureRandomInt(rand.Reader, big.NewInt(5), big.NewInt(5))
	require.ErrorIs(t, err, ErrInvalidParameters)

	_, err = SecureRandomInt(bytes.NewReader(nil), big.NewInt(0), big.NewInt(5))
	require.Error(t, err)
}

// allOnes always yields the masked maximum.
type allOnes struct{}

func (allOnes) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0xff
	}
	return len(p), nil
}

func TestSecureRandomIntRejects(t *testing.T) {
	// span 10 needs 4 bits, an all-ones draw is 15 and always rejected
	_, err := SecureRandomInt(allOnes{}, big.NewInt(0), big.NewInt(10))
	require.True(t, errors.Is(err, ErrMaxIterations))
}

func TestFieldOps(t *testing.T) {
	p := big.NewInt(17)
	require.Equal(t, int64(3), FieldAdd(big.NewInt(10), big.NewInt(10), p).Int64())
	require.Equal(t, int64(0), FieldAdd(big.NewInt(16), big.NewInt(1), p).Int64())
	require.Equal(t, int64(12), FieldSub(big.NewInt(5), big.NewInt(10), p).Int64())
	require.Equal(t, int64(13), FieldMul(big.NewInt(5), big.NewInt(6), p).Int64())
	require.Equal(t, int64(12), FieldNeg(big.NewInt(5), p).Int64())
	require.Equal(t, int64(0), FieldNeg(big.NewInt(0), p).Int64())
}

func TestPrimeValidation(t *testing.T) {
	require.Equal(t, int64(15), MaxBid(4).Int64())
	require.Equal(t, int64(160), MinPrimeBound(4, 2).Int64())

	for p := int64(2); p <= 160; p++ {
		require.ErrorIs(t, ValidatePrime(big.NewInt(p), 4, 2), ErrInvalidParameters, "p=%d", p)
	}
	require.ErrorIs(t, ValidatePrime(big.NewInt(161), 4, 2), ErrInvalidParameters) // 7*23
	require.ErrorIs(t, ValidatePrime(big.NewInt(162), 4, 2), ErrInvalidParameters)
	require.NoError(t, ValidatePrime(big.NewInt(163), 4, 2))
	require.NoError(t, ValidatePrime(big.NewInt(131591), 8, 8))

	require.ErrorIs(t, ValidatePrime(big.NewInt(163), 0, 2), ErrInvalidParameters)
	require.ErrorIs(t, ValidatePrime(nil, 4, 2), ErrInvalidParameters)
}
