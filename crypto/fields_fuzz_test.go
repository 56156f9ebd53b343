package crypto

import (
	"bytes"
	"math/big"
	"testing"
)

// fuzzPrime is the default comparison prime.
var fuzzPrime = big.NewInt(131591)

func FuzzFieldAdd(f *testing.F) {
	f.Add([]byte{0}, []byte{0})
	f.Add([]byte{1}, []byte{1})
	f.Add([]byte{0x02, 0x02, 0x06}, []byte{0x01})
	f.Add(make([]byte, 8), make([]byte, 8))

	f.Fuzz(func(t *testing.T, aBytes, bBytes []byte) {
		a := Reduce(new(big.Int).SetBytes(aBytes), fuzzPrime)
		b := Reduce(new(big.Int).SetBytes(bBytes), fuzzPrime)

		result := FieldAdd(a, b, fuzzPrime)

		// Invariant 1: Result is in range [0, p)
		if result.Sign() < 0 || result.Cmp(fuzzPrime) >= 0 {
			t.Errorf("result out of range: %v", result)
		}

		// Invariant 2: Result equals (a + b) mod p
		expected := new(big.Int).Add(a, b)
		expected.Mod(expected, fuzzPrime)
		if result.Cmp(expected) != 0 {
			t.Errorf("incorrect result: got %v, want %v", result, expected)
		}

		// Invariant 3: (a + b) - b = a
		if back := FieldSub(result, b, fuzzPrime); back.Cmp(a) != 0 {
			t.Errorf("round trip failed: (%v + %v) - %v = %v", a, b, b, back)
		}
	})
}

func FuzzFieldSub(f *testing.F) {
	f.Add([]byte{0}, []byte{0})
	f.Add([]byte{1}, []byte{2}) // Underflow case
	f.Add(make([]byte, 8), make([]byte, 8))

	f.Fuzz(func(t *testing.T, aBytes, bBytes []byte) {
		a := Reduce(new(big.Int).SetBytes(aBytes), fuzzPrime)
		b := Reduce(new(big.Int).SetBytes(bBytes), fuzzPrime)

		result := FieldSub(a, b, fuzzPrime)
		if result.Sign() < 0 || result.Cmp(fuzzPrime) >= 0 {
			t.Errorf("result out of range: %v", result)
		}

		expected := new(big.Int).Sub(a, b)
		expected.Mod(expected, fuzzPrime)
		if result.Cmp(expected) != 0 {
			t.Errorf("incorrect result: got %v, want %v (a=%v, b=%v)", result, expected, a, b)
		}

		// a - b = -(b - a)
		if neg := FieldNeg(FieldSub(b, a, fuzzPrime), fuzzPrime); neg.Cmp(result) != 0 {
			t.Errorf("antisymmetry failed: %v != -(%v - %v)", result, b, a)
		}
	})
}

func FuzzModInverse(f *testing.F) {
	f.Add([]byte{1})
	f.Add([]byte{2})
	f.Add([]byte{0x02, 0x02, 0x06})

	f.Fuzz(func(t *testing.T, vBytes []byte) {
		v := Reduce(new(big.Int).SetBytes(vBytes), fuzzPrime)

		inv, err := ModInverse(v, fuzzPrime)
		if v.Sign() == 0 {
			if err == nil {
				t.Errorf("inverse of zero returned %v", inv)
			}
			return
		}
		if err != nil {
			t.Fatalf("inverse of %v: %v", v, err)
		}
		if got := FieldMul(v, inv, fuzzPrime); got.Cmp(one) != 0 {
			t.Errorf("%v * %v = %v, want 1", v, inv, got)
		}
	})
}

func FuzzSplitInterpolate(f *testing.F) {
	f.Add([]byte{42}, uint8(2), uint8(3), []byte("seed"))
	f.Add([]byte{0}, uint8(1), uint8(1), []byte{})
	f.Add([]byte{0x02, 0x02, 0x06}, uint8(3), uint8(5), []byte("another seed"))

	f.Fuzz(func(t *testing.T, secretBytes []byte, tRaw, nRaw uint8, entropy []byte) {
		n := int(nRaw%7) + 1
		threshold := int(tRaw)%n + 1
		secret := Reduce(new(big.Int).SetBytes(secretBytes), fuzzPrime)

		// Deterministic randomness keeps failures reproducible.
		rand := bytes.NewReader(bytes.Repeat(append(entropy, 0x5a), 4096))

		shares, err := Split(rand, fuzzPrime, threshold, n, secret)
		if err != nil {
			t.Skip("not enough entropy")
		}

		// Any threshold shares reconstruct the secret.
		got, err := Interpolate(shares[n-threshold:], big.NewInt(0), fuzzPrime)
		if err != nil {
			t.Fatalf("interpolate: %v", err)
		}
		if got.Cmp(secret) != 0 {
			t.Errorf("reconstructed %v, want %v (t=%d, n=%d)", got, secret, threshold, n)
		}
	})
}
