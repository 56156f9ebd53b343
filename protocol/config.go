package protocol

import (
	"fmt"
	"math/big"

	"github.com/flashbots/mpcauction/crypto"
)

// Strategy selects how the carry of the masked difference is computed.
type Strategy string

const (
	// ZTableStrategy prepares per-bit z-tables and folds them with named
	// x/y/z and X/Y/Z shares.
	ZTableStrategy Strategy = "ztable"

	// ZStackStrategy keeps (z, Z) pairs on a party-side stack and merges the
	// top two entries with romb rounds until one remains.
	ZStackStrategy Strategy = "zstack"
)

// Valid returns true if the strategy is recognized.
func (s Strategy) Valid() bool {
	switch s {
	case ZTableStrategy, ZStackStrategy:
		return true
	}
	return false
}

// FailurePolicy decides what a comparison does when some parties fail a step.
type FailurePolicy string

const (
	// AbortOnPartyError stops the comparison at the first step with a failed party.
	AbortOnPartyError FailurePolicy = "abort"

	// ContinueOnPartyError logs failed parties and carries on; the final
	// agreement check still catches any resulting divergence.
	ContinueOnPartyError FailurePolicy = "continue"
)

// Valid returns true if the policy is recognized.
func (p FailurePolicy) Valid() bool {
	switch p {
	case AbortOnPartyError, ContinueOnPartyError:
		return true
	}
	return false
}

// DefaultPrime is the smallest prime above 2^17 + 2^9, the bound for the
// default l = 8, k = 8.
var DefaultPrime = big.NewInt(131591)

// Params carries the public parameters every party and the driver agree on.
type Params struct {
	// L is the bit length of bids. Bids lie in [1, 2^L - 1].
	L int

	// K is the statistical security slack of the comparison mask.
	K int

	// Prime is the field modulus.
	Prime *big.Int

	// Repetitions is how many times each random bit position is sampled.
	Repetitions int

	Strategy      Strategy
	FailurePolicy FailurePolicy
}

// DefaultParams returns the parameters used when no configuration is given.
func DefaultParams() *Params {
	return &Params{
		L:             8,
		K:             8,
		Prime:         new(big.Int).Set(DefaultPrime),
		Repetitions:   3,
		Strategy:      ZTableStrategy,
		FailurePolicy: AbortOnPartyError,
	}
}

// Validate rejects parameters before any network call is made.
func (p *Params) Validate() error {
	if err := crypto.ValidatePrime(p.Prime, p.L, p.K); err != nil {
		return err
	}
	if p.Repetitions < 1 {
		return fmt.Errorf("%w: repetitions must be positive, got %d", crypto.ErrInvalidParameters, p.Repetitions)
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("%w: unknown strategy %q", crypto.ErrInvalidParameters, p.Strategy)
	}
	if !p.FailurePolicy.Valid() {
		return fmt.Errorf("%w: unknown failure policy %q", crypto.ErrInvalidParameters, p.FailurePolicy)
	}
	return nil
}

// RandomBits is the bit length of the comparison mask, l + k + 1.
func (p *Params) RandomBits() int {
	return p.L + p.K + 1
}

// MaxBid returns 2^L - 1.
func (p *Params) MaxBid() *big.Int {
	return crypto.MaxBid(p.L)
}

// ValidateThreshold checks that t-out-of-n sharing supports one
// multiplication: the product of two degree t-1 sharings has degree 2t-2 and
// needs 2t-1 parties to be reduced again.
func ValidateThreshold(t, n int) error {
	if t < 1 || n < 1 {
		return fmt.Errorf("%w: threshold %d of %d", crypto.ErrInvalidParameters, t, n)
	}
	if n < 2*t-1 {
		return fmt.Errorf("%w: %d parties cannot multiply %d-out-of-%d sharings, need at least %d",
			crypto.ErrInvalidParameters, n, t, n, 2*t-1)
	}
	return nil
}
