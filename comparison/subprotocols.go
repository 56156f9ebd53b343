package comparison

import (
	"context"
	"fmt"
	"math/big"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/crypto"
	"github.com/flashbots/mpcauction/protocol"
)

// multiply computes dest = first * second and resets the scratch state.
func (p *Protocol) multiply(ctx context.Context, first, second, dest string) error {
	steps := []step{
		{"redistribute-q", p.client.RedistributeQ},
		{"redistribute-r", func(ctx context.Context) client.Ack {
			return p.client.RedistributeR(ctx, protocol.RedistributeNamedShares(first, second))
		}},
		{"calculate-multiplicative-share", func(ctx context.Context) client.Ack {
			return p.client.CalculateMultiplicativeShare(ctx, nil)
		}},
		{"set-multiplicative-share", func(ctx context.Context) client.Ack {
			return p.client.SetMultiplicativeShare(ctx, dest)
		}},
		{"reset-calculation", p.client.ResetCalculation},
	}
	for _, s := range steps {
		if err := p.do(ctx, s.what, s.fn); err != nil {
			return fmt.Errorf("%s * %s: %w", first, second, err)
		}
	}
	return nil
}

// add computes dest = first + second. Addition is local to every party.
func (p *Protocol) add(ctx context.Context, first, second, dest string) error {
	if err := p.do(ctx, "calculate-additive-share", func(ctx context.Context) client.Ack {
		return p.client.CalculateAdditiveShare(ctx, first, second)
	}); err != nil {
		return err
	}
	return p.do(ctx, "set-additive-share", func(ctx context.Context) client.Ack {
		return p.client.SetAdditiveShare(ctx, dest)
	})
}

// xorShares computes dest = first XOR second for shared bits as
// first + second - 2*first*second, and resets the scratch state.
func (p *Protocol) xorShares(ctx context.Context, first, second, dest string) error {
	steps := []step{
		{"calculate-additive-share", func(ctx context.Context) client.Ack {
			return p.client.CalculateAdditiveShare(ctx, first, second)
		}},
		{"redistribute-q", p.client.RedistributeQ},
		{"redistribute-r", func(ctx context.Context) client.Ack {
			return p.client.RedistributeR(ctx, protocol.RedistributeNamedShares(first, second))
		}},
		{"calculate-multiplicative-share", func(ctx context.Context) client.Ack {
			return p.client.CalculateMultiplicativeShare(ctx, nil)
		}},
		{"calculate-xor-share", p.client.CalculateXorShare},
		{"set-xor-share", func(ctx context.Context) client.Ack {
			return p.client.SetXorShare(ctx, dest)
		}},
		{"reset-calculation", p.client.ResetCalculation},
	}
	for _, s := range steps {
		if err := p.do(ctx, s.what, s.fn); err != nil {
			return fmt.Errorf("%s xor %s: %w", first, second, err)
		}
	}
	return nil
}

func (p *Protocol) dummy(ctx context.Context, name string, value *big.Int) error {
	return p.do(ctx, "set-shares "+name, func(ctx context.Context) client.Ack {
		return p.client.SetDummyShare(ctx, name, value)
	})
}

// shareRandomBit leaves a sharing of a uniformly random bit at position i.
//
// The parties share a random u and open v = u^2. With w the smallest square
// root of v, u/w is 1 or -1 with equal probability, so (u/w + 1)/2 is a
// random bit nobody learns.
func (p *Protocol) shareRandomBit(ctx context.Context, i int) error {
	prime := p.params.Prime

	var v *big.Int
	for attempt := 1; ; attempt++ {
		if err := p.do(ctx, "redistribute-u", p.client.RedistributeU); err != nil {
			return err
		}
		if err := p.do(ctx, "calculate-shared-u", p.client.CalculateSharedU); err != nil {
			return err
		}
		if err := p.multiply(ctx, protocol.ShareU, protocol.ShareU, protocol.ShareV); err != nil {
			return err
		}

		opened, err := p.open(ctx, protocol.ShareV)
		if err != nil {
			return err
		}
		if opened.Sign() > 0 {
			v = opened
			break
		}
		p.log.Debug("shared u was zero, retrying", "bit", i, "attempt", attempt)
	}

	w, err := crypto.DiscreteSqrt(v, prime)
	if err != nil {
		return err
	}
	inverseW, err := crypto.ModInverse(w, prime)
	if err != nil {
		return err
	}
	inverseTwo, err := crypto.ModInverse(big.NewInt(2), prime)
	if err != nil {
		return err
	}

	if err := p.dummy(ctx, protocol.ShareInverseW, inverseW); err != nil {
		return err
	}
	if err := p.multiply(ctx, protocol.ShareInverseW, protocol.ShareU, protocol.ShareInverseWTimesU); err != nil {
		return err
	}
	if err := p.dummy(ctx, protocol.ShareOne, big.NewInt(1)); err != nil {
		return err
	}
	if err := p.add(ctx, protocol.ShareInverseWTimesU, protocol.ShareOne, protocol.ShareInverseWTimesUPlusOne); err != nil {
		return err
	}
	if err := p.dummy(ctx, protocol.ShareInverseTwo, inverseTwo); err != nil {
		return err
	}
	if err := p.multiply(ctx, protocol.ShareInverseWTimesUPlusOne, protocol.ShareInverseTwo, protocol.ShareTemporaryRandomBit); err != nil {
		return err
	}
	return p.do(ctx, "set-temporary-random-bit-share", func(ctx context.Context) client.Ack {
		return p.client.SetTemporaryRandomBitShare(ctx, i)
	})
}
