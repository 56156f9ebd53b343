package comparison

import (
	"context"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/protocol"
)

// Stack factors: {entry from the top, component}, component 0 is the
// propagate share z and 1 the carry share Z. A single-element factor
// addresses a temporary slot.
var (
	topZ      = []int{0, 0}
	topCarry  = []int{0, 1}
	nextZ     = []int{1, 0}
	nextCarry = []int{1, 1}
	temp1     = []int{1}
)

func (p *Protocol) prepareZStack(ctx context.Context) error {
	req := p.openedARequest()
	return p.do(ctx, "calculate-z-comparison", func(ctx context.Context) client.Ack {
		return p.client.CalculateZComparison(ctx, req)
	})
}

// zStackRound merges the top two stack entries with one romb and pops them.
func (p *Protocol) zStackRound(ctx context.Context) error {
	if err := p.romb(ctx); err != nil {
		return err
	}
	return p.do(ctx, "pop-zZ", p.client.PopZZ)
}

// romb leaves (z_top*z_next, Z_top XOR z_top*(Z_top XOR Z_next)) in the
// temporary slots.
func (p *Protocol) romb(ctx context.Context) error {
	if err := p.multiplyFactors(ctx, protocol.RedistributeStackFactors(false, topZ, nextZ), protocol.StoreInTemporary(0)); err != nil {
		return err
	}
	if err := p.xorFactors(ctx, false, topCarry, nextCarry); err != nil {
		return err
	}
	if err := p.multiplyFactors(ctx, protocol.RedistributeStackFactors(true, topZ, temp1), protocol.StoreInTemporary(1)); err != nil {
		return err
	}
	return p.xorFactors(ctx, true, topCarry, temp1)
}

func (p *Protocol) multiplyFactors(ctx context.Context, r *protocol.RedistributeRRequest, m *protocol.MultiplicativeShareRequest) error {
	steps := []step{
		{"redistribute-q", p.client.RedistributeQ},
		{"redistribute-r", func(ctx context.Context) client.Ack {
			return p.client.RedistributeR(ctx, r)
		}},
		{"calculate-multiplicative-share", func(ctx context.Context) client.Ack {
			return p.client.CalculateMultiplicativeShare(ctx, m)
		}},
		{"reset-calculation", p.client.ResetCalculation},
	}
	for _, s := range steps {
		if err := p.do(ctx, s.what, s.fn); err != nil {
			return err
		}
	}
	return nil
}

// xorFactors stores first XOR second in temporary slot 1.
func (p *Protocol) xorFactors(ctx context.Context, fromTemporary bool, first, second []int) error {
	xor := &protocol.XorRequest{
		TakeValueFromTemporaryZZ:     fromTemporary,
		ZZFirstMultiplicationFactor:  first,
		ZZSecondMultiplicationFactor: second,
	}
	return p.finishXor(ctx, protocol.RedistributeStackFactors(fromTemporary, first, second), "xor", func(ctx context.Context) client.Ack {
		return p.client.Xor(ctx, xor)
	})
}

// zStackResult computes res = (a_l XOR r_l) XOR Z once one entry is left.
func (p *Protocol) zStackResult(ctx context.Context) error {
	req := p.openedARequest()
	r := protocol.RedistributeFinalComparison(p.openedA, p.params.L, p.params.K)
	return p.finishXor(ctx, r, "calculate-comparison-result", func(ctx context.Context) client.Ack {
		return p.client.CalculateComparisonResult(ctx, req)
	})
}

// finishXor multiplies the operands of r for XOR and lets combine derive the
// XOR from that product.
func (p *Protocol) finishXor(ctx context.Context, r *protocol.RedistributeRRequest, what string, combine func(context.Context) client.Ack) error {
	steps := []step{
		{"redistribute-q", p.client.RedistributeQ},
		{"redistribute-r", func(ctx context.Context) client.Ack {
			return p.client.RedistributeR(ctx, r)
		}},
		{"calculate-multiplicative-share", func(ctx context.Context) client.Ack {
			return p.client.CalculateMultiplicativeShare(ctx, &protocol.MultiplicativeShareRequest{CalculateForXor: true})
		}},
		{what, combine},
		{"reset-calculation", p.client.ResetCalculation},
	}
	for _, s := range steps {
		if err := p.do(ctx, s.what, s.fn); err != nil {
			return err
		}
	}
	return nil
}
