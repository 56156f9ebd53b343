package comparison

import (
	"context"
	"fmt"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/protocol"
)

func (p *Protocol) openedARequest() *protocol.OpenedARequest {
	return &protocol.OpenedARequest{
		OpenedA: protocol.EncodeHex(p.openedA),
		L:       p.params.L,
		K:       p.params.K,
	}
}

// prepareZTables fills one (a_i XOR r_i, a_i AND r_i) entry per bit below l
// and starts the accumulators at z = 1, Z = 0.
func (p *Protocol) prepareZTables(ctx context.Context) error {
	req := p.openedARequest()
	if err := p.do(ctx, "prepare-z-tables", func(ctx context.Context) client.Ack {
		return p.client.PrepareZTables(ctx, req)
	}); err != nil {
		return err
	}

	for i := p.params.L - 1; i >= 0; i-- {
		if err := p.zTableXor(ctx, i); err != nil {
			return fmt.Errorf("z-table %d: %w", i, err)
		}
	}

	return p.do(ctx, "initialize-z-and-Z", func(ctx context.Context) client.Ack {
		return p.client.InitializeZAndZ(ctx, p.params.L)
	})
}

// zTableXor computes the propagate half a_i XOR r_i of entry i.
func (p *Protocol) zTableXor(ctx context.Context, i int) error {
	steps := []step{
		{"calculate-additive-share-of-z-table", func(ctx context.Context) client.Ack {
			return p.client.CalculateAdditiveShareOfZTable(ctx, i)
		}},
		{"redistribute-q", p.client.RedistributeQ},
		{"calculate-r-of-z-table", func(ctx context.Context) client.Ack {
			return p.client.CalculateROfZTable(ctx, i)
		}},
		{"calculate-multiplicative-share", func(ctx context.Context) client.Ack {
			return p.client.CalculateMultiplicativeShare(ctx, nil)
		}},
		{"calculate-xor-share", p.client.CalculateXorShare},
		{"set-z-table-to-xor-share", func(ctx context.Context) client.Ack {
			return p.client.SetZTableToXorShare(ctx, i)
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

// zTableRound folds entry i into the accumulators:
//
//	(z, Z) <- (x*y, X XOR x*(X XOR Y))
//
// with (x, X) the accumulators so far and (y, Y) the entry.
func (p *Protocol) zTableRound(ctx context.Context, i int) error {
	if err := p.do(ctx, "prepare-for-next-romb", func(ctx context.Context) client.Ack {
		return p.client.PrepareForNextRomb(ctx, i)
	}); err != nil {
		return err
	}
	if err := p.multiply(ctx, protocol.ShareLowerX, protocol.ShareLowerY, protocol.ShareLowerZ); err != nil {
		return err
	}
	if err := p.xorShares(ctx, protocol.ShareUpperX, protocol.ShareUpperY, protocol.ShareUpperZ); err != nil {
		return err
	}
	if err := p.multiply(ctx, protocol.ShareLowerX, protocol.ShareUpperZ, protocol.ShareUpperZ); err != nil {
		return err
	}
	return p.xorShares(ctx, protocol.ShareUpperZ, protocol.ShareUpperX, protocol.ShareUpperZ)
}

// zTableResult computes res = a_l XOR r_l XOR Z.
func (p *Protocol) zTableResult(ctx context.Context) error {
	l := p.params.L
	if err := p.do(ctx, "prepare-shares-for-res-xors", func(ctx context.Context) client.Ack {
		return p.client.PrepareSharesForResXors(ctx, l, l)
	}); err != nil {
		return err
	}
	if err := p.xorShares(ctx, protocol.ShareAL, protocol.ShareRL, protocol.ShareRes); err != nil {
		return err
	}
	return p.xorShares(ctx, protocol.ShareRes, protocol.ShareUpperZ, protocol.ShareRes)
}
