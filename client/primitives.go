package client

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"net/url"
	"strconv"

	"github.com/flashbots/mpcauction/crypto"
	"github.com/flashbots/mpcauction/protocol"
)

// Ack is the acknowledgement returned by state-mutating primitives.
type Ack = Outcomes[protocol.ResultResponse]

func withParam(path string, params ...string) string {
	for _, p := range params {
		path += "/" + url.PathEscape(p)
	}
	return path
}

func withIndex(path string, indices ...int) string {
	for _, i := range indices {
		path += "/" + strconv.Itoa(i)
	}
	return path
}

// Status probes every party.
func (c *Client) Status(ctx context.Context) Outcomes[protocol.StatusResponse] {
	return CallAll[protocol.StatusResponse](ctx, c, http.MethodGet, protocol.PathStatus, nil)
}

// SeedInitialValues tells every party the threshold, the prime, the roster
// and its own 1-based position in it.
func (c *Client) SeedInitialValues(ctx context.Context, t int, prime *big.Int) Ack {
	return CallEach[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathInitialValues, func(i int, _ string) any {
		return &protocol.InitialValuesRequest{
			T:       t,
			N:       len(c.parties),
			ID:      i + 1,
			P:       protocol.EncodeHex(prime),
			Parties: c.parties,
		}
	})
}

// InitialValues fetches what every party was seeded with.
func (c *Client) InitialValues(ctx context.Context) Outcomes[protocol.InitialValuesResponse] {
	return CallAll[protocol.InitialValuesResponse](ctx, c, http.MethodGet, protocol.PathInitialValues, nil)
}

// Reset clears bids and protocol state but keeps the seeded parameters.
func (c *Client) Reset(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathReset, nil)
}

// FactoryReset clears everything, including the seeded parameters.
func (c *Client) FactoryReset(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathFactoryReset, nil)
}

// ResetCalculation clears the scratch state of the last sub-protocol.
func (c *Client) ResetCalculation(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathResetCalculation, nil)
}

// ResetComparison clears the state of the last comparison.
func (c *Client) ResetComparison(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathResetComparison, nil)
}

// Bidders fetches the bidder IDs from every party.
func (c *Client) Bidders(ctx context.Context) Outcomes[protocol.BiddersResponse] {
	return CallAll[protocol.BiddersResponse](ctx, c, http.MethodGet, protocol.PathGetBidders, nil)
}

// SetBidShares hands each party its share of a bid. shares must hold one
// share per party, indexed 1..n.
func (c *Client) SetBidShares(ctx context.Context, clientID int, shares []crypto.Share) (Ack, error) {
	if len(shares) != len(c.parties) {
		return nil, fmt.Errorf("%w: %d shares for %d parties", crypto.ErrInvalidParameters, len(shares), len(c.parties))
	}
	byIndex := make(map[int]*big.Int, len(shares))
	for _, s := range shares {
		byIndex[s.Index] = s.Value
	}
	for i := range c.parties {
		if byIndex[i+1] == nil {
			return nil, fmt.Errorf("%w: missing share for party %d", crypto.ErrInvalidParameters, i+1)
		}
	}

	return CallEach[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathSetShares, func(i int, _ string) any {
		return protocol.NewBidShareRequest(clientID, byIndex[i+1])
	}), nil
}

// SetDummyShare stores a public constant under name at every party.
func (c *Client) SetDummyShare(ctx context.Context, name string, value *big.Int) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathSetShares, protocol.NewDummyShareRequest(name, value))
}

// RedistributeQ makes every party draw the random coefficients of its
// resharing polynomial.
func (c *Client) RedistributeQ(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathRedistributeQ, nil)
}

// RedistributeR makes every party multiply the requested operands locally and
// reshare the product.
func (c *Client) RedistributeR(ctx context.Context, req *protocol.RedistributeRRequest) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathRedistributeR, req)
}

// RedistributeU makes every party share a fresh random value.
func (c *Client) RedistributeU(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathRedistributeU, nil)
}

// CalculateSharedU sums the random values shared by RedistributeU into u.
func (c *Client) CalculateSharedU(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathCalculateSharedU, nil)
}

// CalculateMultiplicativeShare recombines the reshared products.
func (c *Client) CalculateMultiplicativeShare(ctx context.Context, req *protocol.MultiplicativeShareRequest) Ack {
	if req == nil {
		req = &protocol.MultiplicativeShareRequest{}
	}
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathCalculateMultiplicativeShare, req)
}

// CalculateAdditiveShare adds two named shares.
func (c *Client) CalculateAdditiveShare(ctx context.Context, first, second string) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathCalculateAdditiveShare,
		&protocol.SharePairRequest{FirstShareName: first, SecondShareName: second})
}

// CalculateXorShare derives additive - 2*multiplicative.
func (c *Client) CalculateXorShare(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathCalculateXorShare, nil)
}

// SetAdditiveShare stores the current additive share under name.
func (c *Client) SetAdditiveShare(ctx context.Context, name string) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withParam(protocol.PathSetAdditiveShare, name), nil)
}

// SetMultiplicativeShare stores the current multiplicative share under name.
func (c *Client) SetMultiplicativeShare(ctx context.Context, name string) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withParam(protocol.PathSetMultiplicativeShare, name), nil)
}

// SetXorShare stores the current XOR share under name.
func (c *Client) SetXorShare(ctx context.Context, name string) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withParam(protocol.PathSetXorShare, name), nil)
}

// Xor combines two zZ-stack operands into temporary slot 1.
func (c *Client) Xor(ctx context.Context, req *protocol.XorRequest) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathXor, req)
}

// SetTemporaryRandomBitShare stores the last random bit at bit position i.
func (c *Client) SetTemporaryRandomBitShare(ctx context.Context, i int) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withIndex(protocol.PathSetTemporaryRandomBitShare, i), nil)
}

// CalculateShareOfRandomNumber combines the random bits into r.
func (c *Client) CalculateShareOfRandomNumber(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathCalculateShareOfRandomNumber, nil)
}

// CalculateAComparison computes the masked difference of two bidders' bids.
func (c *Client) CalculateAComparison(ctx context.Context, req *protocol.AComparisonRequest) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, protocol.PathCalculateAComparison, req)
}

// ReconstructSecret opens the named value at every party.
func (c *Client) ReconstructSecret(ctx context.Context, which string) Outcomes[protocol.ReconstructResponse] {
	return CallAll[protocol.ReconstructResponse](ctx, c, http.MethodGet, withParam(protocol.PathReconstructSecret, which), nil)
}

// CalculateZComparison builds the zZ stack from the opened masked difference.
func (c *Client) CalculateZComparison(ctx context.Context, req *protocol.OpenedARequest) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathCalculateZComparison, req)
}

// CalculateAdditiveShareOfZTable adds bit i of a and r.
func (c *Client) CalculateAdditiveShareOfZTable(ctx context.Context, i int) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withIndex(protocol.PathCalculateAdditiveShareOfZTable, i), nil)
}

// CalculateROfZTable multiplies bit i of a and r and reshares the product.
func (c *Client) CalculateROfZTable(ctx context.Context, i int) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withIndex(protocol.PathCalculateROfZTable, i), nil)
}

// SetZTableToXorShare stores the current XOR share as z-table entry i.
func (c *Client) SetZTableToXorShare(ctx context.Context, i int) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withIndex(protocol.PathSetZTableToXorShare, i), nil)
}

// PopZZ replaces the top two zZ entries with the temporary pair.
func (c *Client) PopZZ(ctx context.Context) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathPopZZ, nil)
}

// PrepareZTables derives the public half of every z-table entry.
func (c *Client) PrepareZTables(ctx context.Context, req *protocol.OpenedARequest) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathPrepareZTables, req)
}

// InitializeZAndZ starts z at 1 and Z at 0.
func (c *Client) InitializeZAndZ(ctx context.Context, l int) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathInitializeZAndZ, &protocol.InitializeZRequest{L: l})
}

// PrepareForNextRomb loads x, X from the accumulators and y, Y from z-table entry i.
func (c *Client) PrepareForNextRomb(ctx context.Context, i int) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withIndex(protocol.PathPrepareForNextRomb, i), nil)
}

// PrepareSharesForResXors loads bit i of a into a_l and random bit j into r_l.
func (c *Client) PrepareSharesForResXors(ctx context.Context, i, j int) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPut, withIndex(protocol.PathPrepareSharesForResXors, i, j), nil)
}

// CalculateComparisonResult derives res at the end of the zZ-stack variant.
func (c *Client) CalculateComparisonResult(ctx context.Context, req *protocol.OpenedARequest) Ack {
	return CallAll[protocol.ResultResponse](ctx, c, http.MethodPost, protocol.PathCalculateComparisonResult, req)
}
