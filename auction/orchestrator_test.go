package auction_test

import (
	"context"
	"math/big"
	"net/http"
	"testing"

	"github.com/flashbots/mpcauction/auction"
	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/crypto"
	"github.com/flashbots/mpcauction/protocol"
	"github.com/flashbots/mpcauction/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrchestrator(t *testing.T, cluster *testutil.Cluster, store auction.ResultStore) *auction.Orchestrator {
	t.Helper()
	o, err := auction.New(&auction.Config{
		Client:    cluster.Client,
		Params:    testutil.TestParams(),
		Threshold: cluster.Config.Threshold,
		Store:     store,
	})
	require.NoError(t, err)
	return o
}

func TestRunAuction(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end auction")
	}

	cluster := testutil.StartCluster(t)
	store := auction.NewInMemoryStore()
	o := newOrchestrator(t, cluster, store)
	ctx := context.Background()

	for id, bid := range map[int]int64{1: 10, 2: 3, 3: 7} {
		require.NoError(t, o.SubmitBid(ctx, id, big.NewInt(bid)))
	}

	res, err := o.RunAuction(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.WinnerID)
	assert.Equal(t, []int{1, 2, 3}, res.Bidders)

	// 3 starts as the winner, 2 (bid 3) takes over, 1 (bid 10) does not.
	require.Len(t, res.Comparisons, 2)
	assert.Equal(t, 3, res.Comparisons[0].WinnerID)
	assert.Equal(t, 2, res.Comparisons[0].ContenderID)
	assert.True(t, res.Comparisons[0].ContenderWins())
	assert.Equal(t, 2, res.Comparisons[1].WinnerID)
	assert.Equal(t, 1, res.Comparisons[1].ContenderID)
	assert.False(t, res.Comparisons[1].ContenderWins())

	require.NotNil(t, res.Record)
	require.NoError(t, res.Record.Verify())
	assert.Equal(t, cluster.URLs, res.Record.Parties)

	history, err := o.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, res.Record.ID, history[0].ID)
}

func TestRunAuctionZStack(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end auction")
	}

	cluster := testutil.StartCluster(t)
	params := testutil.TestParams()
	params.Strategy = protocol.ZStackStrategy
	o, err := auction.New(&auction.Config{Client: cluster.Client, Params: params, Threshold: 2})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, o.SubmitBid(ctx, 4, big.NewInt(12)))
	require.NoError(t, o.SubmitBid(ctx, 9, big.NewInt(5)))

	res, err := o.RunAuction(ctx)
	require.NoError(t, err)
	assert.Equal(t, 9, res.WinnerID)
	assert.Equal(t, string(protocol.ZStackStrategy), res.Record.Strategy)
}

func TestNotEnoughBidders(t *testing.T) {
	cluster := testutil.StartCluster(t)
	o := newOrchestrator(t, cluster, nil)
	ctx := context.Background()

	_, err := o.RunAuction(ctx)
	require.ErrorIs(t, err, auction.ErrNotEnoughBidders)

	require.NoError(t, o.SubmitBid(ctx, 1, big.NewInt(4)))
	_, err = o.RunAuction(ctx)
	require.ErrorIs(t, err, auction.ErrNotEnoughBidders)
}

func TestBidderIDMismatch(t *testing.T) {
	cluster := testutil.StartCluster(t)
	o := newOrchestrator(t, cluster, nil)
	ctx := context.Background()

	require.NoError(t, o.SubmitBid(ctx, 1, big.NewInt(4)))
	require.NoError(t, o.SubmitBid(ctx, 2, big.NewInt(6)))

	// Only the first party learns about bidder 3.
	_, err := client.Do[protocol.ResultResponse](ctx, cluster.Client, cluster.URLs[0], http.MethodPost,
		protocol.PathSetShares, protocol.NewBidShareRequest(3, big.NewInt(11)))
	require.NoError(t, err)

	_, err = o.BidderIDs(ctx)
	require.ErrorIs(t, err, auction.ErrInconsistentState)

	_, err = o.RunAuction(ctx)
	require.ErrorIs(t, err, auction.ErrInconsistentState)
}

func TestSubmitBidValidation(t *testing.T) {
	cluster := testutil.StartCluster(t)
	o := newOrchestrator(t, cluster, nil)
	ctx := context.Background()

	for _, tc := range []struct {
		name string
		id   int
		bid  *big.Int
	}{
		{"zero bid", 1, big.NewInt(0)},
		{"negative bid", 1, big.NewInt(-3)},
		{"above max bid", 1, big.NewInt(16)},
		{"nil bid", 1, nil},
		{"zero bidder", 0, big.NewInt(5)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.ErrorIs(t, o.SubmitBid(ctx, tc.id, tc.bid), crypto.ErrInvalidParameters)
		})
	}

	require.NoError(t, o.SubmitBid(ctx, 1, big.NewInt(15)))
	ids, err := o.BidderIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1}, ids)
}

func TestResets(t *testing.T) {
	cluster := testutil.StartCluster(t)
	o := newOrchestrator(t, cluster, nil)
	ctx := context.Background()

	iv, err := o.InitialValues(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, iv.T)
	assert.Equal(t, 3, iv.N)
	assert.Equal(t, cluster.URLs, iv.Parties)

	require.NoError(t, o.SubmitBid(ctx, 1, big.NewInt(4)))
	require.NoError(t, o.ResetAll(ctx))
	ids, err := o.BidderIDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, o.FactoryResetAll(ctx))
	_, err = o.InitialValues(ctx)
	require.Error(t, err)
	err = o.SubmitBid(ctx, 1, big.NewInt(4))
	var protoErr *client.ProtocolError
	require.ErrorAs(t, err, &protoErr)
	assert.Equal(t, http.StatusConflict, protoErr.StatusCode)

	require.NoError(t, o.SeedInitialValues(ctx))
	_, err = o.InitialValues(ctx)
	require.NoError(t, err)
}

func TestNewValidates(t *testing.T) {
	cluster := testutil.StartCluster(t, testutil.Unseeded())

	_, err := auction.New(&auction.Config{Client: cluster.Client, Params: testutil.TestParams(), Threshold: 3})
	require.ErrorIs(t, err, crypto.ErrInvalidParameters)

	params := testutil.TestParams()
	params.Prime = big.NewInt(157)
	_, err = auction.New(&auction.Config{Client: cluster.Client, Params: params, Threshold: 2})
	require.ErrorIs(t, err, crypto.ErrInvalidParameters)
}
