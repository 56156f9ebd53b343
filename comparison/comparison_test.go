package comparison_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/comparison"
	"github.com/flashbots/mpcauction/protocol"
	"github.com/flashbots/mpcauction/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProtocol(t *testing.T, c *client.Client, strategy protocol.Strategy) *comparison.Protocol {
	t.Helper()
	params := testutil.TestParams()
	params.Strategy = strategy
	p, err := comparison.New(&comparison.Config{Client: c, Params: params})
	require.NoError(t, err)
	return p
}

func TestCompare(t *testing.T) {
	pairs := []struct {
		winner, contender int64
	}{
		{7, 3},
		{3, 7},
		{5, 5},
		{1, 15},
		{15, 1},
		{8, 7},
		{7, 8},
	}

	for _, strategy := range []protocol.Strategy{protocol.ZTableStrategy, protocol.ZStackStrategy} {
		t.Run(string(strategy), func(t *testing.T) {
			cluster := testutil.StartCluster(t)
			for i, pair := range pairs {
				winnerID, contenderID := 2*i+1, 2*i+2
				cluster.ShareBid(t, winnerID, pair.winner)
				cluster.ShareBid(t, contenderID, pair.contender)
			}

			for i, pair := range pairs {
				t.Run(fmt.Sprintf("%d_vs_%d", pair.winner, pair.contender), func(t *testing.T) {
					p := newProtocol(t, cluster.Client, strategy)

					res, err := p.Compare(context.Background(), 2*i+1, 2*i+2)
					require.NoError(t, err)
					assert.Equal(t, comparison.Done, p.State())

					want := 0
					if pair.winner >= pair.contender {
						want = 1
					}
					assert.Equal(t, want, res.Bit)
					assert.Equal(t, pair.contender <= pair.winner, res.ContenderWins())
					assert.Equal(t, strategy, res.Strategy)
				})
			}
		})
	}
}

func TestCompareStages(t *testing.T) {
	cluster := testutil.StartCluster(t)
	cluster.ShareBid(t, 1, 9)
	cluster.ShareBid(t, 2, 4)

	p := newProtocol(t, cluster.Client, protocol.ZStackStrategy)
	res, err := p.Compare(context.Background(), 1, 2)
	require.NoError(t, err)

	names := make([]string, len(res.Stages))
	for i, s := range res.Stages {
		names[i] = s.Name
		assert.Positive(t, s.Calls, s.Name)
		assert.GreaterOrEqual(t, s.Duration, time.Duration(0))
	}
	assert.Equal(t, []string{"reset", "random-bits", "random-number", "a-comparison", "open-a", "z-stack", "romb-rounds", "result", "open-result"}, names)

	// Opened a lies in (0, p) and hides the difference behind r.
	assert.Positive(t, res.OpenedA.Sign())
	assert.Negative(t, res.OpenedA.Cmp(testutil.TestPrime))
}

func TestIllegalTransitions(t *testing.T) {
	cluster := testutil.StartCluster(t)
	ctx := context.Background()
	p := newProtocol(t, cluster.Client, protocol.ZTableStrategy)

	require.ErrorIs(t, p.OpenA(ctx), comparison.ErrIllegalTransition)
	require.ErrorIs(t, p.ComputeA(ctx, 1, 2), comparison.ErrIllegalTransition)
	require.ErrorIs(t, p.PrepareCarry(ctx), comparison.ErrIllegalTransition)
	require.ErrorIs(t, p.NextRound(ctx), comparison.ErrIllegalTransition)
	require.ErrorIs(t, p.ComputeResult(ctx), comparison.ErrIllegalTransition)
	require.ErrorIs(t, p.OpenResult(ctx), comparison.ErrIllegalTransition)

	_, err := p.Bit()
	require.ErrorIs(t, err, comparison.ErrIllegalTransition)

	// Rejected calls leave the state alone.
	assert.Equal(t, comparison.Idle, p.State())
}

func TestCompareWithItself(t *testing.T) {
	cluster := testutil.StartCluster(t)
	cluster.ShareBid(t, 1, 9)
	ctx := context.Background()

	p := newProtocol(t, cluster.Client, protocol.ZTableStrategy)
	require.NoError(t, p.Reset(ctx))
	require.NoError(t, p.ShareRandomNumber(ctx))
	require.ErrorIs(t, p.ComputeA(ctx, 1, 1), comparison.ErrIllegalTransition)
	assert.Equal(t, comparison.RandomShared, p.State())
}

func TestUnknownBidderFails(t *testing.T) {
	cluster := testutil.StartCluster(t)
	cluster.ShareBid(t, 1, 9)
	ctx := context.Background()

	p := newProtocol(t, cluster.Client, protocol.ZTableStrategy)
	_, err := p.Compare(ctx, 1, 42)
	require.Error(t, err)
	assert.Equal(t, comparison.Failed, p.State())

	var protoErr *client.ProtocolError
	require.True(t, errors.As(err, &protoErr))
	assert.Equal(t, 400, protoErr.StatusCode)

	// Only a reset leaves Failed.
	require.ErrorIs(t, p.ShareRandomNumber(ctx), comparison.ErrIllegalTransition)
	require.NoError(t, p.Reset(ctx))
	assert.Equal(t, comparison.Idle, p.State())
}

func TestFailurePolicy(t *testing.T) {
	cluster := testutil.StartCluster(t)
	cluster.Servers[2].Close()
	ctx := context.Background()

	p := newProtocol(t, cluster.Client, protocol.ZTableStrategy)
	err := p.Reset(ctx)
	require.Error(t, err)
	var netErr *client.NetworkError
	require.True(t, errors.As(err, &netErr))
	assert.Equal(t, cluster.URLs[2], netErr.Party)
	assert.Equal(t, comparison.Failed, p.State())

	params := testutil.TestParams()
	params.FailurePolicy = protocol.ContinueOnPartyError
	lenient, err := comparison.New(&comparison.Config{Client: cluster.Client, Params: params})
	require.NoError(t, err)
	require.NoError(t, lenient.Reset(ctx))
	assert.Equal(t, comparison.Idle, lenient.State())
}

func TestContinuePastDownParty(t *testing.T) {
	for _, strategy := range []protocol.Strategy{protocol.ZTableStrategy, protocol.ZStackStrategy} {
		t.Run(string(strategy), func(t *testing.T) {
			cluster := testutil.StartCluster(t, testutil.WithParties(5), testutil.WithThreshold(2))
			cluster.ShareBid(t, 1, 9)
			cluster.ShareBid(t, 2, 4)
			cluster.Servers[4].Close()

			params := testutil.TestParams()
			params.Strategy = strategy
			params.FailurePolicy = protocol.ContinueOnPartyError
			p, err := comparison.New(&comparison.Config{
				Client: cluster.Client,
				Params: params,
				Log:    slog.New(slog.NewTextHandler(io.Discard, nil)),
			})
			require.NoError(t, err)

			ctx := context.Background()
			res, err := p.Compare(ctx, 1, 2)
			require.NoError(t, err)
			assert.Equal(t, 1, res.Bit)
			assert.True(t, res.ContenderWins())

			res, err = p.Compare(ctx, 2, 1)
			require.NoError(t, err)
			assert.Equal(t, 0, res.Bit)

			// The same outage aborts under the default policy.
			strict := newProtocol(t, cluster.Client, strategy)
			_, err = strict.Compare(ctx, 1, 2)
			require.Error(t, err)
			assert.Equal(t, comparison.Failed, strict.State())
		})
	}
}

func TestCancelledContext(t *testing.T) {
	cluster := testutil.StartCluster(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := newProtocol(t, cluster.Client, protocol.ZTableStrategy)
	_, err := p.Compare(ctx, 1, 2)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, comparison.Failed, p.State())
}

func TestNewRejectsBadParams(t *testing.T) {
	cluster := testutil.StartCluster(t, testutil.Unseeded())

	params := testutil.TestParams()
	params.L = 8
	_, err := comparison.New(&comparison.Config{Client: cluster.Client, Params: params})
	require.Error(t, err)

	_, err = comparison.New(&comparison.Config{Params: testutil.TestParams()})
	require.Error(t, err)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "romb-round", comparison.RombRound.String())
	assert.Equal(t, "state(42)", comparison.State(42).String())
}
