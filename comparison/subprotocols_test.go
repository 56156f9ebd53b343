package comparison

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/protocol"
	"github.com/flashbots/mpcauction/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func newSession(t *testing.T, c *client.Client) *Protocol {
	t.Helper()
	p, err := New(&Config{Client: c, Params: testutil.TestParams(), Log: quiet})
	require.NoError(t, err)
	return p
}

// scriptedParty acknowledges every primitive and answers reconstruct-secret
// with open(name).
func scriptedParty(t *testing.T, open func(name string) string) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := ""
		if name, ok := strings.CutPrefix(r.URL.Path, protocol.PathReconstructSecret+"/"); ok {
			secret = open(name)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"result":"ok","secret":"`+secret+`"}`)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func newScriptedClient(t *testing.T, parties ...string) *client.Client {
	t.Helper()
	c, err := client.New(&client.Config{Parties: parties, Timeout: 5 * time.Second, Log: quiet})
	require.NoError(t, err)
	return c
}

func TestShareRandomBitOpensToABit(t *testing.T) {
	cluster := testutil.StartCluster(t)
	ctx := context.Background()
	p := newSession(t, cluster.Client)
	require.NoError(t, p.Reset(ctx))

	seen := map[int64]int{}
	for i := 0; i < 30; i++ {
		require.NoError(t, p.shareRandomBit(ctx, i))
		bit, err := p.open(ctx, protocol.ShareTemporaryRandomBit)
		require.NoError(t, err)
		require.True(t, bit.IsInt64())
		require.Contains(t, []int64{0, 1}, bit.Int64())
		seen[bit.Int64()]++
	}
	assert.Len(t, seen, 2, "30 random bits were all %v", seen)
}

func TestShareRandomBitRetriesZeroSquare(t *testing.T) {
	opens := atomic.NewInt64(0)
	party := scriptedParty(t, func(name string) string {
		if name != protocol.ShareV {
			return "0"
		}
		// u was zero twice before a non-zero square came out.
		if opens.Inc() <= 2 {
			return "0"
		}
		return "4"
	})
	p := newSession(t, newScriptedClient(t, party))

	require.NoError(t, p.shareRandomBit(context.Background(), 0))
	assert.Equal(t, int64(3), opens.Load())
}

func TestDivergingOpenIsInconsistent(t *testing.T) {
	parties := make([]string, 3)
	for i := range parties {
		a := protocol.EncodeHex(big.NewInt(int64(10 + i)))
		parties[i] = scriptedParty(t, func(name string) string {
			switch name {
			case protocol.ShareV:
				return "4"
			case protocol.ShareComparisonA:
				return a
			}
			return "0"
		})
	}
	p := newSession(t, newScriptedClient(t, parties...))

	_, err := p.Compare(context.Background(), 1, 2)
	require.ErrorIs(t, err, ErrInconsistentState)
	assert.Equal(t, Failed, p.State())
}
