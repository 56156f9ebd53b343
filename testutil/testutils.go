package testutil

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"log/slog"
	"math/big"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flashbots/mpcauction/api/httpserver"
	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/crypto"
	"github.com/flashbots/mpcauction/protocol"
	"github.com/flashbots/mpcauction/server"
	"github.com/stretchr/testify/require"
)

// TestPrime is the smallest prime above the bound for TestParams.
var TestPrime = big.NewInt(163)

// TestParams are small comparison parameters that keep end-to-end runs fast:
// bids in [1, 15], a 7-bit mask.
func TestParams() *protocol.Params {
	return &protocol.Params{
		L:             4,
		K:             2,
		Prime:         new(big.Int).Set(TestPrime),
		Repetitions:   1,
		Strategy:      protocol.ZTableStrategy,
		FailurePolicy: protocol.AbortOnPartyError,
	}
}

// ClusterConfig controls the parties StartCluster spins up.
type ClusterConfig struct {
	Parties   int
	Threshold int
	Prime     *big.Int
	Tokens    bool
	Seed      bool
	Log       *slog.Logger
}

// ClusterOption customizes a ClusterConfig.
type ClusterOption func(*ClusterConfig)

// WithParties sets the number of parties.
func WithParties(n int) ClusterOption {
	return func(c *ClusterConfig) { c.Parties = n }
}

// WithThreshold sets the sharing threshold t.
func WithThreshold(t int) ClusterOption {
	return func(c *ClusterConfig) { c.Threshold = t }
}

// WithPrime sets the prime the cluster is seeded with.
func WithPrime(p *big.Int) ClusterOption {
	return func(c *ClusterConfig) { c.Prime = p }
}

// WithoutTokens disables bearer authentication on every party.
func WithoutTokens() ClusterOption {
	return func(c *ClusterConfig) { c.Tokens = false }
}

// Unseeded leaves the parties without initial values.
func Unseeded() ClusterOption {
	return func(c *ClusterConfig) { c.Seed = false }
}

// Cluster is a set of reference parties served from httptest servers.
type Cluster struct {
	Config  ClusterConfig
	Parties []*server.Party
	Servers []*httptest.Server
	URLs    []string
	Tokens  map[string]string
	Client  *client.Client
}

// StartCluster starts the parties, builds a client over them and, unless
// Unseeded is given, seeds them with the threshold and prime. Everything is
// shut down when the test ends.
func StartCluster(t testing.TB, options ...ClusterOption) *Cluster {
	t.Helper()

	cfg := ClusterConfig{
		Parties:   3,
		Threshold: 2,
		Prime:     TestPrime,
		Tokens:    true,
		Seed:      true,
		Log:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range options {
		opt(&cfg)
	}

	c := &Cluster{
		Config: cfg,
		Tokens: make(map[string]string, cfg.Parties),
	}

	secrets := make([]string, cfg.Parties)
	for i := range secrets {
		if cfg.Tokens {
			secrets[i] = GenerateToken(t)
		}
	}

	peerFactory := server.NewHTTPPeerFactory(c.Tokens, 10*time.Second, cfg.Log)
	for i := 0; i < cfg.Parties; i++ {
		party := server.NewParty(&server.PartyConfig{NewPeers: peerFactory, Log: cfg.Log})
		handler := server.NewHandler(&server.HandlerConfig{Party: party, Token: secrets[i], Log: cfg.Log})

		base, err := httpserver.New(&httpserver.HTTPServerConfig{Log: cfg.Log}, handler)
		require.NoError(t, err)

		srv := httptest.NewServer(base.Handler())
		t.Cleanup(srv.Close)

		c.Parties = append(c.Parties, party)
		c.Servers = append(c.Servers, srv)
		c.URLs = append(c.URLs, srv.URL)
		if secrets[i] != "" {
			c.Tokens[srv.URL] = secrets[i]
		}
	}

	cl, err := client.New(&client.Config{
		Parties: c.URLs,
		Tokens:  c.Tokens,
		Timeout: 10 * time.Second,
		Log:     cfg.Log,
	})
	require.NoError(t, err)
	c.Client = cl

	if cfg.Seed {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		require.NoError(t, cl.SeedInitialValues(ctx, cfg.Threshold, cfg.Prime).Err())
	}
	return c
}

// ShareBid splits bid and hands one share to every party of the cluster.
func (c *Cluster) ShareBid(t testing.TB, bidderID int, bid int64) {
	t.Helper()

	shares, err := crypto.Split(rand.Reader, c.Config.Prime, c.Config.Threshold, c.Config.Parties, big.NewInt(bid))
	require.NoError(t, err)

	ack, err := c.Client.SetBidShares(context.Background(), bidderID, shares)
	require.NoError(t, err)
	require.NoError(t, ack.Err())
}

// GenerateToken returns a random hex bearer token.
func GenerateToken(t testing.TB) string {
	t.Helper()
	b := make([]byte, 16)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return hex.EncodeToString(b)
}
