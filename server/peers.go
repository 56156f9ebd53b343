package server

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/url"
	"time"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/protocol"
)

// httpPeers reaches the other parties of the roster through their internal
// endpoints.
type httpPeers struct {
	roster []string
	self   int
	client *client.Client
}

// NewHTTPPeerFactory returns a PeerFactory whose transport authenticates with
// tokens, keyed by party base URL.
func NewHTTPPeerFactory(tokens map[string]string, timeout time.Duration, log *slog.Logger) PeerFactory {
	return func(roster []string, self int) (Peers, error) {
		c, err := client.New(&client.Config{
			Parties: roster,
			Tokens:  tokens,
			Timeout: timeout,
			Log:     log,
		})
		if err != nil {
			return nil, err
		}
		return &httpPeers{roster: c.Parties(), self: self, client: c}, nil
	}
}

func (h *httpPeers) party(i int) (string, error) {
	if i < 1 || i > len(h.roster) || i == h.self {
		return "", fmt.Errorf("no peer %d", i)
	}
	return h.roster[i-1], nil
}

func (h *httpPeers) SendSubShare(ctx context.Context, to int, msg *protocol.SubShareMessage) error {
	party, err := h.party(to)
	if err != nil {
		return err
	}
	_, err = client.Do[protocol.ResultResponse](ctx, h.client, party, http.MethodPost, protocol.PathSubShare, msg)
	return err
}

func (h *httpPeers) FetchShare(ctx context.Context, from int, name string) (*big.Int, error) {
	party, err := h.party(from)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do[protocol.ShareResponse](ctx, h.client, party, http.MethodGet, protocol.PathShare+"/"+url.PathEscape(name), nil)
	if err != nil {
		return nil, err
	}
	if resp.Index != from {
		return nil, fmt.Errorf("party %d answered with index %d", from, resp.Index)
	}
	return protocol.DecodeHex(resp.Value)
}
