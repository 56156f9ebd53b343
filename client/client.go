package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/flashbots/mpcauction/metrics"
	"github.com/flashbots/mpcauction/protocol"
	"golang.org/x/sync/errgroup"
)

const maxResponseSize = 1 << 20

// Config contains the settings for a protocol client.
type Config struct {
	// Parties are the base URLs of every party, in roster order. The
	// position of a party in this list is its 1-based share index minus one.
	Parties []string

	// Tokens maps a party's base URL to its bearer token.
	Tokens map[string]string

	// Timeout bounds each individual request. Zero means 30 seconds.
	Timeout time.Duration

	// HTTPClient overrides the default client, mostly for tests.
	HTTPClient *http.Client

	Log *slog.Logger
}

// Client issues MPC primitive calls to every party of a roster.
type Client struct {
	parties    []string
	tokens     map[string]string
	httpClient *http.Client
	log        *slog.Logger
}

// New creates a client for the configured roster.
func New(cfg *Config) (*Client, error) {
	if len(cfg.Parties) == 0 {
		return nil, errors.New("no parties configured")
	}

	seen := make(map[string]bool, len(cfg.Parties))
	parties := make([]string, len(cfg.Parties))
	for i, p := range cfg.Parties {
		p = strings.TrimRight(p, "/")
		if p == "" {
			return nil, fmt.Errorf("party %d has an empty address", i+1)
		}
		if seen[p] {
			return nil, fmt.Errorf("party %s listed twice", p)
		}
		seen[p] = true
		parties[i] = p
	}

	tokens := make(map[string]string, len(cfg.Tokens))
	for party, token := range cfg.Tokens {
		tokens[strings.TrimRight(party, "/")] = token
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		parties:    parties,
		tokens:     tokens,
		httpClient: httpClient,
		log:        log,
	}, nil
}

// Parties returns the roster in order.
func (c *Client) Parties() []string {
	return append([]string(nil), c.parties...)
}

// Outcome is one party's answer to a fan-out call: either Value or Err is set.
type Outcome[T any] struct {
	Party string
	Value *T
	Err   error
}

// Outcomes holds one Outcome per party, in roster order.
type Outcomes[T any] []Outcome[T]

// Values returns the payloads of the parties that succeeded.
func (os Outcomes[T]) Values() []T {
	values := make([]T, 0, len(os))
	for _, o := range os {
		if o.Err == nil && o.Value != nil {
			values = append(values, *o.Value)
		}
	}
	return values
}

// Failed returns the outcomes of the parties that failed.
func (os Outcomes[T]) Failed() []Outcome[T] {
	var failed []Outcome[T]
	for _, o := range os {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err aggregates the failed parties into a *FanOutError, or returns nil.
func (os Outcomes[T]) Err() error {
	failed := os.Failed()
	if len(failed) == 0 {
		return nil
	}
	failures := make([]PartyFailure, len(failed))
	for i, o := range failed {
		failures[i] = PartyFailure{Party: o.Party, Err: o.Err}
	}
	return &FanOutError{Total: len(os), Failures: failures}
}

// Do issues one authenticated call to a single party and decodes the
// response into T.
func Do[T any](ctx context.Context, c *Client, party, method, path string, body any) (*T, error) {
	var out T
	if err := c.do(ctx, party, method, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CallAll sends the same request to every party concurrently and waits for
// all of them. It never fails as a whole: transport and protocol failures are
// recorded per party.
func CallAll[T any](ctx context.Context, c *Client, method, path string, body any) Outcomes[T] {
	return CallEach[T](ctx, c, method, path, func(int, string) any { return body })
}

// CallEach is CallAll with a per-party request body. bodyFor receives the
// party's 0-based roster position.
func CallEach[T any](ctx context.Context, c *Client, method, path string, bodyFor func(i int, party string) any) Outcomes[T] {
	outcomes := make(Outcomes[T], len(c.parties))

	var g errgroup.Group
	for i, party := range c.parties {
		i, party := i, party
		g.Go(func() error {
			value, err := Do[T](ctx, c, party, method, path, bodyFor(i, party))
			outcomes[i] = Outcome[T]{Party: party, Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	if err := outcomes.Err(); err != nil {
		c.log.Debug("fan-out had failures", "method", method, "path", path, "err", err)
	}
	return outcomes
}

// AllAgree returns true if all values are equal. Empty and single-element
// slices agree trivially.
func AllAgree[T comparable](values []T) bool {
	for i := 1; i < len(values); i++ {
		if values[i] != values[0] {
			return false
		}
	}
	return true
}

// Unanimous returns the value every party answered with. It fails if any
// party failed or if the answers differ.
func Unanimous[T comparable](os Outcomes[T]) (T, error) {
	var zero T
	if err := os.Err(); err != nil {
		return zero, err
	}
	values := os.Values()
	if len(values) == 0 {
		return zero, errors.New("no party answered")
	}
	if !AllAgree(values) {
		return zero, fmt.Errorf("%w: answers %v", protocol.ErrInconsistentState, values)
	}
	return values[0], nil
}

func (c *Client) do(ctx context.Context, party, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request for %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, party+path, reader)
	if err != nil {
		return &NetworkError{Party: party, Err: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.tokens[party]; token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	route := routeLabel(path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordPartyCall(route, "network_error", start)
		return &NetworkError{Party: party, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		metrics.RecordPartyCall(route, "network_error", start)
		return &NetworkError{Party: party, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordPartyCall(route, "protocol_error", start)
		return &ProtocolError{Party: party, StatusCode: resp.StatusCode, Detail: errorDetail(resp.StatusCode, payload)}
	}

	if out != nil && len(bytes.TrimSpace(payload)) > 0 {
		if err := json.Unmarshal(payload, out); err != nil {
			metrics.RecordPartyCall(route, "protocol_error", start)
			return &ProtocolError{Party: party, StatusCode: resp.StatusCode, Detail: fmt.Sprintf("malformed response: %v", err)}
		}
	}

	metrics.RecordPartyCall(route, "ok", start)
	return nil
}

func errorDetail(status int, payload []byte) string {
	var errResp protocol.ErrorResponse
	if err := json.Unmarshal(payload, &errResp); err == nil && errResp.Detail != "" {
		return errResp.Detail
	}
	if text := strings.TrimSpace(string(payload)); text != "" {
		return text
	}
	return http.StatusText(status)
}

// routeLabel drops path parameters so metrics stay low-cardinality.
func routeLabel(path string) string {
	segments := strings.Split(strings.TrimPrefix(path, "/"), "/")
	keep := 2
	if len(segments) > 1 && segments[1] == "internal" {
		keep = 3
	}
	if len(segments) > keep {
		segments = segments[:keep]
	}
	return "/" + strings.Join(segments, "/")
}
