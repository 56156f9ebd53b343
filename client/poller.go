package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/flashbots/mpcauction/protocol"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// PartyStatus is the last observed reachability of a party.
type PartyStatus string

const (
	StatusOnline   PartyStatus = "online"
	StatusOffline  PartyStatus = "offline"
	StatusChecking PartyStatus = "checking"
)

// Poller periodically probes every party's status endpoint. Each polling
// session owns its own Poller; nothing is shared between sessions.
type Poller struct {
	client   *Client
	interval time.Duration
	onChange func(party string, status PartyStatus)

	inFlight atomic.Bool
	paused   atomic.Bool

	mu       sync.RWMutex
	statuses map[string]PartyStatus
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewPoller creates a poller over the client's roster. onChange, if set, is
// called whenever a party's status changes.
func (c *Client) NewPoller(interval time.Duration, onChange func(party string, status PartyStatus)) *Poller {
	statuses := make(map[string]PartyStatus, len(c.parties))
	for _, p := range c.parties {
		statuses[p] = StatusChecking
	}
	return &Poller{
		client:   c,
		interval: interval,
		onChange: onChange,
		statuses: statuses,
	}
}

// Start checks immediately and then every interval until ctx is done or Stop
// is called. Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	done := p.done
	p.mu.Unlock()

	go func() {
		defer close(done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.CheckNow(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.CheckNow(ctx)
			}
		}
	}()
}

// Stop cancels the polling loop and waits for it to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Pause suspends checks, e.g. while an auction is running and parties are busy.
func (p *Poller) Pause() { p.paused.Store(true) }

// Resume re-enables checks after Pause.
func (p *Poller) Resume() { p.paused.Store(false) }

// CheckNow probes every party once. It returns false without probing if the
// poller is paused or a check is already in flight.
func (p *Poller) CheckNow(ctx context.Context) bool {
	if p.paused.Load() {
		return false
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		return false
	}
	defer p.inFlight.Store(false)

	parties := p.client.parties
	for _, party := range parties {
		p.set(party, StatusChecking)
	}

	results := make([]PartyStatus, len(parties))
	var g errgroup.Group
	for i, party := range parties {
		i, party := i, party
		g.Go(func() error {
			results[i] = p.probe(ctx, party)
			return nil
		})
	}
	_ = g.Wait()

	for i, party := range parties {
		p.set(party, results[i])
	}
	return true
}

// Statuses returns a snapshot of the last observed statuses.
func (p *Poller) Statuses() map[string]PartyStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	res := make(map[string]PartyStatus, len(p.statuses))
	for k, v := range p.statuses {
		res[k] = v
	}
	return res
}

// probe treats any HTTP answer, even an error status, as a live party.
func (p *Poller) probe(ctx context.Context, party string) PartyStatus {
	_, err := Do[protocol.StatusResponse](ctx, p.client, party, http.MethodGet, protocol.PathStatus, nil)
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return StatusOffline
	}
	return StatusOnline
}

func (p *Poller) set(party string, status PartyStatus) {
	p.mu.Lock()
	prev := p.statuses[party]
	p.statuses[party] = status
	p.mu.Unlock()

	if prev != status && p.onChange != nil {
		p.onChange(party, status)
	}
}
