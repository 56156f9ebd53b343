package auction

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"slices"
	"time"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/comparison"
	"github.com/flashbots/mpcauction/crypto"
	"github.com/flashbots/mpcauction/metrics"
	"github.com/flashbots/mpcauction/protocol"
	"go.uber.org/atomic"
)

var (
	// ErrInconsistentState is returned when parties disagree on bidder IDs,
	// initial values or an opened value.
	ErrInconsistentState = protocol.ErrInconsistentState

	// ErrNotEnoughBidders is returned when fewer than two bidders are known.
	ErrNotEnoughBidders = errors.New("an auction needs at least two bidders")

	// ErrAuctionFailed wraps the error of an aborted comparison.
	ErrAuctionFailed = errors.New("auction failed")

	// ErrAuctionRunning is returned when an auction is started while another
	// one is still running on the same orchestrator.
	ErrAuctionRunning = errors.New("an auction is already running")
)

const cleanupTimeout = 10 * time.Second

// Config contains the settings of an auction orchestrator.
type Config struct {
	Client *client.Client

	// Params are the comparison parameters. Nil means protocol.DefaultParams.
	Params *protocol.Params

	// Threshold is the number of shares needed to reconstruct a bid.
	Threshold int

	// Store receives a record of every finished auction. Nil keeps records
	// in memory.
	Store ResultStore

	// Rand is the randomness used to share bids, crypto/rand when nil.
	Rand io.Reader

	Log *slog.Logger
}

// WinnerResult is the outcome of RunAuction.
type WinnerResult struct {
	WinnerID    int
	Bidders     []int
	Comparisons []*comparison.Result
	Record      *Record
}

// Orchestrator runs elimination auctions over every bidder the parties know.
type Orchestrator struct {
	client    *client.Client
	params    *protocol.Params
	threshold int
	store     ResultStore
	rand      io.Reader
	log       *slog.Logger

	running atomic.Bool
}

// New validates cfg and creates an orchestrator.
func New(cfg *Config) (*Orchestrator, error) {
	if cfg.Client == nil {
		return nil, errors.New("orchestrator needs a client")
	}
	params := cfg.Params
	if params == nil {
		params = protocol.DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := protocol.ValidateThreshold(cfg.Threshold, len(cfg.Client.Parties())); err != nil {
		return nil, err
	}

	store := cfg.Store
	if store == nil {
		store = NewInMemoryStore()
	}
	r := cfg.Rand
	if r == nil {
		r = rand.Reader
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Orchestrator{
		client:    cfg.Client,
		params:    params,
		threshold: cfg.Threshold,
		store:     store,
		rand:      r,
		log:       log,
	}, nil
}

// Params returns the comparison parameters.
func (o *Orchestrator) Params() *protocol.Params {
	return o.params
}

// SeedInitialValues sends the threshold, prime and roster to every party.
func (o *Orchestrator) SeedInitialValues(ctx context.Context) error {
	if err := o.client.SeedInitialValues(ctx, o.threshold, o.params.Prime).Err(); err != nil {
		return fmt.Errorf("seeding initial values: %w", err)
	}
	o.log.Info("parties seeded", "t", o.threshold, "n", len(o.client.Parties()), "prime", o.params.Prime.String())
	return nil
}

// InitialValues returns the parameters every party was seeded with. The
// parties must agree.
func (o *Orchestrator) InitialValues(ctx context.Context) (*protocol.InitialValuesResponse, error) {
	outcomes := o.client.InitialValues(ctx)
	if err := outcomes.Err(); err != nil {
		return nil, fmt.Errorf("fetching initial values: %w", err)
	}
	values := outcomes.Values()
	for i := 1; i < len(values); i++ {
		if !values[i].Equal(&values[0]) {
			return nil, fmt.Errorf("%w: parties were seeded differently", ErrInconsistentState)
		}
	}
	return &values[0], nil
}

// ResetAll clears bids and protocol state at every party.
func (o *Orchestrator) ResetAll(ctx context.Context) error {
	return o.agreeingAck("reset", o.client.Reset(ctx))
}

// FactoryResetAll also clears the initial values at every party.
func (o *Orchestrator) FactoryResetAll(ctx context.Context) error {
	return o.agreeingAck("factory reset", o.client.FactoryReset(ctx))
}

func (o *Orchestrator) agreeingAck(what string, ack client.Ack) error {
	if err := ack.Err(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if _, err := client.Unanimous(ack); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// SubmitBid splits bid and hands share i to party i.
func (o *Orchestrator) SubmitBid(ctx context.Context, bidderID int, bid *big.Int) error {
	if bidderID < 1 {
		return fmt.Errorf("%w: bidder id %d must be positive", crypto.ErrInvalidParameters, bidderID)
	}
	if bid == nil || bid.Sign() <= 0 || bid.Cmp(o.params.MaxBid()) > 0 {
		return fmt.Errorf("%w: bid must lie in [1, %s]", crypto.ErrInvalidParameters, o.params.MaxBid())
	}

	shares, err := crypto.Split(o.rand, o.params.Prime, o.threshold, len(o.client.Parties()), bid)
	if err != nil {
		return err
	}
	ack, err := o.client.SetBidShares(ctx, bidderID, shares)
	if err != nil {
		return err
	}
	if err := ack.Err(); err != nil {
		return fmt.Errorf("submitting bid of %d: %w", bidderID, err)
	}
	return nil
}

// BidderIDs returns the bidder IDs every party holds shares for, ascending.
func (o *Orchestrator) BidderIDs(ctx context.Context) ([]int, error) {
	outcomes := o.client.Bidders(ctx)
	if err := outcomes.Err(); err != nil {
		return nil, fmt.Errorf("fetching bidders: %w", err)
	}
	values := outcomes.Values()
	for i := 1; i < len(values); i++ {
		if !slices.Equal(values[i].Bidders, values[0].Bidders) {
			return nil, fmt.Errorf("%w: party %s knows bidders %v, party %s knows %v",
				ErrInconsistentState, outcomes[0].Party, values[0].Bidders, outcomes[i].Party, values[i].Bidders)
		}
	}
	return values[0].Bidders, nil
}

// History returns the most recent auction records.
func (o *Orchestrator) History(ctx context.Context, limit int) ([]*Record, error) {
	return o.store.LoadRecords(ctx, limit)
}

// RunAuction finds the lowest bid with a single-elimination tournament.
// The last bidder starts as the winner; every other bidder, from the back,
// challenges the current winner and takes over if its bid is lower or
// equal. No bid is revealed, only the winner.
func (o *Orchestrator) RunAuction(ctx context.Context) (*WinnerResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAuctionRunning
	}
	defer o.running.Store(false)

	started := time.Now().UTC().Truncate(time.Millisecond)

	bidders, err := o.BidderIDs(ctx)
	if err != nil {
		metrics.RecordAuction("inconsistent")
		return nil, err
	}
	if len(bidders) < 2 {
		metrics.RecordAuction("not_enough_bidders")
		return nil, fmt.Errorf("%w: got %d", ErrNotEnoughBidders, len(bidders))
	}

	log := o.log.With("bidders", len(bidders), "strategy", o.params.Strategy)
	log.Info("auction started")

	remaining := slices.Clone(bidders)
	winner := remaining[len(remaining)-1]
	remaining = remaining[:len(remaining)-1]

	result := &WinnerResult{Bidders: bidders}
	for len(remaining) > 0 {
		contender := remaining[len(remaining)-1]
		remaining = remaining[:len(remaining)-1]

		res, err := o.compare(ctx, winner, contender)
		if err != nil {
			o.cleanup(ctx)
			if errors.Is(err, ErrInconsistentState) {
				metrics.RecordAuction("inconsistent")
				return nil, err
			}
			metrics.RecordAuction("failed")
			return nil, fmt.Errorf("%w: comparing bidder %d with %d: %w", ErrAuctionFailed, winner, contender, err)
		}
		result.Comparisons = append(result.Comparisons, res)

		if res.ContenderWins() {
			log.Debug("contender takes over", "previous", winner, "winner", contender)
			winner = contender
		}
	}
	result.WinnerID = winner

	record := &Record{
		WinnerID:   winner,
		Bidders:    bidders,
		Parties:    o.client.Parties(),
		Strategy:   string(o.params.Strategy),
		Transcript: make([]Comparison, len(result.Comparisons)),
		StartedAt:  started,
		FinishedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	for i, c := range result.Comparisons {
		record.Transcript[i] = Comparison{
			WinnerID:    c.WinnerID,
			ContenderID: c.ContenderID,
			OpenedA:     protocol.EncodeHex(c.OpenedA),
			Bit:         c.Bit,
		}
	}
	if err := record.Seal(); err != nil {
		return nil, err
	}
	if err := o.store.SaveRecord(ctx, record); err != nil {
		log.Error("storing auction record failed", "record", record.ID, "err", err)
	}
	result.Record = record

	metrics.RecordAuction("ok")
	log.Info("auction finished", "winner", winner, "record", record.ID, "duration", time.Since(started))
	return result, nil
}

func (o *Orchestrator) compare(ctx context.Context, winner, contender int) (*comparison.Result, error) {
	p, err := comparison.New(&comparison.Config{
		Client: o.client,
		Params: o.params,
		Log:    o.log,
	})
	if err != nil {
		return nil, err
	}
	return p.Compare(ctx, winner, contender)
}

// cleanup leaves every party ready for a new comparison after an abort.
func (o *Orchestrator) cleanup(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := o.client.ResetCalculation(ctx).Err(); err != nil {
		o.log.Warn("reset-calculation after abort failed", "err", err)
	}
	if err := o.client.ResetComparison(ctx).Err(); err != nil {
		o.log.Warn("reset-comparison after abort failed", "err", err)
	}
}
