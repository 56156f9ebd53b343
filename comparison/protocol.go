package comparison

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/flashbots/mpcauction/client"
	"github.com/flashbots/mpcauction/metrics"
	"github.com/flashbots/mpcauction/protocol"
)

// ErrInconsistentState is returned when parties open different values.
var ErrInconsistentState = protocol.ErrInconsistentState

// Config contains the settings of a comparison session.
type Config struct {
	Client *client.Client
	Params *protocol.Params
	Log    *slog.Logger
}

// Stage is the timing of one phase of a comparison.
type Stage struct {
	Name     string
	Calls    int
	Duration time.Duration
}

// Result is the outcome of one pairwise comparison.
type Result struct {
	WinnerID    int
	ContenderID int

	// OpenedA is the masked difference opened during the comparison.
	OpenedA *big.Int

	// Bit is the opened comparison result: 1 iff the winner's bid is at
	// least the contender's.
	Bit int

	Strategy protocol.Strategy
	Stages   []Stage
}

// ContenderWins reports whether the contender's bid is lower or equal, i.e.
// the contender takes over as the current winner.
func (r *Result) ContenderWins() bool {
	return r.Bit == 1
}

// Protocol drives one pairwise comparison across every party. Steps must be
// called in order; Compare runs all of them.
type Protocol struct {
	client *client.Client
	params *protocol.Params
	log    *slog.Logger

	state State
	// round is the next bit position the carry rounds fold, counting down.
	round int

	winnerID, contenderID int
	openedA               *big.Int
	bit                   int

	calls  int
	stages []Stage
}

// New creates a comparison session in state Idle.
func New(cfg *Config) (*Protocol, error) {
	if cfg.Client == nil {
		return nil, errors.New("comparison needs a client")
	}
	params := cfg.Params
	if params == nil {
		params = protocol.DefaultParams()
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	return &Protocol{
		client: cfg.Client,
		params: params,
		log:    log,
		state:  Idle,
	}, nil
}

// State returns the current step.
func (p *Protocol) State() State {
	return p.state
}

// Stages returns the timings recorded so far.
func (p *Protocol) Stages() []Stage {
	return append([]Stage(nil), p.stages...)
}

// Compare runs a full comparison between the current winner and a
// contender.
func (p *Protocol) Compare(ctx context.Context, winnerID, contenderID int) (res *Result, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordComparison(string(p.params.Strategy), err == nil, start)
	}()

	log := p.log.With("winner", winnerID, "contender", contenderID, "strategy", p.params.Strategy)
	log.Debug("starting comparison")

	if err := p.Reset(ctx); err != nil {
		return nil, err
	}
	if err := p.ShareRandomNumber(ctx); err != nil {
		return nil, err
	}
	if err := p.ComputeA(ctx, winnerID, contenderID); err != nil {
		return nil, err
	}
	if err := p.OpenA(ctx); err != nil {
		return nil, err
	}
	if err := p.PrepareCarry(ctx); err != nil {
		return nil, err
	}
	for p.round >= 0 {
		if err := p.NextRound(ctx); err != nil {
			return nil, err
		}
	}
	if err := p.ComputeResult(ctx); err != nil {
		return nil, err
	}
	if err := p.OpenResult(ctx); err != nil {
		return nil, err
	}

	log.Info("comparison finished", "bit", p.bit, "duration", time.Since(start))
	return &Result{
		WinnerID:    winnerID,
		ContenderID: contenderID,
		OpenedA:     p.openedA,
		Bit:         p.bit,
		Strategy:    p.params.Strategy,
		Stages:      p.Stages(),
	}, nil
}

// Reset clears every party's comparison state. It is allowed in any state
// and returns the session to Idle.
func (p *Protocol) Reset(ctx context.Context) error {
	p.stages = nil
	p.openedA = nil
	p.winnerID, p.contenderID, p.bit = 0, 0, 0
	p.round = p.params.L - 1

	err := p.stage("reset", func() error {
		return p.do(ctx, "reset-comparison", p.client.ResetComparison)
	})
	return p.advance(Idle, err)
}

// ShareRandomNumber shares Repetitions x (l+k+1) random bits and combines
// the last bit of every position into r.
func (p *Protocol) ShareRandomNumber(ctx context.Context) error {
	if err := p.require("share random number", Idle); err != nil {
		return err
	}
	err := p.stage("random-bits", func() error {
		for rep := 0; rep < p.params.Repetitions; rep++ {
			for i := 0; i < p.params.RandomBits(); i++ {
				if err := p.shareRandomBit(ctx, i); err != nil {
					return fmt.Errorf("random bit %d: %w", i, err)
				}
			}
		}
		return nil
	})
	if err == nil {
		err = p.stage("random-number", func() error {
			return p.do(ctx, "calculate-share-of-random-number", p.client.CalculateShareOfRandomNumber)
		})
	}
	return p.advance(RandomShared, err)
}

// ComputeA computes the masked difference of the winner's and the
// contender's bids.
func (p *Protocol) ComputeA(ctx context.Context, winnerID, contenderID int) error {
	if err := p.require("compute a", RandomShared); err != nil {
		return err
	}
	if winnerID == contenderID {
		return fmt.Errorf("%w: cannot compare bidder %d with itself", ErrIllegalTransition, winnerID)
	}
	p.winnerID, p.contenderID = winnerID, contenderID

	req := &protocol.AComparisonRequest{
		FirstClientID:  winnerID,
		SecondClientID: contenderID,
		L:              p.params.L,
		K:              p.params.K,
	}
	err := p.stage("a-comparison", func() error {
		return p.do(ctx, "calculate-a-comparison", func(ctx context.Context) client.Ack {
			return p.client.CalculateAComparison(ctx, req)
		})
	})
	return p.advance(AComputed, err)
}

// OpenA reconstructs the masked difference. Every party must open the same
// value.
func (p *Protocol) OpenA(ctx context.Context) error {
	if err := p.require("open a", AComputed); err != nil {
		return err
	}
	err := p.stage("open-a", func() error {
		a, err := p.open(ctx, protocol.ShareComparisonA)
		if err != nil {
			return err
		}
		p.openedA = a
		return nil
	})
	return p.advance(AOpened, err)
}

// PrepareCarry sets up the per-bit (propagate, carry) pairs the rounds fold.
func (p *Protocol) PrepareCarry(ctx context.Context) error {
	if err := p.require("prepare carry", AOpened); err != nil {
		return err
	}
	var err error
	switch p.params.Strategy {
	case protocol.ZStackStrategy:
		err = p.stage("z-stack", func() error { return p.prepareZStack(ctx) })
	default:
		err = p.stage("z-tables", func() error { return p.prepareZTables(ctx) })
	}
	p.round = p.params.L - 1
	return p.advance(ZTablesReady, err)
}

// NextRound folds one more bit position into the carry, from l-1 down to 0.
func (p *Protocol) NextRound(ctx context.Context) error {
	if err := p.require("romb round", ZTablesReady, RombRound); err != nil {
		return err
	}
	if p.round < 0 {
		return fmt.Errorf("%w: all %d rounds done", ErrIllegalTransition, p.params.L)
	}
	i := p.round
	err := p.stage("romb-rounds", func() error {
		if p.params.Strategy == protocol.ZStackStrategy {
			return p.zStackRound(ctx)
		}
		return p.zTableRound(ctx, i)
	})
	if err == nil {
		p.round--
	}
	return p.advance(RombRound, err)
}

// ComputeResult derives the shared comparison bit from the top bits and the
// carry.
func (p *Protocol) ComputeResult(ctx context.Context) error {
	if err := p.require("compute result", RombRound); err != nil {
		return err
	}
	if p.round >= 0 {
		return fmt.Errorf("%w: %d rounds left", ErrIllegalTransition, p.round+1)
	}
	err := p.stage("result", func() error {
		if p.params.Strategy == protocol.ZStackStrategy {
			return p.zStackResult(ctx)
		}
		return p.zTableResult(ctx)
	})
	return p.advance(ResComputed, err)
}

// OpenResult reconstructs the comparison bit.
func (p *Protocol) OpenResult(ctx context.Context) error {
	if err := p.require("open result", ResComputed); err != nil {
		return err
	}
	err := p.stage("open-result", func() error {
		v, err := p.open(ctx, protocol.ShareRes)
		if err != nil {
			return err
		}
		if !v.IsInt64() || (v.Int64() != 0 && v.Int64() != 1) {
			return fmt.Errorf("%w: opened result %s is not a bit", ErrInconsistentState, v)
		}
		p.bit = int(v.Int64())
		return nil
	})
	return p.advance(Done, err)
}

// Bit returns the opened result once the session is Done.
func (p *Protocol) Bit() (int, error) {
	if err := p.require("read result", Done); err != nil {
		return 0, err
	}
	return p.bit, nil
}

// stage times fn and counts the party calls it makes.
func (p *Protocol) stage(name string, fn func() error) error {
	start := time.Now()
	calls := p.calls
	err := fn()

	elapsed := time.Since(start)
	for i := range p.stages {
		if p.stages[i].Name == name {
			p.stages[i].Calls += p.calls - calls
			p.stages[i].Duration += elapsed
			return err
		}
	}
	p.stages = append(p.stages, Stage{Name: name, Calls: p.calls - calls, Duration: elapsed})
	return err
}

// step is one fan-out call of a sub-protocol.
type step struct {
	what string
	fn   func(context.Context) client.Ack
}

// do issues one fan-out step and applies the failure policy to its outcome.
func (p *Protocol) do(ctx context.Context, what string, fn func(context.Context) client.Ack) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.calls++
	return p.check(what, fn(ctx).Err())
}

func (p *Protocol) check(what string, err error) error {
	if err == nil {
		return nil
	}
	var fanOut *client.FanOutError
	if p.params.FailurePolicy == protocol.ContinueOnPartyError &&
		errors.As(err, &fanOut) && len(fanOut.Failures) < fanOut.Total {
		p.log.Warn("continuing past party failures", "step", what, "err", err)
		return nil
	}
	return fmt.Errorf("%s: %w", what, err)
}

// open reconstructs a named value at every party and requires them to agree.
func (p *Protocol) open(ctx context.Context, name string) (*big.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.calls++

	outcomes := p.client.ReconstructSecret(ctx, name)
	if err := p.check("reconstruct "+name, outcomes.Err()); err != nil {
		return nil, err
	}

	values := outcomes.Values()
	secrets := make([]string, len(values))
	for i, v := range values {
		secrets[i] = v.Secret
	}
	if len(secrets) == 0 {
		return nil, fmt.Errorf("reconstruct %s: no party answered", name)
	}
	if !client.AllAgree(secrets) {
		return nil, fmt.Errorf("%w: parties opened %s as %v", ErrInconsistentState, name, secrets)
	}
	v, err := protocol.DecodeHex(secrets[0])
	if err != nil {
		return nil, fmt.Errorf("reconstruct %s: %w", name, err)
	}
	return v, nil
}
