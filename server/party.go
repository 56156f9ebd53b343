package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sort"
	"sync"

	"github.com/flashbots/mpcauction/crypto"
	"github.com/flashbots/mpcauction/protocol"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotSeeded is returned before initial values were received.
	ErrNotSeeded = errors.New("party has no initial values")

	// ErrInvalidRequest marks malformed input.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrOutOfOrder marks a primitive called before the state it depends on exists.
	ErrOutOfOrder = errors.New("primitive called out of order")

	// ErrPeer marks a failed exchange with another party.
	ErrPeer = errors.New("peer exchange failed")

	// ErrNotOpenable is returned when a value outside protocol.Openable is
	// requested for reconstruction.
	ErrNotOpenable = errors.New("value may not be opened")
)

// Peers moves values between this party and the rest of the roster. Party
// indices are 1-based.
type Peers interface {
	SendSubShare(ctx context.Context, to int, msg *protocol.SubShareMessage) error
	FetchShare(ctx context.Context, from int, name string) (*big.Int, error)
}

// PeerFactory builds the transport once the roster is known.
type PeerFactory func(roster []string, self int) (Peers, error)

// PartyConfig contains the settings of a reference party.
type PartyConfig struct {
	// NewPeers builds the party-to-party transport when the party is seeded.
	NewPeers PeerFactory

	// Rand is the randomness source, crypto/rand when nil.
	Rand io.Reader

	Log *slog.Logger
}

// bitPair holds the propagate and carry shares of one bit position or of a
// merged run of positions.
type bitPair struct {
	propagate *big.Int
	carry     *big.Int
}

// calculation is the scratch state of one sub-protocol, cleared by
// reset-calculation.
type calculation struct {
	qCoeffs        []*big.Int
	received       map[string]map[int]*big.Int
	additive       *big.Int
	multiplicative *big.Int
	xor            *big.Int
	xorProduct     *big.Int
}

// comparisonState lives for one pairwise comparison, cleared by
// reset-comparison.
type comparisonState struct {
	randomBits map[int]*big.Int
	numBits    int
	l, k       int
	openedA    *big.Int
	zTable     []bitPair
	stack      []bitPair
	temp       [2]*big.Int
}

// Party is an honest implementation of one MPC participant: it stores its
// shares of every bid and evaluates the primitives the driver sequences.
type Party struct {
	mu sync.Mutex

	log      *slog.Logger
	rand     io.Reader
	newPeers PeerFactory

	seeded  bool
	id      int
	t, n    int
	prime   *big.Int
	roster  []string
	lambdas []*big.Int
	peers   Peers

	bids   map[int]*big.Int
	shares map[string]*big.Int
	calc   calculation
	cmp    comparisonState
}

// NewParty creates an unseeded party.
func NewParty(cfg *PartyConfig) *Party {
	r := cfg.Rand
	if r == nil {
		r = rand.Reader
	}
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}

	p := &Party{
		log:      log,
		rand:     r,
		newPeers: cfg.NewPeers,
	}
	p.clearLocked(true)
	return p
}

func (p *Party) clearLocked(factory bool) {
	if factory {
		p.seeded = false
		p.id, p.t, p.n = 0, 0, 0
		p.prime = nil
		p.roster = nil
		p.lambdas = nil
		p.peers = nil
	}
	p.bids = make(map[int]*big.Int)
	p.shares = make(map[string]*big.Int)
	p.calc = calculation{received: make(map[string]map[int]*big.Int)}
	p.cmp = comparisonState{randomBits: make(map[int]*big.Int)}
}

// Seed applies initial values. Reseeding replaces the roster and clears all
// shares.
func (p *Party) Seed(req *protocol.InitialValuesRequest) error {
	prime, err := protocol.DecodeHex(req.P)
	if err != nil {
		return fmt.Errorf("%w: prime: %v", ErrInvalidRequest, err)
	}
	if !prime.ProbablyPrime(20) {
		return fmt.Errorf("%w: %s is not prime", ErrInvalidRequest, prime)
	}
	if err := protocol.ValidateThreshold(req.T, req.N); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if len(req.Parties) != req.N {
		return fmt.Errorf("%w: roster has %d parties, n is %d", ErrInvalidRequest, len(req.Parties), req.N)
	}
	if req.ID < 1 || req.ID > req.N {
		return fmt.Errorf("%w: id %d outside 1..%d", ErrInvalidRequest, req.ID, req.N)
	}

	xs := make([]*big.Int, req.N)
	for i := range xs {
		xs[i] = big.NewInt(int64(i + 1))
	}
	lambdas, err := crypto.LagrangeCoefficientsAt(xs, big.NewInt(0), prime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	var peers Peers
	if p.newPeers != nil {
		peers, err = p.newPeers(req.Parties, req.ID)
		if err != nil {
			return fmt.Errorf("creating peer transport: %w", err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.clearLocked(true)
	p.seeded = true
	p.id, p.t, p.n = req.ID, req.T, req.N
	p.prime = prime
	p.roster = append([]string(nil), req.Parties...)
	p.lambdas = lambdas
	p.peers = peers

	p.log.Info("party seeded", "id", p.id, "t", p.t, "n", p.n, "prime", prime.String())
	return nil
}

// InitialValues reports the seeded parameters.
func (p *Party) InitialValues() (*protocol.InitialValuesResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.seeded {
		return nil, ErrNotSeeded
	}
	return &protocol.InitialValuesResponse{
		T:       p.t,
		N:       p.n,
		P:       protocol.EncodeHex(p.prime),
		Parties: append([]string(nil), p.roster...),
		Result:  "ok",
	}, nil
}

// ID returns the 1-based roster position, or 0 when unseeded.
func (p *Party) ID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.id
}

// Reset drops bids and every comparison state.
func (p *Party) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked(false)
}

// FactoryReset also forgets the initial values.
func (p *Party) FactoryReset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clearLocked(true)
}

// ResetCalculation clears the scratch state of the last sub-protocol.
func (p *Party) ResetCalculation() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calc = calculation{received: make(map[string]map[int]*big.Int)}
}

// ResetComparison clears named shares, random bits and comparison tables.
func (p *Party) ResetComparison() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.shares = make(map[string]*big.Int)
	p.calc = calculation{received: make(map[string]map[int]*big.Int)}
	p.cmp = comparisonState{randomBits: make(map[int]*big.Int)}
}

// Bidders returns the IDs this party holds bid shares for, ascending.
func (p *Party) Bidders() []int {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]int, 0, len(p.bids))
	for id := range p.bids {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// SetShares stores a bid share or a public constant.
func (p *Party) SetShares(req *protocol.SetSharesRequest) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}

	if req.IsBidShare() {
		v, err := p.decodeElementLocked(req.Share)
		if err != nil {
			return err
		}
		if *req.ClientID < 1 {
			return fmt.Errorf("%w: client id %d", ErrInvalidRequest, *req.ClientID)
		}
		p.bids[*req.ClientID] = v
		return nil
	}

	v, err := p.decodeElementLocked(req.ShareValue)
	if err != nil {
		return err
	}
	p.shares[req.ShareName] = v
	return nil
}

// ShareOf returns this party's share of a named value.
func (p *Party) ShareOf(name string) (*protocol.ShareResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return nil, ErrNotSeeded
	}
	v, err := p.namedLocked(name)
	if err != nil {
		return nil, err
	}
	return &protocol.ShareResponse{Index: p.id, Value: protocol.EncodeHex(v)}, nil
}

// ReceiveSubShare stores a value another party reshared to us.
func (p *Party) ReceiveSubShare(msg *protocol.SubShareMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if msg.From < 1 || msg.From > p.n {
		return fmt.Errorf("%w: sender %d outside roster", ErrInvalidRequest, msg.From)
	}
	if msg.Kind != protocol.SubShareProduct && msg.Kind != protocol.SubShareRandom {
		return fmt.Errorf("%w: unknown sub-share kind %q", ErrInvalidRequest, msg.Kind)
	}
	v, err := p.decodeElementLocked(msg.Value)
	if err != nil {
		return err
	}
	return p.storeSubShareLocked(msg.Kind, msg.From, v)
}

func (p *Party) storeSubShareLocked(kind string, from int, v *big.Int) error {
	byParty := p.calc.received[kind]
	if byParty == nil {
		byParty = make(map[int]*big.Int, p.n)
		p.calc.received[kind] = byParty
	}
	if _, ok := byParty[from]; ok {
		return fmt.Errorf("%w: duplicate %s sub-share from party %d", ErrOutOfOrder, kind, from)
	}
	byParty[from] = v
	return nil
}

// takeSubSharesLocked removes and returns the sub-shares of kind, ordered by
// sender. Parties that are down send nothing; every live party sees the same
// senders, so recombining over whoever sent keeps the shares consistent.
func (p *Party) takeSubSharesLocked(kind string, atLeast int) ([]crypto.Share, error) {
	byParty := p.calc.received[kind]
	if len(byParty) < atLeast {
		return nil, fmt.Errorf("%w: %d %s sub-shares received, need %d", ErrOutOfOrder, len(byParty), kind, atLeast)
	}
	shares := make([]crypto.Share, 0, len(byParty))
	for j := 1; j <= p.n; j++ {
		if v, ok := byParty[j]; ok {
			shares = append(shares, crypto.Share{Index: j, Value: v})
		}
	}
	delete(p.calc.received, kind)
	return shares, nil
}

// recombinationLocked returns the Lagrange coefficients at zero for the
// senders of shares.
func (p *Party) recombinationLocked(shares []crypto.Share) ([]*big.Int, error) {
	if len(shares) == p.n {
		return p.lambdas, nil
	}
	xs := make([]*big.Int, len(shares))
	for i, s := range shares {
		xs[i] = big.NewInt(int64(s.Index))
	}
	return crypto.LagrangeCoefficientsAt(xs, big.NewInt(0), p.prime)
}

// RedistributeQ draws the random coefficients of the next resharing polynomial.
func (p *Party) RedistributeQ() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}

	coeffs, err := crypto.RandomPolynomial(p.rand, p.prime, p.t-1, big.NewInt(0))
	if err != nil {
		return err
	}
	p.calc.qCoeffs = coeffs[1:]
	return nil
}

// RedistributeR multiplies the requested operands locally and reshares the
// product to every party with the coefficients from RedistributeQ.
func (p *Party) RedistributeR(ctx context.Context, req *protocol.RedistributeRRequest) error {
	kind, err := req.Kind()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	p.mu.Lock()
	if !p.seeded {
		p.mu.Unlock()
		return ErrNotSeeded
	}

	var a, b *big.Int
	switch kind {
	case protocol.RedistributeNamed:
		a, err = p.namedLocked(req.FirstShareName)
		if err == nil {
			b, err = p.namedLocked(req.SecondShareName)
		}
	case protocol.RedistributeStack:
		a, b, err = p.stackOperandsLocked(req.TakeValueFromTemporaryZZ, req.ZZFirstMultiplicationFactor, req.ZZSecondMultiplicationFactor)
	case protocol.RedistributeFinal:
		a, b, err = p.finalOperandsLocked(req.OpenedA, req.L)
	}
	if err != nil {
		p.mu.Unlock()
		return err
	}

	return p.reshareProductAndUnlock(ctx, crypto.FieldMul(a, b, p.prime))
}

// reshareProductAndUnlock consumes the q coefficients, releases the lock and
// sends the sub-shares of product to the roster.
func (p *Party) reshareProductAndUnlock(ctx context.Context, product *big.Int) error {
	if p.calc.qCoeffs == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w: redistribute-q must precede resharing", ErrOutOfOrder)
	}
	coeffs := append([]*big.Int{product}, p.calc.qCoeffs...)
	p.calc.qCoeffs = nil
	subShares := p.evaluateLocked(coeffs)
	p.mu.Unlock()

	return p.distribute(ctx, protocol.SubShareProduct, subShares)
}

// RedistributeU shares a fresh uniformly random value.
func (p *Party) RedistributeU(ctx context.Context) error {
	p.mu.Lock()
	if !p.seeded {
		p.mu.Unlock()
		return ErrNotSeeded
	}

	rho, err := crypto.SecureRandomInt(p.rand, big.NewInt(0), p.prime)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	coeffs, err := crypto.RandomPolynomial(p.rand, p.prime, p.t-1, rho)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	subShares := p.evaluateLocked(coeffs)
	p.mu.Unlock()

	return p.distribute(ctx, protocol.SubShareRandom, subShares)
}

// CalculateSharedU sums every party's random contribution into u.
func (p *Party) CalculateSharedU() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}

	contributions, err := p.takeSubSharesLocked(protocol.SubShareRandom, p.t)
	if err != nil {
		return err
	}
	u := new(big.Int)
	for _, c := range contributions {
		u = crypto.FieldAdd(u, c.Value, p.prime)
	}
	p.shares[protocol.ShareU] = u
	return nil
}

// CalculateMultiplicativeShare recombines the reshared products into a
// degree t-1 share of the product. The product has degree 2t-2, so any 2t-1
// senders suffice.
func (p *Party) CalculateMultiplicativeShare(req *protocol.MultiplicativeShareRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}

	products, err := p.takeSubSharesLocked(protocol.SubShareProduct, 2*p.t-1)
	if err != nil {
		return err
	}
	lambdas, err := p.recombinationLocked(products)
	if err != nil {
		return err
	}
	res := new(big.Int)
	for i, v := range products {
		res.Add(res, new(big.Int).Mul(lambdas[i], v.Value))
	}
	res.Mod(res, p.prime)

	p.calc.multiplicative = res
	if req != nil && req.CalculateForXor {
		p.calc.xorProduct = res
	}
	if req != nil && req.SetInTemporaryZZIndex != nil {
		idx := *req.SetInTemporaryZZIndex
		if idx < 0 || idx >= len(p.cmp.temp) {
			return fmt.Errorf("%w: temporary index %d", ErrInvalidRequest, idx)
		}
		p.cmp.temp[idx] = res
	}
	return nil
}

// CalculateAdditiveShare adds two named shares.
func (p *Party) CalculateAdditiveShare(req *protocol.SharePairRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}

	a, err := p.namedLocked(req.FirstShareName)
	if err != nil {
		return err
	}
	b, err := p.namedLocked(req.SecondShareName)
	if err != nil {
		return err
	}
	p.calc.additive = crypto.FieldAdd(a, b, p.prime)
	return nil
}

// CalculateXorShare derives a XOR b = (a + b) - 2ab from the additive and
// multiplicative shares of two bits.
func (p *Party) CalculateXorShare() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if p.calc.additive == nil || p.calc.multiplicative == nil {
		return fmt.Errorf("%w: xor needs additive and multiplicative shares", ErrOutOfOrder)
	}
	p.calc.xor = p.xorLocked(p.calc.additive, p.calc.multiplicative)
	return nil
}

func (p *Party) xorLocked(sum, product *big.Int) *big.Int {
	twice := crypto.FieldAdd(product, product, p.prime)
	return crypto.FieldSub(sum, twice, p.prime)
}

// SetAdditiveShare stores the current additive share under name.
func (p *Party) SetAdditiveShare(name string) error {
	return p.storeScratch(name, func() *big.Int { return p.calc.additive })
}

// SetMultiplicativeShare stores the current multiplicative share under name.
func (p *Party) SetMultiplicativeShare(name string) error {
	return p.storeScratch(name, func() *big.Int { return p.calc.multiplicative })
}

// SetXorShare stores the current XOR share under name.
func (p *Party) SetXorShare(name string) error {
	return p.storeScratch(name, func() *big.Int { return p.calc.xor })
}

func (p *Party) storeScratch(name string, get func() *big.Int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if name == "" {
		return fmt.Errorf("%w: empty share name", ErrInvalidRequest)
	}
	v := get()
	if v == nil {
		return fmt.Errorf("%w: nothing computed to store as %q", ErrOutOfOrder, name)
	}
	p.shares[name] = v
	return nil
}

// Reconstruct opens a named value by interpolating this party's share with
// the shares fetched from every other party.
func (p *Party) Reconstruct(ctx context.Context, name string) (*big.Int, error) {
	if !protocol.Openable(name) {
		return nil, fmt.Errorf("%w: %q", ErrNotOpenable, name)
	}

	p.mu.Lock()
	if !p.seeded {
		p.mu.Unlock()
		return nil, ErrNotSeeded
	}
	own, err := p.namedLocked(name)
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	self, n, t, prime, peers := p.id, p.n, p.t, p.prime, p.peers
	p.mu.Unlock()

	values := make([]*big.Int, n)
	values[self-1] = own

	if peers == nil && n > 1 {
		return nil, fmt.Errorf("%w: no peer transport", ErrPeer)
	}

	g, gctx := errgroup.WithContext(ctx)
	for j := 1; j <= n; j++ {
		if j == self {
			continue
		}
		j := j
		g.Go(func() error {
			v, err := peers.FetchShare(gctx, j, name)
			if err != nil {
				p.log.Warn("fetching share failed", "name", name, "from", j, "err", err)
				return nil
			}
			values[j-1] = v
			return nil
		})
	}
	_ = g.Wait()

	shares := make([]crypto.Share, 0, n)
	for i, v := range values {
		if v != nil {
			shares = append(shares, crypto.Share{Index: i + 1, Value: v})
		}
	}
	if len(shares) < t {
		return nil, fmt.Errorf("%w: only %d of %d shares of %q available, need %d", ErrPeer, len(shares), n, name, t)
	}
	return crypto.Interpolate(shares, big.NewInt(0), prime)
}

// distribute hands sub-share i to party i+1, keeping our own locally. An
// unreachable peer is skipped; the step only fails when no peer was reached.
func (p *Party) distribute(ctx context.Context, kind string, subShares []*big.Int) error {
	p.mu.Lock()
	self, peers := p.id, p.peers
	err := p.storeSubShareLocked(kind, self, subShares[self-1])
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if len(subShares) == 1 {
		return nil
	}
	if peers == nil {
		return fmt.Errorf("%w: no peer transport", ErrPeer)
	}

	var (
		g        errgroup.Group
		mu       sync.Mutex
		failures []error
	)
	for j := range subShares {
		to := j + 1
		if to == self {
			continue
		}
		msg := &protocol.SubShareMessage{From: self, Kind: kind, Value: protocol.EncodeHex(subShares[j])}
		g.Go(func() error {
			if err := peers.SendSubShare(ctx, to, msg); err != nil {
				p.log.Warn("sending sub-share failed", "kind", kind, "to", to, "err", err)
				mu.Lock()
				failures = append(failures, fmt.Errorf("party %d: %w", to, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	if len(failures) == len(subShares)-1 {
		return fmt.Errorf("%w: %w", ErrPeer, errors.Join(failures...))
	}
	return nil
}

func (p *Party) evaluateLocked(coeffs []*big.Int) []*big.Int {
	out := make([]*big.Int, p.n)
	for j := range out {
		out[j] = crypto.EvaluatePolynomial(coeffs, big.NewInt(int64(j+1)), p.prime)
	}
	return out
}

func (p *Party) namedLocked(name string) (*big.Int, error) {
	v, ok := p.shares[name]
	if !ok {
		return nil, fmt.Errorf("%w: no share named %q", ErrOutOfOrder, name)
	}
	return v, nil
}

func (p *Party) decodeElementLocked(s string) (*big.Int, error) {
	v, err := protocol.DecodeHex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if v.Cmp(p.prime) >= 0 {
		return nil, fmt.Errorf("%w: value %s not below prime", ErrInvalidRequest, s)
	}
	return v, nil
}
