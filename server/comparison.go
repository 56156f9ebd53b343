package server

import (
	"context"
	"fmt"
	"math/big"

	"github.com/flashbots/mpcauction/crypto"
	"github.com/flashbots/mpcauction/protocol"
)

// SetTemporaryRandomBitShare stores the last random bit at position i. A
// repeated position keeps the latest bit.
func (p *Party) SetTemporaryRandomBitShare(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if i < 0 {
		return fmt.Errorf("%w: bit index %d", ErrInvalidRequest, i)
	}
	bit, err := p.namedLocked(protocol.ShareTemporaryRandomBit)
	if err != nil {
		return err
	}
	p.cmp.randomBits[i] = bit
	return nil
}

// CalculateShareOfRandomNumber sets r = Σ 2^i·bit_i over the contiguous
// random bits starting at position 0.
func (p *Party) CalculateShareOfRandomNumber() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}

	n := len(p.cmp.randomBits)
	if n == 0 {
		return fmt.Errorf("%w: no random bits shared", ErrOutOfOrder)
	}

	r := new(big.Int)
	for i := 0; i < n; i++ {
		bit, ok := p.cmp.randomBits[i]
		if !ok {
			return fmt.Errorf("%w: random bit %d missing", ErrOutOfOrder, i)
		}
		term := new(big.Int).Lsh(bit, uint(i))
		r.Add(r, term)
	}
	p.shares[protocol.ShareRandomNumber] = r.Mod(r, p.prime)
	p.cmp.numBits = n
	return nil
}

// CalculateAComparison computes a = 2^(l+k+1) - r + 2^l + bid_first - bid_second.
func (p *Party) CalculateAComparison(req *protocol.AComparisonRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if err := crypto.ValidatePrime(p.prime, req.L, req.K); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if p.cmp.numBits != req.L+req.K+1 {
		return fmt.Errorf("%w: random number has %d bits, need %d", ErrOutOfOrder, p.cmp.numBits, req.L+req.K+1)
	}

	first, ok := p.bids[req.FirstClientID]
	if !ok {
		return fmt.Errorf("%w: no bid from client %d", ErrInvalidRequest, req.FirstClientID)
	}
	second, ok := p.bids[req.SecondClientID]
	if !ok {
		return fmt.Errorf("%w: no bid from client %d", ErrInvalidRequest, req.SecondClientID)
	}
	r, err := p.namedLocked(protocol.ShareRandomNumber)
	if err != nil {
		return err
	}

	a := new(big.Int).Lsh(big.NewInt(1), uint(req.L+req.K+1))
	a.Sub(a, r)
	a.Add(a, new(big.Int).Lsh(big.NewInt(1), uint(req.L)))
	a.Add(a, first)
	a.Sub(a, second)
	p.shares[protocol.ShareComparisonA] = a.Mod(a, p.prime)

	p.cmp.l, p.cmp.k = req.L, req.K
	return nil
}

// openedBitsLocked records the opened masked difference and checks that the
// random bits up to position l exist.
func (p *Party) openedBitsLocked(openedA string, l, k int) error {
	a, err := p.decodeElementLocked(openedA)
	if err != nil {
		return err
	}
	if l < 1 || k < 0 {
		return fmt.Errorf("%w: l=%d k=%d", ErrInvalidRequest, l, k)
	}
	for i := 0; i <= l; i++ {
		if _, ok := p.cmp.randomBits[i]; !ok {
			return fmt.Errorf("%w: random bit %d missing", ErrOutOfOrder, i)
		}
	}
	p.cmp.openedA = a
	p.cmp.l, p.cmp.k = l, k
	return nil
}

func (p *Party) publicBit(v *big.Int, i int) *big.Int {
	return big.NewInt(int64(v.Bit(i)))
}

// xorWithPublicLocked returns bit XOR share for a public bit: share when the
// bit is 0, 1 - share when it is 1.
func (p *Party) xorWithPublicLocked(bit uint, share *big.Int) *big.Int {
	if bit == 0 {
		return share
	}
	return crypto.FieldSub(big.NewInt(1), share, p.prime)
}

// andWithPublicLocked returns bit AND share for a public bit.
func (p *Party) andWithPublicLocked(bit uint, share *big.Int) *big.Int {
	if bit == 0 {
		return new(big.Int)
	}
	return share
}

// PrepareZTables fills the carry half of every z-table entry: a_i AND r_i is
// local because a is public. The propagate half a_i XOR r_i is computed by
// the z-table XOR rounds.
func (p *Party) PrepareZTables(req *protocol.OpenedARequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if err := p.openedBitsLocked(req.OpenedA, req.L, req.K); err != nil {
		return err
	}

	table := make([]bitPair, req.L)
	for i := range table {
		table[i].carry = p.andWithPublicLocked(p.cmp.openedA.Bit(i), p.cmp.randomBits[i])
	}
	p.cmp.zTable = table
	return nil
}

func (p *Party) zTableIndexLocked(i int) error {
	if p.cmp.zTable == nil {
		return fmt.Errorf("%w: z-tables not prepared", ErrOutOfOrder)
	}
	if i < 0 || i >= len(p.cmp.zTable) {
		return fmt.Errorf("%w: z-table index %d outside 0..%d", ErrInvalidRequest, i, len(p.cmp.zTable)-1)
	}
	return nil
}

// CalculateAdditiveShareOfZTable sets the additive share to a_i + r_i.
func (p *Party) CalculateAdditiveShareOfZTable(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if err := p.zTableIndexLocked(i); err != nil {
		return err
	}
	p.calc.additive = crypto.FieldAdd(p.publicBit(p.cmp.openedA, i), p.cmp.randomBits[i], p.prime)
	return nil
}

// CalculateROfZTable multiplies a_i with r_i and reshares the product.
func (p *Party) CalculateROfZTable(ctx context.Context, i int) error {
	p.mu.Lock()
	if !p.seeded {
		p.mu.Unlock()
		return ErrNotSeeded
	}
	if err := p.zTableIndexLocked(i); err != nil {
		p.mu.Unlock()
		return err
	}
	product := crypto.FieldMul(p.publicBit(p.cmp.openedA, i), p.cmp.randomBits[i], p.prime)
	return p.reshareProductAndUnlock(ctx, product)
}

// SetZTableToXorShare stores the current XOR share as the propagate half of
// entry i.
func (p *Party) SetZTableToXorShare(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if err := p.zTableIndexLocked(i); err != nil {
		return err
	}
	if p.calc.xor == nil {
		return fmt.Errorf("%w: no xor share computed", ErrOutOfOrder)
	}
	p.cmp.zTable[i].propagate = p.calc.xor
	return nil
}

// InitializeZAndZ starts the accumulators at the neutral pair z = 1, Z = 0.
func (p *Party) InitializeZAndZ(req *protocol.InitializeZRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if req.L != len(p.cmp.zTable) {
		return fmt.Errorf("%w: l=%d but %d z-table entries", ErrInvalidRequest, req.L, len(p.cmp.zTable))
	}
	p.shares[protocol.ShareLowerZ] = big.NewInt(1)
	p.shares[protocol.ShareUpperZ] = big.NewInt(0)
	return nil
}

// PrepareForNextRomb loads x, X from the accumulators and y, Y from z-table
// entry i.
func (p *Party) PrepareForNextRomb(i int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if err := p.zTableIndexLocked(i); err != nil {
		return err
	}
	entry := p.cmp.zTable[i]
	if entry.propagate == nil {
		return fmt.Errorf("%w: z-table entry %d has no xor share", ErrOutOfOrder, i)
	}
	z, err := p.namedLocked(protocol.ShareLowerZ)
	if err != nil {
		return err
	}
	Z, err := p.namedLocked(protocol.ShareUpperZ)
	if err != nil {
		return err
	}

	p.shares[protocol.ShareLowerX] = z
	p.shares[protocol.ShareUpperX] = Z
	p.shares[protocol.ShareLowerY] = entry.propagate
	p.shares[protocol.ShareUpperY] = entry.carry
	return nil
}

// PrepareSharesForResXors sets a_l to bit i of the opened value and r_l to
// random bit j.
func (p *Party) PrepareSharesForResXors(i, j int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if p.cmp.openedA == nil {
		return fmt.Errorf("%w: no opened value", ErrOutOfOrder)
	}
	bit, ok := p.cmp.randomBits[j]
	if !ok || i < 0 {
		return fmt.Errorf("%w: random bit %d missing", ErrOutOfOrder, j)
	}
	p.shares[protocol.ShareAL] = p.publicBit(p.cmp.openedA, i)
	p.shares[protocol.ShareRL] = bit
	return nil
}

// CalculateZComparison builds the zZ stack: one (propagate, carry) pair per
// bit from 0 at the bottom to l-1, and the neutral pair (1, 0) on top.
func (p *Party) CalculateZComparison(req *protocol.OpenedARequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if err := p.openedBitsLocked(req.OpenedA, req.L, req.K); err != nil {
		return err
	}

	stack := make([]bitPair, 0, req.L+1)
	for i := 0; i < req.L; i++ {
		bit := p.cmp.openedA.Bit(i)
		share := p.cmp.randomBits[i]
		stack = append(stack, bitPair{
			propagate: p.xorWithPublicLocked(bit, share),
			carry:     p.andWithPublicLocked(bit, share),
		})
	}
	stack = append(stack, bitPair{propagate: big.NewInt(1), carry: big.NewInt(0)})

	p.cmp.stack = stack
	p.cmp.temp = [2]*big.Int{}
	return nil
}

// stackFactorLocked resolves [i, c]: component c of the i-th entry from the top.
func (p *Party) stackFactorLocked(f []int) (*big.Int, error) {
	if len(f) != 2 {
		return nil, fmt.Errorf("%w: stack factor %v", ErrInvalidRequest, f)
	}
	idx := len(p.cmp.stack) - 1 - f[0]
	if f[0] < 0 || idx < 0 {
		return nil, fmt.Errorf("%w: stack has %d entries, factor %v", ErrOutOfOrder, len(p.cmp.stack), f)
	}
	switch f[1] {
	case 0:
		return p.cmp.stack[idx].propagate, nil
	case 1:
		return p.cmp.stack[idx].carry, nil
	}
	return nil, fmt.Errorf("%w: stack component %d", ErrInvalidRequest, f[1])
}

func (p *Party) stackOperandsLocked(fromTemporary bool, first, second []int) (*big.Int, *big.Int, error) {
	a, err := p.stackFactorLocked(first)
	if err != nil {
		return nil, nil, err
	}
	if !fromTemporary {
		b, err := p.stackFactorLocked(second)
		return a, b, err
	}
	if len(second) != 1 || second[0] < 0 || second[0] >= len(p.cmp.temp) {
		return nil, nil, fmt.Errorf("%w: temporary factor %v", ErrInvalidRequest, second)
	}
	b := p.cmp.temp[second[0]]
	if b == nil {
		return nil, nil, fmt.Errorf("%w: temporary slot %d empty", ErrOutOfOrder, second[0])
	}
	return a, b, nil
}

// Xor sets temporary slot 1 to first XOR second using the product computed
// by the preceding multiplication for XOR.
func (p *Party) Xor(req *protocol.XorRequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	a, b, err := p.stackOperandsLocked(req.TakeValueFromTemporaryZZ, req.ZZFirstMultiplicationFactor, req.ZZSecondMultiplicationFactor)
	if err != nil {
		return err
	}
	if p.calc.xorProduct == nil {
		return fmt.Errorf("%w: xor needs a product computed for xor", ErrOutOfOrder)
	}
	p.cmp.temp[1] = p.xorLocked(crypto.FieldAdd(a, b, p.prime), p.calc.xorProduct)
	return nil
}

// PopZZ replaces the top two stack entries with the temporary pair.
func (p *Party) PopZZ() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	if len(p.cmp.stack) < 2 {
		return fmt.Errorf("%w: stack has %d entries", ErrOutOfOrder, len(p.cmp.stack))
	}
	if p.cmp.temp[0] == nil || p.cmp.temp[1] == nil {
		return fmt.Errorf("%w: temporary pair incomplete", ErrOutOfOrder)
	}

	merged := bitPair{propagate: p.cmp.temp[0], carry: p.cmp.temp[1]}
	p.cmp.stack = append(p.cmp.stack[:len(p.cmp.stack)-2], merged)
	p.cmp.temp = [2]*big.Int{}
	return nil
}

// finalOperandsLocked returns (a_l XOR r_l) and the carry of the fully
// merged stack.
func (p *Party) finalOperandsLocked(openedA string, l int) (*big.Int, *big.Int, error) {
	if len(p.cmp.stack) != 1 {
		return nil, nil, fmt.Errorf("%w: stack has %d entries, want 1", ErrOutOfOrder, len(p.cmp.stack))
	}
	a, err := p.decodeElementLocked(openedA)
	if err != nil {
		return nil, nil, err
	}
	rl, ok := p.cmp.randomBits[l]
	if !ok || l < 1 {
		return nil, nil, fmt.Errorf("%w: random bit %d missing", ErrOutOfOrder, l)
	}
	return p.xorWithPublicLocked(a.Bit(l), rl), p.cmp.stack[0].carry, nil
}

// CalculateComparisonResult sets res = (a_l XOR r_l) XOR Z using the product
// computed for XOR by the final redistribute-r round.
func (p *Party) CalculateComparisonResult(req *protocol.OpenedARequest) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seeded {
		return ErrNotSeeded
	}
	t, carry, err := p.finalOperandsLocked(req.OpenedA, req.L)
	if err != nil {
		return err
	}
	if p.calc.xorProduct == nil {
		return fmt.Errorf("%w: result needs a product computed for xor", ErrOutOfOrder)
	}
	p.shares[protocol.ShareRes] = p.xorLocked(crypto.FieldAdd(t, carry, p.prime), p.calc.xorProduct)
	return nil
}
