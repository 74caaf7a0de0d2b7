package egress

import (
	"context"
	"math/rand"
	"sync"

	"golang.org/x/time/rate"

	"github.com/a11yscan/grid/pkg/domain/shared"
)

// Pool maintains the set of available egress identities and selects one
// per job attempt. Selection never requires callers to know pool size or
// ordering. All methods are safe for concurrent use.
type Pool struct {
	mu         sync.Mutex
	identities []Identity
	cursor     int

	// Per-address pacing so a single exit address is not hammered.
	// Zero perAddress disables pacing.
	perAddress rate.Limit
	burst      int
	limiters   map[string]*rate.Limiter
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPacing enables a per-address rate limiter: at most r requests per
// second per egress address, with the given burst.
func WithPacing(r rate.Limit, burst int) PoolOption {
	return func(p *Pool) {
		p.perAddress = r
		p.burst = burst
	}
}

// NewPool creates a pool seeded with the given identities. Invalid seed
// entries are rejected.
func NewPool(seed []Identity, opts ...PoolOption) (*Pool, error) {
	p := &Pool{
		limiters: make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(p)
	}
	for _, id := range seed {
		if err := p.Add(id); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Next returns the identity at the rotation cursor and advances the
// cursor. Over N consecutive calls with a pool of size N and no
// mutation, every identity is returned exactly once in insertion order.
func (p *Pool) Next() (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.identities) == 0 {
		return Identity{}, shared.ErrPoolExhausted
	}

	// Clamp after removals that may have left the cursor past the end.
	p.cursor %= len(p.identities)
	id := p.identities[p.cursor]
	p.cursor++
	return id, nil
}

// Random returns a uniformly selected identity. No fairness guarantee;
// intended for breaking up predictable rotation patterns.
func (p *Pool) Random() (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.identities) == 0 {
		return Identity{}, shared.ErrPoolExhausted
	}
	return p.identities[rand.Intn(len(p.identities))], nil
}

// ByRegion returns the first identity matching the region code. The
// rotation cursor is not touched.
func (p *Pool) ByRegion(region string) (Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.identities) == 0 {
		return Identity{}, shared.ErrPoolExhausted
	}
	for _, id := range p.identities {
		if id.Region == region {
			return id, nil
		}
	}
	return Identity{}, shared.NewDomainError("NOT_FOUND", "no egress identity in region "+region, shared.ErrNotFound)
}

// Add appends an identity to the pool.
func (p *Pool) Add(id Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.identities = append(p.identities, id)
	if p.perAddress > 0 {
		if _, ok := p.limiters[id.Address]; !ok {
			p.limiters[id.Address] = rate.NewLimiter(p.perAddress, p.burst)
		}
	}
	return nil
}

// Remove deletes the identity with the given address. No-op if absent.
// Removing the identity under the cursor is legal; Next clamps the
// cursor on its following call.
func (p *Pool) Remove(address string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, id := range p.identities {
		if id.Address == address {
			p.identities = append(p.identities[:i], p.identities[i+1:]...)
			delete(p.limiters, address)
			return
		}
	}
}

// Size returns the number of identities in the pool.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.identities)
}

// List returns a snapshot of the pool contents in insertion order.
func (p *Pool) List() []Identity {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Identity, len(p.identities))
	copy(out, p.identities)
	return out
}

// Pace blocks until the identity's address is allowed another request
// under the pool's pacing policy. Returns immediately when pacing is
// disabled or the identity was removed meanwhile.
func (p *Pool) Pace(ctx context.Context, id Identity) error {
	p.mu.Lock()
	limiter := p.limiters[id.Address]
	p.mu.Unlock()

	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}
