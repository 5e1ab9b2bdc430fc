package enrichment

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/ternarybob/enricher/internal/models"
)

// Pacer spaces consecutive searches with a randomized delay drawn from weighted tiers
type Pacer struct {
	tiers []models.RateTier
	total float64
	float func() float64
}

// NewPacer creates a pacer over tiers. An empty tier list never waits.
func NewPacer(tiers []models.RateTier) *Pacer {
	p := &Pacer{tiers: tiers, float: rand.Float64}
	for _, t := range tiers {
		p.total += t.Weight
	}
	return p
}

// NewPacerFromPolicy resolves the policy then creates a pacer
func NewPacerFromPolicy(policy models.RatePolicy) (*Pacer, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	tiers, err := policy.Resolve()
	if err != nil {
		return nil, err
	}
	return NewPacer(tiers), nil
}

// Next picks a tier by weight, then a uniform delay within it
func (p *Pacer) Next() time.Duration {
	if len(p.tiers) == 0 || p.total <= 0 {
		return 0
	}

	roll := p.float() * p.total
	tier := p.tiers[len(p.tiers)-1]
	for _, t := range p.tiers {
		if roll < t.Weight {
			tier = t
			break
		}
		roll -= t.Weight
	}

	lo, hi := time.Duration(tier.Min), time.Duration(tier.Max)
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(p.float()*float64(hi-lo))
}

// Wait blocks for the next delay (with context support)
func (p *Pacer) Wait(ctx context.Context) error {
	delay := p.Next()
	if delay <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
