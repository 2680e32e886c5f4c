// Package filter provides the filter chain for track selection.
package filter

import (
	"context"

	"github.com/samber/lo"

	"github.com/osa030/groovebox/internal/domain/track"
)

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain(filters ...Filter) *Chain {
	c := &Chain{
		filters: make([]Filter, 0, len(filters)),
	}
	for _, f := range filters {
		c.Add(f)
	}
	return c
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, q Query, t track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, q, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Select returns the indices of the tracks the chain accepts.
func (c *Chain) Select(ctx context.Context, q Query, tracks []track.Track) []int {
	indices := lo.Range(len(tracks))
	return lo.Filter(indices, func(i int, _ int) bool {
		return c.Execute(ctx, q, tracks[i]).Accepted
	})
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}

// Names returns the names of the filters in the chain.
func (c *Chain) Names() []string {
	return lo.Map(c.filters, func(f Filter, _ int) string {
		return f.Name()
	})
}
