// Package sequence runs named steps strictly one after another: a step never
// starts before its predecessor has completed, and the first error aborts
// the rest of the chain. It replaces nested completion callbacks with a flat,
// inspectable pipeline.
package sequence

import (
	"context"
	"fmt"
)

// Step is one unit of sequential work.
type Step func(ctx context.Context) error

// Chain is an ordered list of steps.
type Chain struct {
	names []string
	steps []Step
}

// New returns an empty chain.
func New() *Chain {
	return &Chain{}
}

// Then appends a named step. Steps run in the order they were appended.
func (c *Chain) Then(name string, step Step) *Chain {
	c.names = append(c.names, name)
	c.steps = append(c.steps, step)
	return c
}

// Run executes the steps in order. It stops at the first failing step and
// returns its error wrapped with the step name; a cancelled context stops
// the chain before the next step starts.
func (c *Chain) Run(ctx context.Context) error {
	for i, step := range c.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sequence aborted before step %s: %w", c.names[i], err)
		}
		if err := step(ctx); err != nil {
			return fmt.Errorf("step %s: %w", c.names[i], err)
		}
	}
	return nil
}

// Len returns the number of steps in the chain.
func (c *Chain) Len() int {
	return len(c.steps)
}
