package observability

import (
	"context"
	"errors"
	"fmt"
)

// Check is one named readiness probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Readiness aggregates probes; it is ready only when every probe passes.
type Readiness []Check

// CheckReadiness runs every probe and joins the failures.
func (r Readiness) CheckReadiness(ctx context.Context) error {
	var errs []error
	for _, c := range r {
		if err := c.Probe(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
}
