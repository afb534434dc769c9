// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proposer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/querygate/internal/resilience"
)

type breakerProposer struct {
	next Proposer
	cb   *resilience.CircuitBreaker
}

// WithBreaker fails fast with ErrUnavailable while cb is open. Only
// transport failures count against the breaker; classified outputs,
// including clarifications and blocks, are successes.
func WithBreaker(next Proposer, cb *resilience.CircuitBreaker) Proposer {
	return &breakerProposer{next: next, cb: cb}
}

func (b *breakerProposer) Propose(ctx context.Context, req Request) (Output, error) {
	var out Output
	err := b.cb.Execute(ctx, func(ctx context.Context) error {
		var err error
		out, err = b.next.Propose(ctx, req)
		return err
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return Output{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if err != nil {
		return Output{}, err
	}
	return out, nil
}
