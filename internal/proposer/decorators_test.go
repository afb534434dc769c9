// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proposer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/querygate/internal/cache"
	"github.com/ManuGH/querygate/internal/conversation"
	"github.com/ManuGH/querygate/internal/resilience"
)

func countingProposer(out Output, err error, calls *atomic.Int32) Proposer {
	return Func(func(context.Context, Request) (Output, error) {
		calls.Add(1)
		return out, err
	})
}

func TestCached_HitAfterMiss(t *testing.T) {
	var calls atomic.Int32
	store := cache.NewMemoryCache(0)
	p := NewCached(countingProposer(SQL("SELECT 1 FROM t"), nil, &calls), store, time.Minute)
	ctx := context.Background()
	req := Request{Query: "List tickets", State: conversation.Default()}

	for i := 0; i < 3; i++ {
		out, err := p.Propose(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, SQL("SELECT 1 FROM t"), out)
	}
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int64(2), store.Stats().Hits)

	// Whitespace in the query does not change the key.
	_, err := p.Propose(ctx, Request{Query: "  List   tickets ", State: conversation.Default()})
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCacheKey_KeepsQueryCase(t *testing.T) {
	upper := Request{Query: "tickets for 'ACME'", State: conversation.Default()}
	lower := Request{Query: "tickets for 'acme'", State: conversation.Default()}
	assert.NotEqual(t, CacheKey(upper), CacheKey(lower))
}

func TestCached_StorableFiltersWrites(t *testing.T) {
	var calls atomic.Int32
	store := cache.NewMemoryCache(0)
	rejected := SQL("DROP TABLE tickets")
	p := NewCached(countingProposer(rejected, nil, &calls), store, time.Minute,
		WithStorable(func(o Output) bool { return o.Kind != KindSQL || o.Text != rejected.Text }))

	for i := 0; i < 2; i++ {
		out, err := p.Propose(context.Background(), Request{Query: "drop it"})
		require.NoError(t, err)
		assert.Equal(t, rejected, out)
	}
	assert.Equal(t, int32(2), calls.Load(), "filtered outputs are regenerated")
	assert.Zero(t, store.Stats().Sets)
}

func TestCached_CallerCancelDoesNotFailSharedCall(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	slow := Func(func(ctx context.Context, _ Request) (Output, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
			return SQL("SELECT 1 FROM t"), nil
		case <-ctx.Done():
			return Output{}, ctx.Err()
		}
	})
	p := NewCached(slow, cache.NewMemoryCache(0), time.Minute)
	req := Request{Query: "shared"}

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := p.Propose(ctxA, req)
		errA <- err
	}()
	<-started

	type result struct {
		out Output
		err error
	}
	resB := make(chan result, 1)
	go func() {
		out, err := p.Propose(context.Background(), req)
		resB <- result{out, err}
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(release)
	got := <-resB
	require.NoError(t, got.err)
	assert.Equal(t, SQL("SELECT 1 FROM t"), got.out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCached_SharedTimeoutBoundsUpstream(t *testing.T) {
	slow := Func(func(ctx context.Context, _ Request) (Output, error) {
		<-ctx.Done()
		return Output{}, ctx.Err()
	})
	p := NewCached(slow, cache.NewMemoryCache(0), time.Minute, WithSharedTimeout(20*time.Millisecond))

	_, err := p.Propose(context.Background(), Request{Query: "q"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCached_KeyIncludesStateAndFeedback(t *testing.T) {
	base := Request{Query: "q", State: conversation.Default()}
	withFilter := base
	withFilter.State = base.State.WithFilter(conversation.FilterBranch, "Pune")
	withFeedback := base
	withFeedback.PriorError = "malformed"
	allowClarify := base
	allowClarify.AllowClarify = true

	keys := map[string]bool{}
	for _, r := range []Request{base, withFilter, withFeedback, allowClarify} {
		keys[CacheKey(r)] = true
	}
	assert.Len(t, keys, 4)
}

func TestCached_ErrorsNotCached(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("down")
	p := NewCached(countingProposer(Output{}, boom, &calls), cache.NewMemoryCache(0), time.Minute)

	for i := 0; i < 2; i++ {
		_, err := p.Propose(context.Background(), Request{Query: "q"})
		require.ErrorIs(t, err, boom)
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestCached_ZeroTTLStillCoalesces(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	slow := Func(func(context.Context, Request) (Output, error) {
		calls.Add(1)
		<-release
		return Clarification("which branch?"), nil
	})
	store := cache.NewMemoryCache(0)
	p := NewCached(slow, store, 0)

	const n = 8
	var wg sync.WaitGroup
	results := make([]Output, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := p.Propose(context.Background(), Request{Query: "same"})
			assert.NoError(t, err)
			results[i] = out
		}(i)
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, calls.Load(), int32(n))
	for _, r := range results {
		assert.Equal(t, Clarification("which branch?"), r)
	}
	assert.Zero(t, store.Stats().Sets, "ttl 0 never writes")
}

func TestCached_CorruptEntryIsReplaced(t *testing.T) {
	var calls atomic.Int32
	store := cache.NewMemoryCache(0)
	req := Request{Query: "q"}
	store.Set(context.Background(), CacheKey(req), []byte("not json"), time.Minute)

	p := NewCached(countingProposer(SQL("SELECT 1 FROM t"), nil, &calls), store, time.Minute)
	out, err := p.Propose(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, SQL("SELECT 1 FROM t"), out)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithBreaker(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("upstream 500")
	cb := resilience.NewCircuitBreaker("proposer-test", 2, time.Hour)
	p := WithBreaker(countingProposer(Output{}, fmt.Errorf("%w: %w", ErrUnavailable, boom), &calls), cb)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := p.Propose(ctx, Request{Query: "q"})
		require.ErrorIs(t, err, boom)
	}
	require.Equal(t, resilience.StateOpen, cb.State())

	_, err := p.Propose(ctx, Request{Query: "q"})
	require.ErrorIs(t, err, ErrUnavailable)
	require.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "open breaker short-circuits")
}

func TestWithBreaker_SentinelsAreSuccesses(t *testing.T) {
	var calls atomic.Int32
	cb := resilience.NewCircuitBreaker("proposer-sentinel", 1, time.Hour)
	p := WithBreaker(countingProposer(PolicyBlocked(PolicyBlockMessage), nil, &calls), cb)

	for i := 0; i < 3; i++ {
		out, err := p.Propose(context.Background(), Request{Query: "payroll"})
		require.NoError(t, err)
		assert.Equal(t, KindPolicyBlocked, out.Kind)
	}
	assert.Equal(t, resilience.StateClosed, cb.State())
}
