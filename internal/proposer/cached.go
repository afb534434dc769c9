// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package proposer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/querygate/internal/cache"
	xglog "github.com/ManuGH/querygate/internal/log"
	"github.com/ManuGH/querygate/internal/metrics"
)

// defaultSharedTimeout bounds a coalesced upstream call once it no longer
// follows any single caller's context.
const defaultSharedTimeout = 60 * time.Second

// Cached memoizes proposals. Generation runs at temperature zero, so the
// same query, state and feedback map to the same output. Concurrent
// identical requests share one upstream call.
type Cached struct {
	next          Proposer
	store         cache.Cache
	ttl           time.Duration
	sharedTimeout time.Duration
	storable      func(Output) bool
	group         singleflight.Group
}

// CachedOption configures a Cached proposer.
type CachedOption func(*Cached)

// WithSharedTimeout bounds the upstream call shared by coalesced requests.
func WithSharedTimeout(d time.Duration) CachedOption {
	return func(c *Cached) {
		if d > 0 {
			c.sharedTimeout = d
		}
	}
}

// WithStorable filters which outputs are written to the cache. Outputs
// failing keep returns are still handed to callers.
func WithStorable(keep func(Output) bool) CachedOption {
	return func(c *Cached) { c.storable = keep }
}

// NewCached wraps next. A non-positive ttl disables caching but keeps
// request coalescing.
func NewCached(next Proposer, store cache.Cache, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{next: next, store: store, ttl: ttl, sharedTimeout: defaultSharedTimeout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Propose implements Proposer. Errors are never cached. A caller whose
// context ends stops waiting without cancelling the call other callers share.
func (c *Cached) Propose(ctx context.Context, req Request) (Output, error) {
	key := CacheKey(req)

	if c.ttl > 0 {
		if raw, ok := c.store.Get(ctx, key); ok {
			var out Output
			if err := json.Unmarshal(raw, &out); err == nil {
				metrics.RecordCacheLookup("hit")
				return out, nil
			}
			c.store.Delete(ctx, key)
		}
	}

	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(key, func() (any, error) {
		callCtx, cancel := context.WithTimeout(shared, c.sharedTimeout)
		defer cancel()
		out, err := c.next.Propose(callCtx, req)
		if err != nil {
			return Output{}, err
		}
		c.remember(shared, key, out)
		return out, nil
	})

	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.RecordCacheLookup("shared")
		} else {
			metrics.RecordCacheLookup("miss")
		}
		if res.Err != nil {
			return Output{}, res.Err
		}
		return res.Val.(Output), nil
	}
}

func (c *Cached) remember(ctx context.Context, key string, out Output) {
	if c.ttl <= 0 || (c.storable != nil && !c.storable(out)) {
		return
	}
	data, err := json.Marshal(out)
	if err != nil {
		xglog.FromContext(ctx).Warn().Err(err).Msg("proposal cache encode failed")
		return
	}
	c.store.Set(ctx, key, data, c.ttl)
}

// CacheKey derives the cache key for req. Runs of whitespace in the query
// collapse; case is kept because literals inside the query are case sensitive.
func CacheKey(req Request) string {
	state, _ := json.Marshal(req.State)
	h := sha256.New()
	h.Write([]byte(strings.Join(strings.Fields(req.Query), " ")))
	h.Write([]byte{0})
	h.Write(state)
	h.Write([]byte{0})
	h.Write([]byte(req.PriorError))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatBool(req.AllowClarify)))
	return "proposal:" + hex.EncodeToString(h.Sum(nil))
}
