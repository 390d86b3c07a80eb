// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ratelimit admits or denies requests on a token-counted budget
// keyed on client identity and a resolved scope. This sits in
// front of provider dispatch; pkg/llm's per-adapter RateLimiter throttles
// the adapter's own call rate to the upstream and is a separate concern.
package ratelimit

import (
	"fmt"
	"sync"
	"time"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/gwconfig"
)

// ScopeKey identifies one bucket: the concatenation of
// (provider, model_or_*, group_or_*) resolved by the precedence table.
func ScopeKey(provider, model, group string) string {
	if model == "" {
		model = "*"
	}
	if group == "" {
		group = "*"
	}
	return fmt.Sprintf("%s/%s/%s", provider, model, group)
}

type bucket struct {
	mu          sync.Mutex
	allowance   int
	windowStart time.Time
	limit       int
	interval    time.Duration
}

// maybeReset rolls the bucket into a fresh window if the current one has
// elapsed. Caller holds b.mu.
func (b *bucket) maybeReset(now time.Time) {
	if now.Sub(b.windowStart) >= b.interval {
		b.allowance = b.limit
		b.windowStart = now
	}
}

// expired reports whether this bucket's window ended more than two
// intervals ago, as of now. Caller holds b.mu.
func (b *bucket) expired(now time.Time) bool {
	return now.Sub(b.windowStart) > 2*b.interval
}

// bucketID is the full key into the Limiter's bucket map: a client's
// identity paired with the scope it hit.
type bucketID struct {
	clientID string
	scope    string
}

// Limiter admits requests against per-(client, scope) token buckets. Map
// structure is guarded by a single RWMutex; the bucket math for each key
// is guarded by that bucket's own mutex, so concurrent admissions on
// different keys never block each other beyond the brief map lookup.
type Limiter struct {
	mu      sync.RWMutex
	buckets map[bucketID]*bucket
}

// New returns an empty Limiter.
func New() *Limiter {
	return &Limiter{buckets: make(map[bucketID]*bucket)}
}

func (l *Limiter) getOrCreate(id bucketID, window *gwconfig.Window, now time.Time) *bucket {
	l.mu.RLock()
	b, ok := l.buckets[id]
	l.mu.RUnlock()
	if ok {
		return b
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if b, ok = l.buckets[id]; ok {
		return b
	}
	b = &bucket{
		allowance:   window.InputTokenLimit,
		windowStart: now,
		limit:       window.InputTokenLimit,
		interval:    window.Interval,
	}
	l.buckets[id] = b
	return b
}

// Admit checks whether predictedTokens fit within the remaining allowance
// for (clientID, scope) under window, decrementing on success. A nil
// window means no limit is configured at any precedence level — the
// request is admitted unconditionally.
func (l *Limiter) Admit(clientID, scope string, window *gwconfig.Window, predictedTokens int, now time.Time) error {
	if window == nil {
		return nil
	}

	b := l.getOrCreate(bucketID{clientID: clientID, scope: scope}, window, now)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.maybeReset(now)
	if b.allowance < predictedTokens {
		return gatewayerr.New(gatewayerr.RateLimitExceeded,
			"rate limit exceeded for scope %q: %d tokens requested, %d remaining in window", scope, predictedTokens, b.allowance)
	}
	b.allowance -= predictedTokens
	return nil
}

// Reconcile applies the difference between actual and predicted token
// usage after a response completes. Over-prediction is never refunded —
// only positive deltas (actual > predicted) are
// applied, as a further decrement; a bucket that no longer exists (e.g.
// reclaimed) is silently ignored, since the window it belonged to has
// already elapsed.
func (l *Limiter) Reconcile(clientID, scope string, delta int) {
	if delta <= 0 {
		return
	}
	l.mu.RLock()
	b, ok := l.buckets[bucketID{clientID: clientID, scope: scope}]
	l.mu.RUnlock()
	if !ok {
		return
	}
	b.mu.Lock()
	b.allowance -= delta
	b.mu.Unlock()
}

// EvictExpired reclaims buckets whose window ended more than two
// intervals ago and returns how many it removed. Nothing in the gateway
// runs it on a schedule; buckets stay in the map until a caller does.
func (l *Limiter) EvictExpired(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for id, b := range l.buckets {
		b.mu.Lock()
		expired := b.expired(now)
		b.mu.Unlock()
		if expired {
			delete(l.buckets, id)
			evicted++
		}
	}
	return evicted
}

// Len reports the number of live buckets, for tests and metrics.
func (l *Limiter) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.buckets)
}
