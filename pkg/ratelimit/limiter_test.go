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
package ratelimit

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teradata-labs/loomgate/pkg/gatewayerr"
	"github.com/teradata-labs/loomgate/pkg/gwconfig"
)

func window(limit int, interval time.Duration) *gwconfig.Window {
	return &gwconfig.Window{InputTokenLimit: limit, Interval: interval}
}

func TestAdmit_NilWindowIsUnlimited(t *testing.T) {
	l := New()
	now := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Admit("client", "openai/*/*", nil, 1_000_000, now))
	}
	assert.Equal(t, 0, l.Len(), "unlimited admissions must not create buckets")
}

func TestAdmit_DeniesWhenAllowanceExhausted(t *testing.T) {
	l := New()
	now := time.Now()
	w := window(20, time.Minute)

	require.NoError(t, l.Admit("client", "openai/gpt-4o/basic", w, 15, now))

	err := l.Admit("client", "openai/gpt-4o/basic", w, 10, now)
	require.Error(t, err)
	gwErr, ok := gatewayerr.As(err)
	require.True(t, ok)
	assert.Equal(t, gatewayerr.RateLimitExceeded, gwErr.Kind)
}

func TestAdmit_WindowRollRestoresAllowance(t *testing.T) {
	l := New()
	now := time.Now()
	w := window(20, time.Minute)

	require.NoError(t, l.Admit("client", "scope", w, 20, now))
	require.Error(t, l.Admit("client", "scope", w, 1, now))

	require.NoError(t, l.Admit("client", "scope", w, 20, now.Add(time.Minute)))
}

func TestAdmit_BucketsAreIsolatedPerClientAndScope(t *testing.T) {
	l := New()
	now := time.Now()
	w := window(10, time.Minute)

	require.NoError(t, l.Admit("alice", "scope", w, 10, now))
	require.NoError(t, l.Admit("bob", "scope", w, 10, now))
	require.NoError(t, l.Admit("alice", "other-scope", w, 10, now))
	require.Error(t, l.Admit("alice", "scope", w, 1, now))
}

func TestReconcile_AppliesPositiveDeltaOnly(t *testing.T) {
	l := New()
	now := time.Now()
	w := window(20, time.Minute)

	require.NoError(t, l.Admit("client", "scope", w, 5, now))

	// Actual exceeded prediction by 10; the overage consumes allowance.
	l.Reconcile("client", "scope", 10)
	require.Error(t, l.Admit("client", "scope", w, 6, now))

	// Over-prediction is never refunded.
	l.Reconcile("client", "scope", -100)
	require.Error(t, l.Admit("client", "scope", w, 6, now))
}

func TestReconcile_UnknownBucketIsIgnored(t *testing.T) {
	l := New()
	l.Reconcile("nobody", "nowhere", 50)
	assert.Equal(t, 0, l.Len())
}

func TestEvictExpired_ReclaimsAfterTwoIntervals(t *testing.T) {
	l := New()
	now := time.Now()
	w := window(10, time.Minute)

	require.NoError(t, l.Admit("client", "scope", w, 1, now))
	assert.Equal(t, 1, l.Len())

	assert.Equal(t, 0, l.EvictExpired(now.Add(2*time.Minute)))
	assert.Equal(t, 1, l.EvictExpired(now.Add(2*time.Minute+time.Second)))
	assert.Equal(t, 0, l.Len())
}

func TestAdmit_ConcurrentDistinctKeys(t *testing.T) {
	l := New()
	now := time.Now()
	w := window(1000, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			scope := ScopeKey("openai", "gpt-4o", string(rune('a'+n%8)))
			for j := 0; j < 50; j++ {
				_ = l.Admit("client", scope, w, 1, now)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 8, l.Len())
}

func TestScopeKey_StarsForUnsetLevels(t *testing.T) {
	assert.Equal(t, "openai/gpt-4o/basic", ScopeKey("openai", "gpt-4o", "basic"))
	assert.Equal(t, "openai/*/*", ScopeKey("openai", "", ""))
	assert.Equal(t, "openai/*/basic", ScopeKey("openai", "", "basic"))
}

func TestCharApproximation(t *testing.T) {
	assert.Equal(t, 1, CharApproximation(""))
	assert.Equal(t, 1, CharApproximation("abc"))
	assert.Equal(t, 25, CharApproximation(string(make([]byte, 100))))
}
