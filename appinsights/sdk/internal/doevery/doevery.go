// Copyright The OpenTelemetry Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package doevery rate-limits repeated actions, typically log lines that
// would otherwise fire once per dropped item.
package doevery

import (
	"fmt"
	"sync"
	"time"
)

// Limiter runs an action at most once per period for each key. Calls that
// are skipped are counted and the count is handed to the next action that
// runs for the same key.
//
// Example usage:
//
//	lim := doevery.New(time.Second)
//	lim.Do("queue-full", func(suppressed int) {
//		logger.Warn("queue full", zap.Int("suppressed", suppressed))
//	})
//
// Limiter is safe for concurrent use.
type Limiter struct {
	period time.Duration
	now    func() time.Time

	// mu protects below.
	mu    sync.Mutex
	state map[string]*keyState
}

type keyState struct {
	last       time.Time
	suppressed int
}

// New returns a Limiter with the given period. A zero period never
// suppresses.
func New(period time.Duration) *Limiter {
	if period < 0 {
		panic(fmt.Sprintf("negative duration unsupported: %v", period))
	}
	return &Limiter{
		period: period,
		now:    time.Now,
		state:  make(map[string]*keyState),
	}
}

// Do invokes f unless f was invoked for key within the period. f runs
// outside the lock.
func (l *Limiter) Do(key string, f func(suppressed int)) {
	suppressed, ok := l.take(key)
	if !ok {
		return
	}
	f(suppressed)
}

func (l *Limiter) take(key string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	st, ok := l.state[key]
	if !ok {
		l.state[key] = &keyState{last: now}
		return 0, true
	}
	if now.Sub(st.last) < l.period {
		st.suppressed++
		return 0, false
	}
	n := st.suppressed
	st.last = now
	st.suppressed = 0
	return n, true
}
