// Copyright Lightstep Authors
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

package channel

import (
	"container/heap"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"
)

// retryEntry is a batch waiting for its next attempt. attempts counts the
// attempts already made.
type retryEntry struct {
	batch    *transmitter.Batch
	attempts int
	due      time.Time
	seq      uint64
	index    int
}

// retryHeap orders entries by due time.
type retryHeap []*retryEntry

func (h retryHeap) Len() int { return len(h) }

func (h retryHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h retryHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *retryHeap) Push(x any) {
	e := x.(*retryEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *retryHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// retryScheduler holds batches pending retry. It is owned by the worker.
type retryScheduler struct {
	entries retryHeap
	max     int
	seq     uint64
	items   int
}

func newRetryScheduler(max int) *retryScheduler {
	return &retryScheduler{max: max}
}

// schedule adds a batch due at due. When the scheduler is over capacity
// the oldest entry is evicted and returned.
func (s *retryScheduler) schedule(b *transmitter.Batch, attempts int, due time.Time) *retryEntry {
	s.seq++
	heap.Push(&s.entries, &retryEntry{batch: b, attempts: attempts, due: due, seq: s.seq})
	s.items += b.Len()
	if len(s.entries) <= s.max {
		return nil
	}
	oldest := s.entries[0]
	for _, e := range s.entries[1:] {
		if e.seq < oldest.seq {
			oldest = e
		}
	}
	heap.Remove(&s.entries, oldest.index)
	s.items -= oldest.batch.Len()
	return oldest
}

// popDue removes and returns the earliest entry if it is due at now.
func (s *retryScheduler) popDue(now time.Time) *retryEntry {
	if len(s.entries) == 0 || s.entries[0].due.After(now) {
		return nil
	}
	e := heap.Pop(&s.entries).(*retryEntry)
	s.items -= e.batch.Len()
	return e
}

// next returns the earliest due time.
func (s *retryScheduler) next() (time.Time, bool) {
	if len(s.entries) == 0 {
		return time.Time{}, false
	}
	return s.entries[0].due, true
}

func (s *retryScheduler) len() int {
	return len(s.entries)
}

// discard empties the scheduler and returns the number of items it held.
func (s *retryScheduler) discard() int {
	n := s.items
	s.entries = nil
	s.items = 0
	return n
}

// backoffPolicy computes retry delays.
type backoffPolicy struct {
	base    time.Duration
	ceiling time.Duration
	jitter  float64
	rand    func() float64
}

func newBackoffPolicy(cfg Config) backoffPolicy {
	return backoffPolicy{
		base:    cfg.RetryBaseDelay,
		ceiling: cfg.RetryMaxDelay,
		jitter:  cfg.RetryJitter,
		rand:    rand.Float64,
	}
}

// delay returns the wait before the n-th retry, n >= 1.
func (p backoffPolicy) delay(n int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.base
	b.MaxInterval = p.ceiling
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	d := p.base
	for i := 0; i < n; i++ {
		d = b.NextBackOff()
	}
	if p.jitter > 0 {
		d += time.Duration(float64(d) * p.jitter * p.rand())
	}
	return min(d, p.ceiling)
}
