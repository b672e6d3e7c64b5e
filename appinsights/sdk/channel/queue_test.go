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
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
)

func testEnvelope(name string) *contracts.Envelope {
	return &contracts.Envelope{Name: name, Time: "2026-01-01T00:00:00.000Z"}
}

func names(seq func(func(*contracts.Envelope) bool)) []string {
	var out []string
	for env := range seq {
		out = append(out, env.Name)
	}
	return out
}

func TestQueueFIFO(t *testing.T) {
	q := newQueue(4)
	for _, n := range []string{"a", "b", "c"} {
		require.True(t, q.enqueue(testEnvelope(n)))
	}
	require.Equal(t, []string{"a", "b"}, names(q.dequeueBatch(2)))
	require.Equal(t, []string{"c"}, names(q.dequeueBatch(2)))
	require.Empty(t, names(q.dequeueBatch(2)))
}

func TestQueueFull(t *testing.T) {
	q := newQueue(2)
	require.True(t, q.enqueue(testEnvelope("a")))
	require.True(t, q.enqueue(testEnvelope("b")))
	require.False(t, q.enqueue(testEnvelope("c")))
	require.Equal(t, 2, q.len())
}

func TestQueueNotify(t *testing.T) {
	q := newQueue(8)
	q.enqueue(testEnvelope("a"))
	q.enqueue(testEnvelope("b"))
	<-q.notify
	select {
	case <-q.notify:
		t.Fatal("notify should coalesce")
	default:
	}
}

func TestDequeueBatchStopsEarly(t *testing.T) {
	q := newQueue(4)
	for _, n := range []string{"a", "b", "c"} {
		q.enqueue(testEnvelope(n))
	}
	for env := range q.dequeueBatch(3) {
		require.Equal(t, "a", env.Name)
		break
	}
	require.Equal(t, []string{"b", "c"}, names(q.dequeueBatch(10)))
}

func TestQueuePerProducerOrder(t *testing.T) {
	const producers, perProducer = 4, 250
	q := newQueue(producers * perProducer)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				require.True(t, q.enqueue(testEnvelope(fmt.Sprintf("%d/%d", p, i))))
			}
		}(p)
	}
	wg.Wait()

	next := make([]int, producers)
	for env := range q.dequeueBatch(producers * perProducer) {
		var p, i int
		_, err := fmt.Sscanf(env.Name, "%d/%d", &p, &i)
		require.NoError(t, err)
		require.Equal(t, next[p], i, "producer %d out of order", p)
		next[p]++
	}
	for p := range next {
		require.Equal(t, perProducer, next[p])
	}
}
