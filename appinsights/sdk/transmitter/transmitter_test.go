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

package transmitter

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

type response struct {
	status  int
	body    string
	headers map[string]string
}

type recorded struct {
	header http.Header
	body   []byte
}

func newServer(t *testing.T, resp response) (*httptest.Server, <-chan recorded) {
	t.Helper()
	reqs := make(chan recorded, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rd io.Reader = r.Body
		if r.Header.Get("Content-Encoding") == "gzip" {
			zr, err := gzip.NewReader(r.Body)
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			rd = zr
		}
		body, _ := io.ReadAll(rd)
		reqs <- recorded{header: r.Header.Clone(), body: body}
		for k, v := range resp.headers {
			w.Header().Set(k, v)
		}
		w.WriteHeader(resp.status)
		_, _ = io.WriteString(w, resp.body)
	}))
	t.Cleanup(srv.Close)
	return srv, reqs
}

func newTransmitter(t *testing.T, cfg Config) *Transmitter {
	t.Helper()
	tr, err := New(cfg)
	require.NoError(t, err)
	tr.now = func() time.Time { return fixedNow }
	return tr
}

func items(n int) *Batch {
	var out []Item
	for i := 0; i < n; i++ {
		out = append(out, Item(fmt.Sprintf(`{"name":"item%d"}`, i)))
	}
	return NewBatch(out)
}

func diffOutcome(t *testing.T, want, got Outcome) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateErrors(), cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("outcome mismatch (-want +got):\n%s", diff)
	}
}

func TestBatchBody(t *testing.T) {
	b := items(2)
	require.Equal(t, `[{"name":"item0"},{"name":"item1"}]`, string(b.Body()))
	require.Equal(t, 32, b.Bytes)
	require.Equal(t, "[]", string(NewBatch(nil).Body()))
	require.Equal(t, 0, (*Batch)(nil).Len())
}

func TestSuccess(t *testing.T) {
	srv, reqs := newServer(t, response{status: http.StatusOK})
	tr := newTransmitter(t, Config{
		Endpoint:           srv.URL,
		InstrumentationKey: "ikey",
		Headers:            map[string]string{"X-Extra": "yes"},
	})

	b := items(3)
	got := tr.Transmit(context.Background(), b)
	diffOutcome(t, Outcome{
		Kind:       Success,
		StatusCode: http.StatusOK,
		Accepted:   3,
		Bytes:      len(b.Body()),
	}, got)

	req := <-reqs
	require.Equal(t, "application/json", req.header.Get("Content-Type"))
	require.Equal(t, "ikey", req.header.Get(DefaultKeyHeader))
	require.Equal(t, "yes", req.header.Get("X-Extra"))
	require.JSONEq(t, string(b.Body()), string(req.body))
}

func TestCompression(t *testing.T) {
	srv, reqs := newServer(t, response{status: http.StatusOK})
	tr := newTransmitter(t, Config{Endpoint: srv.URL, Compression: true})

	b := items(4)
	got := tr.Transmit(context.Background(), b)
	require.Equal(t, Success, got.Kind)

	req := <-reqs
	require.Equal(t, "gzip", req.header.Get("Content-Encoding"))
	require.JSONEq(t, string(b.Body()), string(req.body))
}

func TestPartialContent(t *testing.T) {
	for _, tc := range []struct {
		name string
		body string
		want func(b *Batch) Outcome
	}{
		{
			name: "two of five retryable",
			body: `{"itemsReceived":5,"itemsAccepted":3,"errors":[
				{"index":2,"statusCode":500,"message":"Internal"},
				{"index":4,"statusCode":408,"message":"Timeout"}]}`,
			want: func(b *Batch) Outcome {
				return Outcome{
					Kind:     Partial,
					Accepted: 3,
					Retry:    NewBatch([]Item{b.Items[2], b.Items[4]}),
				}
			},
		},
		{
			name: "retryable and permanent",
			body: `{"itemsReceived":5,"itemsAccepted":3,"errors":[
				{"index":2,"statusCode":400,"message":"Bad"},
				{"index":4,"statusCode":408,"message":"Timeout"}]}`,
			want: func(b *Batch) Outcome {
				return Outcome{
					Kind:     Partial,
					Accepted: 3,
					Retry:    NewBatch([]Item{b.Items[4]}),
					Rejected: []Rejection{{Index: 2, StatusCode: 400, Message: "Bad"}},
				}
			},
		},
		{
			name: "nothing to resend",
			body: `{"itemsReceived":5,"itemsAccepted":4,"errors":[
				{"index":0,"statusCode":400,"message":"Bad"}]}`,
			want: func(b *Batch) Outcome {
				return Outcome{
					Kind:     Partial,
					Accepted: 4,
					Rejected: []Rejection{{Index: 0, StatusCode: 400, Message: "Bad"}},
				}
			},
		},
		{
			name: "all accepted",
			body: `{"itemsReceived":5,"itemsAccepted":5,"errors":[]}`,
			want: func(b *Batch) Outcome {
				return Outcome{Kind: Success, Accepted: 5}
			},
		},
		{
			name: "malformed",
			body: `not json`,
			want: func(b *Batch) Outcome {
				return Outcome{Kind: Permanent, Err: ErrMalformedResponse}
			},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := newServer(t, response{status: http.StatusPartialContent, body: tc.body})
			tr := newTransmitter(t, Config{Endpoint: srv.URL})

			b := items(5)
			want := tc.want(b)
			want.StatusCode = http.StatusPartialContent
			want.Bytes = len(b.Body())
			diffOutcome(t, want, tr.Transmit(context.Background(), b))
		})
	}
}

func TestPartialContentUnreadable(t *testing.T) {
	full := `{"itemsReceived":2,"itemsAccepted":1,"errors":[{"index":1,"statusCode":400,"message":"Bad"}]}`

	t.Run("over the size cap", func(t *testing.T) {
		srv, _ := newServer(t, response{status: http.StatusPartialContent, body: full})
		tr := newTransmitter(t, Config{Endpoint: srv.URL, MaxResponseBytes: 16})

		b := items(2)
		got := tr.Transmit(context.Background(), b)
		require.Equal(t, Retryable, got.Kind)
		require.Same(t, b, got.Retry)
		require.ErrorIs(t, got.Err, ErrResponseTooLarge)
		require.Equal(t, http.StatusPartialContent, got.StatusCode)
	})

	t.Run("connection dropped", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.ReadAll(r.Body)
			w.Header().Set("Content-Length", "1000")
			w.WriteHeader(http.StatusPartialContent)
			_, _ = io.WriteString(w, full[:20])
			w.(http.Flusher).Flush()
			panic(http.ErrAbortHandler)
		}))
		t.Cleanup(srv.Close)
		tr := newTransmitter(t, Config{Endpoint: srv.URL})

		b := items(2)
		got := tr.Transmit(context.Background(), b)
		require.Equal(t, Retryable, got.Kind)
		require.Same(t, b, got.Retry)
		require.Error(t, got.Err)
		require.NotErrorIs(t, got.Err, ErrMalformedResponse)
		require.Equal(t, http.StatusPartialContent, got.StatusCode)
	})
}

func TestRetryableStatuses(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		t.Run(http.StatusText(code), func(t *testing.T) {
			srv, _ := newServer(t, response{status: code})
			tr := newTransmitter(t, Config{Endpoint: srv.URL})

			b := items(2)
			got := tr.Transmit(context.Background(), b)
			require.Equal(t, Retryable, got.Kind)
			require.Same(t, b, got.Retry)
			require.Equal(t, code, got.StatusCode)
			require.True(t, got.RetryAfter.IsZero())
		})
	}
}

func TestThrottledWithBody(t *testing.T) {
	srv, _ := newServer(t, response{
		status:  http.StatusTooManyRequests,
		headers: map[string]string{"Retry-After": "5"},
		body: `{"itemsReceived":3,"itemsAccepted":1,"errors":[
			{"index":0,"statusCode":429,"message":"Throttled"},
			{"index":2,"statusCode":429,"message":"Throttled"}]}`,
	})
	tr := newTransmitter(t, Config{Endpoint: srv.URL})

	b := items(3)
	diffOutcome(t, Outcome{
		Kind:       Partial,
		StatusCode: http.StatusTooManyRequests,
		Accepted:   1,
		Retry:      NewBatch([]Item{b.Items[0], b.Items[2]}),
		RetryAfter: fixedNow.Add(5 * time.Second),
		Bytes:      len(b.Body()),
	}, tr.Transmit(context.Background(), b))
}

func TestServiceUnavailableRetryAfterDate(t *testing.T) {
	at := fixedNow.Add(time.Minute)
	srv, _ := newServer(t, response{
		status:  http.StatusServiceUnavailable,
		headers: map[string]string{"Retry-After": at.Format(http.TimeFormat)},
	})
	tr := newTransmitter(t, Config{Endpoint: srv.URL})

	got := tr.Transmit(context.Background(), items(1))
	require.Equal(t, Retryable, got.Kind)
	require.True(t, at.Equal(got.RetryAfter), "got %v", got.RetryAfter)
}

func TestPermanent(t *testing.T) {
	for _, code := range []int{400, 401, 403, 404, 413} {
		srv, _ := newServer(t, response{status: code, body: "nope"})
		tr := newTransmitter(t, Config{Endpoint: srv.URL})

		got := tr.Transmit(context.Background(), items(1))
		require.Equal(t, Permanent, got.Kind, "status %d", code)
		require.ErrorIs(t, got.Err, ErrUnexpectedStatus)
		require.Nil(t, got.Retry)
	}
}

func TestConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	tr := newTransmitter(t, Config{Endpoint: endpoint})
	b := items(2)
	got := tr.Transmit(context.Background(), b)
	require.Equal(t, Retryable, got.Kind)
	require.Same(t, b, got.Retry)
	require.Error(t, got.Err)
	require.Zero(t, got.StatusCode)
}

func TestNewValidatesEndpoint(t *testing.T) {
	_, err := New(Config{Endpoint: "ftp://example.com"})
	require.Error(t, err)

	tr, err := New(Config{})
	require.NoError(t, err)
	require.Equal(t, DefaultEndpoint, tr.endpoint)
}

func TestParseRetryAfter(t *testing.T) {
	for _, tc := range []struct {
		in   string
		want time.Time
	}{
		{"", time.Time{}},
		{"0", fixedNow},
		{"120", fixedNow.Add(2 * time.Minute)},
		{"-3", time.Time{}},
		{"soon", time.Time{}},
		{"Wed, 04 Mar 2026 05:07:07 GMT", fixedNow.Add(time.Minute)},
	} {
		got := parseRetryAfter(tc.in, fixedNow)
		require.True(t, tc.want.Equal(got), "%q: got %v want %v", tc.in, got, tc.want)
	}
}
