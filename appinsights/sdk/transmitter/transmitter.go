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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
)

const (
	// DefaultEndpoint is the public ingestion endpoint.
	DefaultEndpoint = "https://dc.services.visualstudio.com/v2/track"

	// DefaultKeyHeader carries the instrumentation key on every request.
	DefaultKeyHeader = "X-Instrumentation-Key"

	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 1 << 20
)

var (
	// ErrUnexpectedStatus is reported with Permanent outcomes caused by
	// a status code outside the retryable set.
	ErrUnexpectedStatus = errors.New("unexpected response status")

	// ErrMalformedResponse is reported when a partial success body
	// cannot be decoded.
	ErrMalformedResponse = errors.New("malformed transmission response")

	// ErrResponseTooLarge is reported when a response body exceeds
	// Config.MaxResponseBytes.
	ErrResponseTooLarge = errors.New("response body too large")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Config configures a Transmitter.
type Config struct {
	Endpoint           string
	InstrumentationKey string

	// KeyHeader names the header carrying InstrumentationKey. Defaults
	// to DefaultKeyHeader.
	KeyHeader string

	// Headers are added to every request.
	Headers map[string]string

	// Compression gzips request bodies when true.
	Compression bool

	// Timeout bounds one HTTP exchange. Ignored when Client is set.
	Timeout time.Duration

	// MaxResponseBytes caps how much of a response body is read.
	MaxResponseBytes int64

	Client *http.Client
	Logger *zap.Logger
}

// Transmitter posts batches to the ingestion endpoint and classifies the
// response. It is safe for concurrent use.
type Transmitter struct {
	endpoint  string
	keyHeader string
	ikey      string
	headers   map[string]string
	gzip      bool
	maxBody   int64
	client    *http.Client
	logger    *zap.Logger
	now       func() time.Time
}

// New returns a Transmitter for cfg.
func New(cfg Config) (*Transmitter, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint %q: scheme must be http or https", cfg.Endpoint)
	}
	if cfg.KeyHeader == "" {
		cfg.KeyHeader = DefaultKeyHeader
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = defaultMaxResponseBytes
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Transmitter{
		endpoint:  u.String(),
		keyHeader: cfg.KeyHeader,
		ikey:      cfg.InstrumentationKey,
		headers:   cfg.Headers,
		gzip:      cfg.Compression,
		maxBody:   cfg.MaxResponseBytes,
		client:    client,
		logger:    logger.Named("transmitter"),
		now:       time.Now,
	}, nil
}

// Transmit sends b in a single request and reports what the endpoint
// made of it. Transport failures are reported as Retryable.
func (t *Transmitter) Transmit(ctx context.Context, b *Batch) Outcome {
	body, err := t.encode(b)
	if err != nil {
		return Outcome{Kind: Permanent, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: Permanent, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if t.gzip {
		req.Header.Set("Content-Encoding", "gzip")
	}
	if t.ikey != "" {
		req.Header.Set(t.keyHeader, t.ikey)
	}
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("transmission failed", zap.Int("items", b.Len()), zap.Error(err))
		return Outcome{Kind: Retryable, Retry: b, Bytes: len(body), Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBody+1))
	if err == nil && int64(len(payload)) > t.maxBody {
		payload = payload[:t.maxBody]
		err = ErrResponseTooLarge
	}
	if err != nil {
		t.logger.Debug("reading response failed", zap.Int("status", resp.StatusCode), zap.Error(err))
	}
	var out Outcome
	if err != nil && resp.StatusCode == http.StatusPartialContent {
		// Per-item results are unknown, so the whole batch goes again.
		out = Outcome{Kind: Retryable, Retry: b, RetryAfter: t.retryAfter(resp), Err: fmt.Errorf("read partial content: %w", err)}
	} else {
		out = t.classify(b, resp, payload)
	}
	out.StatusCode = resp.StatusCode
	out.Bytes = len(body)

	t.logger.Debug("transmitted batch",
		zap.Int("status", resp.StatusCode),
		zap.Stringer("outcome", out.Kind),
		zap.Int("items", b.Len()),
		zap.Int("accepted", out.Accepted),
		zap.Int("retry", out.Retry.Len()),
		zap.Int("rejected", len(out.Rejected)),
	)
	return out
}

func (t *Transmitter) encode(b *Batch) ([]byte, error) {
	body := b.Body()
	if !t.gzip {
		return body, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("compress body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress body: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *Transmitter) classify(b *Batch, resp *http.Response, payload []byte) Outcome {
	code := resp.StatusCode
	switch {
	case code == http.StatusPartialContent:
		var tr contracts.Transmission
		if err := json.Unmarshal(payload, &tr); err != nil {
			return Outcome{Kind: Permanent, Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
		}
		if len(tr.Errors) == 0 && tr.ItemsAccepted >= tr.ItemsReceived {
			return Outcome{Kind: Success, Accepted: b.Len()}
		}
		out := split(b, &tr)
		out.RetryAfter = t.retryAfter(resp)
		return out

	case code >= 200 && code < 300:
		return Outcome{Kind: Success, Accepted: b.Len()}

	case code == http.StatusRequestTimeout,
		code == http.StatusTooManyRequests,
		code == http.StatusInternalServerError:
		var tr contracts.Transmission
		if len(payload) > 0 && json.Unmarshal(payload, &tr) == nil && len(tr.Errors) > 0 {
			out := split(b, &tr)
			out.RetryAfter = t.retryAfter(resp)
			return out
		}
		return Outcome{Kind: Retryable, Retry: b, RetryAfter: t.retryAfter(resp)}

	case code == http.StatusBadGateway,
		code == http.StatusServiceUnavailable,
		code == http.StatusGatewayTimeout:
		return Outcome{Kind: Retryable, Retry: b, RetryAfter: t.retryAfter(resp)}
	}
	return Outcome{
		Kind: Permanent,
		Err:  fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, code, strings.TrimSpace(string(payload))),
	}
}

func (t *Transmitter) retryAfter(resp *http.Response) time.Time {
	return parseRetryAfter(resp.Header.Get("Retry-After"), t.now())
}

// parseRetryAfter accepts delta-seconds or an HTTP-date.
func parseRetryAfter(v string, now time.Time) time.Time {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return time.Time{}
		}
		return now.Add(time.Duration(secs) * time.Second)
	}
	if at, err := http.ParseTime(v); err == nil {
		return at
	}
	return time.Time{}
}

// split applies a per-item verdict to b. Items without an error entry
// were accepted. Errors with a retryable status go into a new batch in
// their original order; the rest are rejected.
func split(b *Batch, tr *contracts.Transmission) Outcome {
	verdicts := make(map[int]contracts.TransmissionItem, len(tr.Errors))
	for _, e := range tr.Errors {
		if e.Index < 0 || e.Index >= len(b.Items) {
			continue
		}
		verdicts[e.Index] = e
	}

	out := Outcome{Kind: Partial}
	var retry []Item
	for i, it := range b.Items {
		e, failed := verdicts[i]
		switch {
		case !failed:
			out.Accepted++
		case retryableItem(e.StatusCode):
			retry = append(retry, it)
		default:
			out.Rejected = append(out.Rejected, Rejection{
				Index:      i,
				StatusCode: e.StatusCode,
				Message:    e.Message,
			})
		}
	}
	if len(retry) > 0 {
		out.Retry = NewBatch(retry)
	}
	if out.Accepted == len(b.Items) {
		out.Kind = Success
	}
	return out
}

func retryableItem(code int) bool {
	switch code {
	case http.StatusPartialContent,
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
