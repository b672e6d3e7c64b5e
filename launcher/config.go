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

package launcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"

	"github.com/lightstep/appinsights-go/appinsights/instrumentation/host"
	"github.com/lightstep/appinsights-go/appinsights/instrumentation/hostprocess"
	"github.com/lightstep/appinsights-go/appinsights/sdk/channel"
	"github.com/lightstep/appinsights-go/appinsights/sdk/client"
	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
	"github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"
	"github.com/lightstep/appinsights-go/appinsights/sdk/transmitter"
	"github.com/lightstep/appinsights-go/pipelines"
)

type Option func(*Config)

// WithInstrumentationKey configures the key of the receiving resource.
func WithInstrumentationKey(key string) Option {
	return func(c *Config) {
		c.InstrumentationKey = key
	}
}

// WithEndpoint configures the ingestion endpoint. An empty endpoint
// disables reporting.
func WithEndpoint(url string) Option {
	return func(c *Config) {
		c.Endpoint = url
	}
}

// WithRoleName configures the "ai.cloud.role" context tag
func WithRoleName(name string) Option {
	return func(c *Config) {
		c.RoleName = name
	}
}

// WithApplicationVersion configures the "ai.application.ver" context tag
func WithApplicationVersion(version string) Option {
	return func(c *Config) {
		c.ApplicationVersion = version
	}
}

// WithHeaders configures HTTP headers added to every request
func WithHeaders(headers map[string]string) Option {
	return func(c *Config) {
		if c.Headers == nil {
			c.Headers = make(map[string]string)
		}
		for k, v := range headers {
			c.Headers[k] = v
		}
	}
}

// WithTags configures context tags applied to every envelope
func WithTags(tags map[string]string) Option {
	return func(c *Config) {
		if c.Tags == nil {
			c.Tags = make(map[string]string)
		}
		for k, v := range tags {
			c.Tags[k] = v
		}
	}
}

// WithLogLevel configures the logging level of the SDK
func WithLogLevel(loglevel string) Option {
	return func(c *Config) {
		c.LogLevel = loglevel
	}
}

// WithCompression configures gzip request bodies
func WithCompression(enabled bool) Option {
	return func(c *Config) {
		c.Compression = enabled
	}
}

// WithFlushInterval configures how long an item may wait before its
// batch is sent.
func WithFlushInterval(d time.Duration) Option {
	return func(c *Config) {
		c.FlushInterval = fmt.Sprint(d)
	}
}

// WithRetryDelays configures the first retry delay and the retry delay
// ceiling.
func WithRetryDelays(base, max time.Duration) Option {
	return func(c *Config) {
		c.RetryBaseDelay = fmt.Sprint(base)
		c.RetryMaxDelay = fmt.Sprint(max)
	}
}

// WithDrainTimeout configures how long Shutdown waits for pending items.
func WithDrainTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.DrainTimeout = fmt.Sprint(d)
	}
}

func WithQueueCapacity(n int) Option {
	return func(c *Config) {
		c.QueueCapacity = n
	}
}

func WithMaxBatchSize(n int) Option {
	return func(c *Config) {
		c.MaxBatchSize = n
	}
}

func WithMaxRetryAttempts(n int) Option {
	return func(c *Config) {
		c.MaxRetryAttempts = n
	}
}

func WithMaxInFlight(n int) Option {
	return func(c *Config) {
		c.MaxInFlight = n
	}
}

// WithHostContext configures whether host and device tags are read
// from the operating system
func WithHostContext(enabled bool) Option {
	return func(c *Config) {
		c.HostContextEnabled = enabled
	}
}

// WithPerformanceCounters configures periodic process and host resource
// usage metrics. A non-positive interval keeps the configured one.
func WithPerformanceCounters(enabled bool, interval time.Duration) Option {
	return func(c *Config) {
		c.PerformanceCountersEnabled = enabled
		if interval > 0 {
			c.PerformanceCountersInterval = fmt.Sprint(interval)
		}
	}
}

// WithSampling sends only percent of envelopes, keeping operations whole.
func WithSampling(percent int) Option {
	return func(c *Config) {
		c.SamplingEnabled = true
		c.SamplingPercent = percent
	}
}

// WithSynchronous delivers every envelope before Track returns.
func WithSynchronous(sync bool) Option {
	return func(c *Config) {
		c.Synchronous = sync
	}
}

type Logger interface {
	Fatalf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithZapLogger configures the logger used inside the SDK. By default a
// production logger at LogLevel is built.
func WithZapLogger(logger *zap.Logger) Option {
	return func(c *Config) {
		c.zapLogger = logger
	}
}

// DefaultLogger writes through a zap SugaredLogger. The zero value uses
// the global zap logger.
type DefaultLogger struct {
	sugar *zap.SugaredLogger
}

func (l *DefaultLogger) s() *zap.SugaredLogger {
	if l.sugar == nil {
		return zap.S()
	}
	return l.sugar
}

func (l *DefaultLogger) Fatalf(format string, v ...interface{}) {
	l.s().Fatalf(format, v...)
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	l.s().Debugf(format, v...)
}

const (
	// Note: these values should match the defaults used in `env` tags for Config fields.

	DefaultEndpoint = transmitter.DefaultEndpoint
)

type Config struct {
	InstrumentationKey string            `env:"APPINSIGHTS_INSTRUMENTATIONKEY"`
	Endpoint           string            `env:"APPINSIGHTS_ENDPOINT,default=https://dc.services.visualstudio.com/v2/track"`
	RoleName           string            `env:"APPINSIGHTS_ROLE_NAME"`
	ApplicationVersion string            `env:"APPINSIGHTS_APPLICATION_VERSION"`
	Tags               map[string]string `env:"APPINSIGHTS_TAGS"`
	Headers            map[string]string `env:"APPINSIGHTS_HEADERS"`
	Compression        bool              `env:"APPINSIGHTS_COMPRESSION,default=false"`
	FlushInterval      string            `env:"APPINSIGHTS_FLUSH_INTERVAL,default=10s"`
	QueueCapacity      int               `env:"APPINSIGHTS_QUEUE_CAPACITY,default=8192"`
	MaxBatchSize       int               `env:"APPINSIGHTS_MAX_BATCH_SIZE,default=1024"`
	MaxRetryAttempts   int               `env:"APPINSIGHTS_MAX_RETRY_ATTEMPTS,default=5"`
	RetryBaseDelay     string            `env:"APPINSIGHTS_RETRY_BASE_DELAY,default=1s"`
	RetryMaxDelay      string            `env:"APPINSIGHTS_RETRY_MAX_DELAY,default=1m"`
	MaxInFlight        int               `env:"APPINSIGHTS_MAX_IN_FLIGHT,default=4"`
	DrainTimeout       string            `env:"APPINSIGHTS_DRAIN_TIMEOUT,default=10s"`
	HostContextEnabled bool              `env:"APPINSIGHTS_HOST_CONTEXT_ENABLED,default=true"`
	SamplingEnabled    bool              `env:"APPINSIGHTS_SAMPLING_ENABLED,default=false"`
	SamplingPercent    int               `env:"APPINSIGHTS_SAMPLING_PERCENT,default=100"`
	Synchronous        bool              `env:"APPINSIGHTS_SYNCHRONOUS,default=false"`
	LogLevel           string            `env:"APPINSIGHTS_LOG_LEVEL,default=info"`

	PerformanceCountersEnabled  bool   `env:"APPINSIGHTS_PERFORMANCE_COUNTERS_ENABLED,default=false"`
	PerformanceCountersInterval string `env:"APPINSIGHTS_PERFORMANCE_COUNTERS_INTERVAL,default=1m"`

	logger    Logger
	zapLogger *zap.Logger
}

var errKeyMissing = errors.New("invalid configuration: instrumentation key missing")

func checkEndpointDefault(value, defValue string) error {
	if value == "" {
		// Reporting is disabled.
		return nil
	}
	if value == defValue {
		return fmt.Errorf("%w, must be set when reporting to %s. Set APPINSIGHTS_INSTRUMENTATIONKEY env var or configure WithInstrumentationKey in code", errKeyMissing, value)
	}
	return nil
}

// durations parses the duration settings of c, in the order flush
// interval, retry base delay, retry max delay, drain timeout,
// performance counters interval.
func durations(c Config) ([5]time.Duration, error) {
	var out [5]time.Duration
	for i, s := range []struct{ name, value string }{
		{"flush interval", c.FlushInterval},
		{"retry base delay", c.RetryBaseDelay},
		{"retry max delay", c.RetryMaxDelay},
		{"drain timeout", c.DrainTimeout},
		{"performance counters interval", c.PerformanceCountersInterval},
	} {
		d, err := time.ParseDuration(s.value)
		if err != nil {
			return out, fmt.Errorf("invalid configuration: invalid %s %q: %v", s.name, s.value, err)
		}
		if d <= 0 {
			return out, fmt.Errorf("invalid configuration: invalid %s %q: must be positive", s.name, s.value)
		}
		out[i] = d
	}
	return out, nil
}

func validateConfiguration(c Config) error {
	if c.InstrumentationKey == "" {
		if err := checkEndpointDefault(c.Endpoint, DefaultEndpoint); err != nil {
			return err
		}
	} else if _, err := uuid.Parse(c.InstrumentationKey); err != nil {
		return fmt.Errorf("invalid configuration: instrumentation key must be a GUID. Ensure key is set correctly")
	}
	_, err := durations(c)
	return err
}

func newConfig(opts ...Option) Config {
	var c Config
	envError := envconfig.Process(context.Background(), &c)
	c.logger = &DefaultLogger{}
	var defaultOpts []Option

	for _, opt := range append(defaultOpts, opts...) {
		opt(&c)
	}

	if envError != nil {
		c.logger.Fatalf("environment error: %v", envError)
	}

	return c
}

func newZapLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return zap.NewNop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	return cfg.Build()
}

// newContext assembles the context tags. Host tags come first, then the
// role and version settings, then explicit tags.
func newContext(c Config) *telemetry.Context {
	tc := telemetry.NewContext(c.InstrumentationKey)
	if c.HostContextEnabled {
		tags, err := host.Tags(context.Background(), host.WithHostID(true))
		if err != nil {
			c.logger.Debugf("unable to read host context. Set APPINSIGHTS_TAGS or configure WithTags in code: %v", err)
		}
		tc.Tags = tc.Tags.Merge(tags)
	}
	if c.RoleName != "" {
		tc.Tags[telemetry.CloudRole] = c.RoleName
	}
	if c.ApplicationVersion != "" {
		tc.Tags[telemetry.ApplicationVersion] = c.ApplicationVersion
	}
	tc.Tags = tc.Tags.Merge(c.Tags)
	return tc
}

func (c Config) pipelineConfig() pipelines.PipelineConfig {
	// Validation has already reported malformed durations; zero values
	// fall back to the channel defaults.
	d, _ := durations(c)
	return pipelines.PipelineConfig{
		Endpoint:           c.Endpoint,
		InstrumentationKey: c.InstrumentationKey,
		Headers:            c.Headers,
		Compression:        c.Compression,
		Channel: channel.Config{
			QueueCapacity:    c.QueueCapacity,
			MaxBatchSize:     c.MaxBatchSize,
			FlushInterval:    d[0],
			MaxRetryAttempts: c.MaxRetryAttempts,
			RetryBaseDelay:   d[1],
			RetryMaxDelay:    d[2],
			RetryJitter:      channel.DefaultRetryJitter,
			MaxInFlight:      c.MaxInFlight,
			DrainTimeout:     d[3],
		},
		SamplingEnabled: c.SamplingEnabled,
		SamplingPercent: c.SamplingPercent,
		Logger:          c.zapLogger,
	}
}

type Launcher struct {
	config        Config
	client        *client.TelemetryClient
	shutdownFuncs []func() error
}

func setupChannel(c Config) (channel.TelemetryChannel, func() error, error) {
	if c.Endpoint == "" {
		c.logger.Debugf("telemetry is disabled by configuration: no endpoint set")
		return nil, nil, nil
	}
	setup := pipelines.NewChannelPipeline
	if c.Synchronous {
		setup = pipelines.NewSyncPipeline
	}
	ch, err := setup(c.pipelineConfig())
	if err != nil {
		return nil, nil, err
	}
	shutdown := func() error {
		d, _ := durations(c)
		timeout := d[3]
		if timeout <= 0 {
			timeout = channel.DefaultDrainTimeout
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := ch.Stop(ctx)
		return err
	}
	return ch, shutdown, nil
}

func setupPerformanceCounters(c Config, tracker hostprocess.Tracker) (func() error, error) {
	d, _ := durations(c)
	col, err := hostprocess.Start(tracker,
		hostprocess.WithInterval(d[4]),
		hostprocess.WithLogger(c.zapLogger),
	)
	if err != nil {
		return nil, err
	}
	return func() error {
		col.Stop()
		return nil
	}, nil
}

// ConfigureTelemetry builds a client from the environment and opts. A
// configuration error is reported through the Logger; the returned
// launcher then holds a disabled client.
func ConfigureTelemetry(opts ...Option) Launcher {
	c := newConfig(opts...)

	if c.zapLogger == nil {
		zl, err := newZapLogger(c.LogLevel)
		if err != nil {
			c.logger.Fatalf("configuration error: %v", err)
		}
		c.zapLogger = zl
	}
	if dl, ok := c.logger.(*DefaultLogger); ok && dl.sugar == nil {
		dl.sugar = c.zapLogger.Sugar()
	}

	if c.LogLevel == "debug" {
		c.logger.Debugf("debug logging enabled")
		c.logger.Debugf("configuration")
		s, _ := jsoniter.MarshalIndent(c, "", "  ")
		c.logger.Debugf("%s", s)
	}

	ls := Launcher{
		config: c,
	}

	err := validateConfiguration(c)
	if err != nil {
		c.logger.Fatalf("configuration error: %v", err)
	}

	ch, shutdown, err := setupChannel(c)
	if err != nil {
		c.logger.Fatalf("setup error: %v", err)
	}
	if shutdown != nil {
		ls.shutdownFuncs = append(ls.shutdownFuncs, shutdown)
	}

	enabled := ch != nil
	if !enabled {
		ch = discard{}
	}
	ls.client = client.New(c.InstrumentationKey, ch,
		client.WithContext(newContext(c)),
		client.WithLogger(c.zapLogger),
	)
	ls.client.SetEnabled(enabled)

	if enabled && c.PerformanceCountersEnabled {
		if stop, err := setupPerformanceCounters(c, ls.client); err != nil {
			c.logger.Fatalf("setup error: %v", err)
		} else {
			// Stop sampling before the channel drains.
			ls.shutdownFuncs = append([]func() error{stop}, ls.shutdownFuncs...)
		}
	}
	return ls
}

// Client returns the client configured by ConfigureTelemetry.
func (ls Launcher) Client() *client.TelemetryClient {
	return ls.client
}

func (ls Launcher) Shutdown() {
	for _, shutdown := range ls.shutdownFuncs {
		if err := shutdown(); err != nil {
			ls.config.logger.Debugf("failed to stop channel: %v", err)
		}
	}
	_ = ls.config.zapLogger.Sync()
}

// discard stands in for a channel when reporting is disabled.
type discard struct{}

func (discard) Enqueue(*contracts.Envelope) error { return nil }
func (discard) Start() error                      { return nil }
func (discard) Flush()                            {}
func (discard) Stats() channel.Stats              { return channel.Stats{} }
func (discard) State() channel.State              { return channel.Halted }

func (discard) Stop(context.Context) (channel.DrainReport, error) {
	return channel.DrainReport{}, nil
}

func (discard) Terminate(context.Context) (channel.DrainReport, error) {
	return channel.DrainReport{}, nil
}
