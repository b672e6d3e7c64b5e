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

// Package hostprocess periodically samples process and host resource
// usage and tracks each reading as metric telemetry.
package hostprocess // import "github.com/lightstep/appinsights-go/appinsights/instrumentation/hostprocess"

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"
)

// DefaultInterval is the sampling period used unless WithInterval is set.
const DefaultInterval = time.Minute

// processStartTime should be initialized before the first GC, ideally.
var processStartTime = time.Now()

// Tracker receives the readings. *client.TelemetryClient satisfies it.
type Tracker interface {
	Track(t telemetry.Telemetry) error
}

// sources reads the raw statistics. Fields are replaced in tests.
type sources struct {
	hostTimes     func(context.Context) (*cpu.TimesStat, error)
	virtualMemory func(context.Context) (*mem.VirtualMemoryStat, error)
	networkIO     func(context.Context) (*net.IOCountersStat, error)
	processTimes  func(context.Context) (*cpu.TimesStat, error)
	processMemory func(context.Context) (*process.MemoryInfoStat, error)
	memStats      func(*runtime.MemStats)
	now           func() time.Time
}

// config contains optional settings for reporting resource usage.
type config struct {
	interval time.Duration
	logger   *zap.Logger
	sources  sources
}

// Option supports configuring optional settings.
type Option interface {
	apply(*config)
}

type intervalOption time.Duration

func (o intervalOption) apply(c *config) {
	if o > 0 {
		c.interval = time.Duration(o)
	}
}

// WithInterval sets the sampling period.
func WithInterval(d time.Duration) Option {
	return intervalOption(d)
}

type loggerOption struct{ *zap.Logger }

func (o loggerOption) apply(c *config) {
	if o.Logger != nil {
		c.logger = o.Logger
	}
}

// WithLogger sets the logger used to report failed readings.
func WithLogger(l *zap.Logger) Option {
	return loggerOption{l}
}

func defaultSources() sources {
	var (
		once sync.Once
		self *process.Process
		err  error
	)
	current := func(ctx context.Context) (*process.Process, error) {
		once.Do(func() {
			self, err = process.NewProcessWithContext(ctx, int32(os.Getpid()))
		})
		return self, err
	}
	return sources{
		hostTimes: func(ctx context.Context) (*cpu.TimesStat, error) {
			ts, err := cpu.TimesWithContext(ctx, false)
			if err != nil {
				return nil, err
			}
			if len(ts) != 1 {
				return nil, errors.New("host CPU usage: incorrect summary count")
			}
			return &ts[0], nil
		},
		virtualMemory: mem.VirtualMemoryWithContext,
		networkIO: func(ctx context.Context) (*net.IOCountersStat, error) {
			io, err := net.IOCountersWithContext(ctx, false)
			if err != nil {
				return nil, err
			}
			if len(io) != 1 {
				return nil, errors.New("host network usage: incorrect summary count")
			}
			return &io[0], nil
		},
		processTimes: func(ctx context.Context) (*cpu.TimesStat, error) {
			p, err := current(ctx)
			if err != nil {
				return nil, err
			}
			return p.TimesWithContext(ctx)
		},
		processMemory: func(ctx context.Context) (*process.MemoryInfoStat, error) {
			p, err := current(ctx)
			if err != nil {
				return nil, err
			}
			return p.MemoryInfoWithContext(ctx)
		},
		memStats: runtime.ReadMemStats,
		now:      time.Now,
	}
}

// newConfig computes a config from a list of Options.
func newConfig(opts ...Option) config {
	c := config{
		interval: DefaultInterval,
		logger:   zap.NewNop(),
		sources:  defaultSources(),
	}
	for _, opt := range opts {
		opt.apply(&c)
	}
	return c
}

// Collector samples on a fixed period until stopped.
type Collector struct {
	tracker Tracker
	config  config

	cancel context.CancelFunc
	done   chan struct{}
}

// Start begins sampling in the background. The first reading is taken
// one interval after Start.
func Start(tracker Tracker, opts ...Option) (*Collector, error) {
	if tracker == nil {
		return nil, fmt.Errorf("hostprocess: nil tracker")
	}
	c := newCollector(tracker, newConfig(opts...))
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.run(ctx)
	return c, nil
}

func newCollector(tracker Tracker, cfg config) *Collector {
	cfg.logger = cfg.logger.Named("hostprocess")
	return &Collector{
		tracker: tracker,
		config:  cfg,
		done:    make(chan struct{}),
	}
}

// Stop ends sampling and waits for a reading in progress.
func (c *Collector) Stop() {
	c.cancel()
	<-c.done
}

func (c *Collector) run(ctx context.Context) {
	defer close(c.done)
	ticker := time.NewTicker(c.config.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.report(ctx)
		}
	}
}

// report tracks one reading of every source. A failing source is
// skipped; the others are still reported.
func (c *Collector) report(ctx context.Context) {
	for _, m := range c.collect(ctx) {
		if err := c.tracker.Track(m); err != nil {
			c.config.logger.Debug("resource usage not tracked", zap.String("metric", m.Name), zap.Error(err))
			return
		}
	}
}

func (c *Collector) collect(ctx context.Context) []*telemetry.Metric {
	var (
		out []*telemetry.Metric
		src = c.config.sources
	)
	add := func(name string, value float64, key, state string) {
		m := telemetry.NewMetric(name, value)
		if key != "" {
			m.SetProperty(key, state)
		}
		out = append(out, m)
	}
	fail := func(what string, err error) {
		c.config.logger.Debug("reading failed", zap.String("source", what), zap.Error(err))
	}

	// Calls ReadMemStats() for GCCPUFraction because runtime/metrics
	// has no equivalent. The GC figure is comparable to, not part of,
	// the user and system times.
	var ms runtime.MemStats
	src.memStats(&ms)
	uptime := src.now().Sub(processStartTime).Seconds()
	add("process.uptime", uptime, "", "")
	add("process.runtime.go.gc.cpu.time", ms.GCCPUFraction*uptime*float64(runtime.GOMAXPROCS(0)), "", "")
	add("process.runtime.go.goroutines", float64(runtime.NumGoroutine()), "", "")

	if pt, err := src.processTimes(ctx); err != nil {
		fail("process times", err)
	} else {
		add("process.cpu.time", pt.User, "state", "user")
		add("process.cpu.time", pt.System, "state", "system")
	}

	if pm, err := src.processMemory(ctx); err != nil {
		fail("process memory", err)
	} else {
		add("process.memory.usage", float64(pm.RSS), "", "")
	}

	if ht, err := src.hostTimes(ctx); err != nil {
		fail("host times", err)
	} else {
		// Note: "other" is the sum of all other known states.
		other := ht.Nice + ht.Iowait + ht.Irq + ht.Softirq + ht.Steal + ht.Guest + ht.GuestNice
		add("system.cpu.time", ht.User, "state", "user")
		add("system.cpu.time", ht.System, "state", "system")
		add("system.cpu.time", other, "state", "other")
		add("system.cpu.time", ht.Idle, "state", "idle")
	}

	if vm, err := src.virtualMemory(ctx); err != nil {
		fail("virtual memory", err)
	} else {
		add("system.memory.usage", float64(vm.Used), "state", "used")
		add("system.memory.usage", float64(vm.Available), "state", "available")
		if vm.Total > 0 {
			add("system.memory.utilization", float64(vm.Used)/float64(vm.Total), "state", "used")
			add("system.memory.utilization", float64(vm.Available)/float64(vm.Total), "state", "available")
		}
	}

	if io, err := src.networkIO(ctx); err != nil {
		fail("network io", err)
	} else {
		add("system.network.io", float64(io.BytesSent), "direction", "transmit")
		add("system.network.io", float64(io.BytesRecv), "direction", "receive")
	}
	return out
}
