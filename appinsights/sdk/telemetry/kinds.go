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

package telemetry

import (
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
)

// Trace is a printf-style log line with a severity.
type Trace struct {
	Base
	Message  string
	Severity contracts.SeverityLevel
}

// NewTrace returns a trace record.
func NewTrace(message string, severity contracts.SeverityLevel) *Trace {
	return &Trace{Base: newBase(), Message: message, Severity: severity}
}

func (t *Trace) ToEnvelope(c *Context) *contracts.Envelope {
	return t.envelope(c, &contracts.MessageData{
		Ver:           contracts.Version(),
		Message:       t.Message,
		SeverityLevel: t.Severity.Ptr(),
		Properties:    c.properties(t.Properties),
		Measurements:  t.measurements(),
	})
}

// Event is a named application event.
type Event struct {
	Base
	Name string
}

// NewEvent returns an event record.
func NewEvent(name string) *Event {
	return &Event{Base: newBase(), Name: name}
}

func (e *Event) ToEnvelope(c *Context) *contracts.Envelope {
	return e.envelope(c, &contracts.EventData{
		Ver:          contracts.Version(),
		Name:         e.Name,
		Properties:   c.properties(e.Properties),
		Measurements: e.measurements(),
	})
}

// Metric is a single measured value.
type Metric struct {
	Base
	Name  string
	Value float64
}

// NewMetric returns a metric record.
func NewMetric(name string, value float64) *Metric {
	return &Metric{Base: newBase(), Name: name, Value: value}
}

func (m *Metric) ToEnvelope(c *Context) *contracts.Envelope {
	return m.envelope(c, &contracts.MetricData{
		Ver: contracts.Version(),
		Metrics: []contracts.DataPoint{{
			Name:  m.Name,
			Kind:  contracts.Measurement,
			Value: m.Value,
			Count: ptr(1),
		}},
		Properties: c.properties(m.Properties),
	})
}

// AggregateMetric summarises several values of one metric.
type AggregateMetric struct {
	Base
	Name   string
	Value  float64
	Min    float64
	Max    float64
	StdDev float64
	Count  int
}

// NewAggregateMetric returns an aggregate of values. Value is their sum.
func NewAggregateMetric(name string, values ...float64) *AggregateMetric {
	m := &AggregateMetric{Base: newBase(), Name: name, Count: len(values)}
	if len(values) == 0 {
		return m
	}
	m.Min, m.Max = values[0], values[0]
	for _, v := range values {
		m.Value += v
		m.Min = math.Min(m.Min, v)
		m.Max = math.Max(m.Max, v)
	}
	mean := m.Value / float64(len(values))
	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	m.StdDev = math.Sqrt(variance / float64(len(values)))
	return m
}

func (m *AggregateMetric) ToEnvelope(c *Context) *contracts.Envelope {
	return m.envelope(c, &contracts.MetricData{
		Ver: contracts.Version(),
		Metrics: []contracts.DataPoint{{
			Name:   m.Name,
			Kind:   contracts.Aggregation,
			Value:  m.Value,
			Count:  ptr(m.Count),
			Min:    ptr(m.Min),
			Max:    ptr(m.Max),
			StdDev: ptr(m.StdDev),
		}},
		Properties: c.properties(m.Properties),
	})
}

// Request describes an incoming request handled by the application.
type Request struct {
	Base
	ID           string
	Name         string
	URL          string
	Duration     time.Duration
	ResponseCode string
	Success      bool
	Source       string
}

// NewRequest returns a request record. Success is derived from the
// response code: a numeric code below 400 counts as successful.
func NewRequest(method, url string, duration time.Duration, responseCode string) *Request {
	code, err := strconv.Atoi(responseCode)
	return &Request{
		Base:         newBase(),
		ID:           uuid.NewString(),
		Name:         method + " " + url,
		URL:          url,
		Duration:     duration,
		ResponseCode: responseCode,
		Success:      err == nil && code < 400,
	}
}

func (r *Request) ToEnvelope(c *Context) *contracts.Envelope {
	return r.envelope(c, &contracts.RequestData{
		Ver:          contracts.Version(),
		ID:           r.ID,
		Source:       r.Source,
		Name:         r.Name,
		Duration:     contracts.FormatDuration(r.Duration),
		ResponseCode: r.ResponseCode,
		Success:      r.Success,
		URL:          r.URL,
		Properties:   c.properties(r.Properties),
		Measurements: r.measurements(),
	})
}

// RemoteDependency describes an outgoing call to another component.
type RemoteDependency struct {
	Base
	ID         string
	Name       string
	Type       string
	Target     string
	Data       string
	ResultCode string
	Duration   time.Duration
	Success    bool
}

// NewRemoteDependency returns a dependency record.
func NewRemoteDependency(name, dependencyType, target string, success bool) *RemoteDependency {
	return &RemoteDependency{
		Base:    newBase(),
		ID:      uuid.NewString(),
		Name:    name,
		Type:    dependencyType,
		Target:  target,
		Success: success,
	}
}

func (d *RemoteDependency) ToEnvelope(c *Context) *contracts.Envelope {
	return d.envelope(c, &contracts.RemoteDependencyData{
		Ver:          contracts.Version(),
		Name:         d.Name,
		ID:           d.ID,
		ResultCode:   d.ResultCode,
		Duration:     contracts.FormatDuration(d.Duration),
		Success:      d.Success,
		Data:         d.Data,
		Target:       d.Target,
		Type:         d.Type,
		Properties:   c.properties(d.Properties),
		Measurements: d.measurements(),
	})
}

// Availability is the result of an availability probe.
type Availability struct {
	Base
	ID          string
	Name        string
	Duration    time.Duration
	Success     bool
	RunLocation string
	Message     string
}

// NewAvailability returns an availability record.
func NewAvailability(name string, duration time.Duration, success bool) *Availability {
	return &Availability{
		Base:     newBase(),
		ID:       uuid.NewString(),
		Name:     name,
		Duration: duration,
		Success:  success,
	}
}

func (a *Availability) ToEnvelope(c *Context) *contracts.Envelope {
	return a.envelope(c, &contracts.AvailabilityData{
		Ver:          contracts.Version(),
		ID:           a.ID,
		Name:         a.Name,
		Duration:     contracts.FormatDuration(a.Duration),
		Success:      a.Success,
		RunLocation:  a.RunLocation,
		Message:      a.Message,
		Properties:   c.properties(a.Properties),
		Measurements: a.measurements(),
	})
}

// PageView records a page or screen being displayed.
type PageView struct {
	Base
	ID       string
	Name     string
	URL      string
	Duration time.Duration
}

// NewPageView returns a page view record.
func NewPageView(name, url string) *PageView {
	return &PageView{Base: newBase(), ID: uuid.NewString(), Name: name, URL: url}
}

func (p *PageView) ToEnvelope(c *Context) *contracts.Envelope {
	var d string
	if p.Duration > 0 {
		d = contracts.FormatDuration(p.Duration)
	}
	return p.envelope(c, &contracts.PageViewData{
		Ver:          contracts.Version(),
		Name:         p.Name,
		URL:          p.URL,
		Duration:     d,
		ID:           p.ID,
		Properties:   c.properties(p.Properties),
		Measurements: p.measurements(),
	})
}

func ptr[T any](v T) *T {
	return &v
}
