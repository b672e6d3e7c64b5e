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

// Package telemetry defines the record kinds an application can track and
// their conversion into wire envelopes.
package telemetry // import "github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"

import (
	"maps"
	"time"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

// Telemetry is implemented by every record kind.
type Telemetry interface {
	// Timestamp is the time the record was measured.
	Timestamp() time.Time
	// Common exposes the fields shared by all records.
	Common() *Base
	// ToEnvelope converts the record into an envelope, merging in the
	// tags and properties of c. c may be nil.
	ToEnvelope(c *Context) *contracts.Envelope
}

// Base holds the fields every record carries.
type Base struct {
	Time         time.Time
	Properties   map[string]string
	Measurements map[string]float64
	Tags         Tags
}

func newBase() Base {
	return Base{
		Time:         time.Now(),
		Properties:   map[string]string{},
		Measurements: map[string]float64{},
		Tags:         Tags{},
	}
}

func (b *Base) Timestamp() time.Time { return b.Time }
func (b *Base) Common() *Base        { return b }

// SetProperty sets a custom property on the record.
func (b *Base) SetProperty(k, v string) {
	if b.Properties == nil {
		b.Properties = map[string]string{}
	}
	b.Properties[k] = v
}

// SetMeasurement sets a custom measurement on the record.
func (b *Base) SetMeasurement(k string, v float64) {
	if b.Measurements == nil {
		b.Measurements = map[string]float64{}
	}
	b.Measurements[k] = v
}

func (b *Base) measurements() map[string]float64 {
	if len(b.Measurements) == 0 {
		return nil
	}
	return maps.Clone(b.Measurements)
}

func (b *Base) envelope(c *Context, d contracts.Domain) *contracts.Envelope {
	tags := c.tags(b.Tags)
	if len(tags) == 0 {
		tags = nil
	}
	return &contracts.Envelope{
		Name: d.EnvelopeName(),
		Time: b.Time.UTC().Format(timestampFormat),
		IKey: c.ikey(),
		Tags: tags,
		Data: contracts.NewData(d),
	}
}
