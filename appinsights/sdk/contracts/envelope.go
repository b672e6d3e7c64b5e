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

// Package contracts holds the wire schema accepted by the ingestion
// endpoint. Values here are plain data; building them from higher level
// telemetry records is the job of the telemetry package.
package contracts // import "github.com/lightstep/appinsights-go/appinsights/sdk/contracts"

// Envelope is the unit of submission. Every telemetry record is wrapped
// in one before it is handed to a channel.
type Envelope struct {
	// Name identifies the telemetry kind, e.g.
	// "Microsoft.ApplicationInsights.Message".
	Name string `json:"name"`

	// Time is the RFC 3339 timestamp of the event.
	Time string `json:"time"`

	SampleRate *float64 `json:"sampleRate,omitempty"`
	Seq        *string  `json:"seq,omitempty"`

	// IKey is the instrumentation key of the owning resource.
	IKey *string `json:"iKey,omitempty"`

	Flags *int64            `json:"flags,omitempty"`
	Tags  map[string]string `json:"tags,omitempty"`
	Data  *Data             `json:"data,omitempty"`
}

// Data is the tagged union carrying one kind of base data.
type Data struct {
	BaseType string `json:"baseType"`
	BaseData any    `json:"baseData"`
}

// Domain is implemented by every base data kind.
type Domain interface {
	// BaseType returns the value used for Data.BaseType.
	BaseType() string
	// EnvelopeName returns the value used for Envelope.Name.
	EnvelopeName() string
}

// NewData wraps a base data value in a Data union.
func NewData(d Domain) *Data {
	return &Data{
		BaseType: d.BaseType(),
		BaseData: d,
	}
}

// String returns a pointer to s. Useful for optional envelope fields.
func String(s string) *string {
	return &s
}
