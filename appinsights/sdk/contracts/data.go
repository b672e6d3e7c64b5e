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

package contracts

const schemaVersion = 2

// MessageData is a free text trace line.
type MessageData struct {
	Ver           int                `json:"ver"`
	Message       string             `json:"message"`
	SeverityLevel *SeverityLevel     `json:"severityLevel,omitempty"`
	Properties    map[string]string  `json:"properties,omitempty"`
	Measurements  map[string]float64 `json:"measurements,omitempty"`
}

func (*MessageData) BaseType() string     { return "MessageData" }
func (*MessageData) EnvelopeName() string { return "Microsoft.ApplicationInsights.Message" }

// EventData is a named user or application event.
type EventData struct {
	Ver          int                `json:"ver"`
	Name         string             `json:"name"`
	Properties   map[string]string  `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

func (*EventData) BaseType() string     { return "EventData" }
func (*EventData) EnvelopeName() string { return "Microsoft.ApplicationInsights.Event" }

// DataPointType distinguishes single measurements from pre-aggregated ones.
type DataPointType string

const (
	Measurement DataPointType = "Measurement"
	Aggregation DataPointType = "Aggregation"
)

// DataPoint is one metric value.
type DataPoint struct {
	Ns     string        `json:"ns,omitempty"`
	Name   string        `json:"name"`
	Kind   DataPointType `json:"kind,omitempty"`
	Value  float64       `json:"value"`
	Count  *int          `json:"count,omitempty"`
	Min    *float64      `json:"min,omitempty"`
	Max    *float64      `json:"max,omitempty"`
	StdDev *float64      `json:"stdDev,omitempty"`
}

// MetricData carries one or more metric data points.
type MetricData struct {
	Ver        int               `json:"ver"`
	Metrics    []DataPoint       `json:"metrics"`
	Properties map[string]string `json:"properties,omitempty"`
}

func (*MetricData) BaseType() string     { return "MetricData" }
func (*MetricData) EnvelopeName() string { return "Microsoft.ApplicationInsights.Metric" }

// RequestData describes a request handled by the application.
type RequestData struct {
	Ver          int                `json:"ver"`
	ID           string             `json:"id"`
	Source       string             `json:"source,omitempty"`
	Name         string             `json:"name,omitempty"`
	Duration     string             `json:"duration"`
	ResponseCode string             `json:"responseCode"`
	Success      bool               `json:"success"`
	URL          string             `json:"url,omitempty"`
	Properties   map[string]string  `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

func (*RequestData) BaseType() string     { return "RequestData" }
func (*RequestData) EnvelopeName() string { return "Microsoft.ApplicationInsights.Request" }

// RemoteDependencyData describes an outgoing call made by the application.
type RemoteDependencyData struct {
	Ver          int                `json:"ver"`
	Name         string             `json:"name"`
	ID           string             `json:"id,omitempty"`
	ResultCode   string             `json:"resultCode,omitempty"`
	Duration     string             `json:"duration"`
	Success      bool               `json:"success"`
	Data         string             `json:"data,omitempty"`
	Target       string             `json:"target,omitempty"`
	Type         string             `json:"type,omitempty"`
	Properties   map[string]string  `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

func (*RemoteDependencyData) BaseType() string { return "RemoteDependencyData" }
func (*RemoteDependencyData) EnvelopeName() string {
	return "Microsoft.ApplicationInsights.RemoteDependency"
}

// AvailabilityData is the result of an availability test.
type AvailabilityData struct {
	Ver          int                `json:"ver"`
	ID           string             `json:"id"`
	Name         string             `json:"name"`
	Duration     string             `json:"duration"`
	Success      bool               `json:"success"`
	RunLocation  string             `json:"runLocation,omitempty"`
	Message      string             `json:"message,omitempty"`
	Properties   map[string]string  `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

func (*AvailabilityData) BaseType() string     { return "AvailabilityData" }
func (*AvailabilityData) EnvelopeName() string { return "Microsoft.ApplicationInsights.Availability" }

// PageViewData records a page or screen being shown.
type PageViewData struct {
	Ver          int                `json:"ver"`
	Name         string             `json:"name"`
	URL          string             `json:"url,omitempty"`
	Duration     string             `json:"duration,omitempty"`
	ID           string             `json:"id,omitempty"`
	Properties   map[string]string  `json:"properties,omitempty"`
	Measurements map[string]float64 `json:"measurements,omitempty"`
}

func (*PageViewData) BaseType() string     { return "PageViewData" }
func (*PageViewData) EnvelopeName() string { return "Microsoft.ApplicationInsights.PageView" }

// StackFrame is one parsed frame of an exception stack.
type StackFrame struct {
	Level    int    `json:"level"`
	Method   string `json:"method"`
	Assembly string `json:"assembly,omitempty"`
	FileName string `json:"fileName,omitempty"`
	Line     int    `json:"line,omitempty"`
}

// ExceptionDetails describes one exception in a chain.
type ExceptionDetails struct {
	ID           *int         `json:"id,omitempty"`
	OuterID      *int         `json:"outerId,omitempty"`
	TypeName     string       `json:"typeName"`
	Message      string       `json:"message"`
	HasFullStack bool         `json:"hasFullStack"`
	Stack        string       `json:"stack,omitempty"`
	ParsedStack  []StackFrame `json:"parsedStack,omitempty"`
}

// ExceptionData carries an exception chain.
type ExceptionData struct {
	Ver           int                `json:"ver"`
	Exceptions    []ExceptionDetails `json:"exceptions"`
	SeverityLevel *SeverityLevel     `json:"severityLevel,omitempty"`
	ProblemID     string             `json:"problemId,omitempty"`
	Properties    map[string]string  `json:"properties,omitempty"`
	Measurements  map[string]float64 `json:"measurements,omitempty"`
}

func (*ExceptionData) BaseType() string     { return "ExceptionData" }
func (*ExceptionData) EnvelopeName() string { return "Microsoft.ApplicationInsights.Exception" }

// Version returns the schema version written into every base data value.
func Version() int {
	return schemaVersion
}
