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

import "fmt"

// SeverityLevel is the severity of a trace or exception record.
type SeverityLevel string

const (
	Verbose     SeverityLevel = "Verbose"
	Information SeverityLevel = "Information"
	Warning     SeverityLevel = "Warning"
	Error       SeverityLevel = "Error"
	Critical    SeverityLevel = "Critical"
)

// ParseSeverityLevel accepts the canonical names plus the short aliases
// used in environment configuration.
func ParseSeverityLevel(s string) (SeverityLevel, error) {
	switch s {
	case "Verbose", "verbose", "debug":
		return Verbose, nil
	case "Information", "information", "info":
		return Information, nil
	case "Warning", "warning", "warn":
		return Warning, nil
	case "Error", "error":
		return Error, nil
	case "Critical", "critical", "fatal":
		return Critical, nil
	}
	return "", fmt.Errorf("unknown severity level: %q", s)
}

// Ptr returns a pointer to l for optional fields.
func (l SeverityLevel) Ptr() *SeverityLevel {
	return &l
}
