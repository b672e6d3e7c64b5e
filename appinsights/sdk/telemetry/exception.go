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
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/lightstep/appinsights-go/appinsights/sdk/contracts"
)

const maxStackFrames = 64

// Exception records an error together with the stack it was tracked from.
type Exception struct {
	Base
	Err       error
	Severity  contracts.SeverityLevel
	ProblemID string
	Frames    []contracts.StackFrame
}

// NewException returns an exception record for err. The stack is captured
// starting at the caller of NewException.
func NewException(err error) *Exception {
	return &Exception{
		Base:     newBase(),
		Err:      err,
		Severity: contracts.Error,
		Frames:   callers(2),
	}
}

func (e *Exception) ToEnvelope(c *Context) *contracts.Envelope {
	return e.envelope(c, &contracts.ExceptionData{
		Ver:           contracts.Version(),
		Exceptions:    e.details(),
		SeverityLevel: e.Severity.Ptr(),
		ProblemID:     e.ProblemID,
		Properties:    c.properties(e.Properties),
		Measurements:  e.measurements(),
	})
}

// details flattens the wrap chain of Err, outermost first. Only the
// outermost entry carries the stack.
func (e *Exception) details() []contracts.ExceptionDetails {
	var out []contracts.ExceptionDetails
	for i, err := 0, e.Err; err != nil; i, err = i+1, errors.Unwrap(err) {
		d := contracts.ExceptionDetails{
			ID:       ptr(i),
			TypeName: fmt.Sprintf("%T", err),
			Message:  err.Error(),
		}
		if i > 0 {
			d.OuterID = ptr(i - 1)
		} else {
			d.HasFullStack = len(e.Frames) > 0
			d.ParsedStack = e.Frames
		}
		out = append(out, d)
	}
	if len(out) == 0 {
		out = append(out, contracts.ExceptionDetails{TypeName: "<nil>", ParsedStack: e.Frames})
	}
	return out
}

func callers(skip int) []contracts.StackFrame {
	pcs := make([]uintptr, maxStackFrames)
	n := runtime.Callers(skip+1, pcs)
	if n == 0 {
		return nil
	}
	frames := runtime.CallersFrames(pcs[:n])

	var out []contracts.StackFrame
	for level := 0; ; level++ {
		f, more := frames.Next()
		pkg, _ := splitFunction(f.Function)
		out = append(out, contracts.StackFrame{
			Level:    level,
			Method:   f.Function,
			Assembly: pkg,
			FileName: f.File,
			Line:     f.Line,
		})
		if !more {
			break
		}
	}
	return out
}

// splitFunction splits a fully qualified function name into its package
// path and the remainder.
func splitFunction(fn string) (pkg, name string) {
	slash := strings.LastIndex(fn, "/")
	dot := strings.Index(fn[slash+1:], ".")
	if dot < 0 {
		return "", fn
	}
	return fn[:slash+1+dot], fn[slash+2+dot:]
}
