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

import "maps"

// Context holds values applied to every record submitted through a
// client: the instrumentation key, common tags and common properties.
// Values set on a record take precedence over those found here.
type Context struct {
	InstrumentationKey string
	Tags               Tags
	Properties         map[string]string
}

// NewContext returns an empty context for the given instrumentation key.
func NewContext(ikey string) *Context {
	return &Context{
		InstrumentationKey: ikey,
		Tags:               Tags{},
		Properties:         map[string]string{},
	}
}

func (c *Context) tags(own Tags) Tags {
	if c == nil {
		return own.Clone()
	}
	return c.Tags.Merge(own)
}

func (c *Context) properties(own map[string]string) map[string]string {
	out := map[string]string{}
	if c != nil {
		maps.Copy(out, c.Properties)
	}
	maps.Copy(out, own)
	if len(out) == 0 {
		return nil
	}
	return out
}

func (c *Context) ikey() *string {
	if c == nil || c.InstrumentationKey == "" {
		return nil
	}
	k := c.InstrumentationKey
	return &k
}
