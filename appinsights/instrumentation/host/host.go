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

// Package host reads facts about the machine the process runs on and
// turns them into context tags.
package host // import "github.com/lightstep/appinsights-go/appinsights/instrumentation/host"

import (
	"context"
	"fmt"
	"strings"

	gohost "github.com/shirou/gopsutil/v3/host"

	"github.com/lightstep/appinsights-go/appinsights/sdk/telemetry"
)

// config contains optional settings for reading host tags.
type config struct {
	// includeHostID controls whether the stable host identifier is
	// reported as the device id.
	includeHostID bool

	info func(context.Context) (*gohost.InfoStat, error)
}

// Option supports configuring optional settings for host tags.
type Option interface {
	apply(*config)
}

type hostIDOption bool

func (o hostIDOption) apply(c *config) {
	c.includeHostID = bool(o)
}

// WithHostID controls whether the host identifier is reported. It is
// reported by default.
func WithHostID(enabled bool) Option {
	return hostIDOption(enabled)
}

// newConfig computes a config from a list of Options.
func newConfig(opts ...Option) config {
	c := config{
		includeHostID: true,
		info:          gohost.InfoWithContext,
	}
	for _, opt := range opts {
		opt.apply(&c)
	}
	return c
}

// Tags returns the device and role instance tags of the current host.
func Tags(ctx context.Context, opts ...Option) (telemetry.Tags, error) {
	c := newConfig(opts...)
	info, err := c.info(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading host info: %w", err)
	}

	tags := telemetry.Tags{}
	if info.Hostname != "" {
		tags[telemetry.CloudRoleInstance] = info.Hostname
	}
	if v := osVersion(info); v != "" {
		tags[telemetry.DeviceOSVersion] = v
	}
	if c.includeHostID && info.HostID != "" {
		tags[telemetry.DeviceID] = info.HostID
	}
	tags[telemetry.DeviceType] = deviceType(info)
	return tags, nil
}

// osVersion renders e.g. "ubuntu 22.04 (linux x86_64)".
func osVersion(info *gohost.InfoStat) string {
	var parts []string
	if info.Platform != "" {
		parts = append(parts, info.Platform)
	}
	if info.PlatformVersion != "" {
		parts = append(parts, info.PlatformVersion)
	}
	var sys []string
	if info.OS != "" {
		sys = append(sys, info.OS)
	}
	if info.KernelArch != "" {
		sys = append(sys, info.KernelArch)
	}
	if len(sys) > 0 {
		parts = append(parts, "("+strings.Join(sys, " ")+")")
	}
	return strings.Join(parts, " ")
}

func deviceType(info *gohost.InfoStat) string {
	if info.VirtualizationRole == "guest" {
		return "Virtual"
	}
	return "PC"
}
