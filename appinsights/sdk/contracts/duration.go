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

import (
	"fmt"
	"time"
)

// FormatDuration renders d in the d.hh:mm:ss.fffffff form the endpoint
// expects. Negative durations are written as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ticks := int64(d / 100) // 100ns units
	const (
		perSecond = int64(time.Second / 100)
		perMinute = 60 * perSecond
		perHour   = 60 * perMinute
		perDay    = 24 * perHour
	)
	days := ticks / perDay
	ticks %= perDay
	hours := ticks / perHour
	ticks %= perHour
	minutes := ticks / perMinute
	ticks %= perMinute
	seconds := ticks / perSecond
	ticks %= perSecond
	return fmt.Sprintf("%d.%02d:%02d:%02d.%07d", days, hours, minutes, seconds, ticks)
}
