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

// Context tag keys understood by the ingestion endpoint.
const (
	ApplicationVersion = "ai.application.ver"
	CloudRole          = "ai.cloud.role"
	CloudRoleInstance  = "ai.cloud.roleInstance"
	DeviceID           = "ai.device.id"
	DeviceOSVersion    = "ai.device.osVersion"
	DeviceType         = "ai.device.type"
	LocationIP         = "ai.location.ip"
	OperationID        = "ai.operation.id"
	OperationName      = "ai.operation.name"
	OperationParentID  = "ai.operation.parentId"
	SessionID          = "ai.session.id"
	UserID             = "ai.user.id"
	InternalSDKVersion = "ai.internal.sdkVersion"
)

// Tags are context tags attached to an envelope.
type Tags map[string]string

// Merge returns a new map holding t overlaid with each of others in turn.
// Later values win.
func (t Tags) Merge(others ...Tags) Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	for _, o := range others {
		for k, v := range o {
			out[k] = v
		}
	}
	return out
}

// Clone returns a copy of t.
func (t Tags) Clone() Tags {
	return t.Merge()
}
