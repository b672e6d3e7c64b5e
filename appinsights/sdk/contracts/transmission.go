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

// Transmission is the body returned by the ingestion endpoint on partial
// success (206) and on some throttling or server errors. Index refers to
// the position of the item in the submitted array.
type Transmission struct {
	ItemsReceived int                `json:"itemsReceived"`
	ItemsAccepted int                `json:"itemsAccepted"`
	Errors        []TransmissionItem `json:"errors"`
}

// TransmissionItem is the per-item verdict for a rejected item.
type TransmissionItem struct {
	Index      int    `json:"index"`
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
}
