// Copyright 2026 The qwatch Authors
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

package transport

import "github.com/google/uuid"

// The watch exposes one proprietary service with five characteristics plus
// the standard heart-rate measurement characteristic.

var ServiceUUID = uuid.MustParse("3dda0001-957f-7d4a-34a6-74696673696d")

var (
	// ControlUUID carries file-operation requests, handshake frames, and
	// their response notifications.
	ControlUUID = uuid.MustParse("3dda0003-957f-7d4a-34a6-74696673696d")
	// FileDataUUID carries chunked file payloads in both directions.
	FileDataUUID = uuid.MustParse("3dda0004-957f-7d4a-34a6-74696673696d")
	// PairingUUID carries the on-watch confirmation prompt exchange.
	PairingUUID = uuid.MustParse("3dda0002-957f-7d4a-34a6-74696673696d")
	// AuthenticationUUID is the dedicated handshake characteristic on
	// firmware that separates it from control; current firmware multiplexes
	// handshakes onto control and leaves this one silent.
	AuthenticationUUID = uuid.MustParse("3dda0005-957f-7d4a-34a6-74696673696d")
	// BackgroundEventsUUID emits unsolicited device events (buttons, sync
	// hints); the protocol engine ignores it.
	BackgroundEventsUUID = uuid.MustParse("3dda0006-957f-7d4a-34a6-74696673696d")
)

// HeartRateMeasurementUUID is the standard GATT heart-rate measurement
// characteristic (0x2A37) the watch also exposes.
var HeartRateMeasurementUUID = uuid.MustParse("00002a37-0000-1000-8000-00805f9b34fb")
