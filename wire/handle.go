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

// Package wire defines the binary frame formats of the watch protocol:
// file-operation request builders, the response-frame taxonomy keyed by the
// low nibble of the first byte, and the logical file handles the device
// exposes.
//
// All multi-byte fields are little-endian. Frame layouts come from
// reverse-engineering notes for the device family; none of this is
// vendor-documented.
package wire

import "fmt"

// Handle identifies a logical resource class on the watch as a
// (major, minor) byte pair. On the wire it is encoded as the 16-bit
// little-endian value (major<<8)|minor, so the minor byte travels first.
type Handle struct {
	Major uint8
	Minor uint8
}

// Fixed handles exposed by the device family.
var (
	HandleActivityFile       = Handle{Major: 0xFF, Minor: 0xFF}
	HandleConfiguration      = Handle{Major: 0x08, Minor: 0x00}
	HandleNotificationFilter = Handle{Major: 0x0C, Minor: 0x00}
	HandleWatchface          = Handle{Major: 0x15, Minor: 0x00}
	HandleMusicInfo          = Handle{Major: 0x0D, Minor: 0x00}
	HandleAlarms             = Handle{Major: 0x0A, Minor: 0x00}
	HandleHandsCalibration   = Handle{Major: 0x02, Minor: 0x00}
	HandleDeviceInfo         = Handle{Major: 0x01, Minor: 0x00}
)

// Uint16 returns the wire encoding (major<<8)|minor.
func (h Handle) Uint16() uint16 {
	return uint16(h.Major)<<8 | uint16(h.Minor)
}

// HandleFromUint16 decodes a wire-encoded handle.
func HandleFromUint16(v uint16) Handle {
	return Handle{Major: uint8(v >> 8), Minor: uint8(v)}
}

func (h Handle) String() string {
	return fmt.Sprintf("(%#02x:%#02x)", h.Major, h.Minor)
}
