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

package wire

import "github.com/openhybrid/qwatch/codec"

// File-operation opcodes. The device keys its response frames to the same
// values via the low nibble of the first response byte.
const (
	OpGetFile   = 0x01
	OpLookup    = 0x02
	OpPutFile   = 0x03
	OpCloseFile = 0x04
)

// Authentication sub-opcodes carried in byte 1 of control-channel exchanges
// that start with the 0x02 marker.
const (
	AuthSubChallenge = 0x01
	AuthSubResponse  = 0x02
	AuthSubConfirm   = 0x05
	AuthSubPair      = 0x06
)

// Request sizes, fixed by the protocol.
const (
	PutRequestSize    = 15
	GetRequestSize    = 11
	LookupRequestSize = 3
	CloseRequestSize  = 3
	AuthStartSize     = 11
	AuthResponseSize  = 19
)

// PutRequest builds the 15-byte file-put header: opcode, handle, a zero
// offset, and the payload size repeated twice.
func PutRequest(h Handle, size uint32) []byte {
	return codec.NewBuffer().
		WriteUint8(OpPutFile).
		WriteUint16(h.Uint16()).
		WriteUint32(0).
		WriteUint32(size).
		WriteUint32(size).
		Bytes()
}

// GetRequest builds the 11-byte file-get header covering the byte range
// [start, end).
func GetRequest(h Handle, start, end uint32) []byte {
	return codec.NewBuffer().
		WriteUint8(OpGetFile).
		WriteUint16(h.Uint16()).
		WriteUint32(start).
		WriteUint32(end).
		Bytes()
}

// LookupRequest builds the 3-byte dynamic-handle lookup for a handle major.
func LookupRequest(major uint8) []byte {
	return []byte{OpLookup, 0xFF, major}
}

// CloseRequest builds the 3-byte file-close frame.
func CloseRequest(h Handle) []byte {
	return codec.NewBuffer().
		WriteUint8(OpCloseFile).
		WriteUint16(h.Uint16()).
		Bytes()
}

// AuthStartRequest builds the 11-byte handshake opener carrying the fresh
// phone random.
func AuthStartRequest(phoneRandom []byte) []byte {
	return codec.NewBuffer().
		WriteUint8(0x02).
		WriteUint8(AuthSubChallenge).
		WriteUint8(0x01).
		WriteBytes(phoneRandom).
		Bytes()
}

// AuthResponseRequest builds the 19-byte handshake response carrying the
// re-encrypted, swapped randoms.
func AuthResponseRequest(encrypted []byte) []byte {
	return codec.NewBuffer().
		WriteUint8(0x02).
		WriteUint8(AuthSubResponse).
		WriteUint8(0x01).
		WriteBytes(encrypted).
		Bytes()
}

// ConfirmRequest builds the post-auth device-confirmation prompt.
func ConfirmRequest() []byte {
	return []byte{0x02, AuthSubConfirm, 0x01}
}

// PairRequest builds the post-auth pairing check.
func PairRequest() []byte {
	return []byte{0x02, AuthSubPair, 0x01}
}

// Chunk prepends the sequence byte to a data-channel payload. The sequence
// counter wraps mod 256 on the caller's side.
func Chunk(seq uint8, payload []byte) []byte {
	out := make([]byte, 0, len(payload)+1)
	out = append(out, seq)
	return append(out, payload...)
}
