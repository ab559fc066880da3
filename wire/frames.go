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

import (
	"fmt"

	"github.com/openhybrid/qwatch/codec"
)

// Kind classifies a control-channel response frame by the low nibble of its
// first byte. The device sets high bits for flagging; only the nibble is
// significant for dispatch.
type Kind uint8

const (
	KindUnknown      Kind = 0x00
	KindGetInit      Kind = 0x01 // announces a get: status + byte count
	KindAuth         Kind = 0x02 // handshake and confirmation frames
	KindPutInit      Kind = 0x03 // acknowledges a put header
	KindComplete     Kind = 0x04 // closes an operation: status + CRC32
	KindDataAck      Kind = 0x08 // running CRC32 ack during chunked writes
	KindContinuation Kind = 0x0A // keepalive, no payload of interest
)

func (k Kind) String() string {
	switch k {
	case KindGetInit:
		return "get-init"
	case KindAuth:
		return "auth"
	case KindPutInit:
		return "put-init"
	case KindComplete:
		return "complete"
	case KindDataAck:
		return "data-ack"
	case KindContinuation:
		return "continuation"
	default:
		return fmt.Sprintf("unknown(%#02x)", uint8(k))
	}
}

// KindOf returns the response kind of a raw control-channel frame.
func KindOf(frame []byte) Kind {
	if len(frame) == 0 {
		return KindUnknown
	}
	switch k := Kind(frame[0] & 0x0F); k {
	case KindGetInit, KindAuth, KindPutInit, KindComplete, KindDataAck, KindContinuation:
		return k
	default:
		return KindUnknown
	}
}

// ErrShortFrame is returned when a response frame is too small for its kind.
type ErrShortFrame struct {
	Kind Kind
	Len  int
	Need int
}

func (e *ErrShortFrame) Error() string {
	return fmt.Sprintf("short %s frame: %d bytes, need %d", e.Kind, e.Len, e.Need)
}

// GetInit is the announce frame for a plaintext or encrypted get:
// [kind, minor, major, status, size u32le].
type GetInit struct {
	Handle Handle
	Status uint8
	Size   uint32
}

// PutInit acknowledges a put header: [kind, minor, major, status].
type PutInit struct {
	Handle Handle
	Status uint8
}

// Complete closes an operation: [kind, minor, major, status, crc32 u32le].
// The CRC covers the transferred content; for encrypted reads it covers the
// decrypted bytes.
type Complete struct {
	Handle Handle
	Status uint8
	CRC    uint32
}

// DataAck carries the device's running CRC32 over the payload bytes received
// so far: [kind, minor, major, crc32 u32le].
type DataAck struct {
	Handle Handle
	CRC    uint32
}

// AuthFrame is a handshake or confirmation frame:
// [0x02, sub, status, reserved, payload...].
type AuthFrame struct {
	Sub     uint8
	Status  uint8
	Payload []byte
}

func parseHandle(buf *codec.Buffer) (Handle, error) {
	v, err := buf.ReadUint16()
	if err != nil {
		return Handle{}, err
	}
	return HandleFromUint16(v), nil
}

// ParseGetInit decodes a get-init frame.
func ParseGetInit(frame []byte) (*GetInit, error) {
	if len(frame) < 8 {
		return nil, &ErrShortFrame{Kind: KindGetInit, Len: len(frame), Need: 8}
	}
	buf := codec.NewBufferFrom(frame[1:])
	h, _ := parseHandle(buf)
	status, _ := buf.ReadUint8()
	size, _ := buf.ReadUint32()
	return &GetInit{Handle: h, Status: status, Size: size}, nil
}

// ParsePutInit decodes a put-init frame.
func ParsePutInit(frame []byte) (*PutInit, error) {
	if len(frame) < 4 {
		return nil, &ErrShortFrame{Kind: KindPutInit, Len: len(frame), Need: 4}
	}
	buf := codec.NewBufferFrom(frame[1:])
	h, _ := parseHandle(buf)
	status, _ := buf.ReadUint8()
	return &PutInit{Handle: h, Status: status}, nil
}

// ParseComplete decodes a completion frame.
func ParseComplete(frame []byte) (*Complete, error) {
	if len(frame) < 8 {
		return nil, &ErrShortFrame{Kind: KindComplete, Len: len(frame), Need: 8}
	}
	buf := codec.NewBufferFrom(frame[1:])
	h, _ := parseHandle(buf)
	status, _ := buf.ReadUint8()
	crc, _ := buf.ReadUint32()
	return &Complete{Handle: h, Status: status, CRC: crc}, nil
}

// ParseDataAck decodes a running-CRC data ack.
func ParseDataAck(frame []byte) (*DataAck, error) {
	if len(frame) < 7 {
		return nil, &ErrShortFrame{Kind: KindDataAck, Len: len(frame), Need: 7}
	}
	buf := codec.NewBufferFrom(frame[1:])
	h, _ := parseHandle(buf)
	crc, _ := buf.ReadUint32()
	return &DataAck{Handle: h, CRC: crc}, nil
}

// ParseAuthFrame decodes a handshake frame. The payload, if any, starts at
// byte 4; for the challenge frame it is the 16-byte encrypted challenge.
func ParseAuthFrame(frame []byte) (*AuthFrame, error) {
	if len(frame) < 3 {
		return nil, &ErrShortFrame{Kind: KindAuth, Len: len(frame), Need: 3}
	}
	f := &AuthFrame{Sub: frame[1], Status: frame[2]}
	if len(frame) > 4 {
		f.Payload = frame[4:]
	}
	return f, nil
}

// Frame layout builders for the device side of the protocol. The simulator
// and tests use these; a phone-side client never sends them.

// BuildGetInit encodes a get-init frame.
func BuildGetInit(h Handle, status uint8, size uint32) []byte {
	return codec.NewBuffer().
		WriteUint8(uint8(KindGetInit)).
		WriteUint16(h.Uint16()).
		WriteUint8(status).
		WriteUint32(size).
		Bytes()
}

// BuildPutInit encodes a put-init frame.
func BuildPutInit(h Handle, status uint8) []byte {
	return codec.NewBuffer().
		WriteUint8(uint8(KindPutInit)).
		WriteUint16(h.Uint16()).
		WriteUint8(status).
		Bytes()
}

// BuildComplete encodes a completion frame.
func BuildComplete(h Handle, status uint8, crc uint32) []byte {
	return codec.NewBuffer().
		WriteUint8(uint8(KindComplete)).
		WriteUint16(h.Uint16()).
		WriteUint8(status).
		WriteUint32(crc).
		Bytes()
}

// BuildDataAck encodes a running-CRC data ack.
func BuildDataAck(h Handle, crc uint32) []byte {
	return codec.NewBuffer().
		WriteUint8(uint8(KindDataAck)).
		WriteUint16(h.Uint16()).
		WriteUint32(crc).
		Bytes()
}

// BuildAuthFrame encodes a handshake frame with an optional payload.
func BuildAuthFrame(sub, status uint8, payload []byte) []byte {
	return codec.NewBuffer().
		WriteUint8(uint8(KindAuth)).
		WriteUint8(sub).
		WriteUint8(status).
		WriteUint8(0x00).
		WriteBytes(payload).
		Bytes()
}
