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

// Package codec provides the little-endian byte-buffer primitives and the
// checksum helpers shared by every layer of the watch protocol.
//
// The watch speaks little-endian throughout; all multi-byte fields in both
// request and response frames go through this package. Two distinct CRC
// polynomials are in play at different protocol layers (see checksum.go);
// keeping both behind named helpers is deliberate.
package codec

import (
	"encoding/binary"
	"fmt"
)

// ErrBufferExhausted is returned when a read runs past the end of a buffer.
// It carries the offsets involved so frame-parse failures are diagnosable.
type ErrBufferExhausted struct {
	Offset int
	Need   int
	Len    int
}

func (e *ErrBufferExhausted) Error() string {
	return fmt.Sprintf("buffer exhausted: need %d bytes at offset %d, have %d total", e.Need, e.Offset, e.Len)
}

// Buffer is a cursor-based little-endian reader/writer over a byte slice.
// Writes append; reads advance the cursor. It is not safe for concurrent use.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer creates an empty buffer for writing.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// NewBufferFrom creates a buffer positioned at the start of data for reading.
func NewBufferFrom(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns the full underlying slice regardless of cursor position.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the total buffer length.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}

// Pos returns the current cursor position.
func (b *Buffer) Pos() int {
	return b.pos
}

// Seek moves the cursor to an absolute offset.
func (b *Buffer) Seek(offset int) error {
	if offset < 0 || offset > len(b.data) {
		return &ErrBufferExhausted{Offset: offset, Need: 0, Len: len(b.data)}
	}
	b.pos = offset
	return nil
}

// Skip advances the cursor by n bytes.
func (b *Buffer) Skip(n int) error {
	return b.Seek(b.pos + n)
}

// Peek returns the byte at the cursor plus ahead without advancing.
func (b *Buffer) Peek(ahead int) (byte, error) {
	idx := b.pos + ahead
	if idx < 0 || idx >= len(b.data) {
		return 0, &ErrBufferExhausted{Offset: idx, Need: 1, Len: len(b.data)}
	}
	return b.data[idx], nil
}

func (b *Buffer) need(n int) error {
	if b.pos+n > len(b.data) {
		return &ErrBufferExhausted{Offset: b.pos, Need: n, Len: len(b.data)}
	}
	return nil
}

// ReadUint8 reads a single byte.
func (b *Buffer) ReadUint8() (uint8, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

// ReadUint16 reads a little-endian 16-bit value.
func (b *Buffer) ReadUint16() (uint16, error) {
	if err := b.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(b.data[b.pos:])
	b.pos += 2
	return v, nil
}

// ReadUint32 reads a little-endian 32-bit value.
func (b *Buffer) ReadUint32() (uint32, error) {
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b.data[b.pos:])
	b.pos += 4
	return v, nil
}

// ReadBytes reads exactly n bytes into a fresh slice.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.data[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}

// WriteUint8 appends a single byte.
func (b *Buffer) WriteUint8(v uint8) *Buffer {
	b.data = append(b.data, v)
	return b
}

// WriteUint16 appends a little-endian 16-bit value.
func (b *Buffer) WriteUint16(v uint16) *Buffer {
	b.data = binary.LittleEndian.AppendUint16(b.data, v)
	return b
}

// WriteUint32 appends a little-endian 32-bit value.
func (b *Buffer) WriteUint32(v uint32) *Buffer {
	b.data = binary.LittleEndian.AppendUint32(b.data, v)
	return b
}

// WriteBytes appends raw bytes.
func (b *Buffer) WriteBytes(data []byte) *Buffer {
	b.data = append(b.data, data...)
	return b
}
