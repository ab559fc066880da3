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
	"bytes"
	"testing"
)

func TestHandleEncoding(t *testing.T) {
	h := Handle{Major: 0x15, Minor: 0x02}
	if h.Uint16() != 0x1502 {
		t.Errorf("Uint16 = %#04x, want 0x1502", h.Uint16())
	}
	if HandleFromUint16(0x1502) != h {
		t.Errorf("HandleFromUint16 round trip failed")
	}
}

func TestPutRequestLayout(t *testing.T) {
	// [0x03, minor, major, offset u32le = 0, size u32le, size u32le]
	got := PutRequest(Handle{Major: 0x15, Minor: 0x00}, 0x0400)
	want := []byte{
		0x03, 0x00, 0x15,
		0x00, 0x00, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
		0x00, 0x04, 0x00, 0x00,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("PutRequest = %x, want %x", got, want)
	}
	if len(got) != PutRequestSize {
		t.Errorf("len = %d, want %d", len(got), PutRequestSize)
	}
}

func TestGetRequestLayout(t *testing.T) {
	// [0x01, minor, major, start u32le, end u32le]
	got := GetRequest(Handle{Major: 0xFF, Minor: 0x11}, 0, 0xFFFFFFFF)
	want := []byte{
		0x01, 0x11, 0xFF,
		0x00, 0x00, 0x00, 0x00,
		0xFF, 0xFF, 0xFF, 0xFF,
	}
	if !bytes.Equal(got, want) {
		t.Errorf("GetRequest = %x, want %x", got, want)
	}
	if len(got) != GetRequestSize {
		t.Errorf("len = %d, want %d", len(got), GetRequestSize)
	}
}

func TestLookupRequestLayout(t *testing.T) {
	got := LookupRequest(0xFF)
	if !bytes.Equal(got, []byte{0x02, 0xFF, 0xFF}) {
		t.Errorf("LookupRequest = %x", got)
	}
}

func TestCloseRequestLayout(t *testing.T) {
	got := CloseRequest(Handle{Major: 0x08, Minor: 0x00})
	if !bytes.Equal(got, []byte{0x04, 0x00, 0x08}) {
		t.Errorf("CloseRequest = %x", got)
	}
}

func TestAuthRequestLayouts(t *testing.T) {
	random := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	start := AuthStartRequest(random)
	if len(start) != AuthStartSize {
		t.Fatalf("auth start length %d, want %d", len(start), AuthStartSize)
	}
	if !bytes.Equal(start[:3], []byte{0x02, 0x01, 0x01}) || !bytes.Equal(start[3:], random) {
		t.Errorf("AuthStartRequest = %x", start)
	}

	encrypted := make([]byte, 16)
	resp := AuthResponseRequest(encrypted)
	if len(resp) != AuthResponseSize {
		t.Fatalf("auth response length %d, want %d", len(resp), AuthResponseSize)
	}
	if !bytes.Equal(resp[:3], []byte{0x02, 0x02, 0x01}) {
		t.Errorf("AuthResponseRequest header = %x", resp[:3])
	}
}

func TestChunkPrependsSequence(t *testing.T) {
	got := Chunk(0xFE, []byte{0xAA, 0xBB})
	if !bytes.Equal(got, []byte{0xFE, 0xAA, 0xBB}) {
		t.Errorf("Chunk = %x", got)
	}
}
