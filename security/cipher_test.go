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

package security

import (
	"bytes"
	"testing"
)

var testKey = []byte{
	0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
	0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
}

func TestCBCRoundTrip(t *testing.T) {
	plain := make([]byte, 2*RandomSize)
	for i := range plain {
		plain[i] = byte(i * 7)
	}
	encrypted, err := EncryptCBC(testKey, plain)
	if err != nil {
		t.Fatalf("EncryptCBC: %v", err)
	}
	if bytes.Equal(encrypted, plain) {
		t.Fatal("ciphertext equals plaintext")
	}
	decrypted, err := DecryptCBC(testKey, encrypted)
	if err != nil {
		t.Fatalf("DecryptCBC: %v", err)
	}
	if !bytes.Equal(decrypted, plain) {
		t.Errorf("round trip mismatch: %x != %x", decrypted, plain)
	}
}

func TestCBCRejectsUnalignedInput(t *testing.T) {
	if _, err := EncryptCBC(testKey, make([]byte, 15)); err == nil {
		t.Error("EncryptCBC accepted 15 bytes")
	}
	if _, err := DecryptCBC(testKey, make([]byte, 17)); err == nil {
		t.Error("DecryptCBC accepted 17 bytes")
	}
}

func TestCBCRejectsBadKey(t *testing.T) {
	_, err := EncryptCBC([]byte("short"), make([]byte, 16))
	if err == nil {
		t.Fatal("EncryptCBC accepted a 5-byte key")
	}
}

func TestCTRRoundTrip(t *testing.T) {
	iv := make([]byte, IVSize)
	iv[15] = 0x01
	plain := []byte("not block aligned at all")
	encrypted, err := DecryptCTR(testKey, iv, plain)
	if err != nil {
		t.Fatalf("DecryptCTR: %v", err)
	}
	// CTR is its own inverse.
	decrypted, err := DecryptCTR(testKey, iv, encrypted)
	if err != nil {
		t.Fatalf("DecryptCTR: %v", err)
	}
	if !bytes.Equal(decrypted, plain) {
		t.Errorf("round trip mismatch: %x != %x", decrypted, plain)
	}
}

func TestAddToIV(t *testing.T) {
	cases := []struct {
		name  string
		iv    []byte
		delta uint64
		want  []byte
	}{
		{
			name:  "no carry",
			iv:    bytes.Repeat([]byte{0x00}, IVSize),
			delta: 0x1F,
			want:  append(bytes.Repeat([]byte{0x00}, IVSize-1), 0x1F),
		},
		{
			name:  "single carry",
			iv:    append(bytes.Repeat([]byte{0x00}, IVSize-1), 0xFF),
			delta: 0x01,
			want:  append(append(bytes.Repeat([]byte{0x00}, IVSize-2), 0x01), 0x00),
		},
		{
			name:  "carry ripples through the tail",
			iv:    append(bytes.Repeat([]byte{0xFF}, IVSize-1), 0xFE),
			delta: 0x02,
			want:  append(bytes.Repeat([]byte{0x00}, IVSize-1), 0x00),
		},
		{
			name:  "multi-byte delta",
			iv:    bytes.Repeat([]byte{0x00}, IVSize),
			delta: 0x1F * 1000,
			want:  append(append(bytes.Repeat([]byte{0x00}, IVSize-2), 0x79), 0x18),
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := AddToIV(c.iv, c.delta)
			if !bytes.Equal(got, c.want) {
				t.Errorf("AddToIV = %x, want %x", got, c.want)
			}
		})
	}
}

func TestAddToIVDoesNotMutateInput(t *testing.T) {
	iv := bytes.Repeat([]byte{0xFF}, IVSize)
	saved := append([]byte(nil), iv...)
	AddToIV(iv, 1)
	if !bytes.Equal(iv, saved) {
		t.Error("AddToIV mutated its input")
	}
}

func TestFileIVLayout(t *testing.T) {
	creds := &Credentials{
		PhoneRandom: []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08},
		WatchRandom: []byte{0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, 0x18},
	}
	iv := creds.FileIV()
	want := []byte{
		0x00, 0x00,
		0x01, 0x02, 0x03, 0x04, 0x05, // phoneRandom[0:5]
		0x07, // phoneRandom[5] + 1
		0x00,
		0x11, 0x12, 0x13, 0x14, 0x15, 0x16, 0x17, // watchRandom[0:7]
	}
	if !bytes.Equal(iv, want) {
		t.Errorf("FileIV = %x, want %x", iv, want)
	}
}

func TestSecureRandomLengthAndVariation(t *testing.T) {
	a, err := SecureRandom(RandomSize)
	if err != nil || len(a) != RandomSize {
		t.Fatalf("SecureRandom: %x, %v", a, err)
	}
	b, err := SecureRandom(RandomSize)
	if err != nil {
		t.Fatalf("SecureRandom: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two randoms are identical")
	}
}
