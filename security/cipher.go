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

// Package security implements the cryptographic side of the watch protocol:
// the AES primitives the device uses, per-session key material, and the
// challenge-response handshake that must precede every encrypted read.
//
// The device uses AES-128-CBC with an all-zero IV for the handshake only,
// and AES-128-CTR for encrypted file content. Both are dictated by the wire
// protocol as reverse-engineered; neither is a local design choice.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// KeySize is the pre-shared key length in bytes. The key is an opaque
// 128-bit value provisioned out of band.
const KeySize = 16

// IVSize is the AES block and CTR IV length in bytes.
const IVSize = 16

// RandomSize is the length of the phone and watch randoms exchanged during
// the handshake.
const RandomSize = 8

// ErrInvalidKey is returned when the pre-shared key has the wrong length.
type ErrInvalidKey struct {
	Len int
}

func (e *ErrInvalidKey) Error() string {
	return fmt.Sprintf("invalid secret key: %d bytes, need %d", e.Len, KeySize)
}

// EncryptCBC encrypts plaintext with AES-128-CBC and an all-zero IV.
// The plaintext length must be a multiple of the block size; the handshake
// only ever encrypts a single 16-byte block.
func EncryptCBC(key, plaintext []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(plaintext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("CBC plaintext not block aligned: %d bytes", len(plaintext))
	}
	out := make([]byte, len(plaintext))
	iv := make([]byte, IVSize)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, plaintext)
	return out, nil
}

// DecryptCBC decrypts ciphertext with AES-128-CBC and an all-zero IV.
func DecryptCBC(key, ciphertext []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("CBC ciphertext not block aligned: %d bytes", len(ciphertext))
	}
	out := make([]byte, len(ciphertext))
	iv := make([]byte, IVSize)
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ciphertext)
	return out, nil
}

// DecryptCTR decrypts (or encrypts; CTR is symmetric) data with AES-128-CTR
// under the given 16-byte IV.
func DecryptCTR(key, iv, data []byte) ([]byte, error) {
	block, err := newBlock(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("CTR IV must be %d bytes, got %d", IVSize, len(iv))
	}
	out := make([]byte, len(data))
	cipher.NewCTR(block, iv).XORKeyStream(out, data)
	return out, nil
}

// AddToIV returns a copy of iv with delta added as a big-endian 128-bit
// integer. The encrypted-read coordinator advances the per-packet IV this
// way; the carry must propagate across the full IV.
func AddToIV(iv []byte, delta uint64) []byte {
	out := make([]byte, len(iv))
	copy(out, iv)
	for i := len(out) - 1; i >= 0 && delta > 0; i-- {
		sum := uint64(out[i]) + (delta & 0xFF)
		out[i] = byte(sum)
		delta = (delta >> 8) + (sum >> 8)
	}
	return out
}

// SecureRandom fills a fresh n-byte slice from the system CSPRNG.
func SecureRandom(n int) ([]byte, error) {
	out := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		return nil, fmt.Errorf("failed to draw %d random bytes: %w", n, err)
	}
	return out, nil
}

func newBlock(key []byte) (cipher.Block, error) {
	if len(key) != KeySize {
		return nil, &ErrInvalidKey{Len: len(key)}
	}
	return aes.NewCipher(key)
}
