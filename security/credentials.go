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

// Credentials is the key material of one handshake. A fresh phone/watch
// random pair is generated for every handshake invocation; reusing a pair
// across two encrypted operations repeats a CTR IV under a fixed key and
// breaks confidentiality. Credentials are never mutated, only superseded by
// the next handshake.
type Credentials struct {
	SecretKey   []byte // pre-shared 16-byte key, opaque
	PhoneRandom []byte // 8 bytes, drawn fresh per handshake
	WatchRandom []byte // 8 bytes, received from the device
}

// FileIV derives the base CTR IV for this session's encrypted reads:
// zero except iv[2..8) = phoneRandom[0..6) and iv[9..16) = watchRandom[0..7),
// then iv[7] incremented by one. The per-packet IVs are offsets from this
// base; see the encrypted-read coordinator.
func (c *Credentials) FileIV() []byte {
	iv := make([]byte, IVSize)
	copy(iv[2:8], c.PhoneRandom[:6])
	copy(iv[9:16], c.WatchRandom[:7])
	iv[7]++
	return iv
}
