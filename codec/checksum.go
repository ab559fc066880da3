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

package codec

import "hash/crc32"

// The watch uses two distinct CRC32 polynomials at different layers:
//
//   - Standard CRC32 (IEEE 802.3) protects transfer integrity: running
//     data acks, lookup payloads, and the decrypted output of encrypted
//     reads are all checked with it.
//   - CRC32C (Castagnoli) is the content checksum embedded in files the
//     phone authors (watch apps, configuration) so the watch can validate
//     what it stores.
//
// Conflating the two is a known defect class; always go through the named
// helper for the layer at hand.

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Checksum returns the standard (IEEE) CRC32 of data.
func Checksum(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}

// ChecksumC returns the Castagnoli CRC32 of data.
func ChecksumC(data []byte) uint32 {
	return crc32.Checksum(data, castagnoliTable)
}

// SealContent appends the little-endian Castagnoli CRC32 of data, the
// trailer format the watch validates on files the phone authors.
func SealContent(data []byte) []byte {
	out := make([]byte, 0, len(data)+4)
	out = append(out, data...)
	crc := ChecksumC(data)
	return append(out, byte(crc), byte(crc>>8), byte(crc>>16), byte(crc>>24))
}

// VerifyContent reports whether data carries a valid Castagnoli trailer.
func VerifyContent(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	body, trailer := data[:len(data)-4], data[len(data)-4:]
	crc := ChecksumC(body)
	return trailer[0] == byte(crc) && trailer[1] == byte(crc>>8) &&
		trailer[2] == byte(crc>>16) && trailer[3] == byte(crc>>24)
}

// RunningChecksum accumulates a standard CRC32 across multiple updates.
// Used to mirror the device-side running CRC during chunked transfers.
type RunningChecksum struct {
	crc uint32
}

// Update folds data into the running checksum.
func (r *RunningChecksum) Update(data []byte) {
	r.crc = crc32.Update(r.crc, crc32.IEEETable, data)
}

// Sum returns the current checksum value.
func (r *RunningChecksum) Sum() uint32 {
	return r.crc
}
