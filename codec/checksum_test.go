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

import "testing"

// The two polynomials sit in different protocol layers; both check
// vectors come from the CRC catalogue.

func TestChecksumKnownVector(t *testing.T) {
	got := Checksum([]byte("123456789"))
	if got != 0xCBF43926 {
		t.Errorf("crc32(123456789) = %#08x, want 0xCBF43926", got)
	}
}

func TestChecksumCKnownVector(t *testing.T) {
	got := ChecksumC([]byte("123456789"))
	if got != 0xE3069283 {
		t.Errorf("crc32c(123456789) = %#08x, want 0xE3069283", got)
	}
}

func TestChecksumsDiffer(t *testing.T) {
	data := []byte("qwatch")
	if Checksum(data) == ChecksumC(data) {
		t.Error("IEEE and Castagnoli checksums must not agree")
	}
}

func TestRunningChecksumMatchesOneShot(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	var r RunningChecksum
	for i := 0; i < len(data); i += 7 {
		end := i + 7
		if end > len(data) {
			end = len(data)
		}
		r.Update(data[i:end])
	}
	if r.Sum() != Checksum(data) {
		t.Errorf("running sum %#08x != one-shot %#08x", r.Sum(), Checksum(data))
	}
}

func TestSealedContentVerifies(t *testing.T) {
	body := []byte("watch app binary")
	sealed := SealContent(body)
	if len(sealed) != len(body)+4 {
		t.Fatalf("sealed length %d", len(sealed))
	}
	if !VerifyContent(sealed) {
		t.Error("sealed content does not verify")
	}
	sealed[3] ^= 0x01
	if VerifyContent(sealed) {
		t.Error("corrupted content verified")
	}
	if VerifyContent([]byte{1, 2, 3}) {
		t.Error("content shorter than a trailer verified")
	}
}

func TestRunningChecksumEmpty(t *testing.T) {
	var r RunningChecksum
	if r.Sum() != 0 {
		t.Errorf("empty running checksum = %#08x, want 0", r.Sum())
	}
}
