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

package activity

import (
	"testing"
	"time"
)

func TestParseHeartRateMeasurement8Bit(t *testing.T) {
	m, err := ParseHeartRateMeasurement([]byte{0x06, 72})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.HeartRate != 72 {
		t.Errorf("heart rate = %d", m.HeartRate)
	}
	if !m.ContactDetected || !m.ContactSupported {
		t.Errorf("contact flags %+v", m)
	}
	if m.EnergyExpended != nil || len(m.RRIntervals) != 0 {
		t.Errorf("unexpected optional fields %+v", m)
	}
}

func TestParseHeartRateMeasurement16BitWithExtras(t *testing.T) {
	// 16-bit HR, energy expended, two RR intervals.
	m, err := ParseHeartRateMeasurement([]byte{
		0x19,
		0x2C, 0x01, // 300 bpm
		0x64, 0x00, // 100 kJ
		0x00, 0x04, // 1024/1024 s = 1s
		0x00, 0x02, // 512/1024 s = 500ms
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.HeartRate != 300 {
		t.Errorf("heart rate = %d", m.HeartRate)
	}
	if m.EnergyExpended == nil || *m.EnergyExpended != 100 {
		t.Errorf("energy expended = %v", m.EnergyExpended)
	}
	if len(m.RRIntervals) != 2 {
		t.Fatalf("rr intervals = %v", m.RRIntervals)
	}
	if m.RRIntervals[0] != time.Second || m.RRIntervals[1] != 500*time.Millisecond {
		t.Errorf("rr intervals = %v", m.RRIntervals)
	}
}

func TestParseHeartRateMeasurementTooShort(t *testing.T) {
	if _, err := ParseHeartRateMeasurement([]byte{0x00}); err == nil {
		t.Error("1-byte measurement accepted")
	}
	if _, err := ParseHeartRateMeasurement([]byte{0x01, 0x48}); err == nil {
		t.Error("truncated 16-bit measurement accepted")
	}
}
