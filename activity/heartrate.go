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
	"fmt"
	"time"

	"github.com/openhybrid/qwatch/codec"
)

// HeartRateMeasurement is one notification from the standard GATT
// heart-rate measurement characteristic (0x2A37), which the watch exposes
// alongside its proprietary service.
type HeartRateMeasurement struct {
	HeartRate        int
	ContactDetected  bool
	ContactSupported bool
	EnergyExpended   *uint16         // kJ, present only when flagged
	RRIntervals      []time.Duration // beat-to-beat intervals
}

// Flag bits of the measurement's first byte.
const (
	hrmFlag16Bit           = 0x01
	hrmFlagContactDetected = 0x02
	hrmFlagContactSupport  = 0x04
	hrmFlagEnergyExpended  = 0x08
	hrmFlagRRIntervals     = 0x10
)

// ParseHeartRateMeasurement decodes a heart-rate measurement notification.
func ParseHeartRateMeasurement(data []byte) (*HeartRateMeasurement, error) {
	if len(data) < 2 {
		return nil, fmt.Errorf("heart-rate measurement too short: %d bytes", len(data))
	}
	buf := codec.NewBufferFrom(data)
	flags, _ := buf.ReadUint8()

	m := &HeartRateMeasurement{
		ContactSupported: flags&hrmFlagContactSupport != 0,
		ContactDetected:  flags&hrmFlagContactDetected != 0,
	}

	if flags&hrmFlag16Bit != 0 {
		v, err := buf.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("truncated 16-bit heart rate: %w", err)
		}
		m.HeartRate = int(v)
	} else {
		v, _ := buf.ReadUint8()
		m.HeartRate = int(v)
	}

	if flags&hrmFlagEnergyExpended != 0 {
		v, err := buf.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("truncated energy-expended field: %w", err)
		}
		m.EnergyExpended = &v
	}

	if flags&hrmFlagRRIntervals != 0 {
		for buf.Remaining() >= 2 {
			v, _ := buf.ReadUint16()
			// RR intervals are in units of 1/1024 s.
			m.RRIntervals = append(m.RRIntervals, time.Duration(v)*time.Second/1024)
		}
	}

	return m, nil
}
