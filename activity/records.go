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

// Package activity decodes the watch's activity-telemetry file format and
// the standard GATT heart-rate measurement characteristic.
//
// The file format is empirically reverse-engineered: a 52-byte header
// followed by a packet stream with data-dependent record lengths. The
// decoder is best-effort on unknown content and strict only on the minimum
// header length.
package activity

import "time"

// WearingState is the 2-bit on-wrist classification of a sample.
type WearingState uint8

const (
	WearingUnknown WearingState = iota
	WearingWorn
	WearingNotWorn
	WearingCharging
)

func (w WearingState) String() string {
	switch w {
	case WearingWorn:
		return "worn"
	case WearingNotWorn:
		return "not-worn"
	case WearingCharging:
		return "charging"
	default:
		return "unknown"
	}
}

// Sample is one per-minute activity record. The timestamp comes from a
// running clock that starts at the file header's start time and advances by
// exactly 60 seconds per completed main record.
type Sample struct {
	Timestamp        time.Time
	Steps            int
	HeartRate        int
	HeartRateQuality uint8 // 3 bits
	Wearing          WearingState
	Calories         int
	Active           bool
	Variability      int
	MaxVariability   int
}

// SpO2Sample is a blood-oxygen reading, standalone or embedded in a main
// record. It carries its own timestamp.
type SpO2Sample struct {
	Timestamp  time.Time
	Percentage uint8
}

// WorkoutType classifies a workout summary.
type WorkoutType uint8

const (
	WorkoutUnknown WorkoutType = iota
	WorkoutRunning
	WorkoutCycling
	WorkoutTreadmill
	WorkoutWalking
	WorkoutRowing
	WorkoutElliptical
	WorkoutGeneric
	WorkoutHiking
	WorkoutSwimming
)

func (w WorkoutType) String() string {
	switch w {
	case WorkoutRunning:
		return "running"
	case WorkoutCycling:
		return "cycling"
	case WorkoutTreadmill:
		return "treadmill"
	case WorkoutWalking:
		return "walking"
	case WorkoutRowing:
		return "rowing"
	case WorkoutElliptical:
		return "elliptical"
	case WorkoutGeneric:
		return "workout"
	case WorkoutHiking:
		return "hiking"
	case WorkoutSwimming:
		return "swimming"
	default:
		return "unknown"
	}
}

// workoutTypeCodes maps the device's 1-byte workout-type code to a
// WorkoutType. Codes outside the table decode as WorkoutUnknown.
var workoutTypeCodes = map[uint8]WorkoutType{
	1:  WorkoutRunning,
	2:  WorkoutCycling,
	3:  WorkoutTreadmill,
	4:  WorkoutWalking,
	5:  WorkoutRowing,
	6:  WorkoutElliptical,
	8:  WorkoutGeneric,
	9:  WorkoutHiking,
	12: WorkoutSwimming,
}

// WorkoutSummary is the decoded 0xE0 record: a fixed set of attribute
// triplets of which duration and type are understood.
type WorkoutSummary struct {
	Type     WorkoutType
	TypeCode uint8
	Duration time.Duration
}

// File is the decoded activity file.
type File struct {
	Version   uint8
	Start     time.Time
	Samples   []Sample
	SpO2      []SpO2Sample
	Workouts  []WorkoutSummary
}
