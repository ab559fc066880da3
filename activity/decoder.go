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
	"log/slog"
	"time"

	"github.com/openhybrid/qwatch/codec"
)

// HeaderSize is the fixed activity-file header length.
const HeaderSize = 52

// ExpectedVersion is the format version this decoder was verified against.
// Other versions decode with a warning; the format is reverse-engineered,
// not authoritative.
const ExpectedVersion = 22

// Record type markers.
const (
	recMainSample = 0xCE
	recWorkout    = 0xE0
	recSpO2       = 0xD6
	recFillerC2   = 0xC2
	recFillerE2   = 0xE2
	recFillerDD   = 0xDD
	recFillerCB   = 0xCB
	recFillerCC   = 0xCC
	recFillerCF   = 0xCF
)

// ErrFileTooSmall is returned for inputs under the minimum header length.
type ErrFileTooSmall struct {
	Len int
}

func (e *ErrFileTooSmall) Error() string {
	return fmt.Sprintf("activity file is %d bytes, need at least %d", e.Len, HeaderSize)
}

// Decoder is a single-pass stateful decoder over a decrypted activity file.
type Decoder struct {
	logger *slog.Logger
}

// NewDecoder creates a decoder logging through the default slog handler.
func NewDecoder() *Decoder {
	return NewDecoderWithLogger(slog.Default())
}

// NewDecoderWithLogger creates a decoder with an explicit logger.
func NewDecoderWithLogger(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// decodeState carries the cursor and the running sample clock.
type decodeState struct {
	buf   *codec.Buffer
	clock time.Time
	out   *File
}

// Decode parses a decrypted activity buffer into typed telemetry. Unknown
// bytes are skipped one at a time without resynchronization, so output
// after malformed content is best-effort.
func (d *Decoder) Decode(data []byte) (*File, error) {
	if len(data) < HeaderSize {
		return nil, &ErrFileTooSmall{Len: len(data)}
	}

	version := data[2]
	if version != ExpectedVersion {
		d.logger.Warn("unexpected activity file version, decoding anyway",
			"version", version, "expected", ExpectedVersion)
	}

	buf := codec.NewBufferFrom(data)
	_ = buf.Seek(8)
	startTS, _ := buf.ReadUint32()
	_ = buf.Seek(HeaderSize)

	st := &decodeState{
		buf:   buf,
		clock: time.Unix(int64(startTS), 0).UTC(),
		out: &File{
			Version: version,
			Start:   time.Unix(int64(startTS), 0).UTC(),
		},
	}

	for st.buf.Remaining() > 0 {
		d.decodeRecord(st)
	}
	return st.out, nil
}

// decodeRecord consumes one record at the cursor. Dispatch keys on the
// leading byte, except that a main sample is preceded by its wear byte, so
// the 0xCE marker is recognized one byte ahead.
func (d *Decoder) decodeRecord(st *decodeState) {
	if next, err := st.buf.Peek(1); err == nil && next == recMainSample {
		d.decodeMainSample(st)
		return
	}

	lead, err := st.buf.ReadUint8()
	if err != nil {
		return
	}
	switch lead {
	case recWorkout:
		d.decodeWorkout(st)
	case recSpO2:
		d.decodeSpO2(st)
	case recFillerC2:
		_ = st.buf.Skip(4) // marker + 4 fixed bytes
	case recFillerDD:
		_ = st.buf.Skip(3)
	case recFillerCB, recFillerCC, recFillerCF:
		_ = st.buf.Skip(1)
	case recFillerE2:
		_ = st.buf.Skip(1)
		// Lookahead-conditional tail: two more bytes belong to the filler
		// unless the next byte starts a plausible record.
		if !d.atRecordBoundary(st) {
			_ = st.buf.Skip(2)
		}
	default:
		// Unknown byte: already consumed, no resynchronization attempted.
	}
}

// atRecordBoundary reports whether the cursor sits on a plausible record
// start: one of the known markers, or a wear byte directly before a 0xCE.
func (d *Decoder) atRecordBoundary(st *decodeState) bool {
	b, err := st.buf.Peek(0)
	if err != nil {
		return true // end of buffer terminates any filler
	}
	switch b {
	case recMainSample, recFillerDD, recFillerCB, recFillerCC, recFillerCF, recSpO2, recFillerE2:
		return true
	}
	next, err := st.buf.Peek(1)
	return err == nil && next == recMainSample
}

// decodeMainSample parses a wear byte, the 0xCE marker, the two packed
// step/variability bytes, the heart rate, and the calories byte. Each
// completed sample advances the running clock by exactly one minute.
func (d *Decoder) decodeMainSample(st *decodeState) {
	wear, err1 := st.buf.ReadUint8()
	_, err2 := st.buf.ReadUint8() // 0xCE marker
	lower, err3 := st.buf.ReadUint8()
	higher, err4 := st.buf.ReadUint8()
	heartRate, err5 := st.buf.ReadUint8()
	calByte, err6 := st.buf.ReadUint8()
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return // truncated record at end of buffer
	}

	sample := Sample{
		Timestamp:        st.clock,
		HeartRate:        int(heartRate),
		HeartRateQuality: (wear >> 5) & 0x07,
		Wearing:          WearingState((wear >> 3) & 0x03),
		Calories:         int(calByte & 0x3F),
		Active:           calByte&0x40 != 0,
	}

	// Two mutually exclusive bit layouts for steps and variability,
	// selected by bit 0 of the lower packed byte. The masked-shift
	// interpretation here is the empirically verified one; protocol notes
	// disagree on the details, so treat it as provisional.
	if lower&0x01 != 0 {
		sample.Steps = int((lower & 0x0E) >> 1)
		if lower&0x80 != 0 {
			v := int(lower&0x70)>>4 | int(higher)<<3
			sample.Variability = v
			sample.MaxVariability = v
		} else {
			sample.Variability = int(lower&0x70) >> 4
			sample.MaxVariability = int(higher)
		}
	} else {
		sample.Steps = int((lower & 0xFE) >> 1)
		sample.Variability = int(higher) * int(higher) * 64
	}

	st.out.Samples = append(st.out.Samples, sample)
	st.clock = st.clock.Add(time.Minute)

	// A 0xD6 immediately after a main sample is an embedded SpO2 record.
	if b, err := st.buf.Peek(0); err == nil && b == recSpO2 {
		_ = st.buf.Skip(1)
		d.decodeSpO2(st)
	}
}

// decodeSpO2 parses the body of a 0xD6 record (marker already consumed):
// a timestamp, the percentage, and two quality/confidence bytes that are
// consumed but not surfaced.
func (d *Decoder) decodeSpO2(st *decodeState) {
	ts, err := st.buf.ReadUint32()
	if err != nil {
		return
	}
	pct, err := st.buf.ReadUint8()
	if err != nil {
		return
	}
	_ = st.buf.Skip(2)

	st.out.SpO2 = append(st.out.SpO2, SpO2Sample{
		Timestamp:  time.Unix(int64(ts), 0).UTC(),
		Percentage: pct,
	})
}

// decodeWorkout parses the body of a 0xE0 record: exactly fourteen
// (attribute, length, payload) triplets.
func (d *Decoder) decodeWorkout(st *decodeState) {
	var summary WorkoutSummary
	for i := 0; i < 14; i++ {
		attr, err := st.buf.ReadUint8()
		if err != nil {
			return
		}
		length, err := st.buf.ReadUint8()
		if err != nil {
			return
		}
		payload, err := st.buf.ReadBytes(int(length))
		if err != nil {
			return
		}

		switch {
		case attr == 2 && length == 4:
			secs := codec.NewBufferFrom(payload)
			v, _ := secs.ReadUint32()
			summary.Duration = time.Duration(v) * time.Second
		case attr == 9 && length == 1:
			summary.TypeCode = payload[0]
			summary.Type = workoutTypeCodes[payload[0]]
		}
	}
	st.out.Workouts = append(st.out.Workouts, summary)
}
