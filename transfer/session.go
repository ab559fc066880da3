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

package transfer

import "github.com/openhybrid/qwatch/wire"

// State is the position of a transfer in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateHeaderSent
	StateAwaitingAck
	StateSendingData
	StateClosing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateHeaderSent:
		return "header-sent"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateSendingData:
		return "sending-data"
	case StateClosing:
		return "closing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Direction distinguishes puts from gets.
type Direction int

const (
	DirectionPut Direction = iota
	DirectionGet
)

// session tracks one transfer. The BLE link is a single serial resource, so
// at most one session exists at a time; the engine owns it and destroys it
// on completion, failure, or timeout.
type session struct {
	handle           wire.Handle
	direction        Direction
	totalLength      int
	bytesTransferred int
	seq              uint8 // wraps mod 256
	state            State
}

func (s *session) nextSeq() uint8 {
	v := s.seq
	s.seq++ // natural uint8 wraparound
	return v
}
