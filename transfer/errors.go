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

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/openhybrid/qwatch/wire"
)

// Sentinel errors of the transfer layer. Callers classify with errors.Is;
// the typed errors below carry the context needed to decide between
// retrying a handshake, retrying a transfer, or giving up.
var (
	// ErrTransferInProgress is returned immediately when a transfer is
	// requested while another is active. Nothing is queued.
	ErrTransferInProgress = errors.New("a file transfer is already in progress")

	// ErrInvalidDecryption is returned when no candidate IV stride produces
	// a plausible packet header during an encrypted read.
	ErrInvalidDecryption = errors.New("no IV stride candidate produced a valid packet header")

	// ErrEmptyFile is returned when the device announces a zero-length
	// encrypted file.
	ErrEmptyFile = errors.New("device announced an empty file")
)

// ErrRejected is returned when the device answers a request with a non-zero
// status code.
type ErrRejected struct {
	Handle wire.Handle
	Status uint8
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("device rejected operation on %s with status %#02x", e.Handle, e.Status)
}

// ErrInvalidCRC is returned when a device-reported CRC32 does not match the
// locally computed one.
type ErrInvalidCRC struct {
	Expected uint32 // locally computed
	Actual   uint32 // device reported
}

func (e *ErrInvalidCRC) Error() string {
	return fmt.Sprintf("CRC mismatch: computed %#08x, device reported %#08x", e.Expected, e.Actual)
}

// ErrUnexpectedHandle is returned when a response frame names a handle other
// than the one the operation targets.
type ErrUnexpectedHandle struct {
	Want wire.Handle
	Got  wire.Handle
}

func (e *ErrUnexpectedHandle) Error() string {
	return fmt.Sprintf("response names handle %s, expected %s", e.Got, e.Want)
}

// ErrLengthMismatch is returned when a completed read does not have the
// announced length.
type ErrLengthMismatch struct {
	Want int
	Got  int
}

func (e *ErrLengthMismatch) Error() string {
	return fmt.Sprintf("received %d bytes, device announced %d", e.Got, e.Want)
}
