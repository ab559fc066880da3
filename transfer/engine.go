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

// Package transfer implements the chunked file-transfer side of the watch
// protocol: the plaintext PUT/GET state machine over the paired
// control/data channels, and the two-phase encrypted-read coordinator with
// its IV-stride recovery.
package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openhybrid/qwatch/codec"
	"github.com/openhybrid/qwatch/transport"
	"github.com/openhybrid/qwatch/wire"
)

// DefaultTimeout bounds a whole plaintext transfer.
const DefaultTimeout = 30 * time.Second

// Engine drives plaintext file puts and gets. At most one transfer may be
// active; a concurrent call fails immediately with ErrTransferInProgress.
type Engine struct {
	control    transport.Channel
	data       transport.Channel
	dispatcher *transport.Dispatcher
	mtu        int
	timeout    time.Duration
	active     chan struct{}
}

// NewEngine creates a transfer engine over the paired channels. mtu is the
// negotiated ATT MTU; chunk payloads are sized to mtu-1 to make room for
// the sequence byte.
func NewEngine(control, data transport.Channel, dispatcher *transport.Dispatcher, mtu int) *Engine {
	if mtu <= 1 {
		mtu = transport.DefaultMTU
	}
	e := &Engine{
		control:    control,
		data:       data,
		dispatcher: dispatcher,
		mtu:        mtu,
		timeout:    DefaultTimeout,
		active:     make(chan struct{}, 1),
	}
	e.active <- struct{}{}
	return e
}

// SetTimeout overrides the per-transfer timeout.
func (e *Engine) SetTimeout(d time.Duration) {
	e.timeout = d
}

func (e *Engine) acquire() error {
	select {
	case <-e.active:
		return nil
	default:
		return ErrTransferInProgress
	}
}

func (e *Engine) release() {
	e.active <- struct{}{}
}

// PutFile writes content to the given handle: put header on the control
// channel, sequence-indexed chunks on the data channel, close frame once
// everything is out. The device acks periodically with a running CRC32 over
// the payload bytes received so far; any mismatch aborts before Close.
func (e *Engine) PutFile(ctx context.Context, handle wire.Handle, content []byte) error {
	if err := e.acquire(); err != nil {
		return err
	}
	defer e.release()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	sess := &session{handle: handle, direction: DirectionPut, totalLength: len(content)}

	// Watch for running-CRC acks for the whole transfer.
	acks, stopAcks := e.dispatcher.Observe(wire.KindDataAck)
	defer stopAcks()

	initPending, err := e.dispatcher.Expect(wire.KindPutInit, nil)
	if err != nil {
		return err
	}
	sess.state = StateHeaderSent
	if err := e.control.Write(ctx, wire.PutRequest(handle, uint32(len(content))), true); err != nil {
		initPending.Cancel()
		sess.state = StateFailed
		return errors.Wrap(err, "put header write failed")
	}

	sess.state = StateAwaitingAck
	frame, err := initPending.Wait(ctx, e.timeout)
	if err != nil {
		sess.state = StateFailed
		return fmt.Errorf("waiting for put-init ack: %w", err)
	}
	init, err := wire.ParsePutInit(frame)
	if err != nil {
		sess.state = StateFailed
		return err
	}
	if init.Status != 0 {
		sess.state = StateFailed
		return &ErrRejected{Handle: handle, Status: init.Status}
	}

	// Stream the chunks, tracking the CRC32 prefix at every chunk boundary
	// so a lagging ack can still be matched against the exact prefix the
	// device had seen.
	sess.state = StateSendingData
	var running codec.RunningChecksum
	chunkSize := e.mtu - 1
	prefixes := make([]uint32, 0, len(content)/chunkSize+1)

	for off := 0; off < len(content); off += chunkSize {
		end := off + chunkSize
		if end > len(content) {
			end = len(content)
		}
		payload := content[off:end]
		if err := e.data.Write(ctx, wire.Chunk(sess.nextSeq(), payload), false); err != nil {
			sess.state = StateFailed
			return errors.Wrap(err, "chunk write failed")
		}
		running.Update(payload)
		prefixes = append(prefixes, running.Sum())
		sess.bytesTransferred = end

		if err := e.checkAcks(acks, handle, prefixes); err != nil {
			sess.state = StateFailed
			return err
		}
	}

	// Drain any ack that raced the last chunk before closing.
	if err := e.checkAcks(acks, handle, prefixes); err != nil {
		sess.state = StateFailed
		return err
	}

	sess.state = StateClosing
	completePending, err := e.dispatcher.Expect(wire.KindComplete, nil)
	if err != nil {
		sess.state = StateFailed
		return err
	}
	if err := e.control.Write(ctx, wire.CloseRequest(handle), true); err != nil {
		completePending.Cancel()
		sess.state = StateFailed
		return errors.Wrap(err, "close write failed")
	}
	frame, err = completePending.Wait(ctx, e.timeout)
	if err != nil {
		sess.state = StateFailed
		return fmt.Errorf("waiting for put completion: %w", err)
	}
	complete, err := wire.ParseComplete(frame)
	if err != nil {
		sess.state = StateFailed
		return err
	}
	if complete.Status != 0 {
		sess.state = StateFailed
		return &ErrRejected{Handle: handle, Status: complete.Status}
	}
	if complete.CRC != running.Sum() {
		sess.state = StateFailed
		return &ErrInvalidCRC{Expected: running.Sum(), Actual: complete.CRC}
	}

	sess.state = StateComplete
	return nil
}

// checkAcks drains pending data acks and validates each against the
// recorded CRC prefixes. Device acks land on chunk boundaries, though not
// necessarily the latest one.
func (e *Engine) checkAcks(acks <-chan []byte, handle wire.Handle, prefixes []uint32) error {
	for {
		select {
		case frame := <-acks:
			ack, err := wire.ParseDataAck(frame)
			if err != nil {
				return err
			}
			if ack.Handle != handle {
				return &ErrUnexpectedHandle{Want: handle, Got: ack.Handle}
			}
			if !matchesPrefix(ack.CRC, prefixes) {
				var latest uint32
				if len(prefixes) > 0 {
					latest = prefixes[len(prefixes)-1]
				}
				return &ErrInvalidCRC{Expected: latest, Actual: ack.CRC}
			}
		default:
			return nil
		}
	}
}

func matchesPrefix(crc uint32, prefixes []uint32) bool {
	for i := len(prefixes) - 1; i >= 0; i-- {
		if prefixes[i] == crc {
			return true
		}
	}
	return false
}

// GetFile reads the byte range [start, end) of a handle in plaintext. The
// device announces the byte count, streams raw data-channel notifications,
// and finishes with a completion frame whose CRC32 covers the payload.
func (e *Engine) GetFile(ctx context.Context, handle wire.Handle, start, end uint32) ([]byte, error) {
	if err := e.acquire(); err != nil {
		return nil, err
	}
	defer e.release()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	return receiveFile(ctx, e.control, e.data, e.dispatcher, e.timeout,
		handle, wire.GetRequest(handle, start, end))
}

// receiveFile runs the shared announce/stream/complete read flow used by
// plaintext gets and by the lookup phase of encrypted reads.
func receiveFile(ctx context.Context, control, data transport.Channel, dispatcher *transport.Dispatcher,
	timeout time.Duration, handle wire.Handle, request []byte) ([]byte, error) {

	var (
		payloadMu sync.Mutex
		payload   []byte
	)
	unsubscribe, err := data.Subscribe(func(chunk []byte) {
		payloadMu.Lock()
		payload = append(payload, chunk...)
		payloadMu.Unlock()
	})
	if err != nil {
		return nil, errors.Wrap(err, "data channel subscribe failed")
	}
	defer unsubscribe()

	initPending, err := dispatcher.Expect(wire.KindGetInit, nil)
	if err != nil {
		return nil, err
	}
	completePending, err := dispatcher.Expect(wire.KindComplete, nil)
	if err != nil {
		initPending.Cancel()
		return nil, err
	}
	if err := control.Write(ctx, request, true); err != nil {
		initPending.Cancel()
		completePending.Cancel()
		return nil, errors.Wrap(err, "read request write failed")
	}

	frame, err := initPending.Wait(ctx, timeout)
	if err != nil {
		completePending.Cancel()
		return nil, fmt.Errorf("waiting for read announce: %w", err)
	}
	announce, err := wire.ParseGetInit(frame)
	if err != nil {
		completePending.Cancel()
		return nil, err
	}
	if announce.Status != 0 {
		completePending.Cancel()
		return nil, &ErrRejected{Handle: handle, Status: announce.Status}
	}

	frame, err = completePending.Wait(ctx, timeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for read completion: %w", err)
	}
	complete, err := wire.ParseComplete(frame)
	if err != nil {
		return nil, err
	}
	if complete.Status != 0 {
		return nil, &ErrRejected{Handle: handle, Status: complete.Status}
	}

	payloadMu.Lock()
	received := payload
	payloadMu.Unlock()
	if got := codec.Checksum(received); got != complete.CRC {
		return nil, &ErrInvalidCRC{Expected: got, Actual: complete.CRC}
	}
	if announce.Size != 0 && int(announce.Size) != len(received) {
		return nil, &ErrLengthMismatch{Want: int(announce.Size), Got: len(received)}
	}
	return received, nil
}
