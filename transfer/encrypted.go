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
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/openhybrid/qwatch/codec"
	"github.com/openhybrid/qwatch/security"
	"github.com/openhybrid/qwatch/transport"
	"github.com/openhybrid/qwatch/wire"
)

// DefaultEncryptedTimeout bounds a whole encrypted read.
const DefaultEncryptedTimeout = 20 * time.Second

// The device does not announce the IV stride it applies between CTR
// packets; it is recovered by trial decryption of packet 1 over this
// candidate range. The stride varies per session, so the search cannot
// be replaced with a constant.
const (
	strideSearchMin = 0x1E
	strideSearchMax = 0x2F
)

// Per-packet plaintext header byte: the top bit marks the final packet.
// The remaining bits are unused by known firmware and are not validated.
const (
	packetHeaderLast = 0x81
	packetHeaderMore = 0x01
	packetLastFlag   = 0x80
)

// Coordinator runs the two-phase encrypted read: a CRC-verified lookup that
// resolves the dynamic handle, then an AES-CTR encrypted get. Credentials
// must come from a handshake run immediately before each Fetch; a stale
// random pair corrupts the derived IV.
type Coordinator struct {
	control    transport.Channel
	data       transport.Channel
	dispatcher *transport.Dispatcher
	timeout    time.Duration
	logger     *slog.Logger
}

// NewCoordinator creates an encrypted-read coordinator over the paired
// channels.
func NewCoordinator(control, data transport.Channel, dispatcher *transport.Dispatcher) *Coordinator {
	return &Coordinator{
		control:    control,
		data:       data,
		dispatcher: dispatcher,
		timeout:    DefaultEncryptedTimeout,
		logger:     slog.Default(),
	}
}

// SetTimeout overrides the per-fetch timeout.
func (c *Coordinator) SetTimeout(d time.Duration) {
	c.timeout = d
}

// SetLogger overrides the stride-recovery diagnostic logger.
func (c *Coordinator) SetLogger(logger *slog.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// readPhase tracks one encrypted read while it is in flight.
type readPhase struct {
	dynamicHandle wire.Handle
	fileSize      int
	decrypted     []byte
	originalIV    []byte
	ivIncrementor uint64 // discovered on packet 1
	packetCount   int
}

// packetQueue accumulates ciphertext packets without bounding them. The
// device may push an entire file in one notification burst before the
// consumer starts draining, so dropping on overflow loses ciphertext.
type packetQueue struct {
	mu      sync.Mutex
	packets [][]byte
	ready   chan struct{}
}

func newPacketQueue() *packetQueue {
	return &packetQueue{ready: make(chan struct{}, 1)}
}

func (q *packetQueue) push(pkt []byte) {
	q.mu.Lock()
	q.packets = append(q.packets, pkt)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *packetQueue) pop() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.packets) == 0 {
		return nil, false
	}
	pkt := q.packets[0]
	q.packets = q.packets[1:]
	return pkt, true
}

// Fetch resolves the dynamic handle for h and reads its encrypted content.
// The returned buffer is exactly the announced file size and has been
// CRC-verified against the device-reported value.
func (c *Coordinator) Fetch(ctx context.Context, creds *security.Credentials, h wire.Handle) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	dynamic, err := c.lookup(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("handle lookup for %s failed: %w", h, err)
	}

	return c.encryptedGet(ctx, creds, dynamic)
}

// lookup runs phase A: ask for the dynamic handle of a major, accumulate
// the raw answer on the data channel, CRC-verify it, and decode the first
// two bytes as the little-endian (minor, major) pair.
func (c *Coordinator) lookup(ctx context.Context, h wire.Handle) (wire.Handle, error) {
	payload, err := receiveFile(ctx, c.control, c.data, c.dispatcher, c.timeout,
		h, wire.LookupRequest(h.Major))
	if err != nil {
		return wire.Handle{}, err
	}
	if len(payload) < 2 {
		return wire.Handle{}, &ErrLengthMismatch{Want: 2, Got: len(payload)}
	}
	dynamic := wire.Handle{Minor: payload[0], Major: payload[1]}
	return dynamic, nil
}

// encryptedGet runs phase B against the resolved dynamic handle.
func (c *Coordinator) encryptedGet(ctx context.Context, creds *security.Credentials, dynamic wire.Handle) ([]byte, error) {
	queue := newPacketQueue()
	unsubscribe, err := c.data.Subscribe(queue.push)
	if err != nil {
		return nil, errors.Wrap(err, "data channel subscribe failed")
	}
	defer unsubscribe()

	initPending, err := c.dispatcher.Expect(wire.KindGetInit, nil)
	if err != nil {
		return nil, err
	}
	completePending, err := c.dispatcher.Expect(wire.KindComplete, nil)
	if err != nil {
		initPending.Cancel()
		return nil, err
	}
	if err := c.control.Write(ctx, wire.GetRequest(dynamic, 0, 0xFFFFFFFF), true); err != nil {
		initPending.Cancel()
		completePending.Cancel()
		return nil, errors.Wrap(err, "encrypted get write failed")
	}

	frame, err := initPending.Wait(ctx, c.timeout)
	if err != nil {
		completePending.Cancel()
		return nil, fmt.Errorf("waiting for encrypted-get announce: %w", err)
	}
	announce, err := wire.ParseGetInit(frame)
	if err != nil {
		completePending.Cancel()
		return nil, err
	}
	if announce.Status != 0 {
		completePending.Cancel()
		return nil, &ErrRejected{Handle: dynamic, Status: announce.Status}
	}
	if announce.Handle != dynamic {
		completePending.Cancel()
		return nil, &ErrUnexpectedHandle{Want: dynamic, Got: announce.Handle}
	}
	if announce.Size == 0 {
		completePending.Cancel()
		return nil, ErrEmptyFile
	}

	phase := &readPhase{
		dynamicHandle: dynamic,
		fileSize:      int(announce.Size),
		originalIV:    creds.FileIV(),
	}

	if err := c.receivePackets(ctx, creds, phase, queue); err != nil {
		completePending.Cancel()
		return nil, err
	}

	frame, err = completePending.Wait(ctx, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for encrypted-get completion: %w", err)
	}
	complete, err := wire.ParseComplete(frame)
	if err != nil {
		return nil, err
	}
	if complete.Status != 0 {
		return nil, &ErrRejected{Handle: dynamic, Status: complete.Status}
	}

	// The completion CRC covers the decrypted bytes, not the ciphertext.
	if got := codec.Checksum(phase.decrypted); got != complete.CRC {
		return nil, &ErrInvalidCRC{Expected: got, Actual: complete.CRC}
	}
	if len(phase.decrypted) != phase.fileSize {
		return nil, &ErrLengthMismatch{Want: phase.fileSize, Got: len(phase.decrypted)}
	}
	return phase.decrypted, nil
}

// receivePackets consumes ciphertext packets until one carries the
// final-packet flag, handling the per-packet IV schedule:
//
//	packet 0:  original IV
//	packet 1:  original + s, with s recovered by trial decryption
//	packet N:  original + s*N
func (c *Coordinator) receivePackets(ctx context.Context, creds *security.Credentials, phase *readPhase, queue *packetQueue) error {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		pkt, ok := queue.pop()
		if !ok {
			select {
			case <-queue.ready:
				continue
			case <-timer.C:
				return fmt.Errorf("timed out after %s waiting for ciphertext packet %d", c.timeout, phase.packetCount)
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if len(pkt) < 2 {
			return fmt.Errorf("ciphertext packet %d is too short (%d bytes)", phase.packetCount, len(pkt))
		}

		var plain []byte
		var err error
		switch n := phase.packetCount; {
		case n == 0:
			plain, err = security.DecryptCTR(creds.SecretKey, phase.originalIV, pkt)
		case n == 1:
			plain, err = c.recoverStride(creds, phase, pkt)
		default:
			iv := security.AddToIV(phase.originalIV, phase.ivIncrementor*uint64(n))
			plain, err = security.DecryptCTR(creds.SecretKey, iv, pkt)
		}
		if err != nil {
			return err
		}

		phase.decrypted = append(phase.decrypted, plain[1:]...)
		phase.packetCount++
		if plain[0]&packetLastFlag != 0 {
			return nil
		}
	}
}

// recoverStride trial-decrypts packet 1 with every candidate stride until
// the plaintext header byte matches the value predicted from whether this
// packet completes the file. The first match fixes the stride for the rest
// of the session.
func (c *Coordinator) recoverStride(creds *security.Credentials, phase *readPhase, pkt []byte) ([]byte, error) {
	expected := byte(packetHeaderMore)
	if len(phase.decrypted)+len(pkt)-1 >= phase.fileSize {
		expected = packetHeaderLast
	}

	for s := uint64(strideSearchMin); s <= uint64(strideSearchMax); s++ {
		iv := security.AddToIV(phase.originalIV, s)
		plain, err := security.DecryptCTR(creds.SecretKey, iv, pkt)
		if err != nil {
			return nil, err
		}
		if plain[0] == expected {
			phase.ivIncrementor = s
			c.logger.Debug("recovered CTR IV stride",
				"stride", s, "handle", phase.dynamicHandle.String())
			return plain, nil
		}
	}
	return nil, errors.Wrapf(ErrInvalidDecryption,
		"tried strides %#02x..%#02x for handle %s", strideSearchMin, strideSearchMax, phase.dynamicHandle)
}
