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

package security

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openhybrid/qwatch/transport"
	"github.com/openhybrid/qwatch/wire"
)

// DefaultHandshakeTimeout bounds each wait during the handshake.
const DefaultHandshakeTimeout = 10 * time.Second

// ErrChallengeMismatch is returned when the device echoes a phone random
// other than the one we sent. Either the key is wrong or a stale frame was
// consumed.
var ErrChallengeMismatch = errors.New("device echoed a different phone random")

// ErrHandshakeInProgress is returned when Authenticate is invoked while a
// handshake is already outstanding.
var ErrHandshakeInProgress = errors.New("a handshake is already in progress")

// ErrRejected is returned when the device answers the handshake response
// with a non-zero status.
type ErrRejected struct {
	Status uint8
}

func (e *ErrRejected) Error() string {
	return fmt.Sprintf("device rejected the handshake (status %#02x)", e.Status)
}

// ErrInvalidResponse is returned when a handshake frame does not have the
// expected shape.
type ErrInvalidResponse struct {
	Reason string
}

func (e *ErrInvalidResponse) Error() string {
	return "invalid handshake response: " + e.Reason
}

// Engine runs the challenge-response handshake against a connected watch.
// At most one handshake may be outstanding at a time.
type Engine struct {
	control    transport.Channel
	dispatcher *transport.Dispatcher
	timeout    time.Duration
	busy       chan struct{}
}

// NewEngine creates a handshake engine over the control channel. The
// dispatcher must be subscribed to the same channel.
func NewEngine(control transport.Channel, dispatcher *transport.Dispatcher) *Engine {
	e := &Engine{
		control:    control,
		dispatcher: dispatcher,
		timeout:    DefaultHandshakeTimeout,
		busy:       make(chan struct{}, 1),
	}
	e.busy <- struct{}{}
	return e
}

// SetTimeout overrides the per-wait handshake timeout.
func (e *Engine) SetTimeout(d time.Duration) {
	e.timeout = d
}

func authSubMatcher(sub uint8) func([]byte) bool {
	return func(frame []byte) bool {
		return len(frame) > 1 && frame[1] == sub
	}
}

// Authenticate executes the handshake and returns fresh session
// credentials. The phone random is drawn anew on every call; a response
// arriving after the bounded wait is discarded by the dispatcher.
func (e *Engine) Authenticate(ctx context.Context, secretKey []byte) (*Credentials, error) {
	if len(secretKey) != KeySize {
		return nil, &ErrInvalidKey{Len: len(secretKey)}
	}

	select {
	case <-e.busy:
		defer func() { e.busy <- struct{}{} }()
	default:
		return nil, ErrHandshakeInProgress
	}

	phoneRandom, err := SecureRandom(RandomSize)
	if err != nil {
		return nil, err
	}

	// Register before writing so the response cannot race the waiter.
	pending, err := e.dispatcher.Expect(wire.KindAuth, authSubMatcher(wire.AuthSubChallenge))
	if err != nil {
		return nil, err
	}
	if err := e.control.Write(ctx, wire.AuthStartRequest(phoneRandom), true); err != nil {
		pending.Cancel()
		return nil, fmt.Errorf("handshake start write failed: %w", err)
	}

	frame, err := pending.Wait(ctx, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for challenge: %w", err)
	}
	if len(frame) < 20 {
		return nil, &ErrInvalidResponse{Reason: fmt.Sprintf("challenge frame is %d bytes, need 20", len(frame))}
	}

	plain, err := DecryptCBC(secretKey, frame[4:20])
	if err != nil {
		return nil, fmt.Errorf("challenge decrypt failed: %w", err)
	}
	watchRandom := plain[:RandomSize]
	if !bytes.Equal(plain[RandomSize:], phoneRandom) {
		return nil, ErrChallengeMismatch
	}

	// Prove key possession by returning the randoms swapped.
	swapped := make([]byte, 0, 2*RandomSize)
	swapped = append(swapped, plain[RandomSize:]...)
	swapped = append(swapped, plain[:RandomSize]...)
	encrypted, err := EncryptCBC(secretKey, swapped)
	if err != nil {
		return nil, fmt.Errorf("response encrypt failed: %w", err)
	}

	pending, err = e.dispatcher.Expect(wire.KindAuth, authSubMatcher(wire.AuthSubResponse))
	if err != nil {
		return nil, err
	}
	if err := e.control.Write(ctx, wire.AuthResponseRequest(encrypted), true); err != nil {
		pending.Cancel()
		return nil, fmt.Errorf("handshake response write failed: %w", err)
	}

	frame, err = pending.Wait(ctx, e.timeout)
	if err != nil {
		return nil, fmt.Errorf("waiting for handshake result: %w", err)
	}
	result, err := wire.ParseAuthFrame(frame)
	if err != nil {
		return nil, err
	}
	if result.Status != 0 {
		return nil, &ErrRejected{Status: result.Status}
	}

	creds := &Credentials{
		SecretKey:   append([]byte(nil), secretKey...),
		PhoneRandom: phoneRandom,
		WatchRandom: append([]byte(nil), watchRandom...),
	}
	return creds, nil
}

// ConfirmOnDevice runs the post-authentication confirmation prompt: the
// watch shows a prompt and reports whether the wearer accepted. Some
// firmware requires this before encrypted resources become readable.
func (e *Engine) ConfirmOnDevice(ctx context.Context) (bool, error) {
	return e.boolExchange(ctx, wire.AuthSubConfirm, wire.ConfirmRequest())
}

// CheckPairing runs the pairing check sub-exchange and reports whether the
// device considers this phone paired.
func (e *Engine) CheckPairing(ctx context.Context) (bool, error) {
	return e.boolExchange(ctx, wire.AuthSubPair, wire.PairRequest())
}

func (e *Engine) boolExchange(ctx context.Context, sub uint8, request []byte) (bool, error) {
	pending, err := e.dispatcher.Expect(wire.KindAuth, authSubMatcher(sub))
	if err != nil {
		return false, err
	}
	if err := e.control.Write(ctx, request, true); err != nil {
		pending.Cancel()
		return false, fmt.Errorf("confirmation write failed: %w", err)
	}
	frame, err := pending.Wait(ctx, e.timeout)
	if err != nil {
		return false, err
	}
	result, err := wire.ParseAuthFrame(frame)
	if err != nil {
		return false, err
	}
	return result.Status == 0, nil
}
