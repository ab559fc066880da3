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

package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/openhybrid/qwatch/wire"
)

// ErrSlotBusy is returned when a waiter is already registered for a frame
// kind. The protocol allows at most one outstanding exchange per kind.
type ErrSlotBusy struct {
	Kind wire.Kind
}

func (e *ErrSlotBusy) Error() string {
	return fmt.Sprintf("a waiter is already registered for %s frames", e.Kind)
}

// ErrWaitTimeout is returned when no matching frame arrives in time.
type ErrWaitTimeout struct {
	Kind  wire.Kind
	After time.Duration
}

func (e *ErrWaitTimeout) Error() string {
	return fmt.Sprintf("timed out after %s waiting for a %s frame", e.After, e.Kind)
}

// Dispatcher demultiplexes control-channel notifications into one-shot
// response slots keyed by frame kind. Each slot resumes its waiter exactly
// once; frames arriving after the waiter has timed out or been cancelled
// are dropped rather than resuming a completed call.
type Dispatcher struct {
	mu          sync.Mutex
	slots       map[wire.Kind]*slot
	observers   map[wire.Kind]map[int]chan []byte
	nextObserve int
	unsubscribe func()
	dropped     int
}

type slot struct {
	match    func([]byte) bool
	resume   chan []byte
	consumed bool
}

// NewDispatcher subscribes to the control channel and returns the running
// dispatcher. Callers must Close it to release the subscription.
func NewDispatcher(control Channel) (*Dispatcher, error) {
	d := &Dispatcher{
		slots:     make(map[wire.Kind]*slot),
		observers: make(map[wire.Kind]map[int]chan []byte),
	}
	unsub, err := control.Subscribe(d.dispatch)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to control channel: %w", err)
	}
	d.unsubscribe = unsub
	return d, nil
}

// Close releases the control-channel subscription. Outstanding waiters will
// time out on their own.
func (d *Dispatcher) Close() {
	if d.unsubscribe != nil {
		d.unsubscribe()
		d.unsubscribe = nil
	}
}

func (d *Dispatcher) dispatch(frame []byte) {
	kind := wire.KindOf(frame)
	if kind == wire.KindUnknown {
		return
	}

	buf := make([]byte, len(frame))
	copy(buf, frame)

	d.mu.Lock()
	delivered := false
	for _, ch := range d.observers[kind] {
		select {
		case ch <- buf:
			delivered = true
		default:
			// A stalled observer must not block the notify path.
		}
	}
	s, ok := d.slots[kind]
	if !ok || s.consumed || (s.match != nil && !s.match(buf)) {
		if !delivered {
			d.dropped++
		}
		d.mu.Unlock()
		return
	}
	s.consumed = true
	delete(d.slots, kind)
	d.mu.Unlock()

	// The resume channel is buffered; this never blocks the notify path.
	s.resume <- buf
}

// Observe registers a persistent watcher for every frame of the given kind.
// Unlike Expect, observation does not consume frames and never expires on
// its own; cancel must be called to release it. Used for the unsolicited
// running-CRC acks during chunked writes.
func (d *Dispatcher) Observe(kind wire.Kind) (<-chan []byte, func()) {
	ch := make(chan []byte, 16)
	d.mu.Lock()
	id := d.nextObserve
	d.nextObserve++
	if d.observers[kind] == nil {
		d.observers[kind] = make(map[int]chan []byte)
	}
	d.observers[kind][id] = ch
	d.mu.Unlock()

	cancel := func() {
		d.mu.Lock()
		delete(d.observers[kind], id)
		d.mu.Unlock()
	}
	return ch, cancel
}

// Dropped reports how many frames arrived with no live waiter. Useful when
// diagnosing desynchronized exchanges.
func (d *Dispatcher) Dropped() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped
}

// Expect registers a one-shot waiter for the next frame of the given kind.
// The optional match narrows acceptance (for example to a handshake
// sub-opcode); non-matching frames of the kind are dropped. Registration
// must happen before the request is written so the response cannot race the
// waiter.
func (d *Dispatcher) Expect(kind wire.Kind, match func([]byte) bool) (*Pending, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.slots[kind]; ok {
		return nil, &ErrSlotBusy{Kind: kind}
	}
	s := &slot{match: match, resume: make(chan []byte, 1)}
	d.slots[kind] = s
	return &Pending{d: d, kind: kind, s: s}, nil
}

// Pending is a registered one-shot wait for a response frame.
type Pending struct {
	d    *Dispatcher
	kind wire.Kind
	s    *slot
}

// Wait blocks until the matching frame arrives, the timeout elapses, or ctx
// is cancelled. The slot is cleared exactly once in every outcome; a late
// frame cannot resume a call that already returned.
func (p *Pending) Wait(ctx context.Context, timeout time.Duration) ([]byte, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case frame := <-p.s.resume:
		return frame, nil
	case <-timer.C:
		p.Cancel()
		return nil, &ErrWaitTimeout{Kind: p.kind, After: timeout}
	case <-ctx.Done():
		p.Cancel()
		return nil, ctx.Err()
	}
}

// Cancel removes the waiter if it has not already been resumed.
func (p *Pending) Cancel() {
	p.d.mu.Lock()
	defer p.d.mu.Unlock()
	if s, ok := p.d.slots[p.kind]; ok && s == p.s {
		s.consumed = true
		delete(p.d.slots, p.kind)
	}
}
