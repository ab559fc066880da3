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
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/openhybrid/qwatch/wire"
)

// fakeChannel lets a test inject notification frames directly.
type fakeChannel struct {
	mu       sync.Mutex
	handlers []func([]byte)
	written  [][]byte
}

func (f *fakeChannel) Write(ctx context.Context, data []byte, confirmed bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, append([]byte(nil), data...))
	return nil
}

func (f *fakeChannel) Subscribe(handler func([]byte)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers = append(f.handlers, handler)
	return func() {}, nil
}

func (f *fakeChannel) notify(frame []byte) {
	f.mu.Lock()
	handlers := append(([]func([]byte))(nil), f.handlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h(frame)
	}
}

func TestExpectDeliversMatchingFrame(t *testing.T) {
	ch := &fakeChannel{}
	d, err := NewDispatcher(ch)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	defer d.Close()

	pending, err := d.Expect(wire.KindComplete, nil)
	if err != nil {
		t.Fatalf("Expect: %v", err)
	}
	frame := wire.BuildComplete(wire.Handle{Major: 1}, 0, 42)
	ch.notify(frame)

	got, err := pending.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Errorf("delivered %x, want %x", got, frame)
	}
}

func TestExpectTimesOut(t *testing.T) {
	ch := &fakeChannel{}
	d, _ := NewDispatcher(ch)
	defer d.Close()

	pending, _ := d.Expect(wire.KindGetInit, nil)
	_, err := pending.Wait(context.Background(), 10*time.Millisecond)
	var timeout *ErrWaitTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("error %v, want *ErrWaitTimeout", err)
	}
	if timeout.Kind != wire.KindGetInit {
		t.Errorf("timeout kind %v", timeout.Kind)
	}

	// A frame arriving after the timeout must be dropped, not queued for
	// the next waiter.
	ch.notify(wire.BuildGetInit(wire.Handle{}, 0, 1))
	if d.Dropped() != 1 {
		t.Errorf("dropped = %d, want 1", d.Dropped())
	}
}

func TestExpectSlotBusy(t *testing.T) {
	ch := &fakeChannel{}
	d, _ := NewDispatcher(ch)
	defer d.Close()

	pending, _ := d.Expect(wire.KindComplete, nil)
	defer pending.Cancel()
	_, err := d.Expect(wire.KindComplete, nil)
	var busy *ErrSlotBusy
	if !errors.As(err, &busy) {
		t.Fatalf("error %v, want *ErrSlotBusy", err)
	}
}

func TestExpectMatchNarrowsAcceptance(t *testing.T) {
	ch := &fakeChannel{}
	d, _ := NewDispatcher(ch)
	defer d.Close()

	pending, _ := d.Expect(wire.KindAuth, func(frame []byte) bool {
		return len(frame) > 1 && frame[1] == 0x02
	})
	ch.notify(wire.BuildAuthFrame(0x01, 0, nil)) // wrong sub, dropped
	ch.notify(wire.BuildAuthFrame(0x02, 0, nil))

	got, err := pending.Wait(context.Background(), time.Second)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if got[1] != 0x02 {
		t.Errorf("delivered sub %#02x", got[1])
	}
}

func TestExpectContextCancellation(t *testing.T) {
	ch := &fakeChannel{}
	d, _ := NewDispatcher(ch)
	defer d.Close()

	pending, _ := d.Expect(wire.KindComplete, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := pending.Wait(ctx, time.Second); !errors.Is(err, context.Canceled) {
		t.Fatalf("error %v, want context.Canceled", err)
	}
}

func TestObserveSeesEveryFrame(t *testing.T) {
	ch := &fakeChannel{}
	d, _ := NewDispatcher(ch)
	defer d.Close()

	acks, cancel := d.Observe(wire.KindDataAck)
	defer cancel()

	for i := 0; i < 3; i++ {
		ch.notify(wire.BuildDataAck(wire.Handle{Major: 0x15}, uint32(i)))
	}
	for i := 0; i < 3; i++ {
		select {
		case frame := <-acks:
			ack, err := wire.ParseDataAck(frame)
			if err != nil {
				t.Fatalf("ParseDataAck: %v", err)
			}
			if ack.CRC != uint32(i) {
				t.Errorf("ack %d carries CRC %d", i, ack.CRC)
			}
		default:
			t.Fatalf("ack %d not delivered", i)
		}
	}
}

func TestObserveDoesNotConsumeSlotFrames(t *testing.T) {
	ch := &fakeChannel{}
	d, _ := NewDispatcher(ch)
	defer d.Close()

	observed, cancel := d.Observe(wire.KindComplete)
	defer cancel()
	pending, _ := d.Expect(wire.KindComplete, nil)

	frame := wire.BuildComplete(wire.Handle{}, 0, 7)
	ch.notify(frame)

	if _, err := pending.Wait(context.Background(), time.Second); err != nil {
		t.Fatalf("slot missed the frame: %v", err)
	}
	select {
	case got := <-observed:
		if !bytes.Equal(got, frame) {
			t.Errorf("observer got %x", got)
		}
	default:
		t.Error("observer missed the frame")
	}
}
