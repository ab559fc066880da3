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

package devicesim

import (
	"context"
	"sync"
)

// loopback is one characteristic with both endpoints in process: the phone
// side writes and subscribes, the watch side handles writes and emits
// notifications. Delivery is synchronous and in order, which mirrors the
// per-characteristic ordering guarantee of a real GATT link.
type loopback struct {
	mu       sync.Mutex
	onWrite  func(data []byte)
	handlers map[int]func(data []byte)
	nextID   int
}

func newLoopback() *loopback {
	return &loopback{handlers: make(map[int]func([]byte))}
}

// Write delivers a phone-side frame to the watch handler.
func (l *loopback) Write(ctx context.Context, data []byte, confirmed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	handler := l.onWrite
	l.mu.Unlock()
	if handler != nil {
		buf := make([]byte, len(data))
		copy(buf, data)
		handler(buf)
	}
	return nil
}

// Subscribe registers a phone-side notification handler.
func (l *loopback) Subscribe(handler func(data []byte)) (func(), error) {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.handlers[id] = handler
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		delete(l.handlers, id)
		l.mu.Unlock()
	}, nil
}

// notify delivers a watch-side frame to every phone-side subscriber.
func (l *loopback) notify(data []byte) {
	l.mu.Lock()
	handlers := make([]func([]byte), 0, len(l.handlers))
	for _, h := range l.handlers {
		handlers = append(handlers, h)
	}
	l.mu.Unlock()
	for _, h := range handlers {
		buf := make([]byte, len(data))
		copy(buf, data)
		h(buf)
	}
}

// setHandler installs the watch-side write handler.
func (l *loopback) setHandler(handler func(data []byte)) {
	l.mu.Lock()
	l.onWrite = handler
	l.mu.Unlock()
}
