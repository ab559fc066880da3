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

// Package transport abstracts the BLE GATT link the watch protocol runs
// over. The protocol engine consumes characteristics as Channels: a write
// side plus an asynchronous notification stream. Scanning, connection, and
// service discovery stay outside the engine; the gattlink adapter in this
// package binds Channels to a real device, and devicesim binds them to an
// in-process watch.
package transport

import "context"

// Channel is one GATT characteristic viewed as a byte-frame pipe. Writes
// may be confirmed (write with response) or unconfirmed; notifications are
// delivered to the subscribed handler in arrival order.
type Channel interface {
	// Write sends one frame to the device. Once written, the device will
	// act on it regardless of local cancellation.
	Write(ctx context.Context, data []byte, confirmed bool) error

	// Subscribe registers the notification handler and returns a function
	// that removes it. A Channel carries at most one subscriber; the
	// demultiplexing into logical waiters happens above this interface.
	Subscribe(handler func(data []byte)) (func(), error)
}

// MTUProvider is implemented by transports that know the negotiated ATT MTU.
type MTUProvider interface {
	MTU() int
}

// DefaultMTU is assumed when the transport cannot report the negotiated
// value. Chunk payloads are sized to MTU-1 to leave room for the sequence
// byte.
const DefaultMTU = 23
