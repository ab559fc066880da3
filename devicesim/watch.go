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

// Package devicesim implements the watch side of the protocol over
// in-process channels, so the engine can be exercised end to end without
// hardware: handshake, confirmation, plaintext transfers, dynamic-handle
// lookup, and CTR-encrypted reads with a configurable IV stride. Fault
// injection hooks let tests force the protocol-violation paths.
package devicesim

import (
	"sync"

	"github.com/openhybrid/qwatch/codec"
	"github.com/openhybrid/qwatch/security"
	"github.com/openhybrid/qwatch/transport"
	"github.com/openhybrid/qwatch/wire"
)

// DefaultStride is the CTR IV increment real firmware applies between
// ciphertext packets.
const DefaultStride = 0x1F

// Watch is a simulated device sharing a pre-provisioned secret key with
// the phone under test.
type Watch struct {
	mu sync.Mutex

	secretKey []byte
	files     map[wire.Handle][]byte
	dynamic   map[uint8]wire.Handle // handle major -> resolved dynamic handle

	control *loopback
	data    *loopback

	// Handshake state. A fresh random pair exists per completed handshake.
	phoneRandom []byte
	watchRandom []byte

	// Active put transfer, nil when idle.
	put *putState

	closeFrames int

	// Knobs and fault injection.
	Stride               uint64 // IV increment between ciphertext packets
	MTU                  int    // bounds notification payloads
	PacketPayload        int    // plaintext bytes per encrypted packet
	AckEvery             int    // data-ack cadence in chunks during puts
	CorruptAckCRC        bool   // send garbage running CRCs
	CorruptCompletionCRC bool   // send garbage completion CRCs
	RejectAuthStatus     uint8  // non-zero: fail the handshake with this status
	RejectPutStatus      uint8  // non-zero: refuse puts with this status
	DenyConfirmation     bool   // wearer declines the confirmation prompt
}

type putState struct {
	handle   wire.Handle
	expected int
	received []byte
	chunks   int
	crc      codec.RunningChecksum
}

// New creates a simulated watch holding the given pre-shared key.
func New(secretKey []byte) *Watch {
	w := &Watch{
		secretKey:     append([]byte(nil), secretKey...),
		files:         make(map[wire.Handle][]byte),
		dynamic:       make(map[uint8]wire.Handle),
		control:       newLoopback(),
		data:          newLoopback(),
		Stride:        DefaultStride,
		MTU:           transport.DefaultMTU,
		PacketPayload: 9,
		AckEvery:      4,
	}
	w.control.setHandler(w.handleControl)
	w.data.setHandler(w.handleData)
	return w
}

// ControlChannel returns the phone-side endpoint of the control
// characteristic.
func (w *Watch) ControlChannel() transport.Channel {
	return w.control
}

// DataChannel returns the phone-side endpoint of the file-data
// characteristic.
func (w *Watch) DataChannel() transport.Channel {
	return w.data
}

// SetFile installs file content behind a handle. Encrypted reads resolve
// the handle's major to a dynamic handle automatically.
func (w *Watch) SetFile(h wire.Handle, content []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files[h] = append([]byte(nil), content...)
	// Dynamic handles keep the major and get a firmware-assigned minor.
	w.dynamic[h.Major] = wire.Handle{Major: h.Major, Minor: 0x11}
}

// File returns the stored content of a handle, nil when absent.
func (w *Watch) File(h wire.Handle) []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.files[h]...)
}

// CloseFrames reports how many close requests the watch has received.
func (w *Watch) CloseFrames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeFrames
}

// LastWatchRandom returns the watch random of the most recent handshake.
func (w *Watch) LastWatchRandom() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.watchRandom...)
}

func (w *Watch) handleControl(frame []byte) {
	if len(frame) == 0 {
		return
	}
	switch frame[0] {
	case 0x02:
		if len(frame) == wire.LookupRequestSize && frame[1] == 0xFF {
			w.handleLookup(frame[2])
			return
		}
		w.handleAuth(frame)
	case wire.OpPutFile:
		w.handlePutHeader(frame)
	case wire.OpCloseFile:
		w.handleClose(frame)
	case wire.OpGetFile:
		w.handleGet(frame)
	}
}

func (w *Watch) handleAuth(frame []byte) {
	if len(frame) < 2 {
		return
	}
	switch frame[1] {
	case wire.AuthSubChallenge:
		if len(frame) < wire.AuthStartSize {
			return
		}
		w.mu.Lock()
		w.phoneRandom = append([]byte(nil), frame[3:11]...)
		w.watchRandom, _ = security.SecureRandom(security.RandomSize)
		challenge := append(append([]byte(nil), w.watchRandom...), w.phoneRandom...)
		encrypted, err := security.EncryptCBC(w.secretKey, challenge)
		w.mu.Unlock()
		if err != nil {
			return
		}
		w.control.notify(wire.BuildAuthFrame(wire.AuthSubChallenge, 0, encrypted))

	case wire.AuthSubResponse:
		if len(frame) < wire.AuthResponseSize {
			return
		}
		plain, err := security.DecryptCBC(w.secretKey, frame[3:19])
		status := uint8(0)
		w.mu.Lock()
		expected := append(append([]byte(nil), w.phoneRandom...), w.watchRandom...)
		if rejected := w.RejectAuthStatus; rejected != 0 {
			status = rejected
		} else if err != nil || !bytesEqual(plain, expected) {
			status = 0x01
		}
		w.mu.Unlock()
		w.control.notify(wire.BuildAuthFrame(wire.AuthSubResponse, status, nil))

	case wire.AuthSubConfirm:
		status := uint8(0)
		if w.DenyConfirmation {
			status = 0x01
		}
		w.control.notify(wire.BuildAuthFrame(wire.AuthSubConfirm, status, nil))

	case wire.AuthSubPair:
		w.control.notify(wire.BuildAuthFrame(wire.AuthSubPair, 0, nil))
	}
}

func (w *Watch) handleLookup(major uint8) {
	w.mu.Lock()
	dynamic, ok := w.dynamic[major]
	w.mu.Unlock()

	announced := wire.Handle{Major: major, Minor: 0xFF}
	if !ok {
		w.control.notify(wire.BuildGetInit(announced, 0x01, 0))
		return
	}

	payload := []byte{dynamic.Minor, dynamic.Major}
	w.control.notify(wire.BuildGetInit(announced, 0, uint32(len(payload))))
	w.data.notify(payload)
	w.control.notify(wire.BuildComplete(announced, 0, w.completionCRC(payload)))
}

func (w *Watch) handlePutHeader(frame []byte) {
	if len(frame) < wire.PutRequestSize {
		return
	}
	buf := codec.NewBufferFrom(frame[1:])
	hv, _ := buf.ReadUint16()
	handle := wire.HandleFromUint16(hv)
	_, _ = buf.ReadUint32() // offset, always zero
	size, _ := buf.ReadUint32()

	if w.RejectPutStatus != 0 {
		w.control.notify(wire.BuildPutInit(handle, w.RejectPutStatus))
		return
	}

	w.mu.Lock()
	w.put = &putState{handle: handle, expected: int(size)}
	w.mu.Unlock()
	w.control.notify(wire.BuildPutInit(handle, 0))
}

func (w *Watch) handleData(chunk []byte) {
	if len(chunk) < 1 {
		return
	}
	w.mu.Lock()
	put := w.put
	if put == nil {
		w.mu.Unlock()
		return
	}
	payload := chunk[1:] // strip the sequence byte
	put.received = append(put.received, payload...)
	put.crc.Update(payload)
	put.chunks++
	ackDue := w.AckEvery > 0 && put.chunks%w.AckEvery == 0
	crc := put.crc.Sum()
	if w.CorruptAckCRC {
		crc ^= 0xDEADBEEF
	}
	handle := put.handle
	w.mu.Unlock()

	if ackDue {
		w.control.notify(wire.BuildDataAck(handle, crc))
	}
}

func (w *Watch) handleClose(frame []byte) {
	if len(frame) < wire.CloseRequestSize {
		return
	}
	w.mu.Lock()
	w.closeFrames++
	w.mu.Unlock()
	buf := codec.NewBufferFrom(frame[1:])
	hv, _ := buf.ReadUint16()
	handle := wire.HandleFromUint16(hv)

	w.mu.Lock()
	put := w.put
	w.put = nil
	status := uint8(0)
	var crc uint32
	if put == nil || put.handle != handle || len(put.received) != put.expected {
		status = 0x01
	} else {
		w.files[handle] = put.received
		crc = put.crc.Sum()
	}
	if w.CorruptCompletionCRC {
		crc ^= 0xDEADBEEF
	}
	w.mu.Unlock()

	w.control.notify(wire.BuildComplete(handle, status, crc))
}

func (w *Watch) handleGet(frame []byte) {
	if len(frame) < wire.GetRequestSize {
		return
	}
	buf := codec.NewBufferFrom(frame[1:])
	hv, _ := buf.ReadUint16()
	handle := wire.HandleFromUint16(hv)

	w.mu.Lock()
	static, isDynamic := w.staticFor(handle)
	w.mu.Unlock()

	if isDynamic {
		w.serveEncryptedGet(handle, static)
		return
	}
	w.servePlainGet(handle)
}

// staticFor maps a dynamic handle back to the static handle it was
// resolved from. Caller holds the lock.
func (w *Watch) staticFor(h wire.Handle) (wire.Handle, bool) {
	for major, dynamic := range w.dynamic {
		if dynamic == h {
			for static := range w.files {
				if static.Major == major {
					return static, true
				}
			}
		}
	}
	return wire.Handle{}, false
}

func (w *Watch) servePlainGet(handle wire.Handle) {
	w.mu.Lock()
	content, ok := w.files[handle]
	mtu := w.MTU
	w.mu.Unlock()

	if !ok {
		w.control.notify(wire.BuildGetInit(handle, 0x01, 0))
		return
	}

	w.control.notify(wire.BuildGetInit(handle, 0, uint32(len(content))))
	for off := 0; off < len(content); off += mtu {
		end := off + mtu
		if end > len(content) {
			end = len(content)
		}
		w.data.notify(content[off:end])
	}
	w.control.notify(wire.BuildComplete(handle, 0, w.completionCRC(content)))
}

// serveEncryptedGet streams the file as CTR-encrypted packets. Packet 0
// uses the session base IV; packet N uses base + Stride*N. Each plaintext
// packet is a header byte (top bit on the final packet) plus content.
func (w *Watch) serveEncryptedGet(dynamic, static wire.Handle) {
	w.mu.Lock()
	content := w.files[static]
	baseIV := w.sessionIV()
	stride := w.Stride
	payload := w.PacketPayload
	w.mu.Unlock()

	if baseIV == nil {
		w.control.notify(wire.BuildGetInit(dynamic, 0x02, 0))
		return
	}

	w.control.notify(wire.BuildGetInit(dynamic, 0, uint32(len(content))))

	for off, n := 0, 0; off < len(content); n++ {
		end := off + payload
		if end > len(content) {
			end = len(content)
		}
		header := byte(0x01)
		if end == len(content) {
			header = 0x81
		}
		plain := append([]byte{header}, content[off:end]...)

		iv := baseIV
		if n > 0 {
			iv = security.AddToIV(baseIV, stride*uint64(n))
		}
		encrypted, err := security.DecryptCTR(w.secretKey, iv, plain)
		if err != nil {
			return
		}
		w.data.notify(encrypted)
		off = end
	}

	w.control.notify(wire.BuildComplete(dynamic, 0, w.completionCRC(content)))
}

// sessionIV derives the CTR base IV from the most recent handshake's
// randoms. Caller holds the lock.
func (w *Watch) sessionIV() []byte {
	if len(w.phoneRandom) != security.RandomSize || len(w.watchRandom) != security.RandomSize {
		return nil
	}
	creds := &security.Credentials{PhoneRandom: w.phoneRandom, WatchRandom: w.watchRandom}
	return creds.FileIV()
}

func (w *Watch) completionCRC(content []byte) uint32 {
	crc := codec.Checksum(content)
	if w.CorruptCompletionCRC {
		crc ^= 0xDEADBEEF
	}
	return crc
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
