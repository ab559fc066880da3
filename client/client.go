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

// Package client is the top-level facade over the protocol engines. It
// owns the one-operation-at-a-time discipline for the link and the rule
// that an encrypted fetch always runs behind a fresh handshake of its
// own. Callers construct a Client per connected device and drive every
// interaction through it.
package client

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/openhybrid/qwatch/activity"
	"github.com/openhybrid/qwatch/codec"
	"github.com/openhybrid/qwatch/security"
	"github.com/openhybrid/qwatch/transfer"
	"github.com/openhybrid/qwatch/transport"
	"github.com/openhybrid/qwatch/wire"
)

// ErrOperationInProgress is returned immediately, without queueing, when
// a second operation is attempted while one holds the link.
var ErrOperationInProgress = errors.New("qwatch: operation already in progress")

// Config carries everything a Client needs beyond its channels. The zero
// value is not usable; SecretKey is mandatory.
type Config struct {
	// SecretKey is the pre-shared 16-byte device key.
	SecretKey []byte

	// MTU is the negotiated ATT MTU. Zero means transport.DefaultMTU.
	MTU int

	// Timeouts for the individual engines. Zero keeps each engine's
	// default.
	HandshakeTimeout time.Duration
	TransferTimeout  time.Duration
	FetchTimeout     time.Duration

	// Logger receives sparse diagnostics. Nil means slog.Default().
	Logger *slog.Logger
}

// Client multiplexes one BLE link. All exported methods are safe for
// concurrent use, but only one operation runs at a time; the rest fail
// fast with ErrOperationInProgress.
type Client struct {
	cfg        Config
	dispatcher *transport.Dispatcher
	auth       *security.Engine
	transfers  *transfer.Engine
	encrypted  *transfer.Coordinator
	decoder    *activity.Decoder

	// Link-wide operation lock. Buffered size one so acquisition is a
	// non-blocking send.
	busy chan struct{}
}

// New builds a Client over the control and data channels of a connected
// device. The dispatcher subscribes to the control channel immediately.
func New(control, data transport.Channel, cfg Config) (*Client, error) {
	if len(cfg.SecretKey) != security.KeySize {
		return nil, &security.ErrInvalidKey{Len: len(cfg.SecretKey)}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MTU <= 1 {
		if p, ok := data.(transport.MTUProvider); ok {
			cfg.MTU = p.MTU()
		} else {
			cfg.MTU = transport.DefaultMTU
		}
	}

	dispatcher, err := transport.NewDispatcher(control)
	if err != nil {
		return nil, errors.Wrap(err, "subscribing to control channel")
	}

	c := &Client{
		cfg:        cfg,
		dispatcher: dispatcher,
		auth:       security.NewEngine(control, dispatcher),
		transfers:  transfer.NewEngine(control, data, dispatcher, cfg.MTU),
		encrypted:  transfer.NewCoordinator(control, data, dispatcher),
		decoder:    activity.NewDecoderWithLogger(cfg.Logger),
		busy:       make(chan struct{}, 1),
	}
	if cfg.HandshakeTimeout > 0 {
		c.auth.SetTimeout(cfg.HandshakeTimeout)
	}
	if cfg.TransferTimeout > 0 {
		c.transfers.SetTimeout(cfg.TransferTimeout)
	}
	if cfg.FetchTimeout > 0 {
		c.encrypted.SetTimeout(cfg.FetchTimeout)
	}
	c.encrypted.SetLogger(cfg.Logger)
	return c, nil
}

// Close stops dispatching control frames. In-flight operations fail with
// their own timeouts.
func (c *Client) Close() {
	c.dispatcher.Close()
}

func (c *Client) acquire() error {
	select {
	case c.busy <- struct{}{}:
		return nil
	default:
		return ErrOperationInProgress
	}
}

func (c *Client) release() {
	<-c.busy
}

// Authenticate runs the challenge-response handshake. Fetch does not
// reuse the result; it re-handshakes itself. This entry point exists for
// pairing flows that need the handshake outcome without a file read.
func (c *Client) Authenticate(ctx context.Context) (*security.Credentials, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()
	return c.auth.Authenticate(ctx, c.cfg.SecretKey)
}

// ConfirmOnDevice prompts the wearer and reports whether they accepted.
func (c *Client) ConfirmOnDevice(ctx context.Context) (bool, error) {
	if err := c.acquire(); err != nil {
		return false, err
	}
	defer c.release()
	return c.auth.ConfirmOnDevice(ctx)
}

// CheckPairing reports whether the watch considers this phone paired.
func (c *Client) CheckPairing(ctx context.Context) (bool, error) {
	if err := c.acquire(); err != nil {
		return false, err
	}
	defer c.release()
	return c.auth.CheckPairing(ctx)
}

// PutFile uploads content behind a handle over the plaintext transfer
// protocol.
func (c *Client) PutFile(ctx context.Context, handle wire.Handle, content []byte) error {
	if err := c.acquire(); err != nil {
		return err
	}
	defer c.release()
	return c.transfers.PutFile(ctx, handle, content)
}

// PutFileSealed uploads authored content, such as a watch app or a
// configuration blob, with the Castagnoli content trailer the watch
// validates before storing it.
func (c *Client) PutFileSealed(ctx context.Context, handle wire.Handle, content []byte) error {
	return c.PutFile(ctx, handle, codec.SealContent(content))
}

// GetFile downloads the full plaintext content behind a handle.
func (c *Client) GetFile(ctx context.Context, handle wire.Handle) ([]byte, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()
	return c.transfers.GetFile(ctx, handle, 0, 0xFFFFFFFF)
}

// Fetch performs an encrypted read of the file behind a handle. Every
// call runs a fresh handshake first; the per-session randoms feed the
// CTR IV, so a stale session must never be reused across fetches.
func (c *Client) Fetch(ctx context.Context, handle wire.Handle) ([]byte, error) {
	if err := c.acquire(); err != nil {
		return nil, err
	}
	defer c.release()

	creds, err := c.auth.Authenticate(ctx, c.cfg.SecretKey)
	if err != nil {
		return nil, errors.Wrap(err, "pre-fetch handshake")
	}
	return c.encrypted.Fetch(ctx, creds, handle)
}

// FetchActivity fetches and decodes the activity telemetry file.
func (c *Client) FetchActivity(ctx context.Context) (*activity.File, error) {
	raw, err := c.Fetch(ctx, wire.HandleActivityFile)
	if err != nil {
		return nil, err
	}
	return c.decoder.Decode(raw)
}
