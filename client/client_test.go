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

package client_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhybrid/qwatch/activity"
	"github.com/openhybrid/qwatch/client"
	"github.com/openhybrid/qwatch/codec"
	"github.com/openhybrid/qwatch/devicesim"
	"github.com/openhybrid/qwatch/security"
	"github.com/openhybrid/qwatch/wire"
)

var simKey = bytes.Repeat([]byte{0x42}, security.KeySize)

func newTestClient(t *testing.T, watch *devicesim.Watch) *client.Client {
	t.Helper()
	c, err := client.New(watch.ControlChannel(), watch.DataChannel(), client.Config{
		SecretKey:        simKey,
		HandshakeTimeout: 2 * time.Second,
		TransferTimeout:  2 * time.Second,
		FetchTimeout:     2 * time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

// activityFixture builds a decodable activity file: a header plus one
// main sample.
func activityFixture() []byte {
	header := make([]byte, activity.HeaderSize)
	header[2] = activity.ExpectedVersion
	header[11] = 0x60 // start timestamp
	sample := []byte{0x08, 0xCE, 0x03, 0x00, 72, 0x40 | 9}
	return append(header, sample...)
}

func TestNewRejectsBadKey(t *testing.T) {
	watch := devicesim.New(simKey)
	_, err := client.New(watch.ControlChannel(), watch.DataChannel(), client.Config{
		SecretKey: []byte("short"),
	})
	var invalid *security.ErrInvalidKey
	require.ErrorAs(t, err, &invalid)
}

func TestPutAndGetRoundTrip(t *testing.T) {
	watch := devicesim.New(simKey)
	c := newTestClient(t, watch)

	content := []byte("alarm configuration payload")
	require.NoError(t, c.PutFile(context.Background(), wire.HandleAlarms, content))

	got, err := c.GetFile(context.Background(), wire.HandleAlarms)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPutFileSealedAppendsContentTrailer(t *testing.T) {
	watch := devicesim.New(simKey)
	c := newTestClient(t, watch)

	content := []byte("watch app binary")
	require.NoError(t, c.PutFileSealed(context.Background(), wire.HandleWatchface, content))

	stored := watch.File(wire.HandleWatchface)
	require.Len(t, stored, len(content)+4)
	assert.Equal(t, content, stored[:len(content)])
	assert.True(t, codec.VerifyContent(stored))
}

func TestFetchRunsFreshHandshakeInternally(t *testing.T) {
	watch := devicesim.New(simKey)
	watch.SetFile(wire.HandleActivityFile, activityFixture())
	c := newTestClient(t, watch)

	// No explicit Authenticate call: Fetch must handshake on its own.
	first, err := c.Fetch(context.Background(), wire.HandleActivityFile)
	require.NoError(t, err)
	firstRandom := watch.LastWatchRandom()

	// The second fetch must re-handshake rather than reuse the stale
	// session; the rotated randoms prove it, and decryption would fail
	// under the old IV anyway.
	second, err := c.Fetch(context.Background(), wire.HandleActivityFile)
	require.NoError(t, err)
	assert.NotEqual(t, firstRandom, watch.LastWatchRandom())
	assert.Equal(t, first, second)
}

func TestFetchActivityDecodes(t *testing.T) {
	watch := devicesim.New(simKey)
	watch.SetFile(wire.HandleActivityFile, activityFixture())
	c := newTestClient(t, watch)

	file, err := c.FetchActivity(context.Background())
	require.NoError(t, err)
	require.Len(t, file.Samples, 1)
	s := file.Samples[0]
	assert.Equal(t, 1, s.Steps)
	assert.Equal(t, 72, s.HeartRate)
	assert.Equal(t, 9, s.Calories)
	assert.True(t, s.Active)
	assert.Equal(t, activity.WearingWorn, s.Wearing)
}

// silentChannel accepts writes and never notifies, so operations hold the
// link until they time out.
type silentChannel struct{}

func (silentChannel) Write(ctx context.Context, data []byte, confirmed bool) error { return nil }
func (silentChannel) Subscribe(handler func([]byte)) (func(), error) {
	return func() {}, nil
}

func TestOperationInProgress(t *testing.T) {
	c, err := client.New(silentChannel{}, silentChannel{}, client.Config{
		SecretKey:        simKey,
		HandshakeTimeout: 500 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Parks on the unanswered challenge until the timeout.
		_, _ = c.Authenticate(context.Background())
	}()
	time.Sleep(100 * time.Millisecond)

	// The concurrent call must fail immediately, not queue behind the
	// parked handshake.
	start := time.Now()
	_, err = c.CheckPairing(context.Background())
	assert.ErrorIs(t, err, client.ErrOperationInProgress)
	assert.Less(t, time.Since(start), 100*time.Millisecond, "busy failure must not block")

	<-done
}
