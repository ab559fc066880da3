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

package integration

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openhybrid/qwatch/activity"
	"github.com/openhybrid/qwatch/client"
	"github.com/openhybrid/qwatch/devicesim"
	"github.com/openhybrid/qwatch/security"
	"github.com/openhybrid/qwatch/wire"
)

// TestFullSyncFlow exercises the complete phone-side sequence: pair,
// confirm, push a configuration, and pull the encrypted activity file.
func TestFullSyncFlow(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, security.KeySize)
	watch := devicesim.New(key)
	watch.SetFile(wire.HandleActivityFile, buildActivityFile())

	c, err := client.New(watch.ControlChannel(), watch.DataChannel(), client.Config{
		SecretKey:        key,
		HandshakeTimeout: 2 * time.Second,
		TransferTimeout:  2 * time.Second,
		FetchTimeout:     2 * time.Second,
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := context.Background()

	// Pairing: handshake, wearer confirmation, pairing check.
	creds, err := c.Authenticate(ctx)
	require.NoError(t, err)
	assert.Len(t, creds.WatchRandom, security.RandomSize)

	accepted, err := c.ConfirmOnDevice(ctx)
	require.NoError(t, err)
	assert.True(t, accepted)

	paired, err := c.CheckPairing(ctx)
	require.NoError(t, err)
	assert.True(t, paired)

	// Configuration push and read-back.
	config := []byte{0x01, 0x3C, 0x00, 0x02, 0x7F}
	require.NoError(t, c.PutFile(ctx, wire.HandleConfiguration, config))
	echoed, err := c.GetFile(ctx, wire.HandleConfiguration)
	require.NoError(t, err)
	assert.Equal(t, config, echoed)

	// Encrypted activity fetch with decoding.
	file, err := c.FetchActivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint8(activity.ExpectedVersion), file.Version)
	require.Len(t, file.Samples, 2)
	assert.Equal(t, 1, file.Samples[0].Steps)
	assert.Equal(t, 68, file.Samples[0].HeartRate)
	assert.Equal(t,
		file.Samples[0].Timestamp.Add(time.Minute),
		file.Samples[1].Timestamp)
	require.Len(t, file.SpO2, 1)
	assert.Equal(t, uint8(96), file.SpO2[0].Percentage)
}

func buildActivityFile() []byte {
	header := make([]byte, activity.HeaderSize)
	header[2] = activity.ExpectedVersion
	header[11] = 0x60

	body := []byte{
		0x08, 0xCE, 0x03, 0x00, 68, 0x05, // one-step sample
		0x08, 0xCE, 0x05, 0x00, 71, 0x46, // two-step sample
		0xD6, 0x04, 0x03, 0x02, 0x01, 96, 0x00, 0x00, // standalone SpO2
	}
	return append(header, body...)
}
