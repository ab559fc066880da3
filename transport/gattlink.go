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

	"github.com/google/uuid"
	"tinygo.org/x/bluetooth"
)

// Link is a connected watch: the proprietary characteristics bound as
// Channels plus the negotiated MTU. It does not scan; the caller supplies
// the device address obtained from pairing.
type Link struct {
	Control    Channel
	FileData   Channel
	Pairing    Channel
	Background Channel
	HeartRate  Channel

	device bluetooth.Device
	mtu    int
}

// gattChannel binds one discovered characteristic as a Channel.
type gattChannel struct {
	char bluetooth.DeviceCharacteristic
}

func (c *gattChannel) Write(ctx context.Context, data []byte, confirmed bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// The BlueZ backend acknowledges at the bus level for both write
	// flavors; the confirmed flag maps to the same call here.
	_ = confirmed
	if _, err := c.char.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("characteristic write failed: %w", err)
	}
	return nil
}

func (c *gattChannel) Subscribe(handler func(data []byte)) (func(), error) {
	if err := c.char.EnableNotifications(handler); err != nil {
		return nil, fmt.Errorf("failed to enable notifications: %w", err)
	}
	return func() {
		_ = c.char.EnableNotifications(nil)
	}, nil
}

// Connect dials the watch at the given MAC address and discovers the
// proprietary service and its characteristics.
func Connect(ctx context.Context, address string) (*Link, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("failed to enable BLE adapter: %w", err)
	}

	mac, err := bluetooth.ParseMAC(address)
	if err != nil {
		return nil, fmt.Errorf("invalid device address %q: %w", address, err)
	}

	var addr bluetooth.Address
	addr.MAC = mac

	device, err := adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", address, err)
	}

	svcUUID, err := bleUUID(ServiceUUID)
	if err != nil {
		return nil, err
	}
	services, err := device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil || len(services) == 0 {
		_ = device.Disconnect()
		return nil, fmt.Errorf("watch service not found on %s: %w", address, err)
	}

	link := &Link{device: device, mtu: DefaultMTU}
	chars := map[uuid.UUID]*Channel{
		ControlUUID:          &link.Control,
		FileDataUUID:         &link.FileData,
		PairingUUID:          &link.Pairing,
		BackgroundEventsUUID: &link.Background,
	}
	for id, target := range chars {
		cu, err := bleUUID(id)
		if err != nil {
			_ = device.Disconnect()
			return nil, err
		}
		found, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{cu})
		if err != nil || len(found) == 0 {
			// The background characteristic is absent on some firmware;
			// everything else is required.
			if id == BackgroundEventsUUID {
				continue
			}
			_ = device.Disconnect()
			return nil, fmt.Errorf("characteristic %s not found: %w", id, err)
		}
		*target = &gattChannel{char: found[0]}
		if id == ControlUUID {
			if mtu, err := found[0].GetMTU(); err == nil && int(mtu) > 0 {
				link.mtu = int(mtu)
			}
		}
	}

	// The heart-rate measurement characteristic lives in the standard
	// heart-rate service, separate from the proprietary one. It is optional.
	if hrSvc, err := bleUUID(uuid.MustParse("0000180d-0000-1000-8000-00805f9b34fb")); err == nil {
		if hrServices, err := device.DiscoverServices([]bluetooth.UUID{hrSvc}); err == nil && len(hrServices) > 0 {
			if hrChar, err := bleUUID(HeartRateMeasurementUUID); err == nil {
				if found, err := hrServices[0].DiscoverCharacteristics([]bluetooth.UUID{hrChar}); err == nil && len(found) > 0 {
					link.HeartRate = &gattChannel{char: found[0]}
				}
			}
		}
	}

	return link, nil
}

// MTU returns the negotiated ATT MTU.
func (l *Link) MTU() int {
	return l.mtu
}

// Close disconnects from the watch.
func (l *Link) Close() error {
	return l.device.Disconnect()
}

func bleUUID(id uuid.UUID) (bluetooth.UUID, error) {
	u, err := bluetooth.ParseUUID(id.String())
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("bad characteristic UUID %s: %w", id, err)
	}
	return u, nil
}
