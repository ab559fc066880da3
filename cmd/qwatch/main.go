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

// qwatch is a debug CLI for the watch protocol engine. It connects over
// BLE, runs the handshake, fetches the encrypted activity file, and dumps
// the decoded telemetry.
//
// Configuration comes from flags, the environment (QWATCH_ prefix), or a
// qwatch.yaml config file, in that order of precedence:
//
//	qwatch --address DE:AD:BE:EF:00:01 --key 00112233445566778899aabbccddeeff
//
// Subcommands: activity (default), get <handle-name>, confirm.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/openhybrid/qwatch/client"
	"github.com/openhybrid/qwatch/transport"
	"github.com/openhybrid/qwatch/wire"
)

const connectTimeout = 30 * time.Second

var namedHandles = map[string]wire.Handle{
	"activity":      wire.HandleActivityFile,
	"configuration": wire.HandleConfiguration,
	"notifications": wire.HandleNotificationFilter,
	"watchface":     wire.HandleWatchface,
	"music":         wire.HandleMusicInfo,
	"alarms":        wire.HandleAlarms,
	"calibration":   wire.HandleHandsCalibration,
	"deviceinfo":    wire.HandleDeviceInfo,
}

func main() {
	flag.String("address", "", "BLE MAC address of the watch")
	flag.String("key", "", "pre-shared device key, 32 hex digits")
	flag.Int("mtu", 0, "override the negotiated ATT MTU")
	flag.Bool("verbose", false, "enable debug logging")
	flag.Parse()

	viper.SetConfigName("qwatch")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/qwatch")
	viper.SetEnvPrefix("qwatch")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			slog.Error("reading config file", "err", err)
			os.Exit(1)
		}
	}
	flag.VisitAll(func(f *flag.Flag) {
		viper.SetDefault(f.Name, f.DefValue)
	})
	flag.Visit(func(f *flag.Flag) {
		viper.Set(f.Name, f.Value.String())
	})

	level := slog.LevelInfo
	if viper.GetBool("verbose") {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("qwatch failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	address := viper.GetString("address")
	if address == "" {
		return fmt.Errorf("no device address configured (--address, QWATCH_ADDRESS, or qwatch.yaml)")
	}
	key, err := hex.DecodeString(viper.GetString("key"))
	if err != nil {
		return fmt.Errorf("device key is not valid hex: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	logger.Info("connecting", "address", address)
	link, err := transport.Connect(ctx, address)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", address, err)
	}
	defer link.Close()

	mtu := viper.GetInt("mtu")
	if mtu == 0 {
		mtu = link.MTU()
	}
	logger.Info("connected", "mtu", mtu)

	c, err := client.New(link.Control, link.FileData, client.Config{
		SecretKey: key,
		MTU:       mtu,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	defer c.Close()

	command := "activity"
	if args := flag.Args(); len(args) > 0 {
		command = args[0]
	}

	switch command {
	case "activity":
		return dumpActivity(logger, c)
	case "get":
		if flag.NArg() < 2 {
			return fmt.Errorf("usage: qwatch get <handle-name>")
		}
		return dumpFile(logger, c, flag.Arg(1))
	case "confirm":
		return confirm(logger, c)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func dumpActivity(logger *slog.Logger, c *client.Client) error {
	ctx := context.Background()
	file, err := c.FetchActivity(ctx)
	if err != nil {
		return err
	}

	logger.Info("activity file decoded",
		"version", file.Version,
		"start", file.Start.Format(time.RFC3339),
		"samples", len(file.Samples),
		"spo2", len(file.SpO2),
		"workouts", len(file.Workouts))

	for _, s := range file.Samples {
		fmt.Printf("%s steps=%d hr=%d q=%d wearing=%s cal=%d active=%v var=%d\n",
			s.Timestamp.Format(time.RFC3339), s.Steps, s.HeartRate,
			s.HeartRateQuality, s.Wearing, s.Calories, s.Active, s.Variability)
	}
	for _, s := range file.SpO2 {
		fmt.Printf("%s spo2=%d%%\n", s.Timestamp.Format(time.RFC3339), s.Percentage)
	}
	for _, w := range file.Workouts {
		fmt.Printf("workout type=%s duration=%s\n", w.Type, w.Duration)
	}
	return nil
}

func dumpFile(logger *slog.Logger, c *client.Client, name string) error {
	handle, ok := namedHandles[name]
	if !ok {
		return fmt.Errorf("unknown handle name %q", name)
	}

	ctx := context.Background()
	var content []byte
	var err error
	if handle == wire.HandleActivityFile {
		content, err = c.Fetch(ctx, handle)
	} else {
		content, err = c.GetFile(ctx, handle)
	}
	if err != nil {
		return err
	}

	logger.Info("file fetched", "handle", handle.String(), "bytes", len(content))
	fmt.Print(hex.Dump(content))
	return nil
}

func confirm(logger *slog.Logger, c *client.Client) error {
	ctx := context.Background()
	if _, err := c.Authenticate(ctx); err != nil {
		return err
	}
	accepted, err := c.ConfirmOnDevice(ctx)
	if err != nil {
		return err
	}
	if !accepted {
		return fmt.Errorf("wearer declined the confirmation prompt")
	}
	paired, err := c.CheckPairing(ctx)
	if err != nil {
		return err
	}
	logger.Info("confirmation complete", "paired", paired)
	return nil
}
