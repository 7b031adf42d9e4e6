// go-m24sr
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-m24sr.
//
// go-m24sr is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-m24sr is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-m24sr; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Command m24srtool reads and writes an M24SR dynamic NFC tag over I2C.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	m24sr "github.com/ZaparooProject/go-m24sr"
	"github.com/ZaparooProject/go-m24sr/detection"
	_ "github.com/ZaparooProject/go-m24sr/detection/i2c"
	"github.com/ZaparooProject/go-m24sr/polling"
	"github.com/ZaparooProject/go-m24sr/transport/i2c"
	"github.com/ZaparooProject/go-m24sr/transport/i2cdev"
	"github.com/hsanjuan/go-ndef"
	"github.com/rs/zerolog"
)

type config struct {
	bus        *string
	devPath    *string
	address    *uint
	timeout    *time.Duration
	writeText  *string
	writeURI   *string
	system     *bool
	gpo        *string
	password   *string
	watch      *string
	killRF     *bool
	debug      *bool
	noRetry    *bool
	pollPeriod *time.Duration
}

func parseFlags() *config {
	cfg := &config{
		bus:     flag.String("bus", "", "periph I2C bus name (e.g. 1 or /dev/i2c-1)"),
		devPath: flag.String("dev", "", "i2c-dev path used without periph (e.g. /dev/i2c-1)"),
		address: flag.Uint("address", uint(m24sr.DefaultAddress), "7-bit I2C address"),
		timeout: flag.Duration("timeout", 5*time.Second, "timeout for a single tag operation"),
		writeText: flag.String("write-text", "",
			"write a text record to the tag"),
		writeURI: flag.String("write-uri", "", "write a URI record to the tag"),
		system:   flag.Bool("system", false, "print the system file"),
		gpo: flag.String("gpo", "",
			"set the GPO configuration byte, hex (e.g. 61)"),
		password: flag.String("password", "",
			"I2C password as 32 hex digits (default: factory password)"),
		watch: flag.String("watch", "",
			"GPIO wired to GPO (e.g. GPIO17); read the tag after every RF session"),
		killRF:     flag.Bool("kill-rf", false, "take the tag away from an RF reader"),
		debug:      flag.Bool("debug", false, "log every frame"),
		noRetry:    flag.Bool("no-retry", false, "do not retry NAKed bus transfers"),
		pollPeriod: flag.Duration("poll-interval", 50*time.Millisecond, "GPO sampling interval in watch mode"),
	}
	flag.Parse()
	return cfg
}

func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// openTransport opens the bus named by the flags, or the first detected
// M24SR when none is given.
func openTransport(ctx context.Context, cfg *config, log zerolog.Logger) (m24sr.Transport, error) {
	switch {
	case *cfg.bus != "":
		return i2c.New(*cfg.bus)
	case *cfg.devPath != "":
		return i2cdev.Open(*cfg.devPath)
	}

	log.Info().Msg("auto-detecting M24SR devices")
	opts := detection.DefaultOptions()
	opts.Timeout = *cfg.timeout
	devices, err := detection.DetectAllContext(ctx, &opts)
	if err != nil {
		return nil, fmt.Errorf("detection failed: %w", err)
	}
	dev := devices[0]
	log.Info().Str("name", dev.Name).Str("confidence", dev.Confidence.String()).Msg("found device")
	if addr, err := strconv.ParseUint(dev.Metadata["address"], 0, 16); err == nil {
		*cfg.address = uint(addr)
	}
	return i2cdev.Open(dev.Metadata["bus"])
}

func sessionOptions(cfg *config, log zerolog.Logger) []m24sr.Option {
	opts := []m24sr.Option{m24sr.WithLogger(log)}
	if *cfg.killRF {
		opts = append(opts, m24sr.WithKillRFSession())
	}
	return opts
}

func parsePassword(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	pwd, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}
	if len(pwd) != m24sr.PasswordLength {
		return nil, fmt.Errorf("password must be %d bytes, got %d", m24sr.PasswordLength, len(pwd))
	}
	return pwd, nil
}

func run(ctx context.Context, cfg *config, log zerolog.Logger) error {
	tr, err := openTransport(ctx, cfg, log)
	if err != nil {
		return err
	}
	if !*cfg.noRetry {
		tr = m24sr.NewTransportWithRetry(tr, nil)
	}

	session, err := m24sr.Open(tr, uint16(*cfg.address), sessionOptions(cfg, log)...)
	if err != nil {
		_ = tr.Close()
		return err
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()
	tag := m24sr.NewTag(session)

	if *cfg.watch != "" {
		return watch(ctx, cfg, tag, log)
	}
	return oneShot(ctx, cfg, tag, log)
}

func oneShot(ctx context.Context, cfg *config, tag *m24sr.Tag, log zerolog.Logger) error {
	opCtx, cancel := context.WithTimeout(ctx, *cfg.timeout)
	defer cancel()

	switch {
	case *cfg.system:
		sf, err := tag.ReadSystemFile(opCtx)
		if err != nil {
			return err
		}
		printSystemFile(sf)
		return nil
	case *cfg.gpo != "":
		value, err := strconv.ParseUint(*cfg.gpo, 16, 8)
		if err != nil {
			return fmt.Errorf("invalid GPO value: %w", err)
		}
		pwd, err := parsePassword(*cfg.password)
		if err != nil {
			return err
		}
		if err := tag.SetGPO(opCtx, byte(value), pwd); err != nil {
			return err
		}
		log.Info().Str("gpo", fmt.Sprintf("0x%02X", value)).Msg("GPO configured")
		return nil
	case *cfg.writeText != "":
		if err := tag.WriteText(opCtx, *cfg.writeText, ""); err != nil {
			return err
		}
		log.Info().Msg("text written")
		return nil
	case *cfg.writeURI != "":
		if err := tag.WriteURI(opCtx, *cfg.writeURI); err != nil {
			return err
		}
		log.Info().Msg("URI written")
		return nil
	}

	raw, err := tag.ReadNDEFBytes(opCtx)
	if errors.Is(err, m24sr.ErrNoNDEF) {
		_, _ = fmt.Println("Tag is empty")
		return nil
	}
	if err != nil {
		return err
	}
	printMessage(raw)
	return nil
}

func watch(ctx context.Context, cfg *config, tag *m24sr.Tag, log zerolog.Logger) error {
	pin, err := polling.OpenGPOPin(*cfg.watch)
	if err != nil {
		return err
	}

	pollCfg := polling.DefaultConfig()
	pollCfg.PollInterval = *cfg.pollPeriod
	pollCfg.ReadTimeout = *cfg.timeout
	pollCfg.ReadOnStart = true

	mon := polling.NewMonitor(tag, pin, pollCfg)
	mon.OnFieldBusy = func() {
		log.Info().Msg("RF reader present")
	}
	mon.OnMessage = func(raw []byte, _ *ndef.Message) error {
		printMessage(raw)
		return nil
	}
	mon.OnError = func(err error) {
		log.Error().Err(err).Msg("read failed")
	}

	log.Info().Str("pin", *cfg.watch).Msg("watching GPO")
	if err := mon.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func printMessage(raw []byte) {
	_, _ = fmt.Printf("NDEF (%d bytes): %X\n", len(raw), raw)
	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(raw); err != nil {
		_, _ = fmt.Printf("  not a valid NDEF message: %v\n", err)
		return
	}
	for i, rec := range msg.Records {
		_, _ = fmt.Printf("  [%d] %s\n", i, rec.String())
	}
}

func printSystemFile(sf *m24sr.SystemFile) {
	_, _ = fmt.Printf("Product:     %s (0x%02X)\n", sf.ProductName(), sf.ProductCode)
	_, _ = fmt.Printf("UID:         %s\n", sf.UIDString())
	_, _ = fmt.Printf("Memory:      %d bytes\n", int(sf.MemorySize)+1)
	_, _ = fmt.Printf("GPO:         0x%02X\n", sf.GPO)
	_, _ = fmt.Printf("I2C protect: 0x%02X\n", sf.I2CProtect)
	_, _ = fmt.Printf("Watchdog:    0x%02X\n", sf.I2CWatchdog)
	_, _ = fmt.Printf("RF enable:   0x%02X\n", sf.RFEnable)
}

func main() {
	cfg := parseFlags()
	log := newLogger(*cfg.debug)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("m24srtool failed")
		stop()
		os.Exit(1)
	}
}
