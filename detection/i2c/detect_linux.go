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

//go:build linux

package i2c

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/ZaparooProject/go-m24sr/detection"
	"github.com/ZaparooProject/go-m24sr/transport/i2cdev"
)

// probeTimeout bounds the probe of one bus
const probeTimeout = time.Second

// detectPlatform searches for M24SR devices on Linux I2C buses
func detectPlatform(ctx context.Context, opts *detection.Options) ([]detection.DeviceInfo, error) {
	buses, err := findI2CBuses()
	if err != nil {
		return nil, err
	}
	if len(buses) == 0 {
		return nil, detection.ErrNoDevicesFound
	}

	var devices []detection.DeviceInfo
	for _, bus := range buses {
		select {
		case <-ctx.Done():
			return devices, detection.ErrDetectionTimeout
		default:
		}

		device, ok := detectOnBus(ctx, bus, opts)
		if ok {
			devices = append(devices, device)
		}
	}

	if len(devices) == 0 {
		return nil, detection.ErrNoDevicesFound
	}
	return devices, nil
}

// detectOnBus looks for an M24SR at the default address of one bus
func detectOnBus(ctx context.Context, busPath string, opts *detection.Options) (detection.DeviceInfo, bool) {
	device := deviceInfo(busPath, DefaultM24SRAddress)
	if detection.IsPathIgnored(device.Path, opts.IgnorePaths) {
		return detection.DeviceInfo{}, false
	}
	if opts.Mode == detection.Passive {
		return device, true
	}

	tr, err := i2cdev.Open(busPath)
	if err != nil {
		return detection.DeviceInfo{}, false
	}
	defer func() { _ = tr.Close() }()

	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	found, metadata := probeDevice(probeCtx, tr, DefaultM24SRAddress, opts.Mode)
	if !found {
		return detection.DeviceInfo{}, false
	}
	device.Confidence = detection.High
	for k, v := range metadata {
		device.Metadata[k] = v
	}
	return device, true
}

// findI2CBuses lists the i2c-dev character devices
func findI2CBuses() ([]string, error) {
	matches, err := filepath.Glob("/dev/i2c-*")
	if err != nil {
		return nil, fmt.Errorf("failed to scan for I2C devices: %w", err)
	}

	buses := make([]string, 0, len(matches))
	for _, path := range matches {
		var busNum int
		if _, err := fmt.Sscanf(filepath.Base(path), "i2c-%d", &busNum); err != nil {
			continue
		}
		buses = append(buses, path)
	}
	return buses, nil
}
