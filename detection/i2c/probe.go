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

package i2c

import (
	"context"
	"fmt"

	m24sr "github.com/ZaparooProject/go-m24sr"
	"github.com/ZaparooProject/go-m24sr/detection"
)

// probeDevice checks for an M24SR at addr. Safe mode requests an I2C
// session and releases it with DESELECT; only an M24SR answers that with
// a CRC-valid echo. Full mode also reads the system file.
func probeDevice(
	ctx context.Context,
	tr m24sr.Transport,
	addr uint16,
	mode detection.Mode,
) (found bool, metadata map[string]string) {
	metadata = make(map[string]string)
	if mode == detection.Passive {
		return false, metadata
	}

	session, err := m24sr.Open(tr, addr)
	if err != nil {
		return false, metadata
	}
	if err := session.DeselectContext(ctx); err != nil {
		return false, metadata
	}

	if mode == detection.Full {
		sf, err := m24sr.NewTag(session).ReadSystemFile(ctx)
		if err == nil {
			metadata["uid"] = sf.UIDString()
			metadata["product"] = sf.ProductName()
			metadata["memory_size"] = fmt.Sprintf("%d", int(sf.MemorySize)+1)
		}
	}
	return true, metadata
}

// deviceInfo builds the DeviceInfo of a candidate at addr on busPath
func deviceInfo(busPath string, addr uint16) detection.DeviceInfo {
	return detection.DeviceInfo{
		Transport:  "i2c",
		Path:       fmt.Sprintf("%s:0x%02X", busPath, addr),
		Name:       fmt.Sprintf("M24SR on %s address 0x%02X", busPath, addr),
		Confidence: detection.Low,
		Metadata: map[string]string{
			"bus":     busPath,
			"address": fmt.Sprintf("0x%02X", addr),
		},
	}
}
