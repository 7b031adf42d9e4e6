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

// Package i2c provides a periph.io I2C transport for the M24SR
package i2c

import (
	"errors"
	"fmt"
	"io"

	m24sr "github.com/ZaparooProject/go-m24sr"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

// Max clock frequency (400 kHz). The M24SR supports 1 MHz but many hosts
// don't.
const maxClockFreq = 400 * physic.KiloHertz

// Transport implements the m24sr.Transport interface over a periph.io bus
type Transport struct {
	bus     i2c.Bus
	closer  io.Closer
	busName string
}

// New opens the named I2C bus, "" meaning the first one available
func New(busName string) (*Transport, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus %s: %w", busName, err)
	}

	_ = bus.SetSpeed(maxClockFreq) // Ignore error, continue with default speed

	t := NewWithBus(bus)
	t.closer = bus
	if busName != "" {
		t.busName = busName
	}
	return t, nil
}

// NewWithBus wraps an already opened bus. The caller keeps ownership of
// the bus; Close does not close it.
func NewWithBus(bus i2c.Bus) *Transport {
	return &Transport{
		bus:     bus,
		busName: bus.String(),
	}
}

// Write sends p to the device at addr
func (t *Transport) Write(addr uint16, p []byte) error {
	if t.bus == nil {
		return m24sr.ErrTransportClosed
	}
	if err := t.bus.Tx(addr, p, nil); err != nil {
		return t.busError("write", m24sr.ErrTransportWrite, err)
	}
	return nil
}

// Read fills p from the device at addr. I2C has no short reads: the
// device is clocked for exactly len(p) bytes.
func (t *Transport) Read(addr uint16, p []byte) (int, error) {
	if t.bus == nil {
		return 0, m24sr.ErrTransportClosed
	}
	if err := t.bus.Tx(addr, nil, p); err != nil {
		return 0, t.busError("read", m24sr.ErrTransportRead, err)
	}
	return len(p), nil
}

// Close releases the bus if this transport opened it
func (t *Transport) Close() error {
	closer := t.closer
	t.bus, t.closer = nil, nil
	if closer == nil {
		return nil
	}
	if err := closer.Close(); err != nil {
		return fmt.Errorf("failed to close I2C bus %s: %w", t.busName, err)
	}
	return nil
}

// String returns the bus name
func (t *Transport) String() string {
	return t.busName
}

// busError classifies a failed transfer. A missing acknowledgment is the
// device being busy or holding an RF session, so every bus error is
// reported as transient.
func (t *Transport) busError(op string, sentinel, err error) error {
	var te *m24sr.TransportError
	if errors.As(err, &te) {
		return err
	}
	return m24sr.NewTransportError(op, t.busName, fmt.Errorf("%w: %w", sentinel, err), m24sr.ErrorTypeTransient)
}

// Ensure Transport implements m24sr.Transport
var _ m24sr.Transport = (*Transport)(nil)
