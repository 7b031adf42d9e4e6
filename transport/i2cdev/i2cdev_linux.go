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

package i2cdev

import (
	"errors"
	"fmt"
	"sync"

	m24sr "github.com/ZaparooProject/go-m24sr"
	"golang.org/x/sys/unix"
)

// Transport implements m24sr.Transport on an i2c-dev file descriptor
type Transport struct {
	path    string
	mu      sync.Mutex
	fd      int
	addr    uint16
	addrSet bool
	closed  bool
}

// Open opens an i2c-dev bus such as /dev/i2c-1
func Open(path string) (*Transport, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return &Transport{path: path, fd: fd}, nil
}

// Write sends p to the device at addr in one transfer
func (t *Transport) Write(addr uint16, p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.selectAddress(addr); err != nil {
		return err
	}
	for {
		n, err := unix.Write(t.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return t.errnoError("write", m24sr.ErrTransportWrite, err)
		}
		if n != len(p) {
			return m24sr.NewTransportError("write", t.path,
				fmt.Errorf("%w: short write %d of %d bytes", m24sr.ErrTransportWrite, n, len(p)),
				m24sr.ErrorTypeTransient)
		}
		return nil
	}
}

// Read fills p from the device at addr in one transfer
func (t *Transport) Read(addr uint16, p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.selectAddress(addr); err != nil {
		return 0, err
	}
	for {
		n, err := unix.Read(t.fd, p)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return 0, t.errnoError("read", m24sr.ErrTransportRead, err)
		}
		return n, nil
	}
}

// Close closes the bus file descriptor
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if err := unix.Close(t.fd); err != nil {
		return fmt.Errorf("failed to close %s: %w", t.path, err)
	}
	return nil
}

// String returns the device path
func (t *Transport) String() string {
	return t.path
}

func (t *Transport) selectAddress(addr uint16) error {
	if t.closed {
		return m24sr.ErrTransportClosed
	}
	if t.addrSet && t.addr == addr {
		return nil
	}
	if err := unix.IoctlSetInt(t.fd, i2cSlave, int(addr)); err != nil {
		return m24sr.NewTransportError("set address", t.path,
			fmt.Errorf("%w: address 0x%02X: %w", m24sr.ErrInvalidParameter, addr, err),
			m24sr.ErrorTypePermanent)
	}
	t.addr, t.addrSet = addr, true
	return nil
}

func (t *Transport) errnoError(op string, sentinel, err error) error {
	return m24sr.NewTransportError(op, t.path, fmt.Errorf("%w: %w", sentinel, err), classifyErrno(err))
}

// classifyErrno maps adapter errors to retry classes. ENXIO and EREMOTEIO
// are a missing acknowledgment, which the M24SR does while busy.
func classifyErrno(err error) m24sr.ErrorType {
	switch {
	case errors.Is(err, unix.ETIMEDOUT):
		return m24sr.ErrorTypeTimeout
	case errors.Is(err, unix.ENXIO),
		errors.Is(err, unix.EREMOTEIO),
		errors.Is(err, unix.EAGAIN),
		errors.Is(err, unix.EIO):
		return m24sr.ErrorTypeTransient
	default:
		return m24sr.ErrorTypePermanent
	}
}

// Ensure Transport implements m24sr.Transport
var _ m24sr.Transport = (*Transport)(nil)
