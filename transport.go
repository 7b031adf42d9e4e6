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

package m24sr

import (
	"context"
	"fmt"
)

// Transport is the byte-oriented link to the M24SR, typically an I2C bus.
// Implementations move raw bytes only; framing, CRC and session handling
// live in Session.
//
// Transports that implement fmt.Stringer have their name reported in errors.
type Transport interface {
	// Write sends p to the device at addr in one bus transaction
	Write(addr uint16, p []byte) error

	// Read fills p from the device at addr in one bus transaction and
	// returns the number of bytes received
	Read(addr uint16, p []byte) (int, error)

	// Close releases the underlying bus
	Close() error
}

// TransportWithRetry wraps a Transport and retries bus transfers that fail
// with a retryable error, such as the device not acknowledging its address
// while busy.
type TransportWithRetry struct {
	transport Transport
	config    *RetryConfig
}

// NewTransportWithRetry creates a new transport wrapper with retry logic
func NewTransportWithRetry(transport Transport, config *RetryConfig) *TransportWithRetry {
	if config == nil {
		config = DefaultRetryConfig()
	}
	return &TransportWithRetry{
		transport: transport,
		config:    config,
	}
}

// Write sends p with retry logic
func (t *TransportWithRetry) Write(addr uint16, p []byte) error {
	return RetryWithConfig(context.Background(), t.config, func() error {
		return t.transport.Write(addr, p)
	})
}

// Read receives into p with retry logic
func (t *TransportWithRetry) Read(addr uint16, p []byte) (int, error) {
	var n int
	err := RetryWithConfig(context.Background(), t.config, func() error {
		var err error
		n, err = t.transport.Read(addr, p)
		return err
	})
	return n, err
}

// Close closes the underlying transport
func (t *TransportWithRetry) Close() error {
	if err := t.transport.Close(); err != nil {
		return fmt.Errorf("failed to close underlying transport: %w", err)
	}
	return nil
}

// String returns the name of the underlying transport
func (t *TransportWithRetry) String() string {
	return transportName(t.transport)
}

// SetRetryConfig updates the retry configuration
func (t *TransportWithRetry) SetRetryConfig(config *RetryConfig) {
	t.config = config
}

func transportName(t Transport) string {
	if s, ok := t.(fmt.Stringer); ok {
		return s.String()
	}
	return ""
}
