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

// Package polling watches the M24SR GPO pin and reads the NDEF message
// whenever an RF reader has finished with the tag.
package polling

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Config holds Monitor settings
type Config struct {
	// PollInterval is the delay between GPO samples
	PollInterval time.Duration
	// ReadTimeout bounds reading the tag after a trigger
	ReadTimeout time.Duration
	// ReadOnStart reads the tag once before watching GPO
	ReadOnStart bool
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() *Config {
	return &Config{
		PollInterval: 50 * time.Millisecond,
		ReadTimeout:  2 * time.Second,
	}
}

// Pin is the input the M24SR GPO output is wired to
type Pin interface {
	Read() gpio.Level
}

// ErrPinNotFound is returned when no GPIO has the requested name
var ErrPinNotFound = errors.New("GPIO pin not found")

// OpenGPOPin looks up a host GPIO by name, such as "GPIO17", and sets it up
// as an input with pull-up. GPO is an open-drain output.
func OpenGPOPin(name string) (gpio.PinIn, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph host: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	if err := p.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("failed to configure %s as input: %w", name, err)
	}
	return p, nil
}
