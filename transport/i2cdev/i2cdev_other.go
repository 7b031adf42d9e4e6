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

//go:build !linux

package i2cdev

import m24sr "github.com/ZaparooProject/go-m24sr"

// Transport is unavailable outside Linux
type Transport struct{}

// Open always fails outside Linux
func Open(path string) (*Transport, error) {
	return nil, ErrUnsupportedPlatform
}

// Write always fails outside Linux
func (*Transport) Write(uint16, []byte) error { return ErrUnsupportedPlatform }

// Read always fails outside Linux
func (*Transport) Read(uint16, []byte) (int, error) { return 0, ErrUnsupportedPlatform }

// Close does nothing
func (*Transport) Close() error { return nil }

// String names the transport
func (*Transport) String() string { return "i2c-dev (unsupported)" }

var _ m24sr.Transport = (*Transport)(nil)
