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

// Package i2cdev provides an M24SR transport over the Linux i2c-dev
// character devices (/dev/i2c-N), without any userspace driver framework.
package i2cdev

import "errors"

// ErrUnsupportedPlatform is returned by Open outside Linux
var ErrUnsupportedPlatform = errors.New("i2c-dev is only available on linux")

// i2cSlave is the ioctl request selecting the target address of the
// following reads and writes
const i2cSlave = 0x0703
