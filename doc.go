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

/*
Package m24sr drives ST M24SR dynamic NFC tags from the I2C side.

The M24SR speaks ISO 7816-4 APDUs wrapped in ISO 14443-4 blocks over I2C.
A Session owns the block layer: it requests the I2C session, numbers
I-blocks with the alternating block bit, appends and checks the CRC,
answers waiting time extension (WTX) requests and releases the tag with
DESELECT. A Tag builds the Type 4 command set on top of it: NDEF
application and file selection, chunked ReadBinary and UpdateBinary,
password verification and the system file.

Basic Usage:

	import (
	    m24sr "github.com/ZaparooProject/go-m24sr"
	    "github.com/ZaparooProject/go-m24sr/transport/i2c"
	)

	transport, err := i2c.New("1")
	if err != nil {
	    log.Fatal(err)
	}

	session, err := m24sr.Open(transport, m24sr.DefaultAddress)
	if err != nil {
	    log.Fatal(err)
	}
	defer session.Close()

	tag := m24sr.NewTag(session)
	msg, err := tag.ReadNDEF(ctx)

Every Tag operation runs in its own I2C session and ends with DESELECT so
that an RF reader can reach the tag between operations.

Transports:

  - transport/i2c: periph.io buses
  - transport/i2cdev: Linux /dev/i2c-N through ioctl, no periph host needed

Wrap either in NewTransportWithRetry to ride out NAKs while the tag is
busy with RF traffic.

Error Handling:

Bus and framing failures are *TransportError values classified by
ErrorType; card status words come back as *StatusError:

	var se *m24sr.StatusError
	if errors.As(err, &se) && se.SW1 == 0x63 {
	    // wrong password
	}

Thread Safety:

Session is not safe for concurrent use. Tag serializes its operations.
*/
package m24sr
