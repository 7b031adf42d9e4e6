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

package frame

import (
	"fmt"
	"math/bits"

	"github.com/sigurn/crc16"
)

// DefaultSeed is the initial CRC register content mandated for M24SR frames
// (ISO/IEC 13239, reflected form).
const DefaultSeed uint16 = 0x6363

// Residue is the value the CRC reduces to when run over a frame together
// with its own little-endian check value.
const Residue uint16 = 0x0000

// crcParams describes CRC-16/ISO-IEC-14443-3-A in the Rocksoft model used by
// crc16. Init is stored unreflected: bits.Reverse16(0xC6C6) == 0x6363.
var crcParams = crc16.Params{
	Poly:   0x1021,
	Init:   0xC6C6,
	RefIn:  true,
	RefOut: true,
	XorOut: 0x0000,
	Check:  0xBF05,
	Name:   "CRC-16/ISO-IEC-14443-3-A",
}

var crcTable = crc16.MakeTable(crcParams)

// CRC computes the ISO/IEC 13239 CRC-16 of data starting from seed.
// seed is given in the reflected form used on the wire (0x6363 for a fresh frame).
func CRC(data []byte, seed uint16) uint16 {
	crc := crc16.Update(bits.Reverse16(seed), data, crcTable)
	return crc16.Complete(crc, crcTable)
}

// AppendCRC appends the CRC of b, low byte first, and returns the extended slice.
func AppendCRC(b []byte) []byte {
	crc := CRC(b, DefaultSeed)
	return append(b, byte(crc), byte(crc>>8))
}

// VerifyCRC checks that the trailing two bytes of frm are the CRC of the
// bytes preceding them.
func VerifyCRC(frm []byte) error {
	if len(frm) < CRCLength+PCBLength {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooShort, len(frm))
	}
	body := frm[:len(frm)-CRCLength]
	want := CRC(body, DefaultSeed)
	got := uint16(frm[len(frm)-2]) | uint16(frm[len(frm)-1])<<8
	if got != want {
		return &ChecksumError{Expected: want, Actual: got}
	}
	return nil
}
