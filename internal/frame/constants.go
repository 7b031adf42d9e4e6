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

// Package frame provides block framing and CRC handling for the M24SR
// ISO/IEC 14443-4 block protocol carried over I2C.
package frame

// Protocol Control Byte values. The M24SR never uses CID or NAD, so the
// corresponding PCB bits are always clear.
const (
	PCBIBlock0  = 0x02 // I-block, block number 0
	PCBIBlock1  = 0x03 // I-block, block number 1
	PCBDeselect = 0xC2 // S(DESELECT)
	PCBWTX      = 0xF2 // S(WTX) request and acknowledgment

	// PCB bits that distinguish I-, R- and S-blocks.
	blockTypeMask = 0xC2
	iBlockBits    = 0x02
	rBlockBits    = 0x82
	sBlockBits    = 0xC2
	blockNumBit   = 0x01
)

// Link-level session control words. These are written on their own,
// without PCB or CRC.
const (
	GetI2CSession = 0x26
	KillRFSession = 0x52
)

// Frame size constants
const (
	PCBLength = 1
	CRCLength = 2

	// Overhead is the number of framing bytes around the information field.
	Overhead = PCBLength + CRCLength

	// WTXFrameLength is the size of an S(WTX) frame: PCB, WTXM and CRC.
	WTXFrameLength = PCBLength + 1 + CRCLength

	// DeselectFrameLength is the size of an S(DESELECT) frame.
	DeselectFrameLength = PCBLength + CRCLength

	// StatusFrameLength is the size of an I-block carrying only a status
	// word, which is how the device answers a failed command.
	StatusFrameLength = Overhead + 2

	// WTXMultiplierMask selects the WTXM bits of the S(WTX) information byte.
	WTXMultiplierMask = 0x3F
)
