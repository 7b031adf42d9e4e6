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

package testing

import "github.com/ZaparooProject/go-m24sr/internal/frame"

// Status words
var (
	StatusOK               = []byte{0x90, 0x00}
	StatusWrongLength      = []byte{0x67, 0x00}
	StatusSecurityNotMet   = []byte{0x69, 0x82}
	StatusNotAllowed       = []byte{0x69, 0x86}
	StatusFileNotFound     = []byte{0x6A, 0x82}
	StatusWrongParameters  = []byte{0x6B, 0x00}
	StatusUnknownINS       = []byte{0x6D, 0x00}
	StatusClassUnsupported = []byte{0x6E, 0x00}
)

// BuildIBlockResponse frames data as the device answer to an I-block with
// the given block number
func BuildIBlockResponse(toggle bool, data ...byte) []byte {
	frm, err := frame.EncodeIBlock(toggle, data, 0)
	if err != nil {
		panic(err)
	}
	return frm
}

// BuildWTXRequest builds an S(WTX) request with multiplier m
func BuildWTXRequest(m byte) []byte {
	return frame.EncodeSBlock(frame.ControlFrame{Function: frame.ControlWTX, Multiplier: m})
}

// BuildDeselectResponse builds the S(DESELECT) acknowledgment
func BuildDeselectResponse() []byte {
	return frame.EncodeSBlock(frame.ControlFrame{Function: frame.ControlDeselect})
}

// Sample identities
var (
	// TestUID is the UID of the default virtual device
	TestUID = []byte{0x02, 0xC4, 0x00, 0x1A, 0x2B, 0x3C, 0x4D}

	// TestNDEFText is a text record "hello, world" in English
	TestNDEFText = []byte{
		0xD1, 0x01, 0x0F, 0x54, 0x02, 0x65, 0x6E,
		0x68, 0x65, 0x6C, 0x6C, 0x6F, 0x2C, 0x20, 0x77, 0x6F, 0x72, 0x6C, 0x64,
	}
)
