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

import "fmt"

// APDU instruction codes
const (
	claISO          = 0x00
	insSelectFile   = 0xA4
	insReadBinary   = 0xB0
	insUpdateBinary = 0xD6
	insVerify       = 0x20
)

// Well-known elementary files of the NDEF tag application
const (
	FileNDEF   uint16 = 0x0001
	FileCC     uint16 = 0xE103
	FileSystem uint16 = 0xE101
)

// Password identifiers for the Verify command
const (
	PasswordRead  byte = 0x01
	PasswordWrite byte = 0x02
	PasswordI2C   byte = 0x03
)

// PasswordLength is the size of every M24SR password
const PasswordLength = 16

// statusLength is the size of the status word closing every response
const statusLength = 2

// apduHeaderLength is CLA INS P1 P2 Lc/Le
const apduHeaderLength = 5

// NDEFApplicationID is the AID of the NFC Forum Type 4 tag application
var NDEFApplicationID = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}

// DefaultPassword is the factory password of all three password slots
var DefaultPassword = make([]byte, PasswordLength)

// SelectNDEFApplicationAPDU selects the NDEF tag application. Le is omitted,
// the M24SR answers with the status word only.
func SelectNDEFApplicationAPDU() []byte {
	apdu := []byte{claISO, insSelectFile, 0x04, 0x00, byte(len(NDEFApplicationID))}
	return append(apdu, NDEFApplicationID...)
}

// SelectFileAPDU selects an elementary file by its identifier
func SelectFileAPDU(id uint16) []byte {
	return []byte{claISO, insSelectFile, 0x00, 0x0C, 0x02, byte(id >> 8), byte(id)}
}

// ReadBinaryAPDU reads le bytes of the selected file starting at offset
func ReadBinaryAPDU(offset uint16, le byte) []byte {
	return []byte{claISO, insReadBinary, byte(offset >> 8), byte(offset), le}
}

// UpdateBinaryAPDU writes data to the selected file starting at offset
func UpdateBinaryAPDU(offset uint16, data []byte) ([]byte, error) {
	if len(data) == 0 || len(data) > 0xFF {
		return nil, fmt.Errorf("%w: update of %d bytes", ErrInvalidParameter, len(data))
	}
	apdu := make([]byte, 0, apduHeaderLength+len(data))
	apdu = append(apdu, claISO, insUpdateBinary, byte(offset>>8), byte(offset), byte(len(data)))
	return append(apdu, data...), nil
}

// VerifyAPDU presents a password for the given password identifier
func VerifyAPDU(passwordID byte, password []byte) ([]byte, error) {
	if passwordID < PasswordRead || passwordID > PasswordI2C {
		return nil, fmt.Errorf("%w: password id %d", ErrInvalidParameter, passwordID)
	}
	if len(password) != PasswordLength {
		return nil, fmt.Errorf("%w: password must be %d bytes, got %d",
			ErrInvalidParameter, PasswordLength, len(password))
	}
	apdu := make([]byte, 0, apduHeaderLength+PasswordLength)
	apdu = append(apdu, claISO, insVerify, 0x00, passwordID, PasswordLength)
	return append(apdu, password...), nil
}

// checkStatus splits a response into data and status word, returning a
// *StatusError unless the status is 90 00.
func checkStatus(command string, resp []byte) ([]byte, error) {
	if len(resp) < statusLength {
		return nil, fmt.Errorf("%s: %w: missing status word", command, ErrResponseTooShort)
	}
	n := len(resp) - statusLength
	sw1, sw2 := resp[n], resp[n+1]
	if uint16(sw1)<<8|uint16(sw2) != SWSuccess {
		return nil, &StatusError{Command: command, SW1: sw1, SW2: sw2}
	}
	return resp[:n], nil
}
