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
	"encoding/binary"
	"fmt"
)

// System file layout
const (
	sysOffsetLength      = 0x00
	sysOffsetI2CProtect  = 0x02
	sysOffsetI2CWatchdog = 0x03
	sysOffsetGPO         = 0x04
	sysOffsetRFEnable    = 0x06
	sysOffsetNDEFFileNum = 0x07
	sysOffsetUID         = 0x08
	sysOffsetMemorySize  = 0x0F
	sysOffsetProductCode = 0x11
	systemFileMinLength  = 0x12
	uidLength            = 7
)

// GPO modes. The system file GPO byte holds the RF session mode in bits
// 6:4 and the I2C session mode in bits 2:0.
const (
	GPOHighImpedance byte = 0x00
	// GPOSessionOpen drives GPO low while a session is open
	GPOSessionOpen   byte = 0x01
	// GPOWIP drives GPO low while the device is writing to EEPROM
	GPOWIP           byte = 0x02
	// GPOMIP drives GPO low while the NDEF file is being modified
	GPOMIP           byte = 0x03
	GPOInterrupt     byte = 0x04
	GPOStateControl  byte = 0x05
	// GPORFBusy drives GPO low while an RF reader holds the tag
	GPORFBusy        byte = 0x06
)

// DefaultGPOConfig is RF busy on the RF side and session open on the I2C
// side (0x61). GPO rises when a phone leaves the field.
var DefaultGPOConfig = GPOConfig(GPORFBusy, GPOSessionOpen)

// GPOConfig packs the RF and I2C GPO modes into a system file GPO byte
func GPOConfig(rf, i2c byte) byte {
	return (rf&0x07)<<4 | i2c&0x07
}

// SystemFile is the decoded M24SR system file
type SystemFile struct {
	Raw            []byte
	UID            [uidLength]byte
	Length         uint16
	MemorySize     uint16
	I2CProtect     byte
	I2CWatchdog    byte
	GPO            byte
	RFEnable       byte
	NDEFFileNumber byte
	ProductCode    byte
}

// ParseSystemFile decodes the content of the system file, including its
// two length bytes.
func ParseSystemFile(data []byte) (*SystemFile, error) {
	if len(data) < systemFileMinLength {
		return nil, fmt.Errorf("%w: system file is %d bytes, need at least %d",
			ErrResponseTooShort, len(data), systemFileMinLength)
	}

	sf := &SystemFile{
		Raw:            append([]byte(nil), data...),
		Length:         binary.BigEndian.Uint16(data[sysOffsetLength:]),
		I2CProtect:     data[sysOffsetI2CProtect],
		I2CWatchdog:    data[sysOffsetI2CWatchdog],
		GPO:            data[sysOffsetGPO],
		RFEnable:       data[sysOffsetRFEnable],
		NDEFFileNumber: data[sysOffsetNDEFFileNum],
		MemorySize:     binary.BigEndian.Uint16(data[sysOffsetMemorySize:]),
		ProductCode:    data[sysOffsetProductCode],
	}
	copy(sf.UID[:], data[sysOffsetUID:sysOffsetUID+uidLength])
	return sf, nil
}

// UIDString returns the UID as upper case hex
func (sf *SystemFile) UIDString() string {
	return fmt.Sprintf("%X", sf.UID[:])
}

// ProductName returns the part number matching the product code
func (sf *SystemFile) ProductName() string {
	switch sf.ProductCode {
	case 0x82, 0x8A:
		return "M24SR02"
	case 0x85, 0x8D:
		return "M24SR04"
	case 0x86, 0x8E:
		return "M24SR16"
	case 0x84, 0x8C:
		return "M24SR64"
	default:
		return fmt.Sprintf("unknown (0x%02X)", sf.ProductCode)
	}
}
