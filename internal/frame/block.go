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
	"errors"
	"fmt"
)

// Frame errors
var (
	ErrPayloadTooLarge  = errors.New("payload too large for frame")
	ErrChecksumMismatch = errors.New("frame checksum mismatch")
	ErrFrameTooShort    = errors.New("frame too short")
)

// ChecksumError reports the expected and received check values of a frame
// that failed CRC validation. It matches ErrChecksumMismatch with errors.Is.
type ChecksumError struct {
	Expected uint16
	Actual   uint16
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("%v: expected %04X, got %04X", ErrChecksumMismatch, e.Expected, e.Actual)
}

// Is reports whether target is ErrChecksumMismatch.
func (*ChecksumError) Is(target error) bool {
	return target == ErrChecksumMismatch
}

// Block is an outbound frame before CRC is applied. It is implemented by
// CommandFrame and ControlFrame.
type Block interface {
	pcb() byte
	inf() []byte
}

// CommandFrame is an I-block carrying an application payload (an APDU).
type CommandFrame struct {
	Payload []byte
	Toggle  bool
}

func (c CommandFrame) pcb() byte {
	if c.Toggle {
		return PCBIBlock1
	}
	return PCBIBlock0
}

func (c CommandFrame) inf() []byte { return c.Payload }

// ControlFunction identifies the function of an S-block.
type ControlFunction byte

// Control functions supported by the M24SR
const (
	ControlDeselect ControlFunction = PCBDeselect
	ControlWTX      ControlFunction = PCBWTX
)

// String returns a readable name for the control function
func (f ControlFunction) String() string {
	switch f {
	case ControlDeselect:
		return "DESELECT"
	case ControlWTX:
		return "WTX"
	default:
		return fmt.Sprintf("S(0x%02X)", byte(f))
	}
}

// ControlFrame is an S-block. Multiplier is only sent for ControlWTX.
type ControlFrame struct {
	Function   ControlFunction
	Multiplier byte
}

func (c ControlFrame) pcb() byte { return byte(c.Function) }

func (c ControlFrame) inf() []byte {
	if c.Function == ControlWTX {
		return []byte{c.Multiplier}
	}
	return nil
}

// Encode appends the wire form of blk to dst: PCB, information field and
// CRC. A maxFrameSize of zero or less disables the size check.
func Encode(dst []byte, blk Block, maxFrameSize int) ([]byte, error) {
	inf := blk.inf()
	if maxFrameSize > 0 && len(inf)+Overhead > maxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes payload, %d bytes max",
			ErrPayloadTooLarge, len(inf), maxFrameSize-Overhead)
	}
	start := len(dst)
	dst = append(dst, blk.pcb())
	dst = append(dst, inf...)
	crc := CRC(dst[start:], DefaultSeed)
	return append(dst, byte(crc), byte(crc>>8)), nil
}

// EncodeIBlock builds an I-block for payload with the given toggle bit.
func EncodeIBlock(toggle bool, payload []byte, maxFrameSize int) ([]byte, error) {
	return Encode(make([]byte, 0, len(payload)+Overhead), CommandFrame{Toggle: toggle, Payload: payload}, maxFrameSize)
}

// EncodeSBlock builds an S-block frame.
func EncodeSBlock(ctrl ControlFrame) []byte {
	frm, _ := Encode(make([]byte, 0, WTXFrameLength), ctrl, 0)
	return frm
}

// Kind classifies a received block by its PCB
type Kind int

const (
	KindUnknown Kind = iota
	KindI
	KindR
	KindS
)

// String returns a readable name for the block kind
func (k Kind) String() string {
	switch k {
	case KindI:
		return "I-block"
	case KindR:
		return "R-block"
	case KindS:
		return "S-block"
	default:
		return "unknown"
	}
}

// KindOf classifies pcb
func KindOf(pcb byte) Kind {
	switch pcb & blockTypeMask {
	case iBlockBits:
		return KindI
	case rBlockBits:
		return KindR
	case sBlockBits:
		return KindS
	default:
		return KindUnknown
	}
}

// IsWTX reports whether the first byte of a response marks an S(WTX) request.
func IsWTX(first byte) bool {
	return first == PCBWTX
}

// Response is a decoded inbound frame. INF aliases the decoded buffer.
type Response struct {
	INF []byte
	PCB byte
}

// Kind returns the block kind of the response
func (r Response) Kind() Kind {
	return KindOf(r.PCB)
}

// Toggle returns the block number bit of an I-block response
func (r Response) Toggle() bool {
	return r.PCB&blockNumBit != 0
}

// Multiplier returns the WTXM of an S(WTX) request, or zero for any other block.
func (r Response) Multiplier() byte {
	if r.PCB != PCBWTX || len(r.INF) == 0 {
		return 0
	}
	return r.INF[0]
}

// Decode validates the CRC of frm and splits it into PCB and information field.
func Decode(frm []byte) (Response, error) {
	if err := VerifyCRC(frm); err != nil {
		return Response{}, err
	}
	return Response{
		PCB: frm[0],
		INF: frm[PCBLength : len(frm)-CRCLength],
	}, nil
}
