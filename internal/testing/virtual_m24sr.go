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

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/ZaparooProject/go-m24sr/internal/frame"
)

// DefaultAddress is the 7-bit I2C address of an M24SR
const DefaultAddress = 0x56

// Elementary file identifiers
const (
	FileNDEF   uint16 = 0x0001
	FileCC     uint16 = 0xE103
	FileSystem uint16 = 0xE101
)

const (
	ndefFileSize  = 512
	gpoOffset     = 0x04
	passwordCount = 3
	passwordSize  = 16
	i2cPasswordID = 3
)

var (
	// ErrNAK is returned when the device does not acknowledge a transfer
	ErrNAK = errors.New("virtual m24sr: not acknowledged")
	// ErrClosed is returned after Close
	ErrClosed = errors.New("virtual m24sr: closed")
)

var ndefAID = []byte{0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}

// VirtualM24SR simulates an M24SR04 at the I2C byte level. It implements
// the Write/Read/Close transport methods, checks the session request, CRCs
// and block numbers of every frame, and runs the Type 4 tag command set
// against in-memory files.
type VirtualM24SR struct {
	files        map[uint16][]byte
	pending      []byte
	deferred     []byte
	writes       [][]byte
	passwords    [passwordCount][]byte
	commands     [][]byte
	address      uint16
	selected     uint16
	wtxRemaining int
	corruptNext  int
	nakWrites    int
	crcErrors    int
	blockErrors  int
	sessions     int
	mu           sync.Mutex
	wtxM         byte
	sessionOpen  bool
	appSelected  bool
	i2cVerified  bool
	nextToggle   bool
	closed       bool
}

// NewVirtualM24SR creates a virtual M24SR04 at DefaultAddress with an
// empty NDEF file and the default passwords.
func NewVirtualM24SR() *VirtualM24SR {
	v := &VirtualM24SR{
		address: DefaultAddress,
		files: map[uint16][]byte{
			FileNDEF: make([]byte, ndefFileSize),
			FileCC: {
				0x00, 0x0F, 0x20, 0x00, 0xF6, 0x00, 0xF6,
				0x04, 0x06, 0x00, 0x01, 0x02, 0x00, 0x00, 0x00,
			},
			FileSystem: defaultSystemFile(),
		},
	}
	for i := range v.passwords {
		v.passwords[i] = make([]byte, passwordSize)
	}
	return v
}

func defaultSystemFile() []byte {
	sf := []byte{
		0x00, 0x12, // length
		0x00,       // I2C protect
		0x00,       // I2C watchdog
		0x11,       // GPO
		0x00,       // reserved
		0x01,       // RF enable
		0x00,       // NDEF file number
	}
	sf = append(sf, TestUID...)
	return append(sf, 0x01, 0xFF, 0x85)
}

// SetAddress moves the device to another I2C address
func (v *VirtualM24SR) SetAddress(addr uint16) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.address = addr
}

// SetNDEF stores msg in the NDEF file and updates NLEN
func (v *VirtualM24SR) SetNDEF(msg []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	f := v.files[FileNDEF]
	binary.BigEndian.PutUint16(f, uint16(len(msg)))
	copy(f[2:], msg)
}

// NDEF returns the message currently stored in the NDEF file
func (v *VirtualM24SR) NDEF() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	f := v.files[FileNDEF]
	n := int(binary.BigEndian.Uint16(f))
	return append([]byte(nil), f[2:2+n]...)
}

// GPO returns the GPO byte of the system file
func (v *VirtualM24SR) GPO() byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.files[FileSystem][gpoOffset]
}

// SetPassword replaces the password with identifier id (1 to 3)
func (v *VirtualM24SR) SetPassword(id int, pwd []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.passwords[id-1] = append([]byte(nil), pwd...)
}

// InjectWTX makes the device answer the next block with count S(WTX)
// requests of multiplier m before the real answer.
func (v *VirtualM24SR) InjectWTX(count int, m byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.wtxRemaining = count
	v.wtxM = m
}

// CorruptResponses flips a CRC bit in the next n responses
func (v *VirtualM24SR) CorruptResponses(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.corruptNext = n
}

// NAKWrites makes the next n writes fail with ErrNAK
func (v *VirtualM24SR) NAKWrites(n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nakWrites = n
}

// Writes returns every acknowledged write
func (v *VirtualM24SR) Writes() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.writes))
	copy(out, v.writes)
	return out
}

// Commands returns the APDUs received, in order
func (v *VirtualM24SR) Commands() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.commands))
	copy(out, v.commands)
	return out
}

// SessionOpen reports whether the host holds the I2C session
func (v *VirtualM24SR) SessionOpen() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sessionOpen
}

// Sessions returns how many times the I2C session was requested
func (v *VirtualM24SR) Sessions() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.sessions
}

// CRCErrors returns how many frames arrived with a bad CRC
func (v *VirtualM24SR) CRCErrors() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.crcErrors
}

// BlockNumberErrors returns how many I-blocks carried the wrong block number
func (v *VirtualM24SR) BlockNumberErrors() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.blockErrors
}

// String names the transport
func (*VirtualM24SR) String() string {
	return "virtual"
}

// Close makes every following transfer fail
func (v *VirtualM24SR) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// Write handles one bus write from the host
func (v *VirtualM24SR) Write(addr uint16, p []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrClosed
	}
	if addr != v.address || len(p) == 0 {
		return ErrNAK
	}
	if v.nakWrites > 0 {
		v.nakWrites--
		return ErrNAK
	}
	v.writes = append(v.writes, append([]byte(nil), p...))

	if len(p) == 1 && (p[0] == frame.GetI2CSession || p[0] == frame.KillRFSession) {
		v.openSession()
		return nil
	}
	if !v.sessionOpen {
		return ErrNAK
	}

	resp, err := frame.Decode(p)
	if err != nil {
		// A frame with a bad CRC is ignored; the host gets no answer.
		v.crcErrors++
		v.pending = nil
		return nil
	}

	switch {
	case resp.PCB == frame.PCBDeselect:
		v.respond(BuildDeselectResponse())
		v.closeSession()
	case resp.PCB == frame.PCBWTX:
		v.continueWTX()
	case resp.Kind() == frame.KindI:
		if resp.Toggle() != v.nextToggle {
			v.blockErrors++
		}
		v.nextToggle = !resp.Toggle()
		data := v.process(resp.INF)
		v.respond(BuildIBlockResponse(resp.Toggle(), data...))
	default:
		v.pending = nil
	}
	return nil
}

// Read returns the pending answer
func (v *VirtualM24SR) Read(addr uint16, p []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, ErrClosed
	}
	if addr != v.address || v.pending == nil {
		return 0, ErrNAK
	}
	n := copy(p, v.pending)
	v.pending = nil
	return n, nil
}

func (v *VirtualM24SR) openSession() {
	v.sessionOpen = true
	v.sessions++
	v.nextToggle = false
}

func (v *VirtualM24SR) closeSession() {
	v.sessionOpen = false
	v.appSelected = false
	v.i2cVerified = false
	v.selected = 0
}

// respond queues frm, preceded by any injected WTX requests
func (v *VirtualM24SR) respond(frm []byte) {
	if v.wtxRemaining > 0 {
		v.deferred = frm
		v.wtxRemaining--
		v.queue(BuildWTXRequest(v.wtxM))
		return
	}
	v.queue(frm)
}

func (v *VirtualM24SR) continueWTX() {
	if v.deferred == nil {
		v.pending = nil
		return
	}
	if v.wtxRemaining > 0 {
		v.wtxRemaining--
		v.queue(BuildWTXRequest(v.wtxM))
		return
	}
	v.queue(v.deferred)
	v.deferred = nil
}

func (v *VirtualM24SR) queue(frm []byte) {
	if v.corruptNext > 0 {
		v.corruptNext--
		frm = append([]byte(nil), frm...)
		frm[len(frm)-1] ^= 0x01
	}
	v.pending = frm
}

// process runs one APDU and returns response data followed by the status word
func (v *VirtualM24SR) process(apdu []byte) []byte {
	v.commands = append(v.commands, append([]byte(nil), apdu...))

	if len(apdu) < 4 {
		return StatusWrongLength
	}
	if apdu[0] != 0x00 {
		return StatusClassUnsupported
	}

	switch apdu[1] {
	case 0xA4:
		return v.selectFile(apdu)
	case 0xB0:
		return v.readBinary(apdu)
	case 0xD6:
		return v.updateBinary(apdu)
	case 0x20:
		return v.verify(apdu)
	default:
		return StatusUnknownINS
	}
}

func (v *VirtualM24SR) selectFile(apdu []byte) []byte {
	data, ok := commandData(apdu)
	if !ok {
		return StatusWrongLength
	}
	switch {
	case apdu[2] == 0x04 && apdu[3] == 0x00:
		if !bytes.Equal(data, ndefAID) {
			return StatusFileNotFound
		}
		v.appSelected = true
		v.selected = 0
		return StatusOK
	case apdu[2] == 0x00 && apdu[3] == 0x0C:
		if len(data) != 2 {
			return StatusWrongLength
		}
		id := binary.BigEndian.Uint16(data)
		if _, ok := v.files[id]; !ok || !v.appSelected {
			return StatusFileNotFound
		}
		v.selected = id
		return StatusOK
	default:
		return StatusWrongParameters
	}
}

func (v *VirtualM24SR) readBinary(apdu []byte) []byte {
	if len(apdu) != 5 {
		return StatusWrongLength
	}
	if v.selected == 0 {
		return StatusNotAllowed
	}
	f := v.files[v.selected]
	offset := int(binary.BigEndian.Uint16(apdu[2:4]))
	le := int(apdu[4])
	if offset+le > len(f) {
		return StatusWrongParameters
	}
	out := append([]byte(nil), f[offset:offset+le]...)
	return append(out, StatusOK...)
}

func (v *VirtualM24SR) updateBinary(apdu []byte) []byte {
	data, ok := commandData(apdu)
	if !ok || len(data) == 0 {
		return StatusWrongLength
	}
	if v.selected == 0 {
		return StatusNotAllowed
	}
	if v.selected == FileSystem && !v.i2cVerified {
		return StatusSecurityNotMet
	}
	f := v.files[v.selected]
	offset := int(binary.BigEndian.Uint16(apdu[2:4]))
	if offset+len(data) > len(f) {
		return StatusWrongParameters
	}
	copy(f[offset:], data)
	return StatusOK
}

func (v *VirtualM24SR) verify(apdu []byte) []byte {
	id := int(apdu[3])
	if apdu[2] != 0x00 || id < 1 || id > passwordCount {
		return StatusWrongParameters
	}
	if !v.appSelected {
		return StatusNotAllowed
	}
	data, ok := commandData(apdu)
	if !ok || len(data) != passwordSize {
		return StatusWrongLength
	}
	if !bytes.Equal(data, v.passwords[id-1]) {
		return []byte{0x63, 0xC2}
	}
	if id == i2cPasswordID {
		v.i2cVerified = true
	}
	return StatusOK
}

// commandData returns the Lc data field of a case 3 APDU
func commandData(apdu []byte) ([]byte, bool) {
	if len(apdu) < 5 {
		return nil, false
	}
	lc := int(apdu[4])
	if len(apdu) != 5+lc {
		return nil, false
	}
	return apdu[5:], true
}
