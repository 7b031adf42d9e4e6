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
	"testing"

	"github.com/ZaparooProject/go-m24sr/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exchange(t *testing.T, v *VirtualM24SR, toggle bool, apdu []byte) []byte {
	t.Helper()
	frm, err := frame.EncodeIBlock(toggle, apdu, 0)
	require.NoError(t, err)
	require.NoError(t, v.Write(DefaultAddress, frm))

	buf := make([]byte, 64)
	n, err := v.Read(DefaultAddress, buf)
	require.NoError(t, err)
	resp, err := frame.Decode(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, toggle, resp.Toggle())
	return resp.INF
}

func TestVirtualM24SR_RequiresSession(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	frm, err := frame.EncodeIBlock(false, []byte{0x00, 0xA4, 0x04, 0x00}, 0)
	require.NoError(t, err)

	require.ErrorIs(t, v.Write(DefaultAddress, frm), ErrNAK)
	require.NoError(t, v.Write(DefaultAddress, []byte{frame.GetI2CSession}))
	assert.True(t, v.SessionOpen())
	assert.Equal(t, 1, v.Sessions())
}

func TestVirtualM24SR_WrongAddress(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	require.ErrorIs(t, v.Write(0x2D, []byte{frame.GetI2CSession}), ErrNAK)

	_, err := v.Read(DefaultAddress, make([]byte, 4))
	require.ErrorIs(t, err, ErrNAK, "nothing pending")
}

func TestVirtualM24SR_SelectAndRead(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	v.SetNDEF(TestNDEFText)
	require.NoError(t, v.Write(DefaultAddress, []byte{frame.KillRFSession}))

	selectApp := append([]byte{0x00, 0xA4, 0x04, 0x00, 0x07}, ndefAID...)
	assert.Equal(t, StatusOK, exchange(t, v, false, selectApp))
	assert.Equal(t, StatusOK, exchange(t, v, true, []byte{0x00, 0xA4, 0x00, 0x0C, 0x02, 0x00, 0x01}))
	assert.Equal(t, []byte{0x00, 0x13, 0x90, 0x00}, exchange(t, v, false, []byte{0x00, 0xB0, 0x00, 0x00, 0x02}))
	assert.Zero(t, v.BlockNumberErrors())

	assert.Equal(t, StatusFileNotFound, exchange(t, v, true, []byte{0x00, 0xA4, 0x00, 0x0C, 0x02, 0x12, 0x34}))
	assert.Equal(t, StatusWrongParameters, exchange(t, v, false, []byte{0x00, 0xB0, 0x02, 0x00, 0x10}))
	assert.Equal(t, StatusUnknownINS, exchange(t, v, true, []byte{0x00, 0xCA, 0x00, 0x00}))
	assert.Equal(t, StatusClassUnsupported, exchange(t, v, false, []byte{0x80, 0xB0, 0x00, 0x00, 0x02}))
	assert.Len(t, v.Commands(), 7)
}

func TestVirtualM24SR_SystemFileProtected(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	require.NoError(t, v.Write(DefaultAddress, []byte{frame.GetI2CSession}))

	selectApp := append([]byte{0x00, 0xA4, 0x04, 0x00, 0x07}, ndefAID...)
	exchange(t, v, false, selectApp)
	exchange(t, v, true, []byte{0x00, 0xA4, 0x00, 0x0C, 0x02, 0xE1, 0x01})
	assert.Equal(t, StatusSecurityNotMet, exchange(t, v, false, []byte{0x00, 0xD6, 0x00, 0x04, 0x01, 0x61}))
	assert.Equal(t, byte(0x11), v.GPO())
}

func TestVirtualM24SR_BlockNumberErrors(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	require.NoError(t, v.Write(DefaultAddress, []byte{frame.GetI2CSession}))

	selectApp := append([]byte{0x00, 0xA4, 0x04, 0x00, 0x07}, ndefAID...)
	exchange(t, v, true, selectApp)
	assert.Equal(t, 1, v.BlockNumberErrors())
}

func TestVirtualM24SR_Deselect(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	require.NoError(t, v.Write(DefaultAddress, []byte{frame.GetI2CSession}))
	require.NoError(t, v.Write(DefaultAddress, []byte{0xC2, 0xE0, 0xB4}))

	buf := make([]byte, 4)
	n, err := v.Read(DefaultAddress, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xC2, 0xE0, 0xB4}, buf[:n])
	assert.False(t, v.SessionOpen())
}

func TestVirtualM24SR_BadCRCIgnored(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	require.NoError(t, v.Write(DefaultAddress, []byte{frame.GetI2CSession}))
	require.NoError(t, v.Write(DefaultAddress, []byte{0x02, 0x00, 0xA4, 0x00, 0x00}))
	assert.Equal(t, 1, v.CRCErrors())

	_, err := v.Read(DefaultAddress, make([]byte, 5))
	require.ErrorIs(t, err, ErrNAK)
}

func TestVirtualM24SR_WTXInjection(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	v.InjectWTX(1, 2)
	require.NoError(t, v.Write(DefaultAddress, []byte{frame.GetI2CSession}))

	selectApp := append([]byte{0x00, 0xA4, 0x04, 0x00, 0x07}, ndefAID...)
	frm, err := frame.EncodeIBlock(false, selectApp, 0)
	require.NoError(t, err)
	require.NoError(t, v.Write(DefaultAddress, frm))

	buf := make([]byte, 8)
	n, err := v.Read(DefaultAddress, buf)
	require.NoError(t, err)
	assert.Equal(t, BuildWTXRequest(2), buf[:n])

	require.NoError(t, v.Write(DefaultAddress, BuildWTXRequest(2)))
	n, err = v.Read(DefaultAddress, buf)
	require.NoError(t, err)
	assert.Equal(t, BuildIBlockResponse(false, StatusOK...), buf[:n])
}

func TestVirtualM24SR_Closed(t *testing.T) {
	t.Parallel()

	v := NewVirtualM24SR()
	require.NoError(t, v.Close())
	require.ErrorIs(t, v.Write(DefaultAddress, []byte{frame.GetI2CSession}), ErrClosed)
	_, err := v.Read(DefaultAddress, make([]byte, 1))
	require.ErrorIs(t, err, ErrClosed)
}
