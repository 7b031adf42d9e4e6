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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ZaparooProject/go-m24sr/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	selectNDEFAppAPDU = []byte{0x00, 0xA4, 0x04, 0x00, 0x07, 0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01}
	okResponse0       = []byte{0x02, 0x90, 0x00, 0xF1, 0x09}
	okResponse1       = []byte{0x03, 0x90, 0x00, 0x2D, 0x53}
	deselectFrame     = []byte{0xC2, 0xE0, 0xB4}
)

type sleepRecorder struct {
	waits []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return ctx.Err()
}

func wtxFrame(multiplier byte) []byte {
	return frame.EncodeSBlock(frame.ControlFrame{Function: frame.ControlWTX, Multiplier: multiplier})
}

func iBlock(t *testing.T, toggle bool, inf ...byte) []byte {
	t.Helper()
	frm, err := frame.EncodeIBlock(toggle, inf, 0)
	require.NoError(t, err)
	return frm
}

func newTestSession(t *testing.T, mock *MockTransport, opts ...Option) (*Session, *sleepRecorder) {
	t.Helper()
	rec := &sleepRecorder{}
	opts = append([]Option{WithSleeper(rec.sleep), WithWTXUnit(time.Millisecond)}, opts...)
	session, err := Open(mock, DefaultAddress, opts...)
	require.NoError(t, err)
	return session, rec
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("Nil_Transport", func(t *testing.T) {
		t.Parallel()
		session, err := Open(nil, DefaultAddress)
		require.ErrorIs(t, err, ErrInvalidParameter)
		assert.Nil(t, session)
	})

	t.Run("Initial_State", func(t *testing.T) {
		t.Parallel()
		mock := NewMockTransport()
		session, err := Open(mock, DefaultAddress)
		require.NoError(t, err)
		assert.Equal(t, StateIdle, session.State())
		assert.False(t, session.Toggle())
		assert.False(t, session.SessionOpen())
		assert.Equal(t, DefaultAddress, session.Address())
		assert.Equal(t, DefaultMaxFrameSize-frame.Overhead, session.MaxPayload())
		assert.Empty(t, mock.Writes(), "opening a session must not touch the bus")
	})

	t.Run("Invalid_Option", func(t *testing.T) {
		t.Parallel()
		_, err := Open(NewMockTransport(), DefaultAddress, WithMaxFrameSize(frame.Overhead))
		require.ErrorIs(t, err, ErrInvalidParameter)
	})
}

func TestSession_Exchange(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(okResponse0)
	session, rec := newTestSession(t, mock)

	resp, err := session.Exchange(selectNDEFAppAPDU, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x00}, resp)
	assert.True(t, session.Toggle(), "toggle should flip from 0 to 1")
	assert.Equal(t, StateIdle, session.State())
	assert.Empty(t, rec.waits)

	writes := mock.Writes()
	require.Len(t, writes, 2)
	assert.Equal(t, []byte{0x26}, writes[0], "session request precedes the first I-block")
	assert.Equal(t, []byte{
		0x02, 0x00, 0xA4, 0x04, 0x00, 0x07, 0xD2, 0x76, 0x00, 0x00, 0x85, 0x01, 0x01, 0xA6, 0x09,
	}, writes[1])
}

func TestSession_ExchangeWithWTX(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(wtxFrame(0x02), okResponse0)
	session, rec := newTestSession(t, mock, WithWTXUnit(200*time.Millisecond))

	resp, err := session.Exchange(selectNDEFAppAPDU, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x90, 0x00}, resp)
	assert.Equal(t, []time.Duration{400 * time.Millisecond}, rec.waits)

	writes := mock.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, []byte{0xF2, 0x02, 0x0A, 0x72}, writes[2], "WTX acknowledgment echoes the multiplier")
	assert.True(t, session.Toggle())
}

// TestSession_WTXCycles checks that k WTX requests produce exactly k
// wait+acknowledge cycles, each echoing the multiplier received.
func TestSession_WTXCycles(t *testing.T) {
	t.Parallel()

	for k := 0; k <= 5; k++ {
		const multiplier = 0x03
		responses := make([][]byte, 0, k+1)
		for i := 0; i < k; i++ {
			responses = append(responses, wtxFrame(multiplier))
		}
		responses = append(responses, iBlock(t, false, 0x01, 0x02, 0x90, 0x00))

		mock := NewMockTransport(responses...)
		session, rec := newTestSession(t, mock)

		resp, err := session.Exchange([]byte{0x00, 0xB0, 0x00, 0x00, 0x02}, 7)
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, []byte{0x01, 0x02, 0x90, 0x00}, resp, "k=%d", k)
		assert.Len(t, rec.waits, k, "k=%d", k)
		for _, w := range rec.waits {
			assert.Equal(t, 3*time.Millisecond, w)
		}

		writes := mock.Writes()
		require.Len(t, writes, 2+k, "k=%d", k)
		for _, ack := range writes[2:] {
			assert.Equal(t, wtxFrame(multiplier), ack)
		}
		assert.Zero(t, mock.Pending())
	}
}

func TestSession_ToggleAlternates(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	session, _ := newTestSession(t, mock)

	for i := 0; i < 6; i++ {
		if i == 3 {
			// WTX within an exchange must not disturb the block number.
			mock.QueueResponse(wtxFrame(1), wtxFrame(1))
		}
		mock.QueueResponse(iBlock(t, i%2 == 1, 0x90, 0x00))
		_, err := session.Exchange([]byte{0x00, 0xB0, 0x00, 0x00, 0x00}, 5)
		require.NoError(t, err)
	}

	var pcbs []byte
	sessionRequests := 0
	for _, w := range mock.Writes() {
		switch {
		case len(w) == 1 && w[0] == frame.GetI2CSession:
			sessionRequests++
		case frame.KindOf(w[0]) == frame.KindI:
			pcbs = append(pcbs, w[0])
		}
	}
	assert.Equal(t, 1, sessionRequests)
	assert.Equal(t, []byte{0x02, 0x03, 0x02, 0x03, 0x02, 0x03}, pcbs)
}

func TestSession_DeselectResets(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(okResponse0, okResponse1, deselectFrame, okResponse0)
	session, _ := newTestSession(t, mock)

	_, err := session.Exchange(selectNDEFAppAPDU, 5)
	require.NoError(t, err)
	_, err = session.Exchange(selectNDEFAppAPDU, 5)
	require.NoError(t, err)
	assert.False(t, session.Toggle())

	require.NoError(t, session.Deselect())
	assert.False(t, session.Toggle())
	assert.False(t, session.SessionOpen())
	assert.Equal(t, StateIdle, session.State())

	_, err = session.Exchange(selectNDEFAppAPDU, 5)
	require.NoError(t, err)

	writes := mock.Writes()
	require.Len(t, writes, 6)
	assert.Equal(t, []byte{0x26}, writes[0])
	assert.Equal(t, byte(0x02), writes[1][0])
	assert.Equal(t, byte(0x03), writes[2][0])
	assert.Equal(t, deselectFrame, writes[3])
	assert.Equal(t, []byte{0x26}, writes[4], "a new session is requested after deselect")
	assert.Equal(t, byte(0x02), writes[5][0], "block number restarts at 0")
}

func TestSession_DeselectWithWTX(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(wtxFrame(1), deselectFrame)
	session, rec := newTestSession(t, mock)

	require.NoError(t, session.Deselect())
	assert.Len(t, rec.waits, 1)
	writes := mock.Writes()
	require.Len(t, writes, 3)
	assert.Equal(t, []byte{0x26}, writes[0])
	assert.Equal(t, deselectFrame, writes[1])
	assert.Equal(t, wtxFrame(1), writes[2])
}

func TestSession_DeselectUnexpectedBlock(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(iBlock(t, false))
	session, _ := newTestSession(t, mock)
	session.toggle = true

	err := session.Deselect()
	require.ErrorIs(t, err, ErrUnexpectedBlock)
	assert.False(t, session.Toggle(), "deselect resets even on failure")
	assert.False(t, session.SessionOpen())
}

func TestSession_KillRFSession(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(okResponse0)
	session, _ := newTestSession(t, mock, WithKillRFSession())

	_, err := session.Exchange(selectNDEFAppAPDU, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x52}, mock.Writes()[0])
}

func TestSession_ExchangeErrors(t *testing.T) {
	t.Parallel()

	busErr := errors.New("i2c: nack")

	tests := []struct {
		setup      func(*MockTransport)
		opts       []Option
		wantErr    error
		name       string
		payload    []byte
		respLen    int
		wantToggle bool
		wantWrites int
	}{
		{
			name:       "Checksum_Mismatch",
			setup:      func(m *MockTransport) { m.QueueResponse([]byte{0x02, 0x90, 0x00, 0x00, 0x00}) },
			payload:    selectNDEFAppAPDU,
			respLen:    5,
			wantErr:    ErrChecksumMismatch,
			wantToggle: true,
			wantWrites: 2,
		},
		{
			name:       "Response_Too_Short",
			setup:      func(m *MockTransport) { m.QueueResponse([]byte{0x02, 0x90}) },
			payload:    selectNDEFAppAPDU,
			respLen:    5,
			wantErr:    ErrResponseTooShort,
			wantToggle: true,
			wantWrites: 2,
		},
		{
			name:       "Truncated_WTX",
			setup:      func(m *MockTransport) { m.QueueResponse([]byte{0xF2, 0x01}) },
			payload:    selectNDEFAppAPDU,
			respLen:    5,
			wantErr:    ErrResponseTooShort,
			wantToggle: true,
			wantWrites: 2,
		},
		{
			name:       "Write_Failure_Keeps_Toggle",
			setup:      func(m *MockTransport) { m.SetWriteError(busErr) },
			payload:    selectNDEFAppAPDU,
			respLen:    5,
			wantErr:    ErrTransportWrite,
			wantToggle: false,
			wantWrites: 0,
		},
		{
			name:       "Read_Failure",
			setup:      func(m *MockTransport) { m.SetReadError(busErr) },
			payload:    selectNDEFAppAPDU,
			respLen:    5,
			wantErr:    ErrTransportRead,
			wantToggle: true,
			wantWrites: 2,
		},
		{
			name:       "Payload_Too_Large",
			setup:      func(*MockTransport) {},
			payload:    make([]byte, DefaultMaxFrameSize-frame.Overhead+1),
			respLen:    5,
			wantErr:    ErrPayloadTooLarge,
			wantToggle: false,
			wantWrites: 0,
		},
		{
			name:       "Response_Length_Below_Overhead",
			setup:      func(*MockTransport) {},
			payload:    selectNDEFAppAPDU,
			respLen:    2,
			wantErr:    ErrInvalidParameter,
			wantToggle: false,
			wantWrites: 0,
		},
		{
			name:       "Unexpected_Block",
			setup:      func(m *MockTransport) { m.QueueResponse(deselectFrame) },
			payload:    selectNDEFAppAPDU,
			respLen:    3,
			wantErr:    ErrUnexpectedBlock,
			wantToggle: true,
			wantWrites: 2,
		},
		{
			name: "WTX_Retry_Ceiling",
			setup: func(m *MockTransport) {
				m.QueueResponse(wtxFrame(1), wtxFrame(1), wtxFrame(1), okResponse0)
			},
			opts:       []Option{WithMaxWTXRetries(2)},
			payload:    selectNDEFAppAPDU,
			respLen:    5,
			wantErr:    ErrWTXTimeout,
			wantToggle: true,
			wantWrites: 4,
		},
		{
			name: "WTX_Wait_Ceiling",
			setup: func(m *MockTransport) {
				m.QueueResponse(wtxFrame(10), wtxFrame(10), okResponse0)
			},
			opts:       []Option{WithMaxWTXWait(15 * time.Millisecond)},
			payload:    selectNDEFAppAPDU,
			respLen:    5,
			wantErr:    ErrWTXTimeout,
			wantToggle: true,
			wantWrites: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mock := NewMockTransport()
			tt.setup(mock)
			session, _ := newTestSession(t, mock, tt.opts...)

			resp, err := session.Exchange(tt.payload, tt.respLen)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, resp)
			assert.Equal(t, tt.wantToggle, session.Toggle())
			assert.Equal(t, StateIdle, session.State())
			assert.Len(t, mock.Writes(), tt.wantWrites)
		})
	}
}

func TestSession_TransportErrorClassification(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	mock.SetReadError(errors.New("remote I/O error"))
	session, _ := newTestSession(t, mock)

	_, err := session.Exchange(selectNDEFAppAPDU, 5)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "exchange", te.Op)
	assert.Equal(t, "mock", te.Port)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, ErrorTypeTransient, GetErrorType(err))
}

func TestSession_SessionRequestFailure(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(okResponse0)
	mock.SetWriteError(errors.New("address not acknowledged"))
	session, _ := newTestSession(t, mock)

	_, err := session.Exchange(selectNDEFAppAPDU, 5)
	require.ErrorIs(t, err, ErrTransportWrite)
	assert.False(t, session.SessionOpen(), "failed session request must be retried next time")

	mock.SetWriteError(nil)
	_, err = session.Exchange(selectNDEFAppAPDU, 5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x26}, mock.Writes()[0])
}

func TestSession_WTXCancelled(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(wtxFrame(1), okResponse0)
	session, _ := newTestSession(t, mock)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := session.ExchangeContext(ctx, selectNDEFAppAPDU, 5)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, mock.Writes(), "a cancelled exchange sends nothing")
}

func TestSession_WTXInterruptedBySleeper(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(wtxFrame(1), okResponse0)
	sleepErr := errors.New("interrupted")
	session, err := Open(mock, DefaultAddress, WithSleeper(func(context.Context, time.Duration) error {
		return sleepErr
	}))
	require.NoError(t, err)

	_, err = session.Exchange(selectNDEFAppAPDU, 5)
	require.ErrorIs(t, err, sleepErr)
	assert.Len(t, mock.Writes(), 2, "no acknowledgment after an interrupted wait")
}

func TestSession_ResponseBufferGrows(t *testing.T) {
	t.Parallel()

	data := make([]byte, 60)
	for i := range data {
		data[i] = byte(i)
	}
	long := iBlock(t, false, append(data, 0x90, 0x00)...)

	mock := NewMockTransport(long, okResponse1)
	session, _ := newTestSession(t, mock)
	require.Less(t, cap(session.rx), len(long))

	resp, err := session.Exchange([]byte{0x00, 0xB0, 0x00, 0x00, 60}, len(long))
	require.NoError(t, err)
	assert.Equal(t, append(data, 0x90, 0x00), resp)
	assert.GreaterOrEqual(t, cap(session.rx), len(long))

	grown := cap(session.rx)
	_, err = session.Exchange([]byte{0x00, 0xB0, 0x00, 0x00, 0x00}, 5)
	require.NoError(t, err)
	assert.Equal(t, grown, cap(session.rx), "buffer never shrinks")

	assert.Equal(t, []int{len(long), 5}, mock.ReadSizes())
}

func TestSession_ResponseIsCopied(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport(iBlock(t, false, 0xAA, 0x90, 0x00), iBlock(t, true, 0xBB, 0x90, 0x00))
	session, _ := newTestSession(t, mock)

	first, err := session.Exchange([]byte{0x00, 0xB0, 0x00, 0x00, 0x01}, 6)
	require.NoError(t, err)
	_, err = session.Exchange([]byte{0x00, 0xB0, 0x00, 0x00, 0x01}, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xAA, 0x90, 0x00}, first)
}

func TestSession_Closed(t *testing.T) {
	t.Parallel()

	mock := NewMockTransport()
	session, _ := newTestSession(t, mock)
	require.NoError(t, session.Close())
	assert.True(t, mock.IsClosed())
	require.NoError(t, session.Close())

	_, err := session.Exchange(selectNDEFAppAPDU, 5)
	require.ErrorIs(t, err, ErrSessionClosed)
	require.ErrorIs(t, session.Deselect(), ErrSessionClosed)
}

func TestState_String(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "Idle", StateIdle.String())
	assert.Equal(t, "SessionRequested", StateSessionRequested.String())
	assert.Equal(t, "AwaitingResponse", StateAwaitingResponse.String())
	assert.Equal(t, "WTXWait", StateWTXWait.String())
	assert.Equal(t, "Unknown", State(42).String())
}

func TestSession_StatusOnlyAnswer(t *testing.T) {
	t.Parallel()

	statusFrame := iBlock(t, false, 0x6B, 0x00)

	tests := []struct {
		wantErr  error
		name     string
		response []byte
		wantINF  []byte
	}{
		{
			name:     "Exact_Length",
			response: statusFrame,
			wantINF:  []byte{0x6B, 0x00},
		},
		{
			name:     "Followed_By_Filler",
			response: append(append([]byte(nil), statusFrame...), 0xFF, 0xFF),
			wantINF:  []byte{0x6B, 0x00},
		},
		{
			name:     "Short_With_Bad_CRC",
			response: []byte{0x02, 0x6B, 0x00, 0x00, 0x00},
			wantErr:  ErrResponseTooShort,
		},
		{
			name:     "Full_Length_With_Bad_CRC",
			response: []byte{0x02, 0x00, 0x0F, 0x90, 0x00, 0x00, 0x00},
			wantErr:  ErrChecksumMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mock := NewMockTransport(tt.response)
			session, _ := newTestSession(t, mock)

			inf, err := session.Exchange(ReadBinaryAPDU(0, 2), 2+2+frame.Overhead)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantINF, inf)
		})
	}
}

// cancelOnWrite cancels a context once the first write went through
type cancelOnWrite struct {
	*MockTransport
	cancel context.CancelFunc
}

func (c *cancelOnWrite) Write(addr uint16, p []byte) error {
	err := c.MockTransport.Write(addr, p)
	c.cancel()
	return err
}

func TestSession_CancelledBeforeWrite(t *testing.T) {
	t.Parallel()

	t.Run("After_Session_Request", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mock := NewMockTransport(okResponse0)
		session, err := Open(&cancelOnWrite{MockTransport: mock, cancel: cancel}, DefaultAddress)
		require.NoError(t, err)

		_, err = session.ExchangeContext(ctx, selectNDEFAppAPDU, 5)
		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, [][]byte{{frame.GetI2CSession}}, mock.Writes())
		assert.False(t, session.Toggle())
	})

	t.Run("Before_WTX_Acknowledgment", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		mock := NewMockTransport(wtxFrame(1), okResponse0)
		session, err := Open(mock, DefaultAddress, WithSleeper(func(context.Context, time.Duration) error {
			cancel()
			return nil
		}))
		require.NoError(t, err)

		_, err = session.ExchangeContext(ctx, selectNDEFAppAPDU, 5)
		require.ErrorIs(t, err, context.Canceled)
		assert.Len(t, mock.Writes(), 2, "no acknowledgment once cancelled")
	})
}
