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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-m24sr/internal/frame"
	"github.com/rs/zerolog"
)

// initialResponseSize is the response buffer allocated when a session opens.
const initialResponseSize = 0x15

// Session drives the block protocol with one M24SR: it requests the I2C
// session, frames commands as I-blocks with an alternating block number,
// validates the CRC of every answer and absorbs WTX requests.
//
// Thread Safety: Session is NOT thread-safe. Exchanges must not interleave
// on the same device; callers sharing a Session across goroutines must
// serialize access themselves.
type Session struct {
	transport           Transport
	config              *SessionConfig
	log                 zerolog.Logger
	port                string
	tx                  []byte
	rx                  []byte
	address             uint16
	state               State
	toggle              bool
	needsSessionRequest bool
	closed              bool
}

// Open creates a session with the device at address. No bus traffic happens
// until the first exchange, which starts by requesting the I2C session.
func Open(transport Transport, address uint16, opts ...Option) (*Session, error) {
	if transport == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}

	s := &Session{
		transport:           transport,
		config:              DefaultSessionConfig(),
		port:                transportName(transport),
		address:             address,
		needsSessionRequest: true,
		rx:                  make([]byte, initialResponseSize),
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.log = s.config.Logger.With().
		Str("component", "m24sr").
		Str("address", fmt.Sprintf("0x%02X", address)).
		Logger()
	s.tx = make([]byte, 0, s.config.MaxFrameSize)

	return s, nil
}

// Exchange sends payload as one I-block and returns the information field
// of the answer. responseLen is the size of the whole answer frame: PCB,
// data and CRC.
func (s *Session) Exchange(payload []byte, responseLen int) ([]byte, error) {
	return s.ExchangeContext(context.Background(), payload, responseLen)
}

// ExchangeContext is Exchange with cancellation. ctx is checked before
// every write and interrupts WTX waits; a bus transfer already started
// runs to completion.
func (s *Session) ExchangeContext(ctx context.Context, payload []byte, responseLen int) ([]byte, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if responseLen < frame.Overhead {
		return nil, fmt.Errorf("%w: response length %d is shorter than the frame overhead",
			ErrInvalidParameter, responseLen)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("exchange cancelled: %w", err)
	}

	frm, err := frame.Encode(s.tx[:0], frame.CommandFrame{Toggle: s.toggle, Payload: payload}, s.config.MaxFrameSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encode command: %w", err)
	}
	s.tx = frm
	defer func() { s.state = StateIdle }()

	if err := s.requestSession(); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("exchange cancelled: %w", err)
	}
	s.state = StateAwaitingResponse
	if err := s.write("exchange", frm); err != nil {
		return nil, err
	}
	// The device has the block; the next command uses the other block number.
	s.toggle = !s.toggle

	resp, err := s.awaitResponse(ctx, "exchange", responseLen)
	if err != nil {
		return nil, err
	}
	if resp.Kind() != frame.KindI {
		return nil, fmt.Errorf("%w: %v (PCB %02X) in reply to an I-block",
			ErrUnexpectedBlock, resp.Kind(), resp.PCB)
	}

	out := make([]byte, len(resp.INF))
	copy(out, resp.INF)
	return out, nil
}

// Deselect sends S(DESELECT) and waits for its acknowledgment, releasing
// the I2C session. The next exchange requests a new session and starts
// again from block number 0, whether or not Deselect succeeded.
func (s *Session) Deselect() error {
	return s.DeselectContext(context.Background())
}

// DeselectContext is Deselect with cancellation of WTX waits.
func (s *Session) DeselectContext(ctx context.Context) error {
	if s.closed {
		return ErrSessionClosed
	}
	defer s.reset()

	if err := s.requestSession(); err != nil {
		return err
	}

	s.state = StateAwaitingResponse
	frm, _ := frame.Encode(s.tx[:0], frame.ControlFrame{Function: frame.ControlDeselect}, 0)
	s.tx = frm
	if err := s.write("deselect", frm); err != nil {
		return err
	}

	resp, err := s.awaitResponse(ctx, "deselect", frame.DeselectFrameLength)
	if err != nil {
		return err
	}
	if resp.PCB != frame.PCBDeselect {
		return fmt.Errorf("%w: PCB %02X in reply to DESELECT", ErrUnexpectedBlock, resp.PCB)
	}

	s.log.Debug().Msg("session released")
	return nil
}

// Close marks the session unusable and closes the transport
func (s *Session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	return nil
}

// State returns where the session is in its request/response cycle
func (s *Session) State() State {
	return s.state
}

// Address returns the I2C address of the device
func (s *Session) Address() uint16 {
	return s.address
}

// Toggle returns the block number the next I-block will carry
func (s *Session) Toggle() bool {
	return s.toggle
}

// SessionOpen reports whether the I2C session has been requested since the
// last deselect
func (s *Session) SessionOpen() bool {
	return !s.needsSessionRequest
}

// MaxPayload returns the largest command payload that fits in one frame
func (s *Session) MaxPayload() int {
	return s.config.MaxFrameSize - frame.Overhead
}

// Transport returns the underlying transport
func (s *Session) Transport() Transport {
	return s.transport
}

// reset returns the session to its initial state
func (s *Session) reset() {
	s.toggle = false
	s.needsSessionRequest = true
	s.state = StateIdle
}

// requestSession writes the session request word if the session has not
// been requested yet.
func (s *Session) requestSession() error {
	if !s.needsSessionRequest {
		return nil
	}
	s.state = StateSessionRequested

	word := byte(frame.GetI2CSession)
	if s.config.KillRFSession {
		word = frame.KillRFSession
	}
	if err := s.write("session request", []byte{word}); err != nil {
		return err
	}
	s.needsSessionRequest = false
	return nil
}

// awaitResponse reads the answer to the block just sent, servicing WTX
// requests until a different block arrives or a ceiling is hit.
func (s *Session) awaitResponse(ctx context.Context, op string, responseLen int) (frame.Response, error) {
	readLen := max(responseLen, frame.WTXFrameLength)
	var waited time.Duration

	for cycles := 0; ; cycles++ {
		s.state = StateAwaitingResponse
		rx, err := s.read(op, readLen)
		if err != nil {
			return frame.Response{}, err
		}

		if len(rx) == 0 || !frame.IsWTX(rx[0]) {
			return s.decodeAnswer(op, rx, responseLen)
		}

		if len(rx) < frame.WTXFrameLength {
			return frame.Response{}, NewResponseTooShortError(op, s.port, len(rx), frame.WTXFrameLength)
		}
		wtx, err := s.decode(op, rx[:frame.WTXFrameLength])
		if err != nil {
			return frame.Response{}, err
		}

		multiplier := wtx.Multiplier()
		wait := s.config.WTXUnit * time.Duration(multiplier&frame.WTXMultiplierMask)
		if cycles >= s.config.MaxWTXRetries || waited+wait > s.config.MaxWTXWait {
			s.log.Warn().
				Int("cycles", cycles).
				Dur("waited", waited).
				Msg("device exceeded wait time extension limit")
			return frame.Response{}, NewWTXTimeoutError(op, s.port, cycles)
		}

		s.state = StateWTXWait
		s.log.Debug().
			Uint8("multiplier", multiplier).
			Dur("wait", wait).
			Msg("wait time extension requested")
		if err := s.config.Sleep(ctx, wait); err != nil {
			return frame.Response{}, fmt.Errorf("wait time extension interrupted: %w", err)
		}
		waited += wait

		if err := ctx.Err(); err != nil {
			return frame.Response{}, fmt.Errorf("wait time extension cancelled: %w", err)
		}
		ack, _ := frame.Encode(s.tx[:0], frame.ControlFrame{Function: frame.ControlWTX, Multiplier: multiplier}, 0)
		s.tx = ack
		if err := s.write(op, ack); err != nil {
			return frame.Response{}, err
		}
	}
}

// decodeAnswer decodes the responseLen byte answer at the start of rx. A
// command that fails on the device is answered with a status word only,
// so a valid status-only I-block is accepted in place of a longer answer.
// On a bus without short reads that frame is followed by filler bytes.
func (s *Session) decodeAnswer(op string, rx []byte, responseLen int) (frame.Response, error) {
	if len(rx) >= responseLen {
		if resp, err := frame.Decode(rx[:responseLen]); err == nil {
			return resp, nil
		}
	}
	if responseLen > frame.StatusFrameLength && len(rx) >= frame.StatusFrameLength {
		resp, err := frame.Decode(rx[:frame.StatusFrameLength])
		if err == nil && resp.Kind() == frame.KindI {
			s.log.Debug().Hex("rx", rx[:frame.StatusFrameLength]).Msg("status-only answer")
			return resp, nil
		}
	}
	if len(rx) < responseLen {
		return frame.Response{}, NewResponseTooShortError(op, s.port, len(rx), responseLen)
	}
	return s.decode(op, rx[:responseLen])
}

// decode validates and splits a received frame
func (s *Session) decode(op string, frm []byte) (frame.Response, error) {
	resp, err := frame.Decode(frm)
	if err != nil {
		s.log.Warn().Hex("rx", frm).Err(err).Msg("invalid frame")
		if errors.Is(err, frame.ErrChecksumMismatch) {
			return frame.Response{}, NewChecksumMismatchError(op, s.port, err)
		}
		return frame.Response{}, NewTransportError(op, s.port, err, ErrorTypeTransient)
	}
	return resp, nil
}

// write sends p to the device
func (s *Session) write(op string, p []byte) error {
	s.log.Debug().Str("op", op).Hex("tx", p).Msg("write")
	if err := s.transport.Write(s.address, p); err != nil {
		return s.wrapBusError(op, ErrTransportWrite, err)
	}
	return nil
}

// read receives up to n bytes into the response buffer, growing it first
// if needed. The returned slice aliases the buffer.
func (s *Session) read(op string, n int) ([]byte, error) {
	if cap(s.rx) < n {
		s.rx = make([]byte, n)
	}
	buf := s.rx[:n]
	got, err := s.transport.Read(s.address, buf)
	if err != nil {
		return nil, s.wrapBusError(op, ErrTransportRead, err)
	}
	if got > n {
		got = n
	}
	s.log.Debug().Str("op", op).Hex("rx", buf[:got]).Msg("read")
	return buf[:got], nil
}

func (s *Session) wrapBusError(op string, sentinel, err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return NewTransportError(op, s.port, fmt.Errorf("%w: %w", sentinel, err), ErrorTypeTransient)
}
