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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-m24sr/internal/frame"
)

// Transport errors
var (
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportClosed  = errors.New("transport closed")
)

// Protocol errors
var (
	// ErrChecksumMismatch is returned when a received frame fails CRC validation.
	ErrChecksumMismatch = frame.ErrChecksumMismatch
	// ErrPayloadTooLarge is returned when a payload does not fit in one frame.
	ErrPayloadTooLarge = frame.ErrPayloadTooLarge
	// ErrResponseTooShort is returned when the device sends fewer bytes than requested.
	ErrResponseTooShort = errors.New("response too short")
	// ErrWTXTimeout is returned when the device keeps requesting wait time
	// extensions beyond the configured retry or wait ceiling.
	ErrWTXTimeout = errors.New("wait time extension limit exceeded")
	// ErrUnexpectedBlock is returned when the device answers with a block
	// that does not fit the current exchange.
	ErrUnexpectedBlock = errors.New("unexpected block")
	// ErrSessionClosed is returned when a closed session is used.
	ErrSessionClosed = errors.New("session closed")
	// ErrInvalidParameter is returned for invalid arguments.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// Command errors
var (
	ErrCommandFailed      = errors.New("command failed")
	ErrNoNDEF             = errors.New("no NDEF message")
	ErrVerificationFailed = errors.New("read back data does not match written data")
)

// ErrorType classifies errors for retry decisions
type ErrorType int

const (
	// ErrorTypePermanent errors are not expected to go away on retry.
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient errors may succeed on retry.
	ErrorTypeTransient
	// ErrorTypeTimeout errors are caused by a device not answering in time.
	ErrorTypeTimeout
)

// String returns the name of the error type
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// TransportError wraps an error raised while talking to the device
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

func (e *TransportError) Error() string {
	if e.Port == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s on %s: %v", e.Op, e.Port, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// NewTransportError creates a TransportError. Transient and timeout errors
// are marked retryable.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewChecksumMismatchError wraps a CRC failure of a received frame
func NewChecksumMismatchError(op, port string, err error) *TransportError {
	return NewTransportError(op, port, err, ErrorTypeTransient)
}

// NewResponseTooShortError reports a response shorter than requested
func NewResponseTooShortError(op, port string, got, want int) *TransportError {
	return NewTransportError(op, port,
		fmt.Errorf("%w: got %d bytes, want %d", ErrResponseTooShort, got, want), ErrorTypeTransient)
}

// NewWTXTimeoutError reports a device that exceeded the WTX ceiling
func NewWTXTimeoutError(op, port string, cycles int) *TransportError {
	return NewTransportError(op, port,
		fmt.Errorf("%w after %d cycles", ErrWTXTimeout, cycles), ErrorTypeTimeout)
}

// IsRetryable reports whether err may succeed if the caller retries the operation.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrResponseTooShort),
		errors.Is(err, ErrWTXTimeout):
		return true
	default:
		return false
	}
}

// GetErrorType returns the classification of err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrTransportTimeout), errors.Is(err, ErrWTXTimeout):
		return ErrorTypeTimeout
	case errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrResponseTooShort):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}

// StatusError is returned when the tag answers a command with a status
// word other than 90 00.
type StatusError struct {
	Command string
	SW1     byte
	SW2     byte
}

// Well-known status words
const (
	SWSuccess              uint16 = 0x9000
	SWWrongLength          uint16 = 0x6700
	SWSecurityNotSatisfied uint16 = 0x6982
	SWFileNotFound         uint16 = 0x6A82
	SWWrongParameters      uint16 = 0x6B00
	SWInstructionUnknown   uint16 = 0x6D00
	SWClassNotSupported    uint16 = 0x6E00
)

// StatusWord returns SW1SW2 as one value
func (e *StatusError) StatusWord() uint16 {
	return uint16(e.SW1)<<8 | uint16(e.SW2)
}

// PasswordRequired reports a password verification failure (63Cx) or a
// missing access right (6982).
func (e *StatusError) PasswordRequired() bool {
	return e.SW1 == 0x63 && e.SW2&0xF0 == 0xC0 || e.StatusWord() == SWSecurityNotSatisfied
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %02X %02X (%s)", e.Command, e.SW1, e.SW2, statusText(e.StatusWord()))
}

// Is makes StatusError match ErrCommandFailed
func (*StatusError) Is(target error) bool {
	return target == ErrCommandFailed
}

func statusText(sw uint16) string {
	switch {
	case sw == SWWrongLength:
		return "wrong length"
	case sw == SWSecurityNotSatisfied:
		return "security status not satisfied"
	case sw == SWFileNotFound:
		return "file or application not found"
	case sw == SWWrongParameters:
		return "wrong parameters"
	case sw == SWInstructionUnknown:
		return "instruction not supported"
	case sw == SWClassNotSupported:
		return "class not supported"
	case sw&0xFFF0 == 0x63C0:
		return fmt.Sprintf("password incorrect, %d tries left", sw&0x000F)
	default:
		return "unknown"
	}
}
