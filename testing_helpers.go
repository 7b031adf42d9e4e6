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
	"sync"
)

// ErrMockExhausted is returned by MockTransport when a read finds no queued response
var ErrMockExhausted = errors.New("mock transport: no queued response")

// MockTransport is a scripted Transport for tests. Reads are answered from a
// queue of frames; every write is recorded.
type MockTransport struct {
	writeErr  error
	readErr   error
	responses [][]byte
	writes    [][]byte
	reads     []int
	mu        sync.Mutex
	closed    bool
}

// NewMockTransport creates a mock transport answering reads with responses in order
func NewMockTransport(responses ...[]byte) *MockTransport {
	m := &MockTransport{}
	m.QueueResponse(responses...)
	return m
}

// QueueResponse appends frames to be returned by subsequent reads
func (m *MockTransport) QueueResponse(responses ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.responses = append(m.responses, append([]byte(nil), r...))
	}
}

// SetWriteError makes every following write fail with err; nil clears it
func (m *MockTransport) SetWriteError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// SetReadError makes every following read fail with err; nil clears it
func (m *MockTransport) SetReadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// Write records p
func (m *MockTransport) Write(_ uint16, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrTransportClosed
	}
	if m.writeErr != nil {
		return m.writeErr
	}
	m.writes = append(m.writes, append([]byte(nil), p...))
	return nil
}

// Read copies the next queued response into p
func (m *MockTransport) Read(_ uint16, p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrTransportClosed
	}
	m.reads = append(m.reads, len(p))
	if m.readErr != nil {
		return 0, m.readErr
	}
	if len(m.responses) == 0 {
		return 0, ErrMockExhausted
	}
	next := m.responses[0]
	m.responses = m.responses[1:]
	return copy(p, next), nil
}

// Close marks the transport closed
func (m *MockTransport) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// String names the mock in errors
func (*MockTransport) String() string {
	return "mock"
}

// Writes returns a copy of every frame written so far
func (m *MockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// ReadSizes returns the buffer length of every read so far
func (m *MockTransport) ReadSizes() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.reads...)
}

// Pending returns the number of queued responses not yet read
func (m *MockTransport) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.responses)
}

// IsClosed reports whether Close was called
func (m *MockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
