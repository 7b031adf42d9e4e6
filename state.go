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

// State is the position of a Session in its request/response cycle
type State int

const (
	// StateIdle means no exchange is in progress
	StateIdle State = iota
	// StateSessionRequested means the session request word is being sent
	StateSessionRequested
	// StateAwaitingResponse means a block was sent and its answer is being read
	StateAwaitingResponse
	// StateWTXWait means the device asked for more time and the session is
	// waiting before acknowledging
	StateWTXWait
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSessionRequested:
		return "SessionRequested"
	case StateAwaitingResponse:
		return "AwaitingResponse"
	case StateWTXWait:
		return "WTXWait"
	default:
		return "Unknown"
	}
}
