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

package polling

import (
	"time"

	"periph.io/x/conn/v3/gpio"
)

// DetectionState is where the monitor is in the GPO cycle
type DetectionState int

const (
	// StateIdle means GPO is high and no RF reader holds the tag
	StateIdle DetectionState = iota
	// StateFieldBusy means GPO is low, an RF reader is talking to the tag
	StateFieldBusy
	// StateReading means the monitor is reading the tag over I2C
	StateReading
)

// String returns the state name
func (s DetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFieldBusy:
		return "field busy"
	case StateReading:
		return "reading"
	default:
		return "unknown"
	}
}

// TagState tracks what the monitor knows about the tag
type TagState struct {
	LastRead       time.Time
	FieldEnteredAt time.Time
	LastMessage    []byte
	DetectionState DetectionState
	lastLevel      gpio.Level
}

func newTagState() TagState {
	// GPO idles high; the first falling edge is an RF reader arriving.
	return TagState{lastLevel: gpio.High}
}

// Sample records a GPO level and reports a falling edge (reader arrived)
// or a rising edge (reader left)
func (ts *TagState) Sample(level gpio.Level) (falling, rising bool) {
	falling = ts.lastLevel == gpio.High && level == gpio.Low
	rising = ts.lastLevel == gpio.Low && level == gpio.High
	ts.lastLevel = level
	return falling, rising
}

// TransitionToFieldBusy moves to the field busy state
func (ts *TagState) TransitionToFieldBusy() {
	ts.DetectionState = StateFieldBusy
	ts.FieldEnteredAt = time.Now()
}

// TransitionToReading moves to the reading state
func (ts *TagState) TransitionToReading() {
	ts.DetectionState = StateReading
}

// TransitionToIdle moves back to idle, keeping msg when it is not nil
func (ts *TagState) TransitionToIdle(msg []byte) {
	ts.DetectionState = StateIdle
	ts.FieldEnteredAt = time.Time{}
	if msg != nil {
		ts.LastMessage = msg
		ts.LastRead = time.Now()
	}
}
