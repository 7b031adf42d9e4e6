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
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	m24sr "github.com/ZaparooProject/go-m24sr"
	"github.com/hsanjuan/go-ndef"
	"periph.io/x/conn/v3/gpio"
)

// Metrics counts monitor activity
type Metrics struct {
	PollCycles   int64
	Triggers     int64
	MessagesRead int64
	ReadErrors   int64
	LastReadTime time.Duration
}

// Monitor samples the GPO pin and reads the NDEF message on every rising
// edge. With the GPO configured for RF busy (see m24sr.DefaultGPOConfig)
// the edge means a phone has just released the tag, possibly after
// writing it.
type Monitor struct {
	tag    *m24sr.Tag
	pin    Pin
	config *Config
	// OnMessage is called with the raw and decoded message after a read.
	// msg is nil when the content is not a valid NDEF message.
	OnMessage func(raw []byte, msg *ndef.Message) error
	// OnFieldBusy is called when an RF reader takes the tag
	OnFieldBusy func()
	// OnError is called for read failures
	OnError func(err error)
	// idle runs while GPO is high and the monitor is not reading
	idle func(ctx context.Context)

	state        TagState
	mu           sync.Mutex
	pollCycles   atomic.Int64
	triggers     atomic.Int64
	messagesRead atomic.Int64
	readErrors   atomic.Int64
	lastReadTime atomic.Int64
}

// NewMonitor creates a monitor reading tag whenever pin rises
func NewMonitor(tag *m24sr.Tag, pin Pin, config *Config) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		tag:    tag,
		pin:    pin,
		config: config,
		state:  newTagState(),
	}
}

// Start runs the monitor until ctx is cancelled
func (m *Monitor) Start(ctx context.Context) error {
	if m.config.ReadOnStart {
		m.readTag(ctx)
	}

	ticker := time.NewTicker(m.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// GetState returns a copy of the current state
func (m *Monitor) GetState() TagState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GetMetrics returns the activity counters
func (m *Monitor) GetMetrics() Metrics {
	return Metrics{
		PollCycles:   m.pollCycles.Load(),
		Triggers:     m.triggers.Load(),
		MessagesRead: m.messagesRead.Load(),
		ReadErrors:   m.readErrors.Load(),
		LastReadTime: time.Duration(m.lastReadTime.Load()),
	}
}

// Tag returns the monitored tag
func (m *Monitor) Tag() *m24sr.Tag {
	return m.tag
}

// poll takes one GPO sample and acts on its edges
func (m *Monitor) poll(ctx context.Context) {
	m.pollCycles.Add(1)
	level := m.pin.Read()

	m.mu.Lock()
	falling, rising := m.state.Sample(level)
	if falling {
		m.state.TransitionToFieldBusy()
	}
	m.mu.Unlock()

	switch {
	case falling:
		if m.OnFieldBusy != nil {
			m.OnFieldBusy()
		}
	case rising:
		m.triggers.Add(1)
		m.readTag(ctx)
	case level == gpio.High && m.idle != nil:
		m.idle(ctx)
	}
}

// readTag reads the NDEF message and reports it
func (m *Monitor) readTag(ctx context.Context) {
	m.mu.Lock()
	m.state.TransitionToReading()
	m.mu.Unlock()

	readCtx, cancel := context.WithTimeout(ctx, m.config.ReadTimeout)
	defer cancel()

	start := time.Now()
	raw, err := m.tag.ReadNDEFBytes(readCtx)
	m.lastReadTime.Store(int64(time.Since(start)))

	if err != nil {
		m.mu.Lock()
		m.state.TransitionToIdle(nil)
		m.mu.Unlock()
		if errors.Is(err, m24sr.ErrNoNDEF) {
			return
		}
		m.readErrors.Add(1)
		m.reportError(fmt.Errorf("failed to read tag: %w", err))
		return
	}

	m.messagesRead.Add(1)
	m.mu.Lock()
	m.state.TransitionToIdle(raw)
	m.mu.Unlock()

	msg := &ndef.Message{}
	if _, err := msg.Unmarshal(raw); err != nil {
		msg = nil
	}
	if m.OnMessage != nil {
		if err := m.OnMessage(raw, msg); err != nil {
			m.reportError(fmt.Errorf("message callback failed: %w", err))
		}
	}
}

func (m *Monitor) reportError(err error) {
	if m.OnError != nil {
		m.OnError(err)
	}
}
