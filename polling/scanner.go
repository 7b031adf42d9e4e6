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
	"sync"
	"sync/atomic"
	"time"

	m24sr "github.com/ZaparooProject/go-m24sr"
	"github.com/hsanjuan/go-ndef"
)

// Scanner runs a Monitor in the background and coordinates writes with it
// so that the I2C host only touches the tag while no RF reader holds it.
type Scanner struct {
	monitor      *Monitor
	pendingWrite atomic.Pointer[WriteRequest]
	cancelFunc   context.CancelFunc
	done         chan struct{}
	// OnMessage is called for every message read after an RF session
	OnMessage func(raw []byte, msg *ndef.Message) error
	// OnFieldBusy is called when an RF reader takes the tag
	OnFieldBusy func()
	// OnError receives read failures and the scanner's exit error
	OnError    func(err error)
	writeMutex sync.Mutex
	stopMutex  sync.Mutex
	running    atomic.Bool
}

// WriteRequest represents a pending write operation
type WriteRequest struct {
	operation func(*m24sr.Tag) error
	result    chan error
	ctx       context.Context
	createdAt time.Time
}

// Scanner-specific errors
var (
	ErrWriteAlreadyPending = errors.New("write operation already pending")
	ErrScannerNotRunning   = errors.New("scanner is not running")
	ErrScannerRunning      = errors.New("scanner is already running")
)

// NewScanner creates a scanner for tag using pin as the GPO input
func NewScanner(tag *m24sr.Tag, pin Pin, config *Config) (*Scanner, error) {
	if tag == nil {
		return nil, errors.New("tag cannot be nil")
	}
	if pin == nil {
		return nil, errors.New("pin cannot be nil")
	}

	s := &Scanner{}
	s.monitor = NewMonitor(tag, pin, config)
	s.monitor.OnMessage = func(raw []byte, msg *ndef.Message) error {
		if s.OnMessage != nil {
			return s.OnMessage(raw, msg)
		}
		return nil
	}
	s.monitor.OnFieldBusy = func() {
		if s.OnFieldBusy != nil {
			s.OnFieldBusy()
		}
	}
	s.monitor.OnError = s.reportError
	s.monitor.idle = s.processPendingWrite
	return s, nil
}

// Start begins scanning in the background
func (s *Scanner) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrScannerRunning
	}

	scanCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.stopMutex.Lock()
	s.cancelFunc = cancel
	s.done = done
	s.stopMutex.Unlock()

	go func() {
		defer close(done)
		defer s.running.Store(false)

		if err := s.monitor.Start(scanCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.reportError(err)
		}
	}()

	return nil
}

// Stop cancels scanning and blocks until the background loop has exited
func (s *Scanner) Stop() {
	s.stopMutex.Lock()
	cancel := s.cancelFunc
	done := s.done
	s.cancelFunc = nil
	s.done = nil
	s.stopMutex.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// IsRunning returns whether the scanner is currently active
func (s *Scanner) IsRunning() bool {
	return s.running.Load()
}

// HasPendingWrite returns true if a write operation is waiting
func (s *Scanner) HasPendingWrite() bool {
	return s.pendingWrite.Load() != nil
}

// GetState returns the monitor state
func (s *Scanner) GetState() TagState {
	return s.monitor.GetState()
}

// GetMetrics returns the monitor counters
func (s *Scanner) GetMetrics() Metrics {
	return s.monitor.GetMetrics()
}

func (s *Scanner) reportError(err error) {
	if s.OnError != nil {
		s.OnError(err)
	}
}
