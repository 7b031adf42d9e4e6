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
	"time"

	m24sr "github.com/ZaparooProject/go-m24sr"
)

// WriteToTag queues operation to run the next time the tag is idle, that is
// while GPO is high and no RF reader holds the tag. It blocks until the
// operation completes, times out or ctx is cancelled.
func (s *Scanner) WriteToTag(ctx context.Context, timeout time.Duration, operation func(*m24sr.Tag) error) error {
	if !s.running.Load() {
		return ErrScannerNotRunning
	}

	s.writeMutex.Lock()
	defer s.writeMutex.Unlock()

	if s.pendingWrite.Load() != nil {
		return ErrWriteAlreadyPending
	}

	writeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result := make(chan error, 1)
	req := &WriteRequest{
		operation: operation,
		result:    result,
		ctx:       writeCtx,
		createdAt: time.Now(),
	}

	s.pendingWrite.Store(req)
	defer s.pendingWrite.Store(nil)

	select {
	case err := <-result:
		return err
	case <-writeCtx.Done():
		return writeCtx.Err()
	}
}

// WriteText queues a text record write
func (s *Scanner) WriteText(ctx context.Context, timeout time.Duration, text string) error {
	return s.WriteToTag(ctx, timeout, func(tag *m24sr.Tag) error {
		return tag.WriteText(ctx, text, "")
	})
}

// processPendingWrite runs from the monitor loop while the tag is idle
func (s *Scanner) processPendingWrite(_ context.Context) {
	req := s.pendingWrite.Swap(nil)
	if req == nil {
		return
	}

	select {
	case <-req.ctx.Done():
		sendWriteResult(req, req.ctx.Err())
		return
	default:
	}

	sendWriteResult(req, req.operation(s.monitor.Tag()))
}

func sendWriteResult(req *WriteRequest, err error) {
	select {
	case req.result <- err:
	default:
	}
}
