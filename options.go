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
	"fmt"
	"time"

	"github.com/ZaparooProject/go-m24sr/internal/frame"
	"github.com/rs/zerolog"
)

// Session defaults
const (
	// DefaultAddress is the 7-bit I2C address of the M24SR family
	DefaultAddress uint16 = 0x56
	// DefaultWTXUnit is the wait applied per unit of WTX multiplier
	DefaultWTXUnit = 200 * time.Millisecond
	// DefaultMaxWTXRetries bounds the WTX cycles within one exchange
	DefaultMaxWTXRetries = 10
	// DefaultMaxWTXWait bounds the total WTX wait within one exchange
	DefaultMaxWTXWait = 5 * time.Second
	// DefaultMaxFrameSize is the largest frame written in one bus transaction
	DefaultMaxFrameSize = 32
)

// Sleeper blocks for d or until ctx is done
type Sleeper func(ctx context.Context, d time.Duration) error

// SessionConfig contains configuration options for a Session
type SessionConfig struct {
	// Logger receives frame traces at debug level
	Logger zerolog.Logger
	// Sleep performs WTX waits
	Sleep Sleeper
	// WTXUnit is multiplied by the WTXM sent by the device
	WTXUnit time.Duration
	// MaxWTXWait is the total WTX wait tolerated in one exchange
	MaxWTXWait time.Duration
	// MaxWTXRetries is the number of WTX cycles tolerated in one exchange
	MaxWTXRetries int
	// MaxFrameSize limits outbound frames, framing bytes included
	MaxFrameSize int
	// KillRFSession makes the session request take the session away from
	// an RF reader instead of waiting for it
	KillRFSession bool
}

// DefaultSessionConfig returns default session configuration
func DefaultSessionConfig() *SessionConfig {
	return &SessionConfig{
		Logger:        zerolog.Nop(),
		Sleep:         sleepContext,
		WTXUnit:       DefaultWTXUnit,
		MaxWTXWait:    DefaultMaxWTXWait,
		MaxWTXRetries: DefaultMaxWTXRetries,
		MaxFrameSize:  DefaultMaxFrameSize,
	}
}

// Option is a functional option for configuring a Session
type Option func(*Session) error

// WithLogger sets the logger used for frame traces
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Session) error {
		s.config.Logger = logger
		return nil
	}
}

// WithWTXUnit sets the wait applied per unit of WTX multiplier
func WithWTXUnit(unit time.Duration) Option {
	return func(s *Session) error {
		if unit < 0 {
			return fmt.Errorf("%w: negative WTX unit %v", ErrInvalidParameter, unit)
		}
		s.config.WTXUnit = unit
		return nil
	}
}

// WithMaxWTXRetries sets how many WTX cycles one exchange tolerates
func WithMaxWTXRetries(retries int) Option {
	return func(s *Session) error {
		if retries < 0 {
			return fmt.Errorf("%w: negative WTX retry limit %d", ErrInvalidParameter, retries)
		}
		s.config.MaxWTXRetries = retries
		return nil
	}
}

// WithMaxWTXWait sets the total WTX wait one exchange tolerates
func WithMaxWTXWait(wait time.Duration) Option {
	return func(s *Session) error {
		if wait <= 0 {
			return fmt.Errorf("%w: WTX wait ceiling must be positive, got %v", ErrInvalidParameter, wait)
		}
		s.config.MaxWTXWait = wait
		return nil
	}
}

// WithMaxFrameSize sets the largest frame written in one bus transaction
func WithMaxFrameSize(size int) Option {
	return func(s *Session) error {
		if size <= frame.Overhead {
			return fmt.Errorf("%w: frame size %d leaves no room for a payload", ErrInvalidParameter, size)
		}
		s.config.MaxFrameSize = size
		return nil
	}
}

// WithKillRFSession makes the session request interrupt an RF session
func WithKillRFSession() Option {
	return func(s *Session) error {
		s.config.KillRFSession = true
		return nil
	}
}

// WithSleeper replaces the function used for WTX waits
func WithSleeper(sleep Sleeper) Option {
	return func(s *Session) error {
		if sleep == nil {
			return fmt.Errorf("%w: nil sleeper", ErrInvalidParameter)
		}
		s.config.Sleep = sleep
		return nil
	}
}

// WithSessionConfig replaces the whole configuration
func WithSessionConfig(config *SessionConfig) Option {
	return func(s *Session) error {
		if config == nil {
			return fmt.Errorf("%w: nil session config", ErrInvalidParameter)
		}
		cfg := *config
		if cfg.Sleep == nil {
			cfg.Sleep = sleepContext
		}
		s.config = &cfg
		return nil
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
