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
	"bytes"
	"context"
	"fmt"
	"time"
)

// ValidationConfig controls write verification
type ValidationConfig struct {
	// RetryDelay specifies delay between write attempts
	RetryDelay time.Duration

	// WriteRetries is the number of extra writes after a failed verification
	WriteRetries int
}

// DefaultValidationConfig returns default validation configuration
func DefaultValidationConfig() *ValidationConfig {
	return &ValidationConfig{
		WriteRetries: 2,
		RetryDelay:   50 * time.Millisecond,
	}
}

// WriteNDEFBytesValidated writes data and reads it back, rewriting it when
// the tag returns something else. An RF reader writing the tag between the
// two operations also shows up as a mismatch.
func (t *Tag) WriteNDEFBytesValidated(ctx context.Context, data []byte, config *ValidationConfig) error {
	if config == nil {
		config = DefaultValidationConfig()
	}

	var lastErr error
	for attempt := 0; attempt <= config.WriteRetries; attempt++ {
		if attempt > 0 {
			if err := t.session.config.Sleep(ctx, config.RetryDelay); err != nil {
				return err
			}
		}

		if err := t.WriteNDEFBytes(ctx, data); err != nil {
			lastErr = err
			continue
		}
		got, err := t.ReadNDEFBytes(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		if bytes.Equal(got, data) {
			return nil
		}
		lastErr = ErrVerificationFailed
		t.session.log.Warn().
			Int("attempt", attempt+1).
			Hex("want", data).
			Hex("got", got).
			Msg("NDEF verification mismatch")
	}
	return fmt.Errorf("write not verified after %d attempts: %w", config.WriteRetries+1, lastErr)
}
