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

package detection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDetector struct {
	err       error
	transport string
	devices   []DeviceInfo
	delay     time.Duration
}

func (f *fakeDetector) Detect(ctx context.Context, _ *Options) ([]DeviceInfo, error) {
	if f.delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.delay):
		}
	}
	return f.devices, f.err
}

func (f *fakeDetector) Transport() string { return f.transport }

func TestDetectWith(t *testing.T) {
	t.Parallel()

	low := DeviceInfo{Path: "/dev/i2c-0:0x56", Confidence: Low}
	high := DeviceInfo{Path: "/dev/i2c-1:0x56", Confidence: High}
	medium := DeviceInfo{Path: "/dev/i2c-2:0x56", Confidence: Medium}

	tests := []struct {
		wantErr   error
		name      string
		detectors []Detector
		ignore    []string
		want      []DeviceInfo
	}{
		{
			name: "Sorted_By_Confidence",
			detectors: []Detector{
				&fakeDetector{devices: []DeviceInfo{low, high}},
				&fakeDetector{devices: []DeviceInfo{medium}},
			},
			want: []DeviceInfo{high, medium, low},
		},
		{
			name: "Failing_Detector_Skipped",
			detectors: []Detector{
				&fakeDetector{err: ErrUnsupportedPlatform},
				&fakeDetector{devices: []DeviceInfo{medium}},
			},
			want: []DeviceInfo{medium},
		},
		{
			name:      "Ignored_Paths_Removed",
			detectors: []Detector{&fakeDetector{devices: []DeviceInfo{low, high}}},
			ignore:    []string{"/dev/i2c-1:0x56"},
			want:      []DeviceInfo{low},
		},
		{
			name:      "Nothing_Found",
			detectors: []Detector{&fakeDetector{}},
			wantErr:   ErrNoDevicesFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opts := DefaultOptions()
			opts.IgnorePaths = tt.ignore
			got, err := detectWith(context.Background(), tt.detectors, &opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectWith_Timeout(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	opts.Timeout = 10 * time.Millisecond
	detectors := []Detector{
		&fakeDetector{delay: time.Second},
		&fakeDetector{devices: []DeviceInfo{{Path: "x"}}},
	}

	_, err := detectWith(context.Background(), detectors, &opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDetectionTimeout))
}

func TestRegisterDetector(t *testing.T) {
	t.Parallel()

	before := len(Detectors())
	RegisterDetector(&fakeDetector{transport: "test"})
	assert.Len(t, Detectors(), before+1)
}

func TestModeAndConfidence_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "passive", Passive.String())
	assert.Equal(t, "safe", Safe.String())
	assert.Equal(t, "full", Full.String())
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "low", Low.String())
}
