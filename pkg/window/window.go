/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package window is the catalog of measurement windows used to bucket and
// report connection metrics.
package window

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var ErrInvalidWindow = errors.New("invalid measurement window")

// MeasurementWindow is a total span bucketed at a fixed resolution.
// Span is always an integer multiple of Resolution.
type MeasurementWindow struct {
	Span       time.Duration
	Resolution time.Duration
}

//nolint:gochecknoglobals // immutable presets
var (
	OneMinuteWithTenSecondsResolution = MeasurementWindow{Span: time.Minute, Resolution: 10 * time.Second}
	OneMinuteWithOneMinuteResolution  = MeasurementWindow{Span: time.Minute, Resolution: time.Minute}
	OneHourWithOneMinuteResolution    = MeasurementWindow{Span: time.Hour, Resolution: time.Minute}
	OneHourWithOneHourResolution      = MeasurementWindow{Span: time.Hour, Resolution: time.Hour}
	OneDayWithOneMinuteResolution     = MeasurementWindow{Span: 24 * time.Hour, Resolution: time.Minute}
	OneDayWithOneHourResolution       = MeasurementWindow{Span: 24 * time.Hour, Resolution: time.Hour}
)

//nolint:gochecknoglobals // immutable presets
var presets = map[string]MeasurementWindow{
	"1m@10s": OneMinuteWithTenSecondsResolution,
	"1m@1m":  OneMinuteWithOneMinuteResolution,
	"1h@1m":  OneHourWithOneMinuteResolution,
	"1h@1h":  OneHourWithOneHourResolution,
	"1d@1m":  OneDayWithOneMinuteResolution,
	"1d@1h":  OneDayWithOneHourResolution,
}

// New validates and returns a measurement window.
func New(span, resolution time.Duration) (MeasurementWindow, error) {
	w := MeasurementWindow{Span: span, Resolution: resolution}
	if err := w.Validate(); err != nil {
		return MeasurementWindow{}, err
	}

	return w, nil
}

// Lookup returns the preset with the given short name, e.g. "1m@10s".
func Lookup(name string) (MeasurementWindow, bool) {
	w, ok := presets[name]

	return w, ok
}

// Defaults returns the windows used for recording and reporting when a
// metric type has no explicit configuration.
func Defaults() []MeasurementWindow {
	return []MeasurementWindow{
		OneMinuteWithTenSecondsResolution,
		OneHourWithOneMinuteResolution,
		OneDayWithOneHourResolution,
	}
}

func (w MeasurementWindow) Validate() error {
	if w.Resolution < time.Millisecond || w.Span <= 0 {
		return fmt.Errorf("%w: span %s and resolution %s must be positive", ErrInvalidWindow, w.Span, w.Resolution)
	}

	if w.Span%w.Resolution != 0 || w.Resolution%time.Millisecond != 0 {
		return fmt.Errorf("%w: span %s is not a multiple of resolution %s", ErrInvalidWindow, w.Span, w.Resolution)
	}

	return nil
}

// Slot returns the left-closed bucket index of ts at this window's resolution.
func (w MeasurementWindow) Slot(ts time.Time) int64 {
	return SlotOf(ts.UnixMilli(), w.Resolution)
}

// Slots is the number of buckets retained for the window.
func (w MeasurementWindow) Slots() int64 {
	return int64(w.Span / w.Resolution)
}

func (w MeasurementWindow) String() string {
	return fmt.Sprintf("%s@%s", w.Span, w.Resolution)
}

// SlotOf floors a unix millisecond timestamp to a bucket index.
func SlotOf(millis int64, resolution time.Duration) int64 {
	res := resolution.Milliseconds()

	slot := millis / res
	if millis < 0 && millis%res != 0 {
		slot--
	}

	return slot
}

// SmallestResolution returns the finest resolution among windows.
func SmallestResolution(windows []MeasurementWindow) time.Duration {
	var smallest time.Duration

	for _, w := range windows {
		if smallest == 0 || w.Resolution < smallest {
			smallest = w.Resolution
		}
	}

	return smallest
}

// Coarsest returns the window with the largest resolution, ties broken by
// the larger span.
func Coarsest(windows []MeasurementWindow) (MeasurementWindow, bool) {
	if len(windows) == 0 {
		return MeasurementWindow{}, false
	}

	coarsest := windows[0]

	for _, w := range windows[1:] {
		if w.Resolution > coarsest.Resolution ||
			(w.Resolution == coarsest.Resolution && w.Span > coarsest.Span) {
			coarsest = w
		}
	}

	return coarsest, true
}

type windowJSON struct {
	Span       string `json:"span"`
	Resolution string `json:"resolution"`
}

func (w MeasurementWindow) MarshalJSON() ([]byte, error) {
	return json.Marshal(windowJSON{Span: w.Span.String(), Resolution: w.Resolution.String()})
}

// UnmarshalJSON accepts a preset name ("1h@1m") or an object with Go
// duration strings ({"span":"1h","resolution":"1m"}).
func (w *MeasurementWindow) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		preset, ok := Lookup(name)
		if !ok {
			return fmt.Errorf("%w: unknown preset %q", ErrInvalidWindow, name)
		}

		*w = preset

		return nil
	}

	var raw windowJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	span, err := time.ParseDuration(raw.Span)
	if err != nil {
		return fmt.Errorf("%w: span: %w", ErrInvalidWindow, err)
	}

	resolution, err := time.ParseDuration(raw.Resolution)
	if err != nil {
		return fmt.Errorf("%w: resolution: %w", ErrInvalidWindow, err)
	}

	parsed, err := New(span, resolution)
	if err != nil {
		return err
	}

	*w = parsed

	return nil
}
