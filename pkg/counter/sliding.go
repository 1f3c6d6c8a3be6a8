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

package counter

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/window"
)

// Epoch is returned as the last measurement time of a side that never
// recorded anything.
//
//nolint:gochecknoglobals // sentinel value
var Epoch = time.UnixMilli(0).UTC()

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SlidingWindowConfig configures a SlidingWindowCounter. Only
// RecordingWindows is required.
type SlidingWindowConfig struct {
	// RecordingWindows decide how increments are bucketed and retained.
	RecordingWindows []window.MeasurementWindow
	// ReportingWindows are answered by GetCounts. Defaults to RecordingWindows.
	ReportingWindows []window.MeasurementWindow
	// MaximumPerSlot caps each slot's contribution when reporting. Zero disables capping.
	MaximumPerSlot int64
	// LastActivityOverrides makes a reporting window answer a fixed value when
	// the side saw activity within the window's span, and zero otherwise.
	LastActivityOverrides map[window.MeasurementWindow]int64
	Alert                 Alert
	DisableCleanup        bool
	Clock                 Clock
	Logger                logger.Logger
}

// SlidingWindowCounter counts successes and failures in time buckets for a
// set of recording windows and answers sums over its reporting windows.
// Increment and GetCounts are safe for unsynchronised concurrent use.
type SlidingWindowCounter struct {
	recording          []window.MeasurementWindow
	reporting          []window.MeasurementWindow
	sources            []int // reporting index -> recording index serving it
	smallestResolution int64
	maximumPerSlot     int64
	overrides          map[window.MeasurementWindow]int64
	alert              Alert
	cleanup            bool
	clock              Clock
	logger             logger.Logger

	success *side
	failure *side
}

type side struct {
	slots     []*xsync.MapOf[int64, *atomic.Int64] // one map per recording window
	lastAt    atomic.Int64                         // unix millis, 0 means never
	cleanedAt atomic.Int64                         // smallest-resolution slot of the last eviction
}

func newSide(windows int) *side {
	s := &side{slots: make([]*xsync.MapOf[int64, *atomic.Int64], windows)}
	for i := range s.slots {
		s.slots[i] = xsync.NewMapOf[int64, *atomic.Int64]()
	}

	return s
}

// NewSlidingWindowCounter validates cfg and builds a counter.
func NewSlidingWindowCounter(cfg SlidingWindowConfig) (*SlidingWindowCounter, error) {
	if len(cfg.RecordingWindows) == 0 {
		return nil, ErrNoRecordingWindows
	}

	if cfg.MaximumPerSlot < 0 {
		return nil, ErrInvalidMaximumPerSlot
	}

	for _, w := range append(append([]window.MeasurementWindow{}, cfg.RecordingWindows...), cfg.ReportingWindows...) {
		if err := w.Validate(); err != nil {
			return nil, err
		}
	}

	reporting := cfg.ReportingWindows
	if len(reporting) == 0 {
		reporting = cfg.RecordingWindows
	}

	spans := make(map[time.Duration]struct{}, len(reporting))
	for _, w := range reporting {
		if _, ok := spans[w.Span]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSpan, w.Span)
		}

		spans[w.Span] = struct{}{}
	}

	for w := range cfg.LastActivityOverrides {
		if !containsWindow(reporting, w) {
			return nil, fmt.Errorf("%w: %s", ErrOverrideNotReported, w)
		}
	}

	maximum := cfg.MaximumPerSlot
	if maximum == 0 {
		maximum = math.MaxInt64
	}

	c := &SlidingWindowCounter{
		recording:          append([]window.MeasurementWindow(nil), cfg.RecordingWindows...),
		reporting:          append([]window.MeasurementWindow(nil), reporting...),
		smallestResolution: window.SmallestResolution(cfg.RecordingWindows).Milliseconds(),
		maximumPerSlot:     maximum,
		overrides:          cfg.LastActivityOverrides,
		alert:              cfg.Alert,
		cleanup:            !cfg.DisableCleanup,
		clock:              cfg.Clock,
		logger:             cfg.Logger,
		success:            newSide(len(cfg.RecordingWindows)),
		failure:            newSide(len(cfg.RecordingWindows)),
	}

	if c.clock == nil {
		c.clock = realClock{}
	}

	if c.logger == nil {
		c.logger = logger.NewTestLogger()
	}

	c.sources = make([]int, len(c.reporting))
	for i, r := range c.reporting {
		c.sources[i] = servingWindow(c.recording, r)
	}

	return c, nil
}

// servingWindow picks the finest recording window whose span covers the
// reporting window, or the longest one when none does.
func servingWindow(recording []window.MeasurementWindow, reporting window.MeasurementWindow) int {
	best := -1

	for i, w := range recording {
		if w.Span < reporting.Span {
			continue
		}

		if best < 0 || w.Resolution < recording[best].Resolution {
			best = i
		}
	}

	if best >= 0 {
		return best
	}

	for i, w := range recording {
		if best < 0 || w.Span > recording[best].Span {
			best = i
		}
	}

	return best
}

func containsWindow(windows []window.MeasurementWindow, w window.MeasurementWindow) bool {
	for _, candidate := range windows {
		if candidate == w {
			return true
		}
	}

	return false
}

func (c *SlidingWindowCounter) sideOf(success bool) *side {
	if success {
		return c.success
	}

	return c.failure
}

// Increment records one event at the current time.
func (c *SlidingWindowCounter) Increment(success bool) {
	c.IncrementAt(success, c.clock.Now())
}

// IncrementAt records one event at ts.
func (c *SlidingWindowCounter) IncrementAt(success bool, ts time.Time) {
	s := c.sideOf(success)
	millis := ts.UnixMilli()
	advance(&s.lastAt, millis)

	for i, w := range c.recording {
		slot := window.SlotOf(millis, w.Resolution)
		cell, _ := s.slots[i].LoadOrCompute(slot, func() *atomic.Int64 { return new(atomic.Int64) })
		value := cell.Add(1)

		c.offerAlert(w, slot, value, ts)
	}

	if c.cleanup && c.claimCleanup(s, millis) {
		c.evictStale(s, millis)
	}
}

// claimCleanup reports whether the caller should evict. It holds once per
// side whenever millis enters a new slot of the smallest resolution.
func (c *SlidingWindowCounter) claimCleanup(s *side, millis int64) bool {
	slot := window.SlotOf(millis, time.Duration(c.smallestResolution)*time.Millisecond)

	for {
		last := s.cleanedAt.Load()
		if slot <= last {
			return false
		}

		if s.cleanedAt.CompareAndSwap(last, slot) {
			return true
		}
	}
}

// advance moves last forward to millis if it is newer.
func advance(last *atomic.Int64, millis int64) {
	for {
		previous := last.Load()
		if millis <= previous || last.CompareAndSwap(previous, millis) {
			return
		}
	}
}

func (c *SlidingWindowCounter) offerAlert(w window.MeasurementWindow, slot, value int64, ts time.Time) {
	if c.alert == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("window", w.String()).
				Int64("slot", slot).
				Interface("panic", r).
				Msg("Alert failed, counting continues")
		}
	}()

	if c.alert.EvaluateCondition(w, slot, value) {
		c.alert.TriggerAction(ts, value)
	}
}

// evictStale removes slots that fell out of their recording window's span.
func (c *SlidingWindowCounter) evictStale(s *side, nowMillis int64) {
	for i, w := range c.recording {
		oldest := window.SlotOf(nowMillis-w.Span.Milliseconds(), w.Resolution)

		s.slots[i].Range(func(slot int64, _ *atomic.Int64) bool {
			if slot <= oldest {
				s.slots[i].Delete(slot)
			}

			return true
		})
	}
}

// GetCounts sums, for every reporting window, the slots in
// (slot(now-span), slot(now)], each capped at the maximum per slot.
func (c *SlidingWindowCounter) GetCounts(success bool) map[time.Duration]int64 {
	s := c.sideOf(success)
	now := c.clock.Now()
	nowMillis := now.UnixMilli()
	counts := make(map[time.Duration]int64, len(c.reporting))

	for i, r := range c.reporting {
		if value, ok := c.overrides[r]; ok {
			counts[r.Span] = c.overrideValue(s, value, r, nowMillis)
			continue
		}

		source := c.recording[c.sources[i]]
		from := window.SlotOf(nowMillis-r.Span.Milliseconds(), source.Resolution)
		to := window.SlotOf(nowMillis, source.Resolution)

		var sum int64

		s.slots[c.sources[i]].Range(func(slot int64, cell *atomic.Int64) bool {
			if slot > from && slot <= to {
				sum += min(cell.Load(), c.maximumPerSlot)
			}

			return true
		})

		counts[r.Span] = sum
	}

	return counts
}

func (*SlidingWindowCounter) overrideValue(s *side, value int64, r window.MeasurementWindow, nowMillis int64) int64 {
	last := s.lastAt.Load()
	if last == 0 || last > nowMillis || nowMillis-last >= r.Span.Milliseconds() {
		return 0
	}

	return value
}

// Reset clears every slot. Last measurement timestamps are kept.
func (c *SlidingWindowCounter) Reset() {
	for _, s := range []*side{c.success, c.failure} {
		for _, slots := range s.slots {
			slots.Clear()
		}
	}
}

// LastSuccessAt returns the newest success timestamp, Epoch if none.
func (c *SlidingWindowCounter) LastSuccessAt() time.Time {
	return time.UnixMilli(c.success.lastAt.Load()).UTC()
}

// LastFailureAt returns the newest failure timestamp, Epoch if none.
func (c *SlidingWindowCounter) LastFailureAt() time.Time {
	return time.UnixMilli(c.failure.lastAt.Load()).UTC()
}

// RecordingWindows returns a copy of the recording windows.
func (c *SlidingWindowCounter) RecordingWindows() []window.MeasurementWindow {
	return append([]window.MeasurementWindow(nil), c.recording...)
}

// ReportingWindows returns a copy of the reporting windows.
func (c *SlidingWindowCounter) ReportingWindows() []window.MeasurementWindow {
	return append([]window.MeasurementWindow(nil), c.reporting...)
}

// retainedSlots is the number of live buckets, used by tests to check eviction.
func (c *SlidingWindowCounter) retainedSlots(success bool) int {
	total := 0
	for _, slots := range c.sideOf(success).slots {
		total += slots.Size()
	}

	return total
}
