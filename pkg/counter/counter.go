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

// Package counter counts connection message events in sliding time windows
// and merges the resulting measurements across cluster nodes.
package counter

import (
	"fmt"
	"time"

	"github.com/carverauto/connectivity/pkg/models"
)

// Identity is the process-wide key of a counter.
type Identity struct {
	ConnectionID string
	MetricType   models.MetricType
	Direction    models.MetricDirection
	Address      string
}

func (i Identity) String() string {
	return fmt.Sprintf("%s/%s/%s/%s", i.ConnectionID, i.Direction, i.MetricType, i.Address)
}

// Counter is the increment API used by protocol adapters.
type Counter interface {
	RecordSuccess()
	RecordFailure()
	RecordSuccessAt(ts time.Time)
	RecordFailureAt(ts time.Time)
	Reset()
	Identity() Identity
	// Measurements returns the success and the failure measurement.
	Measurements() []models.Measurement
	LastSuccessAt() time.Time
	LastFailureAt() time.Time
}

// Sink receives every recorded event, e.g. to forward it to a telemetry backend.
type Sink interface {
	Record(id Identity, success bool, ts time.Time)
}

type nopSink struct{}

func (nopSink) Record(Identity, bool, time.Time) {}

// DefaultCounter binds a sliding window counter to an identity.
type DefaultCounter struct {
	id      Identity
	sliding *SlidingWindowCounter
	sink    Sink
}

// NewDefaultCounter wraps sliding. A nil sink discards events.
func NewDefaultCounter(id Identity, sliding *SlidingWindowCounter, sink Sink) *DefaultCounter {
	if sink == nil {
		sink = nopSink{}
	}

	return &DefaultCounter{id: id, sliding: sliding, sink: sink}
}

func (c *DefaultCounter) RecordSuccess() { c.RecordSuccessAt(c.sliding.clock.Now()) }

func (c *DefaultCounter) RecordFailure() { c.RecordFailureAt(c.sliding.clock.Now()) }

func (c *DefaultCounter) RecordSuccessAt(ts time.Time) { c.record(true, ts) }

func (c *DefaultCounter) RecordFailureAt(ts time.Time) { c.record(false, ts) }

func (c *DefaultCounter) record(success bool, ts time.Time) {
	c.sliding.IncrementAt(success, ts)
	c.sink.Record(c.id, success, ts)
}

func (c *DefaultCounter) Reset() { c.sliding.Reset() }

func (c *DefaultCounter) Identity() Identity { return c.id }

func (c *DefaultCounter) LastSuccessAt() time.Time { return c.sliding.LastSuccessAt() }

func (c *DefaultCounter) LastFailureAt() time.Time { return c.sliding.LastFailureAt() }

// Sliding exposes the underlying window counter.
func (c *DefaultCounter) Sliding() *SlidingWindowCounter { return c.sliding }

func (c *DefaultCounter) Measurements() []models.Measurement {
	return []models.Measurement{
		c.measurement(false, c.sliding.LastFailureAt()),
		c.measurement(true, c.sliding.LastSuccessAt()),
	}
}

func (c *DefaultCounter) measurement(success bool, last time.Time) models.Measurement {
	m := models.Measurement{
		MetricType: c.id.MetricType,
		Success:    success,
		Counts:     c.sliding.GetCounts(success),
	}

	if !last.Equal(Epoch) {
		m.LastMessageAt = &last
	}

	return m
}
