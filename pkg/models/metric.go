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

package models

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// MetricDirection distinguishes inbound (source) from outbound (target) traffic.
type MetricDirection string

const (
	DirectionInbound  MetricDirection = "inbound"
	DirectionOutbound MetricDirection = "outbound"
)

// MetricType is the kind of message event being counted.
type MetricType string

const (
	MetricConsumed     MetricType = "consumed"
	MetricMapped       MetricType = "mapped"
	MetricDropped      MetricType = "dropped"
	MetricEnforced     MetricType = "enforced"
	MetricFiltered     MetricType = "filtered"
	MetricDispatched   MetricType = "dispatched"
	MetricPublished    MetricType = "published"
	MetricAcknowledged MetricType = "acknowledged"
	MetricThrottled    MetricType = "throttled"
)

// ResponsesAddress is the artificial outbound address for responses that
// are not tied to a configured target.
const ResponsesAddress = "_responses"

//nolint:gochecknoglobals // static lookup table
var metricDirections = map[MetricType][]MetricDirection{
	MetricConsumed:     {DirectionInbound},
	MetricMapped:       {DirectionInbound, DirectionOutbound},
	MetricDropped:      {DirectionInbound, DirectionOutbound},
	MetricEnforced:     {DirectionInbound},
	MetricFiltered:     {DirectionOutbound},
	MetricDispatched:   {DirectionOutbound},
	MetricPublished:    {DirectionOutbound},
	MetricAcknowledged: {DirectionInbound, DirectionOutbound},
	MetricThrottled:    {DirectionInbound},
}

// AllMetricTypes returns every metric type in a stable order.
func AllMetricTypes() []MetricType {
	return []MetricType{
		MetricConsumed, MetricMapped, MetricDropped, MetricEnforced, MetricFiltered,
		MetricDispatched, MetricPublished, MetricAcknowledged, MetricThrottled,
	}
}

// MetricTypesFor returns the metric types valid for the given direction.
func MetricTypesFor(direction MetricDirection) []MetricType {
	types := make([]MetricType, 0)

	for _, metricType := range AllMetricTypes() {
		if metricType.Supports(direction) {
			types = append(types, metricType)
		}
	}

	return types
}

// Supports reports whether the metric type is recorded in the given direction.
func (m MetricType) Supports(direction MetricDirection) bool {
	for _, d := range metricDirections[m] {
		if d == direction {
			return true
		}
	}

	return false
}

// Measurement is one side (success or failure) of a counter as reported.
type Measurement struct {
	MetricType    MetricType
	Success       bool
	Counts        map[time.Duration]int64
	LastMessageAt *time.Time
}

type measurementJSON struct {
	MetricType    MetricType       `json:"metricType"`
	Success       bool             `json:"success"`
	Counts        map[string]int64 `json:"counts"`
	LastMessageAt *time.Time       `json:"lastMessageAt,omitempty"`
}

func (m Measurement) MarshalJSON() ([]byte, error) {
	counts := make(map[string]int64, len(m.Counts))
	for d, v := range m.Counts {
		counts[FormatISODuration(d)] = v
	}

	return json.Marshal(measurementJSON{
		MetricType:    m.MetricType,
		Success:       m.Success,
		Counts:        counts,
		LastMessageAt: m.LastMessageAt,
	})
}

func (m *Measurement) UnmarshalJSON(b []byte) error {
	var raw measurementJSON
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	counts := make(map[time.Duration]int64, len(raw.Counts))

	for key, v := range raw.Counts {
		d, err := ParseISODuration(key)
		if err != nil {
			return fmt.Errorf("measurement %s: %w", raw.MetricType, err)
		}

		counts[d] = v
	}

	*m = Measurement{
		MetricType:    raw.MetricType,
		Success:       raw.Success,
		Counts:        counts,
		LastMessageAt: raw.LastMessageAt,
	}

	return nil
}

// MeasurementKey identifies a measurement within an address metric.
type MeasurementKey struct {
	MetricType MetricType
	Success    bool
}

func (m Measurement) Key() MeasurementKey {
	return MeasurementKey{MetricType: m.MetricType, Success: m.Success}
}

// AddressMetric is the set of measurements recorded for one address.
type AddressMetric struct {
	Measurements []Measurement
}

func (a AddressMetric) MarshalJSON() ([]byte, error) {
	measurements := a.Measurements
	if measurements == nil {
		measurements = []Measurement{}
	}

	return json.Marshal(measurements)
}

func (a *AddressMetric) UnmarshalJSON(b []byte) error {
	var measurements []Measurement
	if err := json.Unmarshal(b, &measurements); err != nil {
		return err
	}

	SortMeasurements(measurements)
	a.Measurements = measurements

	return nil
}

// Find returns the measurement with the given key.
func (a AddressMetric) Find(metricType MetricType, success bool) (Measurement, bool) {
	for _, m := range a.Measurements {
		if m.MetricType == metricType && m.Success == success {
			return m, true
		}
	}

	return Measurement{}, false
}

// SortMeasurements orders measurements by metric type, failures first.
func SortMeasurements(measurements []Measurement) {
	sort.Slice(measurements, func(i, j int) bool {
		if measurements[i].MetricType != measurements[j].MetricType {
			return measurements[i].MetricType < measurements[j].MetricType
		}

		return !measurements[i].Success && measurements[j].Success
	})
}

type SourceMetrics struct {
	AddressMetrics map[string]AddressMetric `json:"addressMetrics"`
}

type TargetMetrics struct {
	AddressMetrics map[string]AddressMetric `json:"addressMetrics"`
}

// ConnectionMetrics holds connection-wide totals merged across all addresses.
type ConnectionMetrics struct {
	Inbound  AddressMetric `json:"inbound"`
	Outbound AddressMetric `json:"outbound"`
}
