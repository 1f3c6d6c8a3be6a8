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
	"time"

	"github.com/carverauto/connectivity/pkg/models"
)

// Merge functions are pure. They never modify their arguments, treat nil as
// the identity element and always return freshly allocated, non-nil maps, so
// that fan-in of any number of partial reports is independent of arrival order.

// MergeCounts sums two count maps per window span.
func MergeCounts(a, b map[time.Duration]int64) map[time.Duration]int64 {
	merged := make(map[time.Duration]int64, max(len(a), len(b)))

	for d, v := range a {
		merged[d] += v
	}

	for d, v := range b {
		merged[d] += v
	}

	return merged
}

// MergeLastMessageAt keeps the later of two timestamps. A present value
// always beats an absent one.
func MergeLastMessageAt(a, b *time.Time) *time.Time {
	var later time.Time

	switch {
	case a == nil && b == nil:
		return nil
	case a == nil:
		later = *b
	case b == nil:
		later = *a
	case b.After(*a):
		later = *b
	default:
		later = *a
	}

	return &later
}

// MergeMeasurement combines two measurements of the same metric type and side.
func MergeMeasurement(a, b models.Measurement) models.Measurement {
	return models.Measurement{
		MetricType:    a.MetricType,
		Success:       a.Success,
		Counts:        MergeCounts(a.Counts, b.Counts),
		LastMessageAt: MergeLastMessageAt(a.LastMessageAt, b.LastMessageAt),
	}
}

// MergeMeasurements unions two measurement lists, merging entries with the
// same metric type and side.
func MergeMeasurements(a, b []models.Measurement) []models.Measurement {
	index := make(map[models.MeasurementKey]int, len(a)+len(b))
	merged := make([]models.Measurement, 0, len(a)+len(b))

	for _, list := range [][]models.Measurement{a, b} {
		for _, m := range list {
			if i, ok := index[m.Key()]; ok {
				merged[i] = MergeMeasurement(merged[i], m)
				continue
			}

			index[m.Key()] = len(merged)
			merged = append(merged, MergeMeasurement(m, models.Measurement{}))
		}
	}

	models.SortMeasurements(merged)

	return merged
}

func MergeAddressMetric(a, b models.AddressMetric) models.AddressMetric {
	return models.AddressMetric{Measurements: MergeMeasurements(a.Measurements, b.Measurements)}
}

// MergeAddressMetricMap merges two per-address maps, merging the metrics of
// addresses present in both.
func MergeAddressMetricMap(a, b map[string]models.AddressMetric) map[string]models.AddressMetric {
	merged := make(map[string]models.AddressMetric, max(len(a), len(b)))

	for address, metric := range a {
		merged[address] = MergeAddressMetric(metric, models.AddressMetric{})
	}

	for address, metric := range b {
		merged[address] = MergeAddressMetric(merged[address], metric)
	}

	return merged
}

func MergeSourceMetrics(a, b models.SourceMetrics) models.SourceMetrics {
	return models.SourceMetrics{AddressMetrics: MergeAddressMetricMap(a.AddressMetrics, b.AddressMetrics)}
}

func MergeTargetMetrics(a, b models.TargetMetrics) models.TargetMetrics {
	return models.TargetMetrics{AddressMetrics: MergeAddressMetricMap(a.AddressMetrics, b.AddressMetrics)}
}

func MergeConnectionMetrics(a, b models.ConnectionMetrics) models.ConnectionMetrics {
	return models.ConnectionMetrics{
		Inbound:  MergeAddressMetric(a.Inbound, b.Inbound),
		Outbound: MergeAddressMetric(a.Outbound, b.Outbound),
	}
}

// MergeMetricsResponses merges two metrics responses of one connection. The
// sender of the result is empty since it no longer stems from one client.
func MergeMetricsResponses(a, b models.RetrieveConnectionMetricsResponse) models.RetrieveConnectionMetricsResponse {
	connectionID := a.ConnectionID
	if connectionID == "" {
		connectionID = b.ConnectionID
	}

	return models.RetrieveConnectionMetricsResponse{
		ConnectionID:      connectionID,
		ConnectionMetrics: MergeConnectionMetrics(a.ConnectionMetrics, b.ConnectionMetrics),
		SourceMetrics:     MergeSourceMetrics(a.SourceMetrics, b.SourceMetrics),
		TargetMetrics:     MergeTargetMetrics(a.TargetMetrics, b.TargetMetrics),
	}
}

// totals folds every address metric of a map into one.
func totals(metrics map[string]models.AddressMetric) models.AddressMetric {
	total := models.AddressMetric{Measurements: []models.Measurement{}}

	for _, metric := range metrics {
		total = MergeAddressMetric(total, metric)
	}

	return total
}
