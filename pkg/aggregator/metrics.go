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

package aggregator

import (
	"time"

	"github.com/carverauto/connectivity/pkg/counter"
	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
)

const responsesBucket = "responses"

// MetricsAggregator merges the metrics of every client of a connection.
type MetricsAggregator = Engine[models.RetrieveConnectionMetricsResponse, models.RetrieveConnectionMetricsResponse]

type metricsStrategy struct {
	connectionID string
	expected     int
	timeout      time.Duration
	merged       models.RetrieveConnectionMetricsResponse
}

// NewMetricsAggregator expects one partial response per client of conn.
func NewMetricsAggregator(conn *models.Connection, timeout time.Duration, log logger.Logger) *MetricsAggregator {
	return NewExpectingMetricsAggregator(conn.ID, conn.Clients(), timeout, log)
}

// NewExpectingMetricsAggregator expects the given number of partial responses.
func NewExpectingMetricsAggregator(connectionID string, expected int, timeout time.Duration,
	log logger.Logger) *MetricsAggregator {
	empty := models.RetrieveConnectionMetricsResponse{ConnectionID: connectionID}

	strategy := &metricsStrategy{
		connectionID: connectionID,
		expected:     expected,
		timeout:      timeout,
		merged:       counter.MergeMetricsResponses(empty, models.RetrieveConnectionMetricsResponse{}),
	}

	return NewEngine[models.RetrieveConnectionMetricsResponse, models.RetrieveConnectionMetricsResponse](
		"metrics:"+connectionID, strategy, timeout, log)
}

func (s *metricsStrategy) Expected() Buckets {
	return Buckets{responsesBucket: s.expected}
}

func (s *metricsStrategy) Absorb(p models.RetrieveConnectionMetricsResponse) Buckets {
	s.merged = counter.MergeMetricsResponses(s.merged, p)

	return Buckets{responsesBucket: 1}
}

func (s *metricsStrategy) Result() models.RetrieveConnectionMetricsResponse {
	return s.merged
}

func (s *metricsStrategy) Degrade(received int, missing Buckets) (models.RetrieveConnectionMetricsResponse, error) {
	if received == 0 {
		return models.RetrieveConnectionMetricsResponse{}, &models.ConnectionTimeoutError{
			ConnectionID: s.connectionID,
			Timeout:      s.timeout,
		}
	}

	degraded := s.merged
	degraded.MissingResponses = missing[responsesBucket]

	return degraded, nil
}
