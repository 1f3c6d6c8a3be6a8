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

package natsutil

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/connectivity/pkg/aggregator"
	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
)

const defaultQueryTimeout = 5 * time.Second

// ScatterOption configures a Scatterer.
type ScatterOption func(*Scatterer)

// WithQueryTimeout sets the deadline of every query.
func WithQueryTimeout(timeout time.Duration) ScatterOption {
	return func(s *Scatterer) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithClusterSize sets the number of nodes able to run clients. It explains
// status reports missing because the cluster is too small.
func WithClusterSize(nodes int) ScatterOption {
	return func(s *Scatterer) {
		s.clusterSize = nodes
	}
}

// Scatterer broadcasts connection queries to every node and gathers the
// partial answers into one response.
type Scatterer struct {
	nc          *nats.Conn
	subjects    Subjects
	timeout     time.Duration
	clusterSize int
	logger      logger.Logger
}

func NewScatterer(nc *nats.Conn, subjects Subjects, log logger.Logger, opts ...ScatterOption) *Scatterer {
	s := &Scatterer{
		nc:       nc,
		subjects: subjects,
		timeout:  defaultQueryTimeout,
		logger:   log.WithComponent("scatterer"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Metrics retrieves the merged metrics of conn. Responses still missing at
// the deadline are reported through MissingResponses; a query nobody
// answered fails with a *models.ConnectionTimeoutError.
func (s *Scatterer) Metrics(ctx context.Context, conn *models.Connection) (models.RetrieveConnectionMetricsResponse, error) {
	agg := aggregator.NewMetricsAggregator(conn, s.timeout, s.logger)

	request := models.RetrieveConnectionMetrics{ConnectionID: conn.ID, CorrelationID: uuid.New().String()}

	unsubscribe, err := s.scatter(s.subjects.Metrics(conn.ID), request, func(msg *nats.Msg) {
		var partial models.RetrieveConnectionMetricsResponse
		if err := json.Unmarshal(msg.Data, &partial); err != nil {
			s.logger.Warn().Err(err).Str("connection_id", conn.ID).Msg("Discarding malformed metrics response")

			return
		}

		agg.Tell(partial)
	})
	if err != nil {
		return models.RetrieveConnectionMetricsResponse{}, err
	}
	defer unsubscribe()

	return agg.Run(ctx)
}

// Status retrieves the fused status of conn.
func (s *Scatterer) Status(ctx context.Context, conn *models.Connection) (models.RetrieveConnectionStatusResponse, error) {
	agg := aggregator.NewStatusAggregator(conn, s.timeout, s.logger, aggregator.WithAvailableNodes(s.clusterSize))

	request := models.RetrieveConnectionStatus{ConnectionID: conn.ID, CorrelationID: uuid.New().String()}

	unsubscribe, err := s.scatter(s.subjects.Status(conn.ID), request, func(msg *nats.Msg) {
		var report models.ResourceStatusReport
		if err := json.Unmarshal(msg.Data, &report); err != nil {
			s.logger.Warn().Err(err).Str("connection_id", conn.ID).Msg("Discarding malformed status report")

			return
		}

		agg.Tell(report)
	})
	if err != nil {
		return models.RetrieveConnectionStatusResponse{}, err
	}
	defer unsubscribe()

	return agg.Run(ctx)
}

// scatter subscribes handler to a fresh inbox and publishes request to
// subject with that inbox as reply address.
func (s *Scatterer) scatter(subject string, request any, handler nats.MsgHandler) (func(), error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal query: %w", err)
	}

	inbox := nats.NewInbox()

	sub, err := s.nc.Subscribe(inbox, handler)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", inbox, err)
	}

	unsubscribe := func() {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Debug().Err(err).Str("inbox", inbox).Msg("Failed to unsubscribe reply inbox")
		}
	}

	if err := s.nc.PublishRequest(subject, inbox, payload); err != nil {
		unsubscribe()

		return nil, fmt.Errorf("failed to publish query to %s: %w", subject, err)
	}

	s.logger.Debug().Str("subject", subject).Str("inbox", inbox).Msg("Scattered connection query")

	return unsubscribe, nil
}
