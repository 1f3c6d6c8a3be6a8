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
	"fmt"
	"time"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/status"
)

// StatusAggregator fuses the resource statuses reported for a connection.
type StatusAggregator = Engine[models.ResourceStatusReport, models.RetrieveConnectionStatusResponse]

// StatusOption customises a status aggregation.
type StatusOption func(*statusStrategy)

// WithAvailableNodes sets how many cluster nodes can currently host a
// client. Zero means unknown.
func WithAvailableNodes(nodes int) StatusOption {
	return func(s *statusStrategy) {
		s.availableNodes = nodes
	}
}

// WithStatusClock overrides the clock stamping synthetic statuses.
func WithStatusClock(clock func() time.Time) StatusOption {
	return func(s *statusStrategy) {
		s.now = clock
	}
}

type statusStrategy struct {
	conn           *models.Connection
	expected       Buckets
	availableNodes int
	now            func() time.Time
	statuses       []models.ResourceStatus
}

// NewStatusAggregator expects one status per client, source consumer,
// target and ssh tunnel of conn.
func NewStatusAggregator(conn *models.Connection, timeout time.Duration, log logger.Logger,
	opts ...StatusOption) *StatusAggregator {
	strategy := &statusStrategy{
		conn:     conn,
		expected: ExpectedStatuses(conn),
		now:      time.Now,
		statuses: make([]models.ResourceStatus, 0),
	}

	for _, opt := range opts {
		opt(strategy)
	}

	return NewEngine[models.ResourceStatusReport, models.RetrieveConnectionStatusResponse](
		"status:"+conn.ID, strategy, timeout, log)
}

// ExpectedStatuses counts the statuses a fully reporting connection
// produces per resource type. MQTT runs one consumer per source regardless
// of its addresses, every other type one consumer per address.
func ExpectedStatuses(conn *models.Connection) Buckets {
	clients := conn.Clients()

	sources := 0

	for _, source := range conn.Sources {
		if conn.Type.IsMQTT() {
			sources += source.Consumers()
			continue
		}

		sources += source.Consumers() * len(source.Addresses)
	}

	ssh := 0
	if conn.SSHTunnelEnabled() {
		ssh = clients
	}

	return Buckets{
		string(models.ResourceClient):    clients,
		string(models.ResourceSource):    sources * clients,
		string(models.ResourceTarget):    len(conn.Targets) * clients,
		string(models.ResourceSSHTunnel): ssh,
	}
}

func (s *statusStrategy) Expected() Buckets {
	return s.expected
}

func (s *statusStrategy) Absorb(report models.ResourceStatusReport) Buckets {
	absorbed := make(Buckets)

	for _, st := range report.Statuses {
		if st.Client == "" {
			st.Client = report.Sender
		}

		s.statuses = append(s.statuses, st)
		absorbed[string(st.ResourceType)]++
	}

	return absorbed
}

func (s *statusStrategy) Result() models.RetrieveConnectionStatusResponse {
	return status.Response(s.conn.ID, s.conn.ConnectionStatus, s.statuses)
}

// Degrade answers with what arrived plus one UNKNOWN status per missing
// resource type.
func (s *statusStrategy) Degrade(_ int, missing Buckets) (models.RetrieveConnectionStatusResponse, error) {
	statuses := append([]models.ResourceStatus(nil), s.statuses...)
	missingResources := make([]models.MissingResource, 0, len(missing))
	explained := s.availableNodes > 0 && s.availableNodes < s.conn.Clients()
	now := s.now().UTC()

	for _, rt := range models.ResourceTypes() {
		n := missing[string(rt)]
		if n <= 0 {
			continue
		}

		expected := s.expected[string(rt)]

		details := fmt.Sprintf("%d of %d %s statuses were not reported in time", n, expected, rt)
		if explained {
			details += fmt.Sprintf("; only %d of %d cluster nodes are available", s.availableNodes, s.conn.Clients())
		}

		statuses = append(statuses, models.ResourceStatus{
			ResourceType:  rt,
			Status:        models.StatusUnknown,
			StatusDetails: details,
			InStateSince:  &now,
		})

		missingResources = append(missingResources, models.MissingResource{
			ResourceType:               rt,
			Expected:                   expected,
			Missing:                    n,
			ExplainedByClusterCapacity: explained,
		})
	}

	resp := status.Response(s.conn.ID, s.conn.ConnectionStatus, statuses)
	resp.MissingResources = missingResources

	return resp, nil
}
