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
	"errors"
	"fmt"
	"time"
)

// ErrConnectionTimeout is matched by every *ConnectionTimeoutError.
var ErrConnectionTimeout = errors.New("connection did not respond in time")

// RetrieveConnectionMetrics asks every client of a connection for its metrics.
type RetrieveConnectionMetrics struct {
	ConnectionID  string `json:"connectionId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// RetrieveConnectionMetricsResponse is both the partial per-client answer and
// the merged final answer.
type RetrieveConnectionMetricsResponse struct {
	ConnectionID      string            `json:"connectionId"`
	Sender            string            `json:"sender,omitempty"`
	ConnectionMetrics ConnectionMetrics `json:"connectionMetrics"`
	SourceMetrics     SourceMetrics     `json:"sourceMetrics"`
	TargetMetrics     TargetMetrics     `json:"targetMetrics"`
	MissingResponses  int               `json:"missingResponses,omitempty"`
}

func (r RetrieveConnectionMetricsResponse) SenderID() string { return r.Sender }

// Incomplete reports whether the response was completed after a timeout.
func (r RetrieveConnectionMetricsResponse) Incomplete() bool { return r.MissingResponses > 0 }

// RetrieveConnectionStatus asks every worker of a connection for its status.
type RetrieveConnectionStatus struct {
	ConnectionID  string `json:"connectionId"`
	CorrelationID string `json:"correlationId,omitempty"`
}

// ResourceStatusReport is the partial status answer of one node or client.
type ResourceStatusReport struct {
	ConnectionID string           `json:"connectionId"`
	Sender       string           `json:"sender"`
	Statuses     []ResourceStatus `json:"statuses"`
}

func (r ResourceStatusReport) SenderID() string { return r.Sender }

type RetrieveConnectionStatusResponse struct {
	ConnectionID     string             `json:"connectionId"`
	ConnectionStatus ConnectivityStatus `json:"connectionStatus"`
	LiveStatus       ConnectivityStatus `json:"liveStatus"`
	RecoveryStatus   RecoveryStatus     `json:"recoveryStatus"`
	ConnectedSince   *time.Time         `json:"connectedSince,omitempty"`
	ClientStatus     []ResourceStatus   `json:"clientStatus"`
	SourceStatus     []ResourceStatus   `json:"sourceStatus"`
	TargetStatus     []ResourceStatus   `json:"targetStatus"`
	SSHTunnelStatus  []ResourceStatus   `json:"sshTunnelStatus"`
	MissingResources []MissingResource  `json:"missingResources,omitempty"`
}

// ConnectionTimeoutError is returned when no partial response arrived before
// the aggregation deadline.
type ConnectionTimeoutError struct {
	ConnectionID string
	Timeout      time.Duration
}

func (e *ConnectionTimeoutError) Error() string {
	return fmt.Sprintf("connection %s did not respond within %s", e.ConnectionID, e.Timeout)
}

func (*ConnectionTimeoutError) Is(target error) bool {
	return target == ErrConnectionTimeout
}
