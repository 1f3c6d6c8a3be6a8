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

package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/connectivity/pkg/counter"
	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/natsutil"
	"github.com/carverauto/connectivity/pkg/telemetry"
	"github.com/carverauto/connectivity/pkg/window"
)

var (
	errInvalidTimeout     = errors.New("aggregator_timeout must be positive")
	errInvalidClusterSize = errors.New("cluster_size must not be negative")
	errConnectionID       = errors.New("connection id is required")
	errDuplicateConn      = errors.New("duplicate connection")
	errUnknownMetricType  = errors.New("unknown metric type")
)

const defaultAggregatorTimeout = 5 * time.Second

// NodeConfig is the configuration of a connectivity node.
type NodeConfig struct {
	NodeID            string                                            `json:"node_id"`
	Logging           *logger.Config                                    `json:"logging,omitempty"`
	NATS              models.NATSConfig                                 `json:"nats"`
	Telemetry         *telemetry.Config                                 `json:"telemetry,omitempty"`
	Throttling        map[models.ConnectionType]models.ThrottlingConfig `json:"throttling,omitempty"`
	Windows           map[models.MetricType]counter.WindowConfig        `json:"windows,omitempty"`
	AggregatorTimeout models.Duration                                   `json:"aggregator_timeout,omitempty"`
	ClusterSize       int                                               `json:"cluster_size,omitempty"`
	Connections       []models.Connection                               `json:"connections,omitempty"`
}

var _ Validator = (*NodeConfig)(nil)

// Validate fills in defaults and checks the configuration.
func (c *NodeConfig) Validate() error {
	if c.NodeID == "" {
		c.NodeID = uuid.New().String()
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = natsutil.DefaultSubjectPrefix
	}

	if err := c.NATS.Validate(); err != nil {
		return fmt.Errorf("nats: %w", err)
	}

	if c.AggregatorTimeout == 0 {
		c.AggregatorTimeout = models.Duration(defaultAggregatorTimeout)
	}

	if c.AggregatorTimeout < 0 {
		return errInvalidTimeout
	}

	if c.ClusterSize < 0 {
		return errInvalidClusterSize
	}

	for connectionType, throttling := range c.Throttling {
		if err := counter.ValidateThrottling(throttling); err != nil {
			return fmt.Errorf("throttling %s: %w", connectionType, err)
		}
	}

	if err := c.validateWindows(); err != nil {
		return err
	}

	return c.validateConnections()
}

func (c *NodeConfig) validateWindows() error {
	known := make(map[models.MetricType]struct{})
	for _, metricType := range models.AllMetricTypes() {
		known[metricType] = struct{}{}
	}

	for metricType, windows := range c.Windows {
		if _, ok := known[metricType]; !ok {
			return fmt.Errorf("windows: %w: %s", errUnknownMetricType, metricType)
		}

		for _, set := range [][]window.MeasurementWindow{windows.Recording, windows.Reporting} {
			for _, w := range set {
				if err := w.Validate(); err != nil {
					return fmt.Errorf("windows %s: %w", metricType, err)
				}
			}
		}
	}

	return nil
}

func (c *NodeConfig) validateConnections() error {
	seen := make(map[string]struct{}, len(c.Connections))

	for i := range c.Connections {
		id := c.Connections[i].ID
		if id == "" {
			return fmt.Errorf("connections[%d]: %w", i, errConnectionID)
		}

		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: %s", errDuplicateConn, id)
		}

		seen[id] = struct{}{}
	}

	return nil
}

// RegistryConfig is the counter registry configuration.
func (c *NodeConfig) RegistryConfig() counter.RegistryConfig {
	return counter.RegistryConfig{
		Throttling: c.Throttling,
		Windows:    c.Windows,
	}
}

// LoggerConfig returns the logging configuration, defaulting to the
// environment.
func (c *NodeConfig) LoggerConfig() *logger.Config {
	if c.Logging == nil {
		return logger.DefaultConfig()
	}

	return c.Logging
}
