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

// Package models pkg/models/connection.go
package models

// ConnectionType identifies the protocol family of a managed connection.
type ConnectionType string

const (
	ConnectionTypeAMQP091  ConnectionType = "amqp-091"
	ConnectionTypeAMQP10   ConnectionType = "amqp-10"
	ConnectionTypeMQTT     ConnectionType = "mqtt"
	ConnectionTypeMQTT5    ConnectionType = "mqtt-5"
	ConnectionTypeKafka    ConnectionType = "kafka"
	ConnectionTypeHTTPPush ConnectionType = "http-push"
	ConnectionTypeHono     ConnectionType = "hono"
)

// IsMQTT reports whether the type uses MQTT consumer semantics, where one
// consumer serves all addresses of a source.
func (t ConnectionType) IsMQTT() bool {
	return t == ConnectionTypeMQTT || t == ConnectionTypeMQTT5
}

// Source is an inbound slice of a connection.
type Source struct {
	Addresses     []string `json:"addresses"`
	ConsumerCount int      `json:"consumerCount,omitempty"`
}

// Consumers returns the configured consumer count, at least one.
func (s Source) Consumers() int {
	if s.ConsumerCount <= 0 {
		return 1
	}

	return s.ConsumerCount
}

// Target is an outbound slice of a connection.
type Target struct {
	Address string `json:"address"`
}

type SSHTunnel struct {
	Enabled bool   `json:"enabled"`
	URI     string `json:"uri,omitempty"`
}

// Connection is the topology of a managed connection as far as metrics and
// status collection are concerned.
type Connection struct {
	ID               string             `json:"id"`
	Type             ConnectionType     `json:"connectionType"`
	ConnectionStatus ConnectivityStatus `json:"connectionStatus"`
	ClientCount      int                `json:"clientCount,omitempty"`
	Sources          []Source           `json:"sources,omitempty"`
	Targets          []Target           `json:"targets,omitempty"`
	SSHTunnel        *SSHTunnel         `json:"sshTunnel,omitempty"`
}

// Clients returns the number of client actors, at least one.
func (c *Connection) Clients() int {
	if c.ClientCount <= 0 {
		return 1
	}

	return c.ClientCount
}

// SourceAddresses returns every distinct source address in declaration order.
func (c *Connection) SourceAddresses() []string {
	seen := make(map[string]struct{})
	addresses := make([]string, 0)

	for _, source := range c.Sources {
		for _, address := range source.Addresses {
			if _, ok := seen[address]; ok {
				continue
			}

			seen[address] = struct{}{}
			addresses = append(addresses, address)
		}
	}

	return addresses
}

// TargetAddresses returns every distinct target address in declaration order.
func (c *Connection) TargetAddresses() []string {
	seen := make(map[string]struct{})
	addresses := make([]string, 0, len(c.Targets))

	for _, target := range c.Targets {
		if _, ok := seen[target.Address]; ok {
			continue
		}

		seen[target.Address] = struct{}{}
		addresses = append(addresses, target.Address)
	}

	return addresses
}

// SSHTunnelEnabled reports whether the connection runs through an SSH tunnel.
func (c *Connection) SSHTunnelEnabled() bool {
	return c.SSHTunnel != nil && c.SSHTunnel.Enabled
}

// ThrottlingConfig is the per connection type consumer throttling budget.
type ThrottlingConfig struct {
	Interval    Duration `json:"interval"`
	Limit       int      `json:"limit"`
	MaxInFlight int      `json:"max_in_flight"`
	Tolerance   float64  `json:"throttling_detection_tolerance"`
}

// Enabled reports whether a throttling budget is configured.
func (t ThrottlingConfig) Enabled() bool {
	return t.Limit > 0 && t.Interval > 0
}
