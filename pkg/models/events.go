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
	"time"
)

var (
	errNATSURLRequired   = errors.New("nats url is required")
	errIncompleteNATSTLS = errors.New("nats tls requires cert_file, key_file and ca_file")
)

// NATSConfig configures the cluster transport.
type NATSConfig struct {
	URL           string        `json:"url"`
	SubjectPrefix string        `json:"subject_prefix,omitempty"`
	TLS           *TLSConfig    `json:"tls,omitempty"`
	Events        *EventsConfig `json:"events,omitempty"`
}

// TLSConfig holds the file locations for mTLS.
type TLSConfig struct {
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	CAFile     string `json:"ca_file"`
	ServerName string `json:"server_name,omitempty"`
}

// Validate ensures the NATS configuration is valid
func (c *NATSConfig) Validate() error {
	if c.URL == "" {
		return errNATSURLRequired
	}

	if c.TLS != nil && (c.TLS.CertFile == "" || c.TLS.KeyFile == "" || c.TLS.CAFile == "") {
		return errIncompleteNATSTLS
	}

	if c.Events != nil {
		return c.Events.Validate()
	}

	return nil
}

// EventsConfig configures status change event publishing.
type EventsConfig struct {
	Enabled    bool     `json:"enabled"`
	StreamName string   `json:"stream_name"`
	Subjects   []string `json:"subjects"`
}

// Validate fills in defaults for an enabled events configuration.
func (c *EventsConfig) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.StreamName == "" {
		c.StreamName = "CONNECTIVITY_EVENTS"
	}

	return nil
}

// CloudEvent represents a CloudEvents v1.0 compliant event.
type CloudEvent struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	DataContentType string      `json:"datacontenttype"`
	Subject         string      `json:"subject,omitempty"`
	Time            *time.Time  `json:"time,omitempty"`
	Data            interface{} `json:"data,omitempty"`
}

// ResourceStatusChange is the payload of a status change event.
type ResourceStatusChange struct {
	ConnectionID   string             `json:"connectionId"`
	NodeID         string             `json:"nodeId"`
	ResourceType   ResourceType       `json:"type"`
	Client         string             `json:"client"`
	Address        string             `json:"address,omitempty"`
	PreviousStatus ConnectivityStatus `json:"previousStatus,omitempty"`
	Status         ConnectivityStatus `json:"status"`
	StatusDetails  string             `json:"statusDetails,omitempty"`
	Timestamp      time.Time          `json:"timestamp"`
}
