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

import "time"

// ResourceType is the kind of worker reporting a status.
type ResourceType string

const (
	ResourceClient    ResourceType = "client"
	ResourceSource    ResourceType = "source"
	ResourceTarget    ResourceType = "target"
	ResourceSSHTunnel ResourceType = "ssh"
)

// ResourceTypes returns every resource type in reporting order.
func ResourceTypes() []ResourceType {
	return []ResourceType{ResourceClient, ResourceSource, ResourceTarget, ResourceSSHTunnel}
}

type ConnectivityStatus string

const (
	StatusOpen          ConnectivityStatus = "open"
	StatusClosed        ConnectivityStatus = "closed"
	StatusFailed        ConnectivityStatus = "failed"
	StatusMisconfigured ConnectivityStatus = "misconfigured"
	StatusUnknown       ConnectivityStatus = "unknown"
)

type RecoveryStatus string

const (
	RecoverySucceeded           RecoveryStatus = "succeeded"
	RecoveryOngoing             RecoveryStatus = "ongoing"
	RecoveryBackOffLimitReached RecoveryStatus = "backOffLimitReached"
	RecoveryUnknown             RecoveryStatus = "unknown"
)

// ResourceStatus is the state of one client, source, target or tunnel.
type ResourceStatus struct {
	ResourceType   ResourceType       `json:"type"`
	Client         string             `json:"client"`
	Address        string             `json:"address,omitempty"`
	Status         ConnectivityStatus `json:"status"`
	RecoveryStatus RecoveryStatus     `json:"recoveryStatus,omitempty"`
	StatusDetails  string             `json:"statusDetails,omitempty"`
	InStateSince   *time.Time         `json:"inStateSince,omitempty"`
}

// MissingResource annotates a status response that completed without every
// expected report.
type MissingResource struct {
	ResourceType               ResourceType `json:"type"`
	Expected                   int          `json:"expected"`
	Missing                    int          `json:"missing"`
	ExplainedByClusterCapacity bool         `json:"explainedByClusterCapacity"`
}
