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

// Package status derives the overall status of a connection from the
// statuses reported by its clients, sources, targets and tunnels.
package status

import (
	"sort"
	"time"

	"github.com/carverauto/connectivity/pkg/models"
)

// Fuse derives one live status from a list of resource statuses.
// An empty list is UNKNOWN.
func Fuse(entries []models.ResourceStatus) models.ConnectivityStatus {
	if len(entries) == 0 {
		return models.StatusUnknown
	}

	counts := make(map[models.ConnectivityStatus]int)

	for _, e := range entries {
		counts[normalize(e.Status)]++
	}

	switch {
	case counts[models.StatusOpen] == len(entries):
		return models.StatusOpen
	case counts[models.StatusFailed] > 0:
		return models.StatusFailed
	case counts[models.StatusMisconfigured] > 0:
		return models.StatusMisconfigured
	case counts[models.StatusClosed] == len(entries):
		return models.StatusClosed
	case counts[models.StatusOpen]+counts[models.StatusUnknown] == len(entries) && clientsOpen(entries):
		return models.StatusOpen
	default:
		return models.StatusUnknown
	}
}

func normalize(s models.ConnectivityStatus) models.ConnectivityStatus {
	switch s {
	case models.StatusOpen, models.StatusClosed, models.StatusFailed, models.StatusMisconfigured:
		return s
	default:
		return models.StatusUnknown
	}
}

// clientsOpen reports whether there is at least one client entry and every
// client entry is OPEN.
func clientsOpen(entries []models.ResourceStatus) bool {
	clients := 0

	for _, e := range entries {
		if e.ResourceType != models.ResourceClient {
			continue
		}

		if e.Status != models.StatusOpen {
			return false
		}

		clients++
	}

	return clients > 0
}

// FuseRecovery derives one recovery status. Entries without a recovery
// status are ignored.
func FuseRecovery(entries []models.ResourceStatus) models.RecoveryStatus {
	present, succeeded := 0, 0
	backOff, ongoing := false, false

	for _, e := range entries {
		switch e.RecoveryStatus {
		case "":
			continue
		case models.RecoverySucceeded:
			succeeded++
		case models.RecoveryBackOffLimitReached:
			backOff = true
		case models.RecoveryOngoing:
			ongoing = true
		case models.RecoveryUnknown:
		}

		present++
	}

	switch {
	case present > 0 && succeeded == present:
		return models.RecoverySucceeded
	case backOff:
		return models.RecoveryBackOffLimitReached
	case ongoing:
		return models.RecoveryOngoing
	default:
		return models.RecoveryUnknown
	}
}

// ConnectedSince is the earliest InStateSince of the OPEN client entries.
func ConnectedSince(entries []models.ResourceStatus) *time.Time {
	var earliest *time.Time

	for _, e := range entries {
		if e.ResourceType != models.ResourceClient || e.Status != models.StatusOpen || e.InStateSince == nil {
			continue
		}

		if earliest == nil || e.InStateSince.Before(*earliest) {
			since := *e.InStateSince
			earliest = &since
		}
	}

	return earliest
}

// Groups partitions entries by resource type, each group sorted by client
// and address. Unknown resource types are dropped.
func Groups(entries []models.ResourceStatus) map[models.ResourceType][]models.ResourceStatus {
	groups := make(map[models.ResourceType][]models.ResourceStatus, len(models.ResourceTypes()))
	for _, rt := range models.ResourceTypes() {
		groups[rt] = make([]models.ResourceStatus, 0)
	}

	for _, e := range entries {
		if _, ok := groups[e.ResourceType]; ok {
			groups[e.ResourceType] = append(groups[e.ResourceType], e)
		}
	}

	for _, group := range groups {
		SortStatuses(group)
	}

	return groups
}

// SortStatuses orders statuses by resource type, client and address.
func SortStatuses(entries []models.ResourceStatus) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if a.ResourceType != b.ResourceType {
			return a.ResourceType < b.ResourceType
		}

		if a.Client != b.Client {
			return a.Client < b.Client
		}

		return a.Address < b.Address
	})
}

// Live fuses every non-empty group on its own and then the group results
// once more into one status.
func Live(groups map[models.ResourceType][]models.ResourceStatus) models.ConnectivityStatus {
	results := make([]models.ResourceStatus, 0, len(groups))

	for _, rt := range models.ResourceTypes() {
		group := groups[rt]
		if len(group) == 0 {
			continue
		}

		results = append(results, models.ResourceStatus{ResourceType: rt, Status: Fuse(group)})
	}

	return Fuse(results)
}

// Response builds the status response of a connection from the collected
// resource statuses.
func Response(connectionID string, configured models.ConnectivityStatus,
	entries []models.ResourceStatus) models.RetrieveConnectionStatusResponse {
	groups := Groups(entries)

	return models.RetrieveConnectionStatusResponse{
		ConnectionID:     connectionID,
		ConnectionStatus: configured,
		LiveStatus:       Live(groups),
		RecoveryStatus:   FuseRecovery(entries),
		ConnectedSince:   ConnectedSince(entries),
		ClientStatus:     groups[models.ResourceClient],
		SourceStatus:     groups[models.ResourceSource],
		TargetStatus:     groups[models.ResourceTarget],
		SSHTunnelStatus:  groups[models.ResourceSSHTunnel],
	}
}
