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

package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
)

func entry(rt models.ResourceType, s models.ConnectivityStatus) models.ResourceStatus {
	return models.ResourceStatus{ResourceType: rt, Client: "client-0", Status: s}
}

func TestFuse(t *testing.T) {
	const (
		client = models.ResourceClient
		source = models.ResourceSource
	)

	tests := []struct {
		name    string
		entries []models.ResourceStatus
		want    models.ConnectivityStatus
	}{
		{
			name:    "all open",
			entries: []models.ResourceStatus{entry(source, models.StatusOpen), entry(source, models.StatusOpen), entry(source, models.StatusOpen)},
			want:    models.StatusOpen,
		},
		{
			name:    "failed dominates misconfigured",
			entries: []models.ResourceStatus{entry(source, models.StatusOpen), entry(source, models.StatusFailed), entry(source, models.StatusMisconfigured)},
			want:    models.StatusFailed,
		},
		{
			name:    "misconfigured",
			entries: []models.ResourceStatus{entry(source, models.StatusClosed), entry(source, models.StatusMisconfigured)},
			want:    models.StatusMisconfigured,
		},
		{
			name:    "all closed",
			entries: []models.ResourceStatus{entry(client, models.StatusClosed), entry(client, models.StatusClosed)},
			want:    models.StatusClosed,
		},
		{
			name:    "unknown next to open clients",
			entries: []models.ResourceStatus{entry(client, models.StatusOpen), entry(source, models.StatusUnknown)},
			want:    models.StatusOpen,
		},
		{
			name:    "unknown client",
			entries: []models.ResourceStatus{entry(client, models.StatusOpen), entry(client, models.StatusUnknown)},
			want:    models.StatusUnknown,
		},
		{
			name:    "unknown without clients",
			entries: []models.ResourceStatus{entry(source, models.StatusOpen), entry(source, models.StatusUnknown)},
			want:    models.StatusUnknown,
		},
		{
			name:    "open and closed",
			entries: []models.ResourceStatus{entry(client, models.StatusOpen), entry(client, models.StatusClosed)},
			want:    models.StatusUnknown,
		},
		{
			name:    "unrecognised status counts as unknown",
			entries: []models.ResourceStatus{entry(source, "connecting")},
			want:    models.StatusUnknown,
		},
		{
			name: "empty",
			want: models.StatusUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Fuse(tt.entries))
		})
	}
}

func TestFuseRecovery(t *testing.T) {
	withRecovery := func(rs ...models.RecoveryStatus) []models.ResourceStatus {
		entries := make([]models.ResourceStatus, 0, len(rs))
		for _, r := range rs {
			entries = append(entries, models.ResourceStatus{ResourceType: models.ResourceClient, RecoveryStatus: r})
		}

		return entries
	}

	assert.Equal(t, models.RecoverySucceeded, FuseRecovery(withRecovery(models.RecoverySucceeded, "", models.RecoverySucceeded)))
	assert.Equal(t, models.RecoveryBackOffLimitReached,
		FuseRecovery(withRecovery(models.RecoveryOngoing, models.RecoveryBackOffLimitReached, models.RecoverySucceeded)))
	assert.Equal(t, models.RecoveryOngoing, FuseRecovery(withRecovery(models.RecoverySucceeded, models.RecoveryOngoing)))
	assert.Equal(t, models.RecoveryUnknown, FuseRecovery(withRecovery(models.RecoverySucceeded, models.RecoveryUnknown)))
	assert.Equal(t, models.RecoveryUnknown, FuseRecovery(withRecovery("")))
}

func TestConnectedSince(t *testing.T) {
	early := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	late := early.Add(time.Hour)
	earliest := early.Add(-time.Hour)

	entries := []models.ResourceStatus{
		{ResourceType: models.ResourceClient, Status: models.StatusOpen, InStateSince: &late},
		{ResourceType: models.ResourceClient, Status: models.StatusOpen, InStateSince: &early},
		{ResourceType: models.ResourceClient, Status: models.StatusClosed, InStateSince: &earliest},
		{ResourceType: models.ResourceSource, Status: models.StatusOpen, InStateSince: &earliest},
	}

	since := ConnectedSince(entries)
	require.NotNil(t, since)
	assert.Equal(t, early, *since)

	assert.Nil(t, ConnectedSince(entries[2:]))
}

func TestResponse(t *testing.T) {
	entries := []models.ResourceStatus{
		{ResourceType: models.ResourceSource, Client: "b", Address: "events", Status: models.StatusOpen},
		{ResourceType: models.ResourceClient, Client: "b", Status: models.StatusOpen, RecoveryStatus: models.RecoverySucceeded},
		{ResourceType: models.ResourceClient, Client: "a", Status: models.StatusOpen, RecoveryStatus: models.RecoverySucceeded},
		{ResourceType: models.ResourceSource, Client: "a", Address: "events", Status: models.StatusUnknown},
		{ResourceType: models.ResourceTarget, Client: "a", Address: "commands", Status: models.StatusOpen},
	}

	resp := Response("conn-1", models.StatusOpen, entries)

	assert.Equal(t, models.StatusOpen, resp.ConnectionStatus)
	assert.Equal(t, models.StatusOpen, resp.LiveStatus)
	assert.Equal(t, models.RecoverySucceeded, resp.RecoveryStatus)
	require.Len(t, resp.ClientStatus, 2)
	assert.Equal(t, "a", resp.ClientStatus[0].Client)
	assert.Len(t, resp.SourceStatus, 2)
	assert.Len(t, resp.TargetStatus, 1)
	assert.NotNil(t, resp.SSHTunnelStatus)
	assert.Empty(t, resp.SSHTunnelStatus)

	entries[4].Status = models.StatusFailed
	assert.Equal(t, models.StatusFailed, Response("conn-1", models.StatusOpen, entries).LiveStatus)
}

func TestBoard(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	board := NewBoard(logger.NewTestLogger(), WithBoardClock(func() time.Time { return now }))

	first := board.Update("conn-1", models.ResourceStatus{ResourceType: models.ResourceClient, Client: "c0", Status: models.StatusOpen})
	require.NotNil(t, first.InStateSince)
	assert.Equal(t, now, *first.InStateSince)

	now = now.Add(time.Minute)
	same := board.Update("conn-1", models.ResourceStatus{ResourceType: models.ResourceClient, Client: "c0", Status: models.StatusOpen})
	assert.Equal(t, *first.InStateSince, *same.InStateSince)

	changed := board.Update("conn-1", models.ResourceStatus{ResourceType: models.ResourceClient, Client: "c0", Status: models.StatusFailed})
	assert.Equal(t, now, *changed.InStateSince)

	board.Update("conn-1", models.ResourceStatus{ResourceType: models.ResourceSource, Client: "c0", Address: "a", Status: models.StatusOpen})
	board.Update("conn-2", models.ResourceStatus{ResourceType: models.ResourceClient, Client: "c0", Status: models.StatusOpen})

	statuses := board.Statuses("conn-1")
	require.Len(t, statuses, 2)
	assert.Equal(t, models.ResourceClient, statuses[0].ResourceType)
	assert.Equal(t, models.StatusFailed, statuses[0].Status)

	report := board.Report("conn-1", "node-a")
	assert.Equal(t, "node-a", report.SenderID())
	assert.Len(t, report.Statuses, 2)

	assert.Equal(t, 2, board.Remove("conn-1"))
	assert.Empty(t, board.Statuses("conn-1"))
	assert.Len(t, board.Statuses("conn-2"), 1)
}

func TestBoardChangeHook(t *testing.T) {
	var changes []models.ResourceStatusChange

	board := NewBoard(nil, WithChangeHook(func(c models.ResourceStatusChange) {
		changes = append(changes, c)
	}))

	source := models.ResourceStatus{ResourceType: models.ResourceSource, Client: "c0", Address: "a", Status: models.StatusOpen}
	board.Update("conn-1", source)
	board.Update("conn-1", source)

	source.Status = models.StatusFailed
	source.StatusDetails = "broker unreachable"
	board.Update("conn-1", source)

	require.Len(t, changes, 2)
	assert.Empty(t, changes[0].PreviousStatus)
	assert.Equal(t, models.StatusOpen, changes[1].PreviousStatus)
	assert.Equal(t, models.StatusFailed, changes[1].Status)
	assert.Equal(t, "broker unreachable", changes[1].StatusDetails)
	assert.Equal(t, "a", changes[1].Address)
}
