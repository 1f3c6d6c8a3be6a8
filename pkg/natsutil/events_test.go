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
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/status"
)

var errTestFixture = errors.New("fixture error")

func TestEnsureSubjectList(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		subjects []string
		subject  string
		want     []string
	}{
		{
			name:     "adds subject when list empty",
			subjects: nil,
			subject:  "connectivity.events.>",
			want:     []string{"connectivity.events.>"},
		},
		{
			name:     "keeps list when greater wildcard matches",
			subjects: []string{"connectivity.>"},
			subject:  "connectivity.events.>",
			want:     []string{"connectivity.>"},
		},
		{
			name:     "appends when unmatched",
			subjects: []string{"audit.*"},
			subject:  "connectivity.events.>",
			want:     []string{"audit.*", "connectivity.events.>"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, ensureSubjectList(append([]string(nil), tc.subjects...), tc.subject))
		})
	}
}

func TestSubjectMatches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pattern  string
		subject  string
		expected bool
	}{
		{"exact match", "connectivity.c1.metrics", "connectivity.c1.metrics", true},
		{"single wildcard", "connectivity.*.metrics", "connectivity.c1.metrics", true},
		{"greater wildcard", "connectivity.>", "connectivity.events.c1.status", true},
		{"no match length", "connectivity.*", "connectivity.c1.metrics", false},
		{"no match tokens", "audit.*.metrics", "connectivity.c1.metrics", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, subjectMatches(tc.pattern, tc.subject))
		})
	}
}

func TestIsStreamMissingErr(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"jetstream no stream response", jetstream.ErrNoStreamResponse, true},
		{"jetstream stream not found", jetstream.ErrStreamNotFound, true},
		{"nats no stream response", nats.ErrNoStreamResponse, true},
		{"nats stream not found", nats.ErrStreamNotFound, true},
		{"nats no responders", nats.ErrNoResponders, true},
		{"other error", errTestFixture, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.expected, isStreamMissingErr(tc.err))
		})
	}
}

func TestSubjects(t *testing.T) {
	subjects := NewSubjects("")

	assert.Equal(t, "connectivity.conn-1.metrics", subjects.Metrics("conn-1"))
	assert.Equal(t, "connectivity.conn-1.status", subjects.Status("conn-1"))
	assert.Equal(t, "connectivity.events.conn-1.status", subjects.StatusEvent("conn-1"))
	assert.True(t, subjectMatches(subjects.AllMetrics(), subjects.Metrics("conn-1")))
	assert.True(t, subjectMatches(subjects.AllStatus(), subjects.Status("conn-1")))
	assert.True(t, subjectMatches(subjects.AllEvents(), subjects.StatusEvent("conn-1")))
	assert.False(t, subjectMatches(subjects.AllMetrics(), subjects.Status("conn-1")))

	id, err := subjects.ConnectionID("connectivity.conn-1.status")
	require.NoError(t, err)
	assert.Equal(t, "conn-1", id)

	for _, subject := range []string{"other.conn-1.status", "connectivity.conn-1.events", "connectivity..metrics", "connectivity.a.b.metrics"} {
		_, err := subjects.ConnectionID(subject)
		require.ErrorIs(t, err, errInvalidSubject, subject)
	}

	assert.Equal(t, "tenant-a.conn-1.metrics", NewSubjects("tenant-a.").Metrics("conn-1"))
}

func TestEventPublisher(t *testing.T) {
	_, nc := startTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg := &models.EventsConfig{Enabled: true}
	require.NoError(t, cfg.Validate())

	subjects := NewSubjects("")

	publisher, err := CreateEventPublisher(ctx, nc, subjects, cfg, "node-a", logger.NewTestLogger())
	require.NoError(t, err)

	// a second publisher finds the existing stream
	_, err = CreateEventPublisher(ctx, nc, subjects, cfg, "node-b", logger.NewTestLogger())
	require.NoError(t, err)

	board := status.NewBoard(logger.NewTestLogger(), status.WithChangeHook(publisher.Hook()))
	board.Update("conn-1", models.ResourceStatus{
		ResourceType:  models.ResourceSource,
		Client:        "client-0",
		Address:       "telemetry",
		Status:        models.StatusFailed,
		StatusDetails: "broker unreachable",
	})

	require.NoError(t, publisher.Flush(ctx))

	require.NoError(t, publisher.PublishStatusChange(ctx, models.ResourceStatusChange{
		ConnectionID: "conn-1",
		ResourceType: models.ResourceClient,
		Client:       "client-0",
		Status:       models.StatusOpen,
		Timestamp:    time.Now(),
	}))

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	stream, err := js.Stream(ctx, cfg.StreamName)
	require.NoError(t, err)

	info, err := stream.Info(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), info.State.Msgs)

	raw, err := stream.GetMsg(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, subjects.StatusEvent("conn-1"), raw.Subject)

	var event struct {
		Type   string                      `json:"type"`
		Source string                      `json:"source"`
		Data   models.ResourceStatusChange `json:"data"`
	}

	require.NoError(t, json.Unmarshal(raw.Data, &event))
	assert.Equal(t, statusEventType, event.Type)
	assert.Equal(t, statusEventSource, event.Source)
	assert.Equal(t, "node-a", event.Data.NodeID)
	assert.Equal(t, models.StatusFailed, event.Data.Status)
	assert.Equal(t, "broker unreachable", event.Data.StatusDetails)
}
