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
	"fmt"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
)

const (
	statusEventType   = "com.carverauto.connectivity.resource.status"
	statusEventSource = "connectivity/node"
)

// EventPublisher provides methods for publishing CloudEvents to NATS JetStream.
type EventPublisher struct {
	js       jetstream.JetStream
	stream   string
	subjects Subjects
	nodeID   string
	logger   logger.Logger
}

// CreateEventPublisher ensures the events stream exists and returns a
// publisher bound to it.
func CreateEventPublisher(ctx context.Context, nc *nats.Conn, subjects Subjects, cfg *models.EventsConfig,
	nodeID string, log logger.Logger) (*EventPublisher, error) {
	js, err := jetstream.New(nc, jetstream.WithPublishAsyncErrHandler(func(_ jetstream.JetStream, msg *nats.Msg, err error) {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("Status change event was not acknowledged")
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	streamSubjects := ensureSubjectList(append([]string(nil), cfg.Subjects...), subjects.AllEvents())

	_, err = js.Stream(ctx, cfg.StreamName)
	if err != nil && !isStreamMissingErr(err) {
		return nil, fmt.Errorf("failed to look up stream %s: %w", cfg.StreamName, err)
	}

	if err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     cfg.StreamName,
			Subjects: streamSubjects,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create or get stream %s: %w", cfg.StreamName, err)
		}

		log.Info().Str("stream", cfg.StreamName).Strs("subjects", streamSubjects).Msg("Created NATS JetStream stream")
	}

	return &EventPublisher{
		js:       js,
		stream:   cfg.StreamName,
		subjects: subjects,
		nodeID:   nodeID,
		logger:   log.WithComponent("event-publisher"),
	}, nil
}

func isStreamMissingErr(err error) bool {
	return errors.Is(err, jetstream.ErrStreamNotFound) ||
		errors.Is(err, jetstream.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrStreamNotFound) ||
		errors.Is(err, nats.ErrNoStreamResponse) ||
		errors.Is(err, nats.ErrNoResponders)
}

func (p *EventPublisher) encode(change models.ResourceStatusChange) (models.CloudEvent, []byte, error) {
	change.NodeID = p.nodeID

	ts := change.Timestamp
	event := models.CloudEvent{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          statusEventSource,
		Type:            statusEventType,
		DataContentType: "application/json",
		Subject:         p.subjects.StatusEvent(change.ConnectionID),
		Time:            &ts,
		Data:            change,
	}

	eventBytes, err := json.Marshal(event)
	if err != nil {
		return event, nil, fmt.Errorf("failed to marshal status change event: %w", err)
	}

	return event, eventBytes, nil
}

// PublishStatusChange publishes a resource status change event and waits
// for the stream acknowledgement.
func (p *EventPublisher) PublishStatusChange(ctx context.Context, change models.ResourceStatusChange) error {
	event, eventBytes, err := p.encode(change)
	if err != nil {
		return err
	}

	ack, err := p.js.Publish(ctx, event.Subject, eventBytes)
	if err != nil {
		return fmt.Errorf("failed to publish status change event: %w", err)
	}

	p.logger.Debug().
		Str("event_id", event.ID).
		Str("subject", event.Subject).
		Uint64("seq", ack.Sequence).
		Msg("Published status change event")

	return nil
}

// Hook adapts the publisher to a status board change hook. Events are
// published asynchronously; failed acknowledgements are logged.
func (p *EventPublisher) Hook() func(models.ResourceStatusChange) {
	return func(change models.ResourceStatusChange) {
		event, eventBytes, err := p.encode(change)
		if err == nil {
			_, err = p.js.PublishAsync(event.Subject, eventBytes)
		}

		if err != nil {
			p.logger.Warn().
				Err(err).
				Str("connection_id", change.ConnectionID).
				Msg("Failed to publish status change event")
		}
	}
}

// Flush waits until every asynchronously published event was acknowledged.
func (p *EventPublisher) Flush(ctx context.Context) error {
	select {
	case <-p.js.PublishAsyncComplete():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flushing status change events: %w", ctx.Err())
	}
}
