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
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/carverauto/connectivity/pkg/counter"
	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/status"
)

var errResponderStarted = errors.New("responder already started")

// Responder answers the metrics and status queries of the connections whose
// clients run on this node.
type Responder struct {
	nc       *nats.Conn
	subjects Subjects
	registry *counter.Registry
	board    *status.Board
	nodeID   string
	served   *xsync.MapOf[string, struct{}]
	logger   logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

func NewResponder(nc *nats.Conn, subjects Subjects, registry *counter.Registry, board *status.Board,
	nodeID string, log logger.Logger) *Responder {
	return &Responder{
		nc:       nc,
		subjects: subjects,
		registry: registry,
		board:    board,
		nodeID:   nodeID,
		served:   xsync.NewMapOf[string, struct{}](),
		logger:   log.WithComponent("responder").WithFields(map[string]interface{}{"node_id": nodeID}),
	}
}

// Serve makes the node answer queries of a connection.
func (r *Responder) Serve(connectionID string) {
	r.served.Store(connectionID, struct{}{})
}

// Unserve stops answering queries of a connection.
func (r *Responder) Unserve(connectionID string) {
	r.served.Delete(connectionID)
}

// Serves reports whether the node answers queries of a connection.
func (r *Responder) Serves(connectionID string) bool {
	_, ok := r.served.Load(connectionID)

	return ok
}

// Start subscribes to the query subjects of every connection.
func (r *Responder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.subs) > 0 {
		return errResponderStarted
	}

	handlers := map[string]func(connectionID string) any{
		r.subjects.AllMetrics(): func(connectionID string) any {
			return r.registry.Snapshot(connectionID, r.nodeID)
		},
		r.subjects.AllStatus(): func(connectionID string) any {
			return r.board.Report(connectionID, r.nodeID)
		},
	}

	for subject, answer := range handlers {
		sub, err := r.nc.Subscribe(subject, r.handler(answer))
		if err != nil {
			r.unsubscribeLocked()

			return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
		}

		r.subs = append(r.subs, sub)
	}

	r.logger.Info().Int("subscriptions", len(r.subs)).Msg("Responder started")

	return nil
}

func (r *Responder) handler(answer func(connectionID string) any) nats.MsgHandler {
	return func(msg *nats.Msg) {
		connectionID, err := r.subjects.ConnectionID(msg.Subject)
		if err != nil {
			r.logger.Debug().Err(err).Msg("Ignoring query")

			return
		}

		if !r.Serves(connectionID) || msg.Reply == "" {
			return
		}

		payload, err := json.Marshal(answer(connectionID))
		if err != nil {
			r.logger.Error().Err(err).Str("connection_id", connectionID).Msg("Failed to marshal query response")

			return
		}

		if err := msg.Respond(payload); err != nil {
			r.logger.Warn().Err(err).Str("connection_id", connectionID).Msg("Failed to respond to query")
		}
	}
}

// Stop drains the query subscriptions.
func (r *Responder) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.unsubscribeLocked()

	r.logger.Info().Msg("Responder stopped")
}

func (r *Responder) unsubscribeLocked() {
	for _, sub := range r.subs {
		if err := sub.Drain(); err != nil {
			r.logger.Debug().Err(err).Str("subject", sub.Subject).Msg("Failed to drain subscription")
		}
	}

	r.subs = nil
}
