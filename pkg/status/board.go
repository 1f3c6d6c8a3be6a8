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
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
)

type boardKey struct {
	connectionID string
	resourceType models.ResourceType
	client       string
	address      string
}

// BoardOption customises a Board.
type BoardOption func(*Board)

// WithBoardClock overrides the clock used to stamp state changes.
func WithBoardClock(clock func() time.Time) BoardOption {
	return func(b *Board) {
		b.now = clock
	}
}

// WithChangeHook is called after every status transition, including the
// first status of a resource.
func WithChangeHook(hook func(models.ResourceStatusChange)) BoardOption {
	return func(b *Board) {
		b.onChange = hook
	}
}

// Board keeps the latest status of every resource run by this node. Workers
// update it, the node's query responder reads it.
type Board struct {
	entries  *xsync.MapOf[boardKey, models.ResourceStatus]
	now      func() time.Time
	onChange func(models.ResourceStatusChange)
	logger   logger.Logger
}

func NewBoard(log logger.Logger, opts ...BoardOption) *Board {
	if log == nil {
		log = logger.NewTestLogger()
	}

	b := &Board{
		entries: xsync.NewMapOf[boardKey, models.ResourceStatus](),
		now:     time.Now,
		logger:  log.WithComponent("status-board"),
	}

	for _, opt := range opts {
		opt(b)
	}

	return b
}

// Update stores the status of one resource. InStateSince is kept while the
// status does not change and stamped with the current time when it does,
// unless the update carries its own.
func (b *Board) Update(connectionID string, s models.ResourceStatus) models.ResourceStatus {
	key := boardKey{
		connectionID: connectionID,
		resourceType: s.ResourceType,
		client:       s.Client,
		address:      s.Address,
	}

	var (
		previous models.ConnectivityStatus
		changed  bool
	)

	stored, _ := b.entries.Compute(key, func(old models.ResourceStatus, loaded bool) (models.ResourceStatus, bool) {
		changed = !loaded || old.Status != s.Status
		if loaded {
			previous = old.Status
		}

		if s.InStateSince == nil {
			if !changed && old.InStateSince != nil {
				s.InStateSince = old.InStateSince
			} else {
				now := b.now().UTC()
				s.InStateSince = &now
			}
		}

		return s, false
	})

	if changed {
		b.logger.Debug().
			Str("connection_id", connectionID).
			Str("resource_type", string(stored.ResourceType)).
			Str("client", stored.Client).
			Str("from", string(previous)).
			Str("to", string(stored.Status)).
			Msg("Resource status changed")

		if b.onChange != nil {
			b.onChange(models.ResourceStatusChange{
				ConnectionID:   connectionID,
				ResourceType:   stored.ResourceType,
				Client:         stored.Client,
				Address:        stored.Address,
				PreviousStatus: previous,
				Status:         stored.Status,
				StatusDetails:  stored.StatusDetails,
				Timestamp:      *stored.InStateSince,
			})
		}
	}

	return stored
}

// Statuses returns the statuses of a connection sorted by type, client and
// address.
func (b *Board) Statuses(connectionID string) []models.ResourceStatus {
	statuses := make([]models.ResourceStatus, 0)

	b.entries.Range(func(key boardKey, s models.ResourceStatus) bool {
		if key.connectionID == connectionID {
			statuses = append(statuses, s)
		}

		return true
	})

	SortStatuses(statuses)

	return statuses
}

// Report is the partial status answer of this node.
func (b *Board) Report(connectionID, sender string) models.ResourceStatusReport {
	return models.ResourceStatusReport{
		ConnectionID: connectionID,
		Sender:       sender,
		Statuses:     b.Statuses(connectionID),
	}
}

// Remove drops every status of a connection.
func (b *Board) Remove(connectionID string) int {
	removed := 0

	b.entries.Range(func(key boardKey, _ models.ResourceStatus) bool {
		if key.connectionID == connectionID {
			b.entries.Delete(key)
			removed++
		}

		return true
	})

	return removed
}
