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

// Package aggregator combines the partial answers of many workers into one
// response within a deadline.
package aggregator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/connectivity/pkg/logger"
)

// State of an aggregation.
type State int32

const (
	Waiting State = iota
	Complete
	TimedOut
	Cancelled
)

func (s State) String() string {
	switch s {
	case Waiting:
		return "waiting"
	case Complete:
		return "complete"
	case TimedOut:
		return "timed_out"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Partial is one worker's answer.
type Partial interface {
	SenderID() string
}

// Buckets counts responses per tracked resource kind.
type Buckets map[string]int

// Strategy merges partials of one query kind.
type Strategy[P Partial, R any] interface {
	// Expected is computed once when the engine is built.
	Expected() Buckets
	// Absorb merges p into the accumulator and returns how many expected
	// responses of each bucket it accounts for.
	Absorb(p P) Buckets
	// Result is the answer once every expected response arrived.
	Result() R
	// Degrade is the answer after the deadline. received is the number of
	// partials absorbed, missing the outstanding count of every bucket.
	Degrade(received int, missing Buckets) (R, error)
}

// Engine runs one scatter-gather aggregation. It is single use: build it,
// feed it with Tell and wait for Run to return.
type Engine[P Partial, R any] struct {
	name     string
	strategy Strategy[P, R]
	timeout  time.Duration
	timer    *time.Timer
	inbox    chan any
	done     chan struct{}
	state    atomic.Int32
	stopOnce sync.Once
	logger   logger.Logger

	remaining Buckets
	senders   map[string]struct{}
	received  int
}

// NewEngine builds an engine and starts its deadline.
func NewEngine[P Partial, R any](name string, strategy Strategy[P, R], timeout time.Duration,
	log logger.Logger) *Engine[P, R] {
	if log == nil {
		log = logger.NewTestLogger()
	}

	expected := strategy.Expected()

	remaining := make(Buckets, len(expected))
	total := 0

	for bucket, n := range expected {
		remaining[bucket] = n
		total += max(n, 0)
	}

	return &Engine[P, R]{
		name:      name,
		strategy:  strategy,
		timeout:   timeout,
		timer:     time.NewTimer(timeout),
		inbox:     make(chan any, total+1),
		done:      make(chan struct{}),
		logger:    log.WithComponent("aggregator").WithFields(map[string]interface{}{"aggregator": name}),
		remaining: remaining,
		senders:   make(map[string]struct{}),
	}
}

// Tell delivers a message. It returns false once the aggregation ended;
// a message told while the engine finishes may then be left unread.
func (e *Engine[P, R]) Tell(msg any) bool {
	select {
	case <-e.done:
		return false
	default:
	}

	select {
	case <-e.done:
		return false
	case e.inbox <- msg:
		return e.State() == Waiting
	}
}

func (e *Engine[P, R]) State() State {
	return State(e.state.Load())
}

// Done is closed when the aggregation reached a terminal state.
func (e *Engine[P, R]) Done() <-chan struct{} {
	return e.done
}

// Run processes messages until every expected response arrived, the
// deadline passed or ctx is cancelled.
func (e *Engine[P, R]) Run(ctx context.Context) (R, error) {
	if e.satisfied() {
		e.finish(Complete)

		return e.strategy.Result(), nil
	}

	for {
		select {
		case <-ctx.Done():
			e.finish(Cancelled)

			var zero R

			return zero, fmt.Errorf("aggregator %s: %w", e.name, ctx.Err())
		case <-e.timer.C:
			e.finish(TimedOut)

			e.logger.Warn().
				Int("received", e.received).
				Interface("missing", e.outstanding()).
				Dur("timeout", e.timeout).
				Msg("Aggregation timed out")

			return e.strategy.Degrade(e.received, e.outstanding())
		case msg := <-e.inbox:
			if !e.handle(msg) {
				continue
			}

			e.finish(Complete)

			return e.strategy.Result(), nil
		}
	}
}

// handle absorbs one message and reports whether the aggregation is complete.
func (e *Engine[P, R]) handle(msg any) bool {
	partial, ok := msg.(P)
	if !ok {
		e.logger.Warn().
			Str("message_type", fmt.Sprintf("%T", msg)).
			Msg("Ignoring unexpected message")

		return false
	}

	if sender := partial.SenderID(); sender != "" {
		if _, seen := e.senders[sender]; seen {
			e.logger.Debug().Str("sender", sender).Msg("Ignoring duplicate partial response")

			return false
		}

		e.senders[sender] = struct{}{}
	}

	e.received++

	for bucket, n := range e.strategy.Absorb(partial) {
		e.remaining[bucket] -= n
	}

	return e.satisfied()
}

func (e *Engine[P, R]) satisfied() bool {
	for _, n := range e.remaining {
		if n > 0 {
			return false
		}
	}

	return true
}

func (e *Engine[P, R]) outstanding() Buckets {
	missing := make(Buckets)

	for bucket, n := range e.remaining {
		if n > 0 {
			missing[bucket] = n
		}
	}

	return missing
}

func (e *Engine[P, R]) finish(state State) {
	e.stopOnce.Do(func() {
		e.state.Store(int32(state))
		e.timer.Stop()
		close(e.done)
	})
}
