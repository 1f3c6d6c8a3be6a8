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

//go:generate mockgen -destination=mock_alert.go -package=counter github.com/carverauto/connectivity/pkg/counter Alert

package counter

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/window"
)

// Alert is evaluated after every slot update of every recording window.
type Alert interface {
	EvaluateCondition(w window.MeasurementWindow, slot, value int64) bool
	TriggerAction(ts time.Time, value int64)
}

// CounterResolver resolves a counter that may not exist yet.
type CounterResolver func() (Counter, bool)

// AlertResolver resolves an alert that may not be bound yet.
type AlertResolver func() (Alert, bool)

// ThrottledAlert records a failure into a target counter whenever a slot of
// the detection window exceeds the throttling threshold.
type ThrottledAlert struct {
	window    window.MeasurementWindow
	threshold int64
	target    CounterResolver
	logger    logger.Logger
}

func NewThrottledAlert(w window.MeasurementWindow, threshold int64, target CounterResolver, log logger.Logger) *ThrottledAlert {
	return &ThrottledAlert{window: w, threshold: threshold, target: target, logger: log}
}

func (a *ThrottledAlert) Threshold() int64 { return a.threshold }

func (a *ThrottledAlert) EvaluateCondition(w window.MeasurementWindow, _, value int64) bool {
	return w == a.window && value > a.threshold
}

func (a *ThrottledAlert) TriggerAction(ts time.Time, value int64) {
	target, ok := a.target()
	if !ok {
		a.logger.Debug().
			Int64("value", value).
			Int64("threshold", a.threshold).
			Msg("Throttling target counter not available, skipping")

		return
	}

	target.RecordFailureAt(ts)
}

// ThrottledLoggerAlert writes one log entry per distinct slot of the
// coarsest recording window of a throttled counter.
type ThrottledLoggerAlert struct {
	window   window.MeasurementWindow
	lastSlot atomic.Int64
	logger   logger.Logger
}

func NewThrottledLoggerAlert(w window.MeasurementWindow, log logger.Logger) *ThrottledLoggerAlert {
	a := &ThrottledLoggerAlert{window: w, logger: log}
	a.lastSlot.Store(math.MinInt64)

	return a
}

func (a *ThrottledLoggerAlert) EvaluateCondition(w window.MeasurementWindow, slot, _ int64) bool {
	if w != a.window {
		return false
	}

	for {
		last := a.lastSlot.Load()
		if last == slot {
			return false
		}

		if a.lastSlot.CompareAndSwap(last, slot) {
			return true
		}
	}
}

func (a *ThrottledLoggerAlert) TriggerAction(ts time.Time, value int64) {
	a.logger.Warn().
		Time("throttled_at", ts).
		Int64("throttled_slots", value).
		Str("window", a.window.String()).
		Msg("Source is consuming more messages than its throttling limit allows")
}

// DelegatingAlert resolves its alert lazily. An unresolvable alert never
// meets its condition.
type DelegatingAlert struct {
	resolve AlertResolver
}

func NewDelegatingAlert(resolve AlertResolver) *DelegatingAlert {
	return &DelegatingAlert{resolve: resolve}
}

func (a *DelegatingAlert) EvaluateCondition(w window.MeasurementWindow, slot, value int64) bool {
	alert, ok := a.resolve()
	if !ok || alert == nil {
		return false
	}

	return alert.EvaluateCondition(w, slot, value)
}

func (a *DelegatingAlert) TriggerAction(ts time.Time, value int64) {
	if alert, ok := a.resolve(); ok && alert != nil {
		alert.TriggerAction(ts, value)
	}
}

// ThrottlingDetectionWindow is the recording window used to decide whether
// a source exceeds its throttling budget.
//
//nolint:gochecknoglobals // alias of a catalog preset
var ThrottlingDetectionWindow = window.OneMinuteWithTenSecondsResolution

// ThrottlingThreshold converts a per-interval limit into a per-slot threshold
// for the detection window:
// round(limit * (resolution / interval) * (1 - tolerance)).
// Without a throttling budget the threshold is effectively infinite.
func ThrottlingThreshold(cfg models.ThrottlingConfig, detection window.MeasurementWindow) int64 {
	if !cfg.Enabled() {
		return math.MaxInt64
	}

	perSlot := float64(cfg.Limit) * (float64(detection.Resolution) / float64(cfg.Interval))

	return int64(math.Round(perSlot * (1 - cfg.Tolerance)))
}
