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

package counter

import (
	"fmt"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/window"
)

// AlertKey selects the alert factory for a counter.
type AlertKey struct {
	ConnectionType models.ConnectionType
	Direction      models.MetricDirection
	MetricType     models.MetricType
}

// AlertContext is what a factory gets to build the alert of one counter.
type AlertContext struct {
	Identity         Identity
	Throttling       models.ThrottlingConfig
	RecordingWindows []window.MeasurementWindow
	// Lookup resolves an existing counter without creating it.
	Lookup func(Identity) (Counter, bool)
	Logger logger.Logger
}

// AlertFactory builds an alert, or returns nil for a plain counter.
type AlertFactory func(ctx AlertContext) Alert

// AlertFactories maps counter kinds to their alert factory.
type AlertFactories map[AlertKey]AlertFactory

// Resolve returns the alert for key, if any factory is registered.
func (f AlertFactories) Resolve(key AlertKey, ctx AlertContext) Alert {
	factory, ok := f[key]
	if !ok || factory == nil {
		return nil
	}

	return factory(ctx)
}

// ConsumerConnectionTypes are the connection types that consume from a
// broker and therefore have a throttling budget.
func ConsumerConnectionTypes() []models.ConnectionType {
	return []models.ConnectionType{
		models.ConnectionTypeAMQP091,
		models.ConnectionTypeAMQP10,
		models.ConnectionTypeMQTT,
		models.ConnectionTypeMQTT5,
		models.ConnectionTypeKafka,
		models.ConnectionTypeHono,
	}
}

// DefaultAlertFactories wires, for every consumer connection type, the
// throttling detector on inbound consumed counters and the rate limited
// logger on inbound throttled counters.
func DefaultAlertFactories() AlertFactories {
	factories := make(AlertFactories)

	for _, connectionType := range ConsumerConnectionTypes() {
		factories[AlertKey{connectionType, models.DirectionInbound, models.MetricConsumed}] = throttlingAlertFactory
		factories[AlertKey{connectionType, models.DirectionInbound, models.MetricThrottled}] = throttledLoggerFactory
	}

	return factories
}

func throttlingAlertFactory(ctx AlertContext) Alert {
	if !ctx.Throttling.Enabled() || !containsWindow(ctx.RecordingWindows, ThrottlingDetectionWindow) {
		return nil
	}

	throttled := ctx.Identity
	throttled.MetricType = models.MetricThrottled

	resolve := func() (Counter, bool) {
		if ctx.Lookup == nil {
			return nil, false
		}

		return ctx.Lookup(throttled)
	}

	return NewThrottledAlert(ThrottlingDetectionWindow, ThrottlingThreshold(ctx.Throttling, ThrottlingDetectionWindow),
		resolve, ctx.Logger)
}

func throttledLoggerFactory(ctx AlertContext) Alert {
	coarsest, ok := window.Coarsest(ctx.RecordingWindows)
	if !ok {
		return nil
	}

	return NewThrottledLoggerAlert(coarsest, ctx.Logger.WithFields(map[string]interface{}{
		"connection_id": ctx.Identity.ConnectionID,
		"address":       ctx.Identity.Address,
	}))
}

// ValidateThrottling checks a throttling budget.
func ValidateThrottling(cfg models.ThrottlingConfig) error {
	if cfg.Tolerance < 0 || cfg.Tolerance > 1 {
		return fmt.Errorf("%w: got %v", ErrInvalidTolerance, cfg.Tolerance)
	}

	if cfg.Limit > 0 && cfg.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive when a limit is set", ErrInvalidThrottling)
	}

	if cfg.Limit < 0 || cfg.MaxInFlight < 0 {
		return fmt.Errorf("%w: limit and max in flight must not be negative", ErrInvalidThrottling)
	}

	return nil
}
