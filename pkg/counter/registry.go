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

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/window"
)

// WindowConfig selects the windows of one metric type.
type WindowConfig struct {
	Recording []window.MeasurementWindow `json:"recording"`
	Reporting []window.MeasurementWindow `json:"reporting,omitempty"`
}

// RegistryConfig is everything the registry needs to build counters.
type RegistryConfig struct {
	Throttling map[models.ConnectionType]models.ThrottlingConfig
	Windows    map[models.MetricType]WindowConfig
}

// throttledOverride makes the shortest window of a throttled counter answer
// 1 while the source was throttled within the last minute.
//
//nolint:gochecknoglobals // fixed override table
var throttledOverride = map[window.MeasurementWindow]int64{window.OneMinuteWithTenSecondsResolution: 1}

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithSink forwards every recorded event to sink.
func WithSink(sink Sink) RegistryOption {
	return func(r *Registry) {
		r.sink = sink
	}
}

// WithClock overrides the time source of every counter.
func WithClock(clock Clock) RegistryOption {
	return func(r *Registry) {
		r.clock = clock
	}
}

// WithAlertFactories replaces the default alert factory table.
func WithAlertFactories(factories AlertFactories) RegistryOption {
	return func(r *Registry) {
		r.factories = factories
	}
}

// Registry owns every counter of this process. At most one counter exists
// per Identity, including under concurrent first use.
type Registry struct {
	counters  *xsync.MapOf[Identity, *DefaultCounter]
	alerts    *xsync.MapOf[Identity, Alert]
	cfg       RegistryConfig
	factories AlertFactories
	sink      Sink
	clock     Clock
	logger    logger.Logger
}

// NewRegistry validates cfg and creates an empty registry.
func NewRegistry(cfg RegistryConfig, log logger.Logger, opts ...RegistryOption) (*Registry, error) {
	if log == nil {
		log = logger.NewTestLogger()
	}

	r := &Registry{
		counters:  xsync.NewMapOf[Identity, *DefaultCounter](),
		alerts:    xsync.NewMapOf[Identity, Alert](),
		cfg:       cfg,
		factories: DefaultAlertFactories(),
		clock:     realClock{},
		logger:    log.WithComponent("counter-registry"),
	}

	for _, opt := range opts {
		opt(r)
	}

	for connectionType, throttling := range cfg.Throttling {
		if err := ValidateThrottling(throttling); err != nil {
			return nil, fmt.Errorf("throttling for %s: %w", connectionType, err)
		}
	}

	for _, metricType := range models.AllMetricTypes() {
		if _, err := NewSlidingWindowCounter(r.slidingConfig(metricType)); err != nil {
			return nil, fmt.Errorf("windows for %s: %w", metricType, err)
		}
	}

	return r, nil
}

func (r *Registry) windows(metricType models.MetricType) WindowConfig {
	wc, ok := r.cfg.Windows[metricType]
	if !ok || len(wc.Recording) == 0 {
		return WindowConfig{Recording: window.Defaults()}
	}

	return wc
}

func (r *Registry) slidingConfig(metricType models.MetricType) SlidingWindowConfig {
	wc := r.windows(metricType)

	cfg := SlidingWindowConfig{
		RecordingWindows: wc.Recording,
		ReportingWindows: wc.Reporting,
		Clock:            r.clock,
		Logger:           r.logger,
	}

	if metricType == models.MetricThrottled {
		cfg.MaximumPerSlot = 1

		reporting := wc.Reporting
		if len(reporting) == 0 {
			reporting = wc.Recording
		}

		if containsWindow(reporting, window.OneMinuteWithTenSecondsResolution) {
			cfg.LastActivityOverrides = throttledOverride
		}
	}

	return cfg
}

// Counter returns the counter of the given identity, creating it on first use.
func (r *Registry) Counter(conn *models.Connection, metricType models.MetricType,
	direction models.MetricDirection, address string) (Counter, error) {
	if !metricType.Supports(direction) {
		return nil, fmt.Errorf("%w: %s %s", ErrUnsupportedDirection, metricType, direction)
	}

	id := Identity{
		ConnectionID: conn.ID,
		MetricType:   metricType,
		Direction:    direction,
		Address:      address,
	}

	c, err := r.getOrCreate(conn.Type, id)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func (r *Registry) getOrCreate(connectionType models.ConnectionType, id Identity) (*DefaultCounter, error) {
	if c, ok := r.counters.Load(id); ok {
		return c, nil
	}

	var createErr error

	c, _ := r.counters.Compute(id, func(existing *DefaultCounter, loaded bool) (*DefaultCounter, bool) {
		if loaded {
			return existing, false
		}

		created, err := r.newCounter(connectionType, id)
		if err != nil {
			createErr = err
			return nil, true
		}

		return created, false
	})

	if createErr != nil {
		return nil, createErr
	}

	return c, nil
}

func (r *Registry) newCounter(connectionType models.ConnectionType, id Identity) (*DefaultCounter, error) {
	cfg := r.slidingConfig(id.MetricType)

	log := r.logger.WithFields(map[string]interface{}{
		"connection_id": id.ConnectionID,
		"metric_type":   string(id.MetricType),
		"direction":     string(id.Direction),
	})

	cfg.Logger = log

	alert := r.factories.Resolve(
		AlertKey{ConnectionType: connectionType, Direction: id.Direction, MetricType: id.MetricType},
		AlertContext{
			Identity:         id,
			Throttling:       r.cfg.Throttling[connectionType],
			RecordingWindows: cfg.RecordingWindows,
			Lookup:           r.Lookup,
			Logger:           log,
		},
	)

	// The counter reaches its alert through the registry, so removing the
	// connection silences counters adapters still hold.
	if alert != nil {
		cfg.Alert = NewDelegatingAlert(func() (Alert, bool) { return r.alerts.Load(id) })
	}

	sliding, err := NewSlidingWindowCounter(cfg)
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", id, err)
	}

	if alert != nil {
		r.alerts.Store(id, alert)
	}

	return NewDefaultCounter(id, sliding, r.sink), nil
}

// Lookup returns an existing counter without creating one.
func (r *Registry) Lookup(id Identity) (Counter, bool) {
	c, ok := r.counters.Load(id)
	if !ok {
		return nil, false
	}

	return c, true
}

// InitForConnection creates every counter a connection will report: each
// inbound metric type per source address, each outbound metric type per
// target address and the artificial responses address.
func (r *Registry) InitForConnection(conn *models.Connection) error {
	addresses := map[models.MetricDirection][]string{
		models.DirectionInbound:  conn.SourceAddresses(),
		models.DirectionOutbound: append(conn.TargetAddresses(), models.ResponsesAddress),
	}

	created := 0

	for _, direction := range []models.MetricDirection{models.DirectionInbound, models.DirectionOutbound} {
		for _, address := range addresses[direction] {
			for _, metricType := range models.MetricTypesFor(direction) {
				if _, err := r.Counter(conn, metricType, direction, address); err != nil {
					return err
				}

				created++
			}
		}
	}

	r.logger.Debug().
		Str("connection_id", conn.ID).
		Int("counters", created).
		Msg("Initialized counters for connection")

	return nil
}

// ResetForConnection resets every counter of the connection and returns how
// many were reset.
func (r *Registry) ResetForConnection(connectionID string) int {
	reset := 0

	r.counters.Range(func(id Identity, c *DefaultCounter) bool {
		if id.ConnectionID == connectionID {
			c.Reset()
			reset++
		}

		return true
	})

	return reset
}

// RemoveForConnection drops every counter of a deleted connection.
func (r *Registry) RemoveForConnection(connectionID string) int {
	removed := 0

	r.counters.Range(func(id Identity, _ *DefaultCounter) bool {
		if id.ConnectionID == connectionID {
			r.alerts.Delete(id)
			r.counters.Delete(id)
			removed++
		}

		return true
	})

	if removed > 0 {
		r.logger.Info().
			Str("connection_id", connectionID).
			Int("counters", removed).
			Msg("Removed counters for connection")
	}

	return removed
}

func (r *Registry) aggregate(connectionID string, direction models.MetricDirection) map[string]models.AddressMetric {
	metrics := make(map[string]models.AddressMetric)

	r.counters.Range(func(id Identity, c *DefaultCounter) bool {
		if id.ConnectionID != connectionID || id.Direction != direction {
			return true
		}

		metrics[id.Address] = MergeAddressMetric(metrics[id.Address],
			models.AddressMetric{Measurements: c.Measurements()})

		return true
	})

	return metrics
}

// AggregateSourceMetrics reports the inbound counters of a connection per
// source address.
func (r *Registry) AggregateSourceMetrics(connectionID string) models.SourceMetrics {
	return models.SourceMetrics{AddressMetrics: r.aggregate(connectionID, models.DirectionInbound)}
}

// AggregateTargetMetrics reports the outbound counters of a connection per
// target address.
func (r *Registry) AggregateTargetMetrics(connectionID string) models.TargetMetrics {
	return models.TargetMetrics{AddressMetrics: r.aggregate(connectionID, models.DirectionOutbound)}
}

// AggregateConnectionMetrics folds every address of a connection into
// inbound and outbound totals.
func (r *Registry) AggregateConnectionMetrics(connectionID string) models.ConnectionMetrics {
	return models.ConnectionMetrics{
		Inbound:  totals(r.aggregate(connectionID, models.DirectionInbound)),
		Outbound: totals(r.aggregate(connectionID, models.DirectionOutbound)),
	}
}

// Snapshot is the partial metrics response this process contributes for a
// connection.
func (r *Registry) Snapshot(connectionID, sender string) models.RetrieveConnectionMetricsResponse {
	sources := r.aggregate(connectionID, models.DirectionInbound)
	targets := r.aggregate(connectionID, models.DirectionOutbound)

	return models.RetrieveConnectionMetricsResponse{
		ConnectionID: connectionID,
		Sender:       sender,
		ConnectionMetrics: models.ConnectionMetrics{
			Inbound:  totals(sources),
			Outbound: totals(targets),
		},
		SourceMetrics: models.SourceMetrics{AddressMetrics: sources},
		TargetMetrics: models.TargetMetrics{AddressMetrics: targets},
	}
}

// Size is the number of live counters.
func (r *Registry) Size() int {
	return r.counters.Size()
}
