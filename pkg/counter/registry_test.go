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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/window"
)

func kafkaConnection() *models.Connection {
	return &models.Connection{
		ID:          "conn-1",
		Type:        models.ConnectionTypeKafka,
		ClientCount: 2,
		Sources:     []models.Source{{Addresses: []string{"telemetry", "events"}}},
		Targets:     []models.Target{{Address: "commands"}},
	}
}

type sinkEvent struct {
	id      Identity
	success bool
}

type collectingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *collectingSink) Record(id Identity, success bool, _ time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, sinkEvent{id: id, success: success})
}

func newTestRegistry(t *testing.T, cfg RegistryConfig, opts ...RegistryOption) *Registry {
	t.Helper()

	r, err := NewRegistry(cfg, logger.NewTestLogger(), opts...)
	require.NoError(t, err)

	return r
}

func TestNewRegistryValidates(t *testing.T) {
	_, err := NewRegistry(RegistryConfig{
		Throttling: map[models.ConnectionType]models.ThrottlingConfig{
			models.ConnectionTypeKafka: {Interval: models.Duration(time.Second), Limit: 1, Tolerance: 2},
		},
	}, nil)
	require.ErrorIs(t, err, ErrInvalidTolerance)

	_, err = NewRegistry(RegistryConfig{
		Windows: map[models.MetricType]WindowConfig{
			models.MetricConsumed: {
				Recording: []window.MeasurementWindow{window.OneHourWithOneMinuteResolution},
				Reporting: []window.MeasurementWindow{window.OneHourWithOneMinuteResolution, window.OneHourWithOneHourResolution},
			},
		},
	}, nil)
	require.ErrorIs(t, err, ErrDuplicateSpan)
}

func TestCounterIsCreatedOnce(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})
	conn := kafkaConnection()

	const workers = 64

	counters := make([]Counter, workers)

	var wg sync.WaitGroup

	for i := range workers {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			c, err := r.Counter(conn, models.MetricConsumed, models.DirectionInbound, "telemetry")
			assert.NoError(t, err)

			counters[i] = c
			c.RecordSuccess()
		}(i)
	}

	wg.Wait()

	assert.Equal(t, 1, r.Size())

	for _, c := range counters {
		assert.Same(t, counters[0], c)
	}

	m, ok := models.AddressMetric{Measurements: counters[0].Measurements()}.Find(models.MetricConsumed, true)
	require.True(t, ok)
	assert.Equal(t, int64(workers), m.Counts[time.Minute])
}

func TestCounterRejectsUnsupportedDirection(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})

	_, err := r.Counter(kafkaConnection(), models.MetricConsumed, models.DirectionOutbound, "commands")
	require.ErrorIs(t, err, ErrUnsupportedDirection)
	assert.Equal(t, 0, r.Size())
}

func TestInitForConnection(t *testing.T) {
	r := newTestRegistry(t, RegistryConfig{})
	conn := kafkaConnection()

	require.NoError(t, r.InitForConnection(conn))

	inbound := len(models.MetricTypesFor(models.DirectionInbound)) * 2
	outbound := len(models.MetricTypesFor(models.DirectionOutbound)) * 2
	assert.Equal(t, inbound+outbound, r.Size())

	_, ok := r.Lookup(Identity{
		ConnectionID: conn.ID,
		MetricType:   models.MetricPublished,
		Direction:    models.DirectionOutbound,
		Address:      models.ResponsesAddress,
	})
	assert.True(t, ok)

	require.NoError(t, r.InitForConnection(conn))
	assert.Equal(t, inbound+outbound, r.Size())
}

func TestThrottlingRecordsIntoThrottledCounter(t *testing.T) {
	clock := newManualClock(t0)
	r := newTestRegistry(t, RegistryConfig{
		Throttling: map[models.ConnectionType]models.ThrottlingConfig{
			models.ConnectionTypeKafka: {Interval: models.Duration(time.Second), Limit: 1},
		},
	}, WithClock(clock))

	conn := kafkaConnection()
	require.NoError(t, r.InitForConnection(conn))

	consumed, err := r.Counter(conn, models.MetricConsumed, models.DirectionInbound, "telemetry")
	require.NoError(t, err)

	for range 12 {
		consumed.RecordSuccess()
	}

	throttled, ok := r.Lookup(Identity{
		ConnectionID: conn.ID,
		MetricType:   models.MetricThrottled,
		Direction:    models.DirectionInbound,
		Address:      "telemetry",
	})
	require.True(t, ok)

	assert.Equal(t, t0, throttled.LastFailureAt())

	m, ok := models.AddressMetric{Measurements: throttled.Measurements()}.Find(models.MetricThrottled, false)
	require.True(t, ok)
	assert.Equal(t, int64(1), m.Counts[time.Minute])
	assert.Equal(t, int64(1), m.Counts[time.Hour])

	clock.Advance(2 * time.Minute)

	m, _ = models.AddressMetric{Measurements: throttled.Measurements()}.Find(models.MetricThrottled, false)
	assert.Equal(t, int64(0), m.Counts[time.Minute])
	assert.Equal(t, int64(1), m.Counts[time.Hour])
}

func TestResetAndRemoveForConnection(t *testing.T) {
	clock := newManualClock(t0)
	r := newTestRegistry(t, RegistryConfig{}, WithClock(clock))
	conn := kafkaConnection()
	other := &models.Connection{ID: "conn-2", Type: models.ConnectionTypeMQTT}

	require.NoError(t, r.InitForConnection(conn))

	c, err := r.Counter(conn, models.MetricMapped, models.DirectionOutbound, "commands")
	require.NoError(t, err)
	c.RecordSuccess()

	o, err := r.Counter(other, models.MetricMapped, models.DirectionOutbound, "x")
	require.NoError(t, err)
	o.RecordSuccess()

	size := r.Size()
	assert.Equal(t, size-1, r.ResetForConnection(conn.ID))
	assert.Equal(t, size, r.Size())

	m, _ := models.AddressMetric{Measurements: c.Measurements()}.Find(models.MetricMapped, true)
	assert.Equal(t, int64(0), m.Counts[time.Minute])
	require.NotNil(t, m.LastMessageAt)
	assert.Equal(t, t0, *m.LastMessageAt)

	m, _ = models.AddressMetric{Measurements: o.Measurements()}.Find(models.MetricMapped, true)
	assert.Equal(t, int64(1), m.Counts[time.Minute])

	assert.Equal(t, size-1, r.RemoveForConnection(conn.ID))
	assert.Equal(t, 1, r.Size())
	assert.Empty(t, r.AggregateSourceMetrics(conn.ID).AddressMetrics)
}

func TestAggregateMetrics(t *testing.T) {
	clock := newManualClock(t0)
	sink := &collectingSink{}
	r := newTestRegistry(t, RegistryConfig{}, WithClock(clock), WithSink(sink))
	conn := kafkaConnection()

	require.NoError(t, r.InitForConnection(conn))

	for _, address := range []string{"telemetry", "events"} {
		c, err := r.Counter(conn, models.MetricConsumed, models.DirectionInbound, address)
		require.NoError(t, err)
		c.RecordSuccess()
	}

	dropped, err := r.Counter(conn, models.MetricDropped, models.DirectionOutbound, "commands")
	require.NoError(t, err)
	dropped.RecordFailure()

	sources := r.AggregateSourceMetrics(conn.ID)
	require.Len(t, sources.AddressMetrics, 2)
	assert.Len(t, sources.AddressMetrics["telemetry"].Measurements, 2*len(models.MetricTypesFor(models.DirectionInbound)))

	targets := r.AggregateTargetMetrics(conn.ID)
	require.Len(t, targets.AddressMetrics, 2)
	assert.Contains(t, targets.AddressMetrics, models.ResponsesAddress)

	totals := r.AggregateConnectionMetrics(conn.ID)
	consumed, ok := totals.Inbound.Find(models.MetricConsumed, true)
	require.True(t, ok)
	assert.Equal(t, int64(2), consumed.Counts[time.Minute])

	droppedTotal, ok := totals.Outbound.Find(models.MetricDropped, false)
	require.True(t, ok)
	assert.Equal(t, int64(1), droppedTotal.Counts[24*time.Hour])

	snapshot := r.Snapshot(conn.ID, "node-a")
	assert.Equal(t, "node-a", snapshot.SenderID())
	assert.Equal(t, totals, snapshot.ConnectionMetrics)
	assert.Equal(t, sources, snapshot.SourceMetrics)

	assert.Len(t, sink.events, 3)
	assert.False(t, sink.events[2].success)
	assert.Equal(t, "commands", sink.events[2].id.Address)
}

func TestRemovedConnectionSilencesAlerts(t *testing.T) {
	ctrl := gomock.NewController(t)
	alert := NewMockAlert(ctrl)

	key := AlertKey{models.ConnectionTypeKafka, models.DirectionInbound, models.MetricConsumed}
	r := newTestRegistry(t, RegistryConfig{}, WithClock(newManualClock(t0)),
		WithAlertFactories(AlertFactories{key: func(AlertContext) Alert { return alert }}))
	conn := kafkaConnection()

	c, err := r.Counter(conn, models.MetricConsumed, models.DirectionInbound, "telemetry")
	require.NoError(t, err)

	alert.EXPECT().EvaluateCondition(gomock.Any(), gomock.Any(), int64(1)).Return(false).Times(len(window.Defaults()))
	c.RecordSuccess()

	r.RemoveForConnection(conn.ID)

	// no further alert calls are expected for the detached counter
	c.RecordSuccess()
}
