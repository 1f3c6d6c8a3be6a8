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
	"bytes"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/window"
)

func TestThrottlingThreshold(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.ThrottlingConfig
		want int64
	}{
		{
			name: "no tolerance",
			cfg:  models.ThrottlingConfig{Interval: models.Duration(time.Second), Limit: 10},
			want: 100,
		},
		{
			name: "ten percent tolerance",
			cfg:  models.ThrottlingConfig{Interval: models.Duration(time.Second), Limit: 10, Tolerance: 0.1},
			want: 90,
		},
		{
			name: "limit per minute",
			cfg:  models.ThrottlingConfig{Interval: models.Duration(time.Minute), Limit: 100, Tolerance: 0.05},
			want: 16,
		},
		{
			name: "not throttled",
			cfg:  models.ThrottlingConfig{},
			want: math.MaxInt64,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ThrottlingThreshold(tt.cfg, window.OneMinuteWithTenSecondsResolution))
		})
	}
}

func TestValidateThrottling(t *testing.T) {
	require.NoError(t, ValidateThrottling(models.ThrottlingConfig{}))
	require.NoError(t, ValidateThrottling(models.ThrottlingConfig{Interval: models.Duration(time.Second), Limit: 1, Tolerance: 1}))
	require.ErrorIs(t, ValidateThrottling(models.ThrottlingConfig{Tolerance: 1.5}), ErrInvalidTolerance)
	require.ErrorIs(t, ValidateThrottling(models.ThrottlingConfig{Tolerance: -0.1}), ErrInvalidTolerance)
	require.ErrorIs(t, ValidateThrottling(models.ThrottlingConfig{Limit: 5}), ErrInvalidThrottling)
}

type recordingCounter struct {
	Counter
	failures []time.Time
}

func (c *recordingCounter) RecordFailureAt(ts time.Time) {
	c.failures = append(c.failures, ts)
}

func TestThrottledAlert(t *testing.T) {
	target := &recordingCounter{}
	alert := NewThrottledAlert(ThrottlingDetectionWindow, 2, func() (Counter, bool) { return target, true },
		logger.NewTestLogger())

	assert.False(t, alert.EvaluateCondition(ThrottlingDetectionWindow, 1, 2))
	assert.True(t, alert.EvaluateCondition(ThrottlingDetectionWindow, 1, 3))
	assert.False(t, alert.EvaluateCondition(window.OneHourWithOneMinuteResolution, 1, 3))

	alert.TriggerAction(t0, 3)
	assert.Equal(t, []time.Time{t0}, target.failures)
}

func TestThrottledAlertWithoutTargetIsNoop(t *testing.T) {
	alert := NewThrottledAlert(ThrottlingDetectionWindow, 0, func() (Counter, bool) { return nil, false },
		logger.NewTestLogger())

	assert.NotPanics(t, func() { alert.TriggerAction(t0, 1) })
}

func TestThrottledLoggerAlertLogsOncePerSlot(t *testing.T) {
	var buf bytes.Buffer

	coarsest := window.OneDayWithOneHourResolution
	alert := NewThrottledLoggerAlert(coarsest, logger.NewWriterLogger(&buf, zerolog.DebugLevel))

	assert.False(t, alert.EvaluateCondition(window.OneMinuteWithTenSecondsResolution, 7, 1))
	assert.True(t, alert.EvaluateCondition(coarsest, 7, 1))
	assert.False(t, alert.EvaluateCondition(coarsest, 7, 1))
	assert.True(t, alert.EvaluateCondition(coarsest, 8, 1))

	alert.TriggerAction(t0, 1)
	assert.Contains(t, buf.String(), "throttling limit")
}

func TestDelegatingAlert(t *testing.T) {
	ctrl := gomock.NewController(t)
	delegate := NewMockAlert(ctrl)

	var bound Alert

	alert := NewDelegatingAlert(func() (Alert, bool) { return bound, bound != nil })

	assert.False(t, alert.EvaluateCondition(ThrottlingDetectionWindow, 1, 1))
	alert.TriggerAction(t0, 1)

	bound = delegate

	delegate.EXPECT().EvaluateCondition(ThrottlingDetectionWindow, int64(1), int64(5)).Return(true)
	delegate.EXPECT().TriggerAction(t0, int64(5))

	assert.True(t, alert.EvaluateCondition(ThrottlingDetectionWindow, 1, 5))
	alert.TriggerAction(t0, 5)
}

func TestDefaultAlertFactories(t *testing.T) {
	factories := DefaultAlertFactories()
	throttling := models.ThrottlingConfig{Interval: models.Duration(time.Second), Limit: 10}

	ctx := AlertContext{
		Identity:         Identity{ConnectionID: "c1", MetricType: models.MetricConsumed, Direction: models.DirectionInbound, Address: "a"},
		Throttling:       throttling,
		RecordingWindows: window.Defaults(),
		Logger:           logger.NewTestLogger(),
	}

	consumed := factories.Resolve(AlertKey{models.ConnectionTypeKafka, models.DirectionInbound, models.MetricConsumed}, ctx)
	require.IsType(t, &ThrottledAlert{}, consumed)
	assert.Equal(t, int64(100), consumed.(*ThrottledAlert).Threshold())

	throttled := factories.Resolve(AlertKey{models.ConnectionTypeKafka, models.DirectionInbound, models.MetricThrottled}, ctx)
	assert.IsType(t, &ThrottledLoggerAlert{}, throttled)

	assert.Nil(t, factories.Resolve(AlertKey{models.ConnectionTypeHTTPPush, models.DirectionInbound, models.MetricConsumed}, ctx))
	assert.Nil(t, factories.Resolve(AlertKey{models.ConnectionTypeKafka, models.DirectionOutbound, models.MetricPublished}, ctx))

	ctx.Throttling = models.ThrottlingConfig{}
	assert.Nil(t, factories.Resolve(AlertKey{models.ConnectionTypeKafka, models.DirectionInbound, models.MetricConsumed}, ctx))
}
