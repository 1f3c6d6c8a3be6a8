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

package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatISODuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "PT0S"},
		{10 * time.Second, "PT10S"},
		{time.Minute, "PT1M"},
		{time.Hour, "PT1H"},
		{24 * time.Hour, "PT24H"},
		{90 * time.Minute, "PT1H30M"},
		{1500 * time.Millisecond, "PT1.5S"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatISODuration(tt.in))
		})
	}
}

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{in: "PT10S", want: 10 * time.Second},
		{in: "PT1M", want: time.Minute},
		{in: "P1D", want: 24 * time.Hour},
		{in: "P1DT1H", want: 25 * time.Hour},
		{in: "PT0.5S", want: 500 * time.Millisecond},
		{in: "PT24H", want: 24 * time.Hour},
		{in: "1m", wantErr: true},
		{in: "PT", wantErr: true},
		{in: "P1H", wantErr: true},
		{in: "PTXS", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseISODuration(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMeasurementWireShape(t *testing.T) {
	last := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	m := Measurement{
		MetricType:    MetricConsumed,
		Success:       true,
		Counts:        map[time.Duration]int64{time.Minute: 3, time.Hour: 7},
		LastMessageAt: &last,
	}

	data, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t,
		`{"metricType":"consumed","success":true,"counts":{"PT1M":3,"PT1H":7},"lastMessageAt":"2025-03-01T12:00:00Z"}`,
		string(data))

	var decoded Measurement
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, m.Counts, decoded.Counts)
	require.NotNil(t, decoded.LastMessageAt)
	assert.True(t, last.Equal(*decoded.LastMessageAt))
}

func TestMeasurementWithoutLastMessage(t *testing.T) {
	data, err := json.Marshal(Measurement{MetricType: MetricDropped, Counts: map[time.Duration]int64{}})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "lastMessageAt")
}

func TestMetricTypeDirections(t *testing.T) {
	assert.True(t, MetricConsumed.Supports(DirectionInbound))
	assert.False(t, MetricConsumed.Supports(DirectionOutbound))
	assert.True(t, MetricMapped.Supports(DirectionOutbound))
	assert.Contains(t, MetricTypesFor(DirectionInbound), MetricThrottled)
	assert.NotContains(t, MetricTypesFor(DirectionOutbound), MetricThrottled)
	assert.Contains(t, MetricTypesFor(DirectionOutbound), MetricPublished)
}

func TestConnectionAddresses(t *testing.T) {
	conn := Connection{
		Sources: []Source{{Addresses: []string{"a", "b"}}, {Addresses: []string{"b", "c"}}},
		Targets: []Target{{Address: "x"}, {Address: "x"}, {Address: "y"}},
	}

	assert.Equal(t, []string{"a", "b", "c"}, conn.SourceAddresses())
	assert.Equal(t, []string{"x", "y"}, conn.TargetAddresses())
	assert.Equal(t, 1, conn.Clients())
}

func TestConnectionTimeoutErrorMatchesSentinel(t *testing.T) {
	var err error = &ConnectionTimeoutError{ConnectionID: "c", Timeout: time.Second}

	assert.True(t, errors.Is(err, ErrConnectionTimeout))
	assert.Contains(t, err.Error(), "c did not respond within 1s")
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration

	require.NoError(t, json.Unmarshal([]byte(`"10s"`), &d))
	assert.Equal(t, Duration(10*time.Second), d)

	require.NoError(t, json.Unmarshal([]byte(`5000000000`), &d))
	assert.Equal(t, Duration(5*time.Second), d)

	require.Error(t, json.Unmarshal([]byte(`true`), &d))
	require.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
}
