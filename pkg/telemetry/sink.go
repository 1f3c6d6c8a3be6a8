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

package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/carverauto/connectivity/pkg/counter"
)

const (
	meterName          = "github.com/carverauto/connectivity"
	messagesMetricName = "connectivity_messages_total"
	countersMetricName = "connectivity_counters"
	attrConnectionID   = "connection_id"
	attrMetricType     = "metric_type"
	attrDirection      = "direction"
	attrAddress        = "address"
	attrSuccess        = "success"
)

// Sink mirrors every counter increment into an OTel counter.
type Sink struct {
	messages metric.Int64Counter
}

var _ counter.Sink = (*Sink)(nil)

func NewSink(provider metric.MeterProvider) (*Sink, error) {
	messages, err := provider.Meter(meterName).Int64Counter(
		messagesMetricName,
		metric.WithDescription("Messages handled by a connection, per metric type and address"),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s instrument: %w", messagesMetricName, err)
	}

	return &Sink{messages: messages}, nil
}

func (s *Sink) Record(id counter.Identity, success bool, _ time.Time) {
	s.messages.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String(attrConnectionID, id.ConnectionID),
		attribute.String(attrMetricType, string(id.MetricType)),
		attribute.String(attrDirection, string(id.Direction)),
		attribute.String(attrAddress, id.Address),
		attribute.Bool(attrSuccess, success),
	))
}

// SizeReporter reports a number of live counters.
type SizeReporter interface {
	Size() int
}

// RegisterRegistryGauge observes the number of live counters of r.
func RegisterRegistryGauge(provider metric.MeterProvider, r SizeReporter) (metric.Registration, error) {
	meter := provider.Meter(meterName)

	gauge, err := meter.Int64ObservableGauge(
		countersMetricName,
		metric.WithDescription("Live sliding window counters"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s instrument: %w", countersMetricName, err)
	}

	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(r.Size()))

		return nil
	}, gauge)
	if err != nil {
		return nil, fmt.Errorf("failed to register %s callback: %w", countersMetricName, err)
	}

	return reg, nil
}
