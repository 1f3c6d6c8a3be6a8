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

// Package node assembles a connectivity node: counter registry, status
// board, NATS responder and the optional event and telemetry pipelines.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/carverauto/connectivity/pkg/config"
	"github.com/carverauto/connectivity/pkg/counter"
	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/models"
	"github.com/carverauto/connectivity/pkg/natsutil"
	"github.com/carverauto/connectivity/pkg/status"
	"github.com/carverauto/connectivity/pkg/telemetry"
)

var (
	// ErrUnknownConnection is returned for connections this node was not configured with.
	ErrUnknownConnection = errors.New("unknown connection")
	errNodeStopped       = errors.New("node stopped")
)

// Option customises a Node.
type Option func(*Node)

// WithMeterProvider records counter events on provider instead of an OTLP
// pipeline built from the telemetry configuration.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(n *Node) {
		n.meterProvider = provider
	}
}

// WithNATSConn uses an existing connection instead of dialling nats.url.
func WithNATSConn(nc *nats.Conn) Option {
	return func(n *Node) {
		n.nc = nc
	}
}

// Node serves the connections of one cluster member.
type Node struct {
	cfg    *config.NodeConfig
	logger logger.Logger

	nc            *nats.Conn
	ownsConn      bool
	meterProvider metric.MeterProvider
	sdkProvider   *sdkmetric.MeterProvider
	gauge         metric.Registration

	Registry  *counter.Registry
	Board     *status.Board
	Responder *natsutil.Responder
	Scatterer *natsutil.Scatterer
	Publisher *natsutil.EventPublisher

	mu          sync.RWMutex
	connections map[string]*models.Connection
	stopped     bool
}

// New builds a node from a validated configuration.
func New(ctx context.Context, cfg *config.NodeConfig, log logger.Logger, opts ...Option) (*Node, error) {
	n := &Node{
		cfg:         cfg,
		logger:      log.WithComponent("node").WithFields(map[string]interface{}{"node_id": cfg.NodeID}),
		connections: make(map[string]*models.Connection),
	}

	for _, opt := range opts {
		opt(n)
	}

	if err := n.initTelemetry(ctx); err != nil {
		return nil, err
	}

	if err := n.initTransport(ctx); err != nil {
		n.shutdownTelemetry(ctx)

		return nil, err
	}

	return n, nil
}

func (n *Node) initTelemetry(ctx context.Context) error {
	if n.meterProvider == nil {
		provider, err := telemetry.InitializeMetrics(ctx, n.cfg.Telemetry)

		switch {
		case errors.Is(err, telemetry.ErrMetricsDisabled):
			n.logger.Debug().Msg("Metrics export disabled")
		case err != nil:
			return err
		default:
			n.sdkProvider = provider
			n.meterProvider = provider
		}
	}

	registryOpts := make([]counter.RegistryOption, 0, 1)

	if n.meterProvider != nil {
		sink, err := telemetry.NewSink(n.meterProvider)
		if err != nil {
			return err
		}

		registryOpts = append(registryOpts, counter.WithSink(sink))
	}

	registry, err := counter.NewRegistry(n.cfg.RegistryConfig(), n.logger, registryOpts...)
	if err != nil {
		return fmt.Errorf("failed to build counter registry: %w", err)
	}

	n.Registry = registry

	if n.meterProvider != nil {
		if n.gauge, err = telemetry.RegisterRegistryGauge(n.meterProvider, registry); err != nil {
			return err
		}
	}

	return nil
}

func (n *Node) initTransport(ctx context.Context) error {
	if n.nc == nil {
		nc, err := natsutil.Connect(&n.cfg.NATS, n.cfg.NodeID, n.logger)
		if err != nil {
			return err
		}

		n.nc = nc
		n.ownsConn = true
	}

	subjects := natsutil.NewSubjects(n.cfg.NATS.SubjectPrefix)

	var boardOpts []status.BoardOption

	if events := n.cfg.NATS.Events; events != nil && events.Enabled {
		publisher, err := natsutil.CreateEventPublisher(ctx, n.nc, subjects, events, n.cfg.NodeID, n.logger)
		if err != nil {
			n.closeConn()

			return err
		}

		n.Publisher = publisher
		boardOpts = append(boardOpts, status.WithChangeHook(publisher.Hook()))
	}

	n.Board = status.NewBoard(n.logger, boardOpts...)
	n.Responder = natsutil.NewResponder(n.nc, subjects, n.Registry, n.Board, n.cfg.NodeID, n.logger)
	n.Scatterer = natsutil.NewScatterer(n.nc, subjects, n.logger,
		natsutil.WithQueryTimeout(time.Duration(n.cfg.AggregatorTimeout)),
		natsutil.WithClusterSize(n.cfg.ClusterSize))

	return nil
}

// Start initialises the counters of every configured connection and starts
// answering queries.
func (n *Node) Start() error {
	for i := range n.cfg.Connections {
		if err := n.AddConnection(&n.cfg.Connections[i]); err != nil {
			return err
		}
	}

	if err := n.Responder.Start(); err != nil {
		return err
	}

	n.logger.Info().Int("connections", len(n.cfg.Connections)).Msg("Connectivity node started")

	return nil
}

// AddConnection starts serving conn on this node.
func (n *Node) AddConnection(conn *models.Connection) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.stopped {
		return errNodeStopped
	}

	if err := n.Registry.InitForConnection(conn); err != nil {
		return fmt.Errorf("failed to initialise counters of %s: %w", conn.ID, err)
	}

	n.connections[conn.ID] = conn
	n.Responder.Serve(conn.ID)

	return nil
}

// RemoveConnection stops serving a deleted connection and drops its state.
func (n *Node) RemoveConnection(connectionID string) {
	n.mu.Lock()
	delete(n.connections, connectionID)
	n.mu.Unlock()

	n.Responder.Unserve(connectionID)
	n.Registry.RemoveForConnection(connectionID)
	n.Board.Remove(connectionID)
}

// Reconnected resets the counters of a connection that was re-established.
func (n *Node) Reconnected(connectionID string) int {
	return n.Registry.ResetForConnection(connectionID)
}

// Connection returns the topology of a served connection.
func (n *Node) Connection(connectionID string) (*models.Connection, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()

	conn, ok := n.connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownConnection, connectionID)
	}

	return conn, nil
}

// Metrics gathers the cluster-wide metrics of a connection.
func (n *Node) Metrics(ctx context.Context, connectionID string) (models.RetrieveConnectionMetricsResponse, error) {
	conn, err := n.Connection(connectionID)
	if err != nil {
		return models.RetrieveConnectionMetricsResponse{}, err
	}

	return n.Scatterer.Metrics(ctx, conn)
}

// Status gathers the cluster-wide status of a connection.
func (n *Node) Status(ctx context.Context, connectionID string) (models.RetrieveConnectionStatusResponse, error) {
	conn, err := n.Connection(connectionID)
	if err != nil {
		return models.RetrieveConnectionStatusResponse{}, err
	}

	return n.Scatterer.Status(ctx, conn)
}

// Stop stops answering queries, flushes pending events and releases the
// transport and telemetry pipeline.
func (n *Node) Stop(ctx context.Context) {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()

		return
	}

	n.stopped = true
	n.mu.Unlock()

	n.Responder.Stop()

	if n.Publisher != nil {
		if err := n.Publisher.Flush(ctx); err != nil {
			n.logger.Warn().Err(err).Msg("Pending status change events were not acknowledged")
		}
	}

	n.closeConn()
	n.shutdownTelemetry(ctx)

	n.logger.Info().Msg("Connectivity node stopped")
}

func (n *Node) closeConn() {
	if !n.ownsConn || n.nc == nil {
		return
	}

	if err := n.nc.Drain(); err != nil {
		n.logger.Debug().Err(err).Msg("Failed to drain NATS connection")
		n.nc.Close()
	}
}

func (n *Node) shutdownTelemetry(ctx context.Context) {
	if n.gauge != nil {
		if err := n.gauge.Unregister(); err != nil {
			n.logger.Debug().Err(err).Msg("Failed to unregister counters gauge")
		}
	}

	if n.sdkProvider == nil {
		return
	}

	if err := n.sdkProvider.Shutdown(ctx); err != nil {
		n.logger.Warn().Err(err).Msg("Failed to shut down meter provider")
	}
}
