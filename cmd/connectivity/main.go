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

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/connectivity/pkg/config"
	"github.com/carverauto/connectivity/pkg/logger"
	"github.com/carverauto/connectivity/pkg/node"
	"github.com/carverauto/connectivity/pkg/version"
)

const shutdownTimeout = 10 * time.Second

var (
	errFailedToLoadConfig = errors.New("failed to load connectivity configuration")
	errUnknownQueryKind   = errors.New("unknown query kind")
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configFile := flag.String("config", "/etc/connectivity/connectivity.json", "Path to node config file")
	query := flag.String("query", "", "Print the cluster-wide answer for this connection and exit")
	kind := flag.String("kind", "status", "Query kind: metrics or status")
	showVersion := flag.Bool("version", false, "Print the version and exit")

	flag.Parse()

	if *showVersion {
		fmt.Println(version.GetFullVersion())

		return nil
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var cfg config.NodeConfig

	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configFile, &cfg); err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	nodeLogger, err := logger.New(cfg.LoggerConfig())
	if err != nil {
		return err
	}

	nodeLogger.Info().Str("version", version.GetFullVersion()).Str("node_id", cfg.NodeID).Msg("Starting connectivity node")

	n, err := node.New(ctx, &cfg, nodeLogger)
	if err != nil {
		return err
	}

	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer stopCancel()

		n.Stop(stopCtx)
	}()

	if err := n.Start(); err != nil {
		return err
	}

	if *query != "" {
		return printQuery(ctx, n, *query, *kind)
	}

	<-ctx.Done()

	nodeLogger.Info().Msg("Received shutdown signal")

	return nil
}

func printQuery(ctx context.Context, n *node.Node, connectionID, kind string) error {
	var (
		resp any
		err  error
	)

	switch kind {
	case "metrics":
		resp, err = n.Metrics(ctx, connectionID)
	case "status":
		resp, err = n.Status(ctx, connectionID)
	default:
		return fmt.Errorf("%w: %s", errUnknownQueryKind, kind)
	}

	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(resp)
}
