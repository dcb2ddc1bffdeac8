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

// Package app wires the simctl operator console.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/carverauto/nodesim/pkg/catalog"
	"github.com/carverauto/nodesim/pkg/config"
	"github.com/carverauto/nodesim/pkg/lifecycle"
	"github.com/carverauto/nodesim/pkg/logger"
	"github.com/carverauto/nodesim/pkg/metrics"
	"github.com/carverauto/nodesim/pkg/models"
	"github.com/carverauto/nodesim/pkg/natsutil"
	"github.com/carverauto/nodesim/pkg/session"
	"github.com/carverauto/nodesim/pkg/simclient"
	"github.com/carverauto/nodesim/pkg/stream"
	"github.com/carverauto/nodesim/pkg/tui"
	"github.com/carverauto/nodesim/pkg/version"
)

const (
	component          = "simctl"
	apiRequestTimeout  = 30 * time.Second
	catalogConcurrency = 8
	shutdownTimeout    = 5 * time.Second
	consoleLogFile     = "simctl.log"
)

// Options contains runtime configuration derived from CLI flags.
type Options struct {
	ConfigPath    string
	Headless      bool
	AssumeYes     bool
	NodeLimit     int
	ExportLogPath string
	BackendLog    string
	Timestamp     string
	History       bool
	// VerticalID loads only that vertical's nodes when positive.
	VerticalID int
	Verticals  bool
}

// Run boots simctl using the provided options.
func Run(ctx context.Context, opts Options) error {
	var cfg models.ConsoleConfig
	if err := config.NewConfig(nil).LoadAndValidate(ctx, opts.ConfigPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := consoleLogging(cfg.Logging, opts)

	mainLogger, err := lifecycle.CreateComponentLogger(ctx, component, logCfg)
	if err != nil {
		return err
	}

	tp, err := lifecycle.InitializeTracing(ctx, component, logCfg, mainLogger)
	if err != nil {
		return err
	}

	defer func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			mainLogger.Error().Err(err).Msg("Error shutting down tracer provider")
		}
	}()

	apiClient := &http.Client{Timeout: apiRequestTimeout}
	userAgent := version.UserAgent(component)
	backend := simclient.New(cfg.BackendURL, apiClient, userAgent, lifecycle.Child(mainLogger, "simclient"))
	cat := catalog.New(cfg.CatalogURL, apiClient, userAgent, catalogConcurrency, lifecycle.Child(mainLogger, "catalog"))

	switch {
	case opts.Verticals:
		return listVerticals(ctx, cat, os.Stdout)
	case opts.History:
		return listHistory(ctx, backend, mainLogger)
	case opts.BackendLog != "":
		return downloadBackendLog(ctx, backend, opts.BackendLog, models.RunTimestamp(opts.Timestamp), mainLogger)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	collector, err := metrics.NewCollector(registry)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		stopMetrics := serveMetrics(cfg.MetricsAddr, registry, mainLogger)
		defer stopMetrics()
	}

	nodes, err := loadFleet(ctx, cat, opts)
	if err != nil {
		return fmt.Errorf("failed to load fleet: %w", err)
	}

	mainLogger.Info().
		Int("nodes", len(nodes)).
		Int("vertical_id", opts.VerticalID).
		Interface("platforms", catalog.Platforms(nodes)).
		Msg("Loaded fleet from catalog")

	// The stream is long-lived; only the dial is bounded by ctx.
	source, err := stream.NewSource(cfg.BackendURL, &cfg.Stream, &http.Client{}, userAgent)
	if err != nil {
		return err
	}

	sessionOpts := []session.Option{session.WithMetrics(collector)}

	if cfg.Events != nil && cfg.Events.Enabled {
		forwarder, nc, err := connectEvents(ctx, cfg.Events, mainLogger)
		if err != nil {
			return err
		}

		defer nc.Close()
		defer forwarder.Close()

		sessionOpts = append(sessionOpts, session.WithObserver(forwarder), session.WithAlertSink(forwarder))
	}

	prompter := tui.NewPrompter()

	switch {
	case !opts.Headless:
		sessionOpts = append(sessionOpts, session.WithConfirmer(prompter))
	case opts.AssumeYes:
		sessionOpts = append(sessionOpts, session.WithConfirmer(session.ConfirmFunc(
			func(context.Context, session.Prompt) bool { return true })))
	}

	sess := session.New(nodes, backend, source, session.ConfigFrom(&cfg), mainLogger, sessionOpts...)
	defer sess.Release()

	if err := sess.Open(ctx); err != nil {
		if opts.Headless {
			return err
		}

		mainLogger.Error().Err(err).Msg("Event stream unavailable, console continues without live updates")
	}

	if opts.Headless {
		return runHeadless(ctx, sess, time.Duration(cfg.Reconciler.SampleInterval), mainLogger)
	}

	return tui.Run(ctx, sess, prompter, tui.WithExportPath(opts.ExportLogPath))
}

func loadFleet(ctx context.Context, cat *catalog.Client, opts Options) ([]models.Node, error) {
	if opts.VerticalID > 0 {
		return cat.VerticalFleet(ctx, opts.VerticalID)
	}

	return cat.Fleet(ctx, opts.NodeLimit)
}

// consoleLogging keeps log lines off the terminal the console draws on.
func consoleLogging(cfg *logger.Config, opts Options) *logger.Config {
	if cfg == nil {
		cfg = logger.DefaultConfig()
	}

	if !opts.Headless && (cfg.Output == "" || cfg.Output == "stdout" || cfg.Output == "stderr") {
		c := *cfg
		c.Output = consoleLogFile

		return &c
	}

	return cfg
}

func connectEvents(ctx context.Context, cfg *models.EventsConfig, log logger.Logger) (*natsutil.Forwarder, *nats.Conn, error) {
	publisher, nc, err := natsutil.ConnectWithEventPublisher(ctx, cfg, lifecycle.Child(log, "events"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect event publisher: %w", err)
	}

	return natsutil.NewForwarder(publisher, log), nc, nil
}

func serveMetrics(addr string, g prometheus.Gatherer, log logger.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(g))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Error shutting down metrics server")
		}
	}
}
