// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/AleutianAI/CodeScalpel/services/scalpel"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/engine"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/governance"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/sandbox"
	"github.com/AleutianAI/CodeScalpel/services/scalpel/telemetry"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	var (
		host     string
		port     int
		testRoot string
		debug    bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the scalpel API over HTTP",
		Long: `Serve starts the HTTP API:

  POST /v1/scalpel/check
  GET  /v1/scalpel/config
  POST /v1/scalpel/mutation/validate
  GET  /v1/scalpel/health
  GET  /metrics

The API has no authentication and the mutation endpoint runs test code,
so it listens on loopback unless --host says otherwise. Mutation test
files must live under --test-root.`,
		Example: `  scalpel serve --port 8090
  curl -X POST localhost:8090/v1/scalpel/check -d '{"files":["a.py"],"lines_changed":{"a.py":10}}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger := a.slog()

			tcfg := telemetry.DefaultConfig()
			tcfg.ServiceVersion = version
			shutdownTelemetry, err := telemetry.Init(ctx, tcfg)
			if err != nil {
				return fmt.Errorf("initializing telemetry: %w", err)
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				if err := shutdownTelemetry(sctx); err != nil {
					logger.Warn("Telemetry shutdown failed", slog.String("error", err.Error()))
				}
			}()

			trail, closeTrail, err := a.openTrail()
			if err != nil {
				return err
			}
			defer closeTrail()

			opts := []engine.Option{
				engine.WithLogger(logger),
				engine.WithExecutor(sandbox.NewLocal(logger)),
			}
			if trail != nil {
				opts = append(opts, engine.WithAuditTrail(trail))
			}
			eng := engine.New(a.config, opts...)

			if debug {
				gin.SetMode(gin.DebugMode)
			} else {
				gin.SetMode(gin.ReleaseMode)
			}
			if testRoot == "" {
				testRoot = a.projectDir
			}
			router := newRouter(eng, a.source, debug, scalpel.WithTestRoot(testRoot))

			srv := &http.Server{
				Addr:              net.JoinHostPort(host, strconv.Itoa(port)),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("Starting scalpel server",
					slog.String("address", srv.Addr),
					slog.String("test_root", testRoot),
				)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("server failed: %w", err)
				}
				return nil
			case <-ctx.Done():
			}

			logger.Info("Shutting down scalpel server")
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		},
	}
	cmd.Flags().StringVar(&host, "host", "127.0.0.1", "Interface to listen on")
	cmd.Flags().IntVarP(&port, "port", "p", 8090, "Port to listen on")
	cmd.Flags().StringVar(&testRoot, "test-root", "", "Directory mutation test files must live under (default: --project-dir)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable gin debug mode and request logging")
	return cmd
}

// newRouter wires the API routes, tracing middleware and /metrics.
func newRouter(eng *engine.Engine, source governance.Source, debug bool, opts ...scalpel.HandlerOption) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("code-scalpel"))
	if debug {
		router.Use(gin.Logger())
	}

	router.GET("/metrics", gin.WrapH(telemetry.MetricsHandler()))

	v1 := router.Group("/v1")
	scalpel.RegisterRoutes(v1, scalpel.NewHandlers(eng, source, version, opts...))
	return router
}
