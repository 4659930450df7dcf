// Copyright (C) 2025 Aayush Sood
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package server is the HTTP/WebSocket front end for BlackBox.
//
// It exposes the analysis pipeline over a small REST surface plus a
// progress-streaming WebSocket:
//
//	POST   /api/v1/analyze          upload an executable, start a run
//	GET    /api/v1/runs/:id         point-in-time run status
//	GET    /api/v1/runs/:id/result  final result (409 while in flight)
//	DELETE /api/v1/runs/:id         cancel and forget a run
//	GET    /ws/runs/:id             live progress events
//	GET    /health                  liveness probe
//	GET    /metrics                 Prometheus metrics
//
// The server owns staging of uploaded executables (one temp directory
// per run, removed when the run finishes) and nothing else: all
// analysis state lives in the pipeline registry.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Aayush-Sood101/BlackBox/services/inference/pipeline"
)

// uploadPrefix names staged-upload directories so orphans are easy to
// spot next to sandbox workspaces.
const uploadPrefix = "bbx-up-"

// shutdownGrace bounds how long Run waits for in-flight requests when
// the context is cancelled.
const shutdownGrace = 10 * time.Second

// Options configures a Server.
type Options struct {
	// Pipeline runs analyses. Required.
	Pipeline *pipeline.Pipeline

	// Registry tracks live and recently finished runs. Required.
	Registry *pipeline.Registry

	// MaxUploadBytes caps the size of an uploaded executable.
	// Defaults to 32 MiB.
	MaxUploadBytes int64

	// UploadRoot is where uploaded executables are staged before the
	// sandbox copies them into per-execution workspaces. Defaults to
	// the OS temp directory.
	UploadRoot string

	Logger *slog.Logger
}

// Server is the HTTP transport. Construct with New; safe for
// concurrent use.
type Server struct {
	pipeline   *pipeline.Pipeline
	registry   *pipeline.Registry
	maxUpload  int64
	uploadRoot string
	logger     *slog.Logger
	engine     *gin.Engine
}

// New builds a server and registers its routes.
//
// # Inputs
//
//   - opts: Collaborators and limits. Pipeline and Registry are
//     required; everything else has defaults.
//
// # Outputs
//
//   - *Server: Ready to serve. Call Run or mount Handler.
//   - error: Non-nil when a required collaborator is missing.
func New(opts Options) (*Server, error) {
	if opts.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("server: registry is required")
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 32 << 20
	}
	if opts.UploadRoot == "" {
		opts.UploadRoot = os.TempDir()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		pipeline:   opts.Pipeline,
		registry:   opts.Registry,
		maxUpload:  opts.MaxUploadBytes,
		uploadRoot: opts.UploadRoot,
		logger:     opts.Logger,
	}
	s.engine = s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws/runs/:id", s.handleProgressSocket)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/analyze", s.handleAnalyze)
		v1.GET("/runs/:id", s.handleStatus)
		v1.GET("/runs/:id/result", s.handleResult)
		v1.DELETE("/runs/:id", s.handleCancel)
	}
	return router
}

// Handler exposes the router for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests and returns.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen on %s: %w", addr, err)
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	}
}
