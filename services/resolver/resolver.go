// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package resolver provides the disambiguation resolver service for
// OwnerTraceLocal.
//
// This package contains the main service type that coordinates all
// components: the BadgerDB-backed session store, the research pipeline
// client, the per-round state machine registry, HTTP routing, and
// observability infrastructure.
//
// # Usage
//
//	cfg := resolver.Config{Port: 12310}
//	svc, err := resolver.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package resolver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	storagebadger "github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/storage/badger"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/observability"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/protocol"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/research"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/routes"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/store"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/telemetry"
	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver/ttl"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the resolver service.
//
// # Description
//
// Service abstracts the resolver lifecycle, enabling testing and
// alternative implementations. Run() blocks and should only be called
// once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for testing. Callers
	// must not modify the router after construction.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds resolver configuration options.
//
// # Description
//
// Config centralizes all configuration for the resolver service. Values
// can be populated from environment variables (see cmd/resolver), config
// files, or programmatically for testing. All fields are optional with
// defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12310
	Port int

	// PipelineURL is the research pipeline base URL.
	// Default: RESEARCH_PIPELINE_URL or "http://ownertrace-pipeline:12320"
	PipelineURL string

	// ResolveTimeout bounds one resolution request. Default: 30s
	ResolveTimeout time.Duration

	// TelemetryEndpoint is the analytics collector URL. If empty,
	// telemetry events are discarded.
	TelemetryEndpoint string

	// StorePath is the BadgerDB directory for the session store.
	// Default: "./data/rounds"
	StorePath string

	// StoreInMemory runs the session store without a disk footprint.
	// Rounds then survive only as long as the process.
	StoreInMemory bool

	// RoundTTL is how long a stored round stays loadable. Default: 30m
	RoundTTL time.Duration

	// SweepInterval is how often finished and stale machines are swept
	// from the registry. Default: 5m
	SweepInterval time.Duration

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "ownertrace-otel-collector:4317"
	OTelEndpoint string

	// DisableTracing skips the OTLP exporter setup entirely. Used in
	// tests and collector-less deployments.
	DisableTracing bool

	// IngestAPIKey guards POST /v1/rounds when non-empty.
	IngestAPIKey string

	// GinMode sets the Gin framework mode ("debug", "release", "test").
	// Default: uses GIN_MODE env var or "debug"
	GinMode string
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns; per-round mutable state lives inside the registry's machines.
type service struct {
	config        Config
	router        *gin.Engine
	db            *storagebadger.DB
	rounds        store.RoundStore
	client        research.Client
	registry      *protocol.Registry
	sweeper       *ttl.Scheduler
	metrics       *observability.ProtocolMetrics
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new resolver Service with the given configuration.
//
// # Description
//
// New initializes all resolver components:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing (unless disabled)
//  3. Initializes Prometheus metrics
//  4. Opens the BadgerDB session store
//  5. Creates the research pipeline client and telemetry sink
//  6. Builds the state machine registry and its sweep scheduler
//  7. Sets up HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run resolver service
//   - error: Non-nil if initialization fails
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	if !s.config.DisableTracing {
		cleanup, err := s.initTracer()
		if err != nil {
			return nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}
		s.tracerCleanup = cleanup
	}

	s.metrics = observability.InitMetrics()

	if err := s.initStore(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("failed to initialize session store: %w", err)
	}

	s.client = research.NewPipelineClientWithConfig(
		s.config.PipelineURL, s.config.ResolveTimeout)

	var sink telemetry.Sink = telemetry.NopSink{}
	if s.config.TelemetryEndpoint != "" {
		sink = telemetry.NewHTTPSink(s.config.TelemetryEndpoint,
			s.metrics.RecordTelemetryDropped)
	}

	s.registry = protocol.NewRegistry(protocol.Deps{
		Store:   s.rounds,
		Client:  s.client,
		Sink:    sink,
		Metrics: s.metrics,
	})

	// Machines for rounds past their store TTL are unloadable anyway;
	// sweeping at the same horizon keeps the registry bounded.
	s.sweeper = ttl.NewScheduler(s.config.SweepInterval, func() int {
		return s.registry.Sweep(s.config.RoundTTL)
	})
	s.sweeper.Start()

	s.initRouter()

	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting resolver server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12310
	}
	if cfg.PipelineURL == "" {
		cfg.PipelineURL = "http://ownertrace-pipeline:12320"
	}
	if cfg.ResolveTimeout == 0 {
		cfg.ResolveTimeout = 30 * time.Second
	}
	if cfg.StorePath == "" {
		cfg.StorePath = "./data/rounds"
	}
	if cfg.RoundTTL == 0 {
		cfg.RoundTTL = 30 * time.Minute
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "ownertrace-otel-collector:4317"
	}
	return cfg
}

// initTracer initializes OpenTelemetry distributed tracing.
//
// Uses an insecure gRPC connection, appropriate for internal networks.
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("resolver-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initStore opens the BadgerDB session store and wraps it as the
// round store.
func (s *service) initStore() error {
	var (
		db  *storagebadger.DB
		err error
	)
	if s.config.StoreInMemory {
		db, err = storagebadger.OpenInMemory()
	} else {
		cfg := storagebadger.DefaultConfig()
		cfg.Path = s.config.StorePath
		db, err = storagebadger.Open(cfg)
	}
	if err != nil {
		return err
	}

	s.db = db
	s.rounds = store.NewBadgerStore(db, s.config.RoundTTL)
	slog.Info("Session store initialized",
		"path", s.config.StorePath, "in_memory", s.config.StoreInMemory,
		"round_ttl", s.config.RoundTTL.String())
	return nil
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("resolver-service"))

	routes.SetupRoutes(s.router, s.rounds, s.registry, s.config.IngestAPIKey)
}

// cleanup releases all resources held by the service. Called when Run()
// exits or on initialization failure.
func (s *service) cleanup() {
	if s.sweeper != nil {
		s.sweeper.Stop()
	}

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			slog.Warn("session store close error", "error", err)
		}
	}

	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
