// Copyright (C) 2025 OwnerTrace AI (dev@ownertrace.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command resolver starts the OwnerTraceLocal disambiguation resolver
// HTTP server.
//
// This is the main entry point for the containerized resolver service.
// It reads configuration from environment variables and starts the server.
//
// # Environment Variables
//
//   - RESOLVER_PORT: HTTP server port (default: 12310)
//   - RESEARCH_PIPELINE_URL: research pipeline base URL (default: http://ownertrace-pipeline:12320)
//   - RESOLVE_TIMEOUT_SECONDS: per-resolution timeout (default: 30)
//   - RESOLVER_STORE_PATH: BadgerDB directory for rounds (default: ./data/rounds)
//   - RESOLVER_ROUND_TTL_MINUTES: round expiry horizon (default: 30)
//   - RESOLVER_TELEMETRY_URL: analytics collector URL (optional)
//   - RESOLVER_INGEST_API_KEY: bearer key guarding round ingest (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (default: ownertrace-otel-collector:4317)
//
// # Usage
//
//	# Build
//	go build -o resolver ./cmd/resolver
//
//	# Run
//	./resolver
//
//	# Or via container
//	podman-compose up resolver
package main

import (
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/OwnerTraceAI/OwnerTraceLocal/services/resolver"
)

func main() {
	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// Build configuration from environment variables
	cfg := resolver.Config{
		Port:              getEnvInt("RESOLVER_PORT", 12310),
		PipelineURL:       getEnvString("RESEARCH_PIPELINE_URL", "http://ownertrace-pipeline:12320"),
		ResolveTimeout:    time.Duration(getEnvInt("RESOLVE_TIMEOUT_SECONDS", 30)) * time.Second,
		StorePath:         getEnvString("RESOLVER_STORE_PATH", "./data/rounds"),
		RoundTTL:          time.Duration(getEnvInt("RESOLVER_ROUND_TTL_MINUTES", 30)) * time.Minute,
		TelemetryEndpoint: os.Getenv("RESOLVER_TELEMETRY_URL"),
		IngestAPIKey:      os.Getenv("RESOLVER_INGEST_API_KEY"),
		OTelEndpoint:      getEnvString("OTEL_EXPORTER_OTLP_ENDPOINT", "ownertrace-otel-collector:4317"),
	}

	slog.Info("Starting resolver",
		"port", cfg.Port,
		"pipeline_url", cfg.PipelineURL,
		"store_path", cfg.StorePath,
	)

	svc, err := resolver.New(cfg)
	if err != nil {
		log.Fatalf("Failed to create resolver: %v", err)
	}

	// Run the server (blocks until shutdown)
	if err := svc.Run(); err != nil {
		log.Fatalf("Resolver error: %v", err)
	}
}

// getEnvString returns the environment variable value or a default.
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns the environment variable as int or a default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
