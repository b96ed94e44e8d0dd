// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command daleel starts the program matcher API server.
//
// The server recommends Arabic-language support programs to startup
// projects: vector retrieval over the indexed catalog, rule scoring,
// an LLM judge, calibration, and persisted ranked results.
//
// Usage:
//
//	go run ./cmd/daleel
//	go run ./cmd/daleel -port 9090
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/health
//
//	# Create a project and match it
//	curl -X POST http://localhost:8080/v1/projects \
//	  -H "Content-Type: application/json" \
//	  -d '{"name": "صحتي", "description": "منصة صحية", "sectors": ["الصحة"], "stage": "mvp", "funding_need": 500000}'
//
//	# Rerun the match
//	curl -X POST "http://localhost:8080/v1/projects/<id>/run_match?top_k=5"
//
//	# Read back the latest run
//	curl "http://localhost:8080/v1/projects/<id>/matches?limit=5"
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/daleelhub/daleel/services/api"
	"github.com/daleelhub/daleel/services/config"
	"github.com/daleelhub/daleel/services/index"
	"github.com/daleelhub/daleel/services/llm"
	"github.com/daleelhub/daleel/services/matcher"
	"github.com/daleelhub/daleel/services/matchstore"
)

func main() {
	port := flag.Int("port", 0, "Port to listen on (overrides PORT)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	// .env is optional; real deployments use the environment directly.
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	cfg, err := config.Load(true)
	if err != nil {
		slog.Error("Configuration failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}

	chat, err := llm.NewOpenAIClient()
	if err != nil {
		slog.Error("LLM client failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	embedder, err := llm.NewOpenAIEmbedder()
	if err != nil {
		slog.Error("Embedder failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	store, err := index.Open(cfg.IndexPath, cfg.Collection, embedder, logger)
	if err != nil {
		slog.Error("Opening vector index failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	ctx := context.Background()
	db, err := matchstore.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Connecting to Postgres failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()

	matchStore := matchstore.NewStore(db, cfg.MatchTable, logger)
	projectStore := matchstore.NewProjectStore(db, cfg.ProjectsTable, cfg.MatchTable, logger)

	scorer := matcher.NewScorer(chat, cfg.LLMSeed, cfg.LLMTemperature, cfg.ScoreConcurrency, logger)
	service := matcher.NewService(store, scorer, matchStore, matcher.Options{
		Collection:          cfg.Collection,
		LLMModel:            chat.Model(),
		EmbedModel:          embedder.Model(),
		Weights:             matcher.Weights{Rule: cfg.WeightRule, Content: cfg.WeightContent, Goal: cfg.WeightGoal},
		RetrievalMultiplier: cfg.RetrievalMultiplier,
		RunTimeout:          cfg.RunTimeout,
	}, logger)

	handlers := api.NewHandlers(projectStore, service, api.Defaults{
		TopK:        cfg.TopK,
		Calibration: cfg.Calibration,
	}, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("daleel-matcher"))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	v1.Use(api.AuthMiddleware(cfg.AuthToken))
	api.RegisterRoutes(v1, handlers)

	// Graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down server...")
		store.Close()
		db.Close()
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("Starting daleel matcher API",
		slog.String("address", addr),
		slog.String("collection", cfg.Collection),
		slog.String("llm_model", chat.Model()),
		slog.String("embed_model", embedder.Model()),
	)
	if err := router.Run(addr); err != nil {
		slog.Error("Server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
