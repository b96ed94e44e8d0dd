// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config loads process configuration from environment variables.
//
// All settings are read once at startup. Missing required settings are
// reported as a single error so operators see every problem in one pass
// instead of fixing them one restart at a time.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"
)

// ErrConfig marks a fatal configuration problem detected at startup.
var ErrConfig = errors.New("config: invalid configuration")

// Calibration strategy names accepted by MATCH_CALIBRATION.
const (
	CalibrationRelativeMinMax = "relative_minmax"
	CalibrationAffineFloor    = "affine_floor"
	CalibrationSigmoid        = "sigmoid"
	CalibrationNone           = "none"
)

// Config holds every runtime setting for the matcher service and the
// indexer CLI.
type Config struct {
	// HTTP server.
	Port      int
	AuthToken string // empty disables the bearer-token guard

	// Vector index.
	IndexPath  string
	Collection string
	EmbedModel string

	// LLM.
	LLMModel       string
	LLMSeed        int
	LLMTemperature float64
	OpenAIAPIKey   string

	// Matching.
	TopK                int
	Calibration         string
	RetrievalMultiplier int
	ScoreConcurrency    int
	RunTimeout          time.Duration
	WeightRule          float64
	WeightContent       float64
	WeightGoal          float64

	// Persistence.
	DatabaseURL   string
	MatchTable    string
	ProjectsTable string

	// Catalog sources (indexer CLI).
	DataPath string
}

// Load reads the full configuration from the environment.
//
// Required: OPENAI_API_KEY. DATABASE_URL is required unless requireDB is
// false (the indexer does not touch Postgres). Every violation found is
// joined into the returned error.
func Load(requireDB bool) (*Config, error) {
	cfg := &Config{
		Port:                envInt("PORT", 8080),
		AuthToken:           os.Getenv("API_AUTH_TOKEN"),
		IndexPath:           envStr("INDEX_PATH", "chroma_rag"),
		Collection:          envStr("COLLECTION_NAME", "programs_index"),
		EmbedModel:          envStr("EMBED_MODEL", "text-embedding-3-small"),
		LLMModel:            envStr("LLM_MODEL", "gpt-4o-mini"),
		LLMSeed:             envInt("LLM_SEED", 42),
		LLMTemperature:      envFloat("LLM_TEMPERATURE", 0),
		OpenAIAPIKey:        os.Getenv("OPENAI_API_KEY"),
		TopK:                envInt("MATCH_TOP_K", 5),
		Calibration:         envStr("MATCH_CALIBRATION", CalibrationRelativeMinMax),
		RetrievalMultiplier: envInt("MATCH_RETRIEVAL_MULTIPLIER", 10),
		ScoreConcurrency:    envInt("MATCH_SCORE_CONCURRENCY", 8),
		RunTimeout:          time.Duration(envInt("MATCH_RUN_TIMEOUT", 120)) * time.Second,
		DatabaseURL:         os.Getenv("DATABASE_URL"),
		MatchTable:          envStr("MATCH_TABLE", "match_results"),
		ProjectsTable:       envStr("PROJECTS_TABLE", "projects"),
		DataPath:            envStr("DATA_PATH", "data/programs"),
	}

	var problems []string

	if cfg.OpenAIAPIKey == "" {
		problems = append(problems, "OPENAI_API_KEY is required")
	}
	if requireDB && cfg.DatabaseURL == "" {
		problems = append(problems, "DATABASE_URL is required")
	}

	switch cfg.Calibration {
	case CalibrationRelativeMinMax, CalibrationAffineFloor, CalibrationSigmoid, CalibrationNone, "":
	default:
		problems = append(problems, fmt.Sprintf("MATCH_CALIBRATION %q is not a known strategy", cfg.Calibration))
	}
	if cfg.Calibration == "" {
		cfg.Calibration = CalibrationNone
	}

	if cfg.TopK < 1 {
		problems = append(problems, "MATCH_TOP_K must be >= 1")
	}
	if cfg.RetrievalMultiplier < 1 {
		problems = append(problems, "MATCH_RETRIEVAL_MULTIPLIER must be >= 1")
	}
	if cfg.ScoreConcurrency < 1 {
		problems = append(problems, "MATCH_SCORE_CONCURRENCY must be >= 1")
	}
	if cfg.RunTimeout < time.Second {
		problems = append(problems, "MATCH_RUN_TIMEOUT must be >= 1 (seconds)")
	}

	rule, content, goal, err := parseWeights(os.Getenv("MATCH_WEIGHTS"))
	if err != nil {
		problems = append(problems, err.Error())
	} else {
		cfg.WeightRule, cfg.WeightContent, cfg.WeightGoal = rule, content, goal
	}

	if len(problems) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrConfig, strings.Join(problems, "; "))
	}
	return cfg, nil
}

// RetrievalK returns the candidate pool size for a requested topK,
// applying the multiplier with the 50-candidate floor.
func (c *Config) RetrievalK(topK int) int {
	k := topK * c.RetrievalMultiplier
	if k < 50 {
		k = 50
	}
	return k
}

// parseWeights parses MATCH_WEIGHTS as "rule,content,goal". An empty value
// selects the balanced default (0.45, 0.35, 0.20). The three weights must
// sum to 1.0 within a small tolerance.
func parseWeights(raw string) (rule, content, goal float64, err error) {
	if strings.TrimSpace(raw) == "" {
		return 0.45, 0.35, 0.20, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("MATCH_WEIGHTS must be three comma-separated numbers, got %q", raw)
	}
	vals := make([]float64, 3)
	for i, p := range parts {
		v, perr := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if perr != nil {
			return 0, 0, 0, fmt.Errorf("MATCH_WEIGHTS component %q is not a number", p)
		}
		vals[i] = v
	}
	if sum := vals[0] + vals[1] + vals[2]; math.Abs(sum-1.0) > 1e-6 {
		return 0, 0, 0, fmt.Errorf("MATCH_WEIGHTS must sum to 1.0, got %v", sum)
	}
	return vals[0], vals[1], vals[2], nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}
