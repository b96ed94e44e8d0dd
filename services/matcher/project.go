// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package matcher ranks support programs against a startup project. It
// retrieves candidates from the vector index, scores each one with an
// LLM plus rule signals, calibrates the batch, and persists the ranked
// rows.
package matcher

import (
	"strings"

	"github.com/daleelhub/daleel/services/catalog"
)

// Project is the startup project being matched.
type Project struct {
	ID          string
	Slug        string
	Name        string
	Description string
	Stage       string
	Sectors     []string
	Goals       []string
	FundingNeed float64
}

// stageAliases maps common stage names onto the canonical ladder,
// including the hamza-less spelling of إطلاق.
var stageAliases = map[string]string{
	"idea":         "فكرة",
	"mvp":          "MVP",
	"launch":       "إطلاق",
	"go-live":      "إطلاق",
	"اطلاق":        "إطلاق",
	"operating":    "تشغيل",
	"production":   "تشغيل",
	"early growth": "نمو مبكر",
	"early_growth": "نمو مبكر",
	"growth":       "نمو",
	"expansion":    "توسع",
	"scale":        "توسع",
}

// NormalizeStage resolves a stage value to its canonical ladder name.
// Canonical names pass through; known aliases are translated; anything
// else reports false.
func NormalizeStage(stage string) (string, bool) {
	stage = strings.TrimSpace(stage)
	if _, ok := catalog.StageIndex(stage); ok {
		return stage, true
	}
	if canonical, ok := stageAliases[strings.ToLower(stage)]; ok {
		return canonical, true
	}
	return "", false
}
