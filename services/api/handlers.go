// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package api exposes the matcher over HTTP: project intake, match runs,
// and readback of persisted results.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/daleelhub/daleel/services/catalog"
	"github.com/daleelhub/daleel/services/matcher"
	"github.com/daleelhub/daleel/services/matchstore"
)

// MatchRunner runs one full match. Satisfied by *matcher.Service.
type MatchRunner interface {
	RunMatch(ctx context.Context, p matcher.Project, topK int, calibration string) (matcher.RunOutcome, error)
}

// ProjectStore is the persistence surface the handlers need. Satisfied
// by *matchstore.ProjectStore.
type ProjectStore interface {
	CreateProject(ctx context.Context, p matcher.Project) (matcher.Project, error)
	GetProject(ctx context.Context, id string) (matcher.Project, error)
	LatestMatches(ctx context.Context, projectID string, limit int) ([]matchstore.MatchRecord, error)
}

// Defaults carries the per-request fallbacks from configuration.
type Defaults struct {
	TopK        int
	Calibration string
}

// Handlers implements the HTTP endpoints.
type Handlers struct {
	projects ProjectStore
	runner   MatchRunner
	defaults Defaults
	logger   *slog.Logger
}

// NewHandlers creates the handler set. A nil logger uses slog.Default.
func NewHandlers(projects ProjectStore, runner MatchRunner, defaults Defaults, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults.TopK < 1 {
		defaults.TopK = 5
	}
	return &Handlers{projects: projects, runner: runner, defaults: defaults, logger: logger}
}

// ProjectIn is the intake shape for a new project.
type ProjectIn struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description"`
	Sectors     []string `json:"sectors" binding:"required,min=1"`
	Stage       string   `json:"stage" binding:"required"`
	FundingNeed float64  `json:"funding_need" binding:"gte=0"`
	Goals       []string `json:"goals"`
	TopK        int      `json:"top_k"`
	Calibration string   `json:"calibration"`
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleCreateProject stores a project and immediately runs a match for
// it. The response is {project, matching: {inserted, run_at, error?}}.
// A matching failure does not fail the create: the project row is
// already committed, so the matching object carries the error instead.
func (h *Handlers) HandleCreateProject(c *gin.Context) {
	var in ProjectIn
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	stage, ok := matcher.NormalizeStage(in.Stage)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":        "unknown stage",
			"stage":        in.Stage,
			"valid_stages": catalog.StageLadder,
		})
		return
	}

	project, err := h.projects.CreateProject(c.Request.Context(), matcher.Project{
		Name:        in.Name,
		Description: in.Description,
		Stage:       stage,
		Sectors:     in.Sectors,
		Goals:       in.Goals,
		FundingNeed: in.FundingNeed,
	})
	if err != nil {
		h.logger.Error("creating project failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create project"})
		return
	}

	topK := in.TopK
	if topK < 1 {
		topK = h.defaults.TopK
	}
	calibration := in.Calibration
	if calibration == "" {
		calibration = h.defaults.Calibration
	}

	out, err := h.runner.RunMatch(c.Request.Context(), project, topK, calibration)
	matching := gin.H{"inserted": out.Inserted}
	if out.RunAt != "" {
		matching["run_at"] = out.RunAt
	}
	if err != nil {
		if errors.Is(err, matcher.ErrPersist) {
			h.logger.Warn("match rows did not persist after create",
				slog.String("project_id", project.ID), slog.String("error", err.Error()))
		} else {
			h.logger.Error("match run after create failed",
				slog.String("project_id", project.ID), slog.String("error", err.Error()))
		}
		matching["error"] = err.Error()
	}
	c.JSON(http.StatusCreated, gin.H{"project": projectOut(project), "matching": matching})
}

// HandleRunMatch reruns the match for an existing project.
func (h *Handlers) HandleRunMatch(c *gin.Context) {
	projectID := c.Param("project_id")

	project, err := h.projects.GetProject(c.Request.Context(), projectID)
	if err != nil {
		if errors.Is(err, matchstore.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found", "project_id": projectID})
			return
		}
		h.logger.Error("loading project failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load project"})
		return
	}

	topK := h.defaults.TopK
	if v := c.Query("top_k"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "top_k must be a positive integer"})
			return
		}
		topK = n
	}
	calibration := c.Query("calibration")
	if calibration == "" {
		calibration = h.defaults.Calibration
	}

	out, err := h.runner.RunMatch(c.Request.Context(), project, topK, calibration)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"payload":  out.Payload,
			"inserted": out.Inserted,
			"run_at":   out.RunAt,
		})
	case errors.Is(err, matcher.ErrPersist):
		// run completed, rows did not land
		c.JSON(http.StatusOK, gin.H{
			"payload":       out.Payload,
			"inserted":      0,
			"run_at":        out.RunAt,
			"persist_error": err.Error(),
		})
	default:
		h.logger.Error("match run failed",
			slog.String("project_id", projectID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "match run failed"})
	}
}

// HandleLatestMatches returns the persisted rows of the project's most
// recent run.
func (h *Handlers) HandleLatestMatches(c *gin.Context) {
	projectID := c.Param("project_id")

	limit := 10
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	records, err := h.projects.LatestMatches(c.Request.Context(), projectID, limit)
	if err != nil {
		h.logger.Error("loading matches failed",
			slog.String("project_id", projectID), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load matches"})
		return
	}
	if records == nil {
		records = []matchstore.MatchRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"project_id": projectID, "matches": records})
}

func projectOut(p matcher.Project) gin.H {
	return gin.H{
		"id":           p.ID,
		"slug":         p.Slug,
		"name":         p.Name,
		"description":  p.Description,
		"stage":        p.Stage,
		"sectors":      p.Sectors,
		"goals":        p.Goals,
		"funding_need": p.FundingNeed,
	}
}
