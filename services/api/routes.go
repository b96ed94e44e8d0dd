// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package api

import "github.com/gin-gonic/gin"

// RegisterRoutes wires the API endpoints onto the given group.
//
// Endpoints:
//
//	GET  /health                          liveness probe
//	POST /projects                        create a project and run a match
//	POST /projects/:project_id/run_match  rerun the match for a project
//	GET  /projects/:project_id/matches    latest persisted run, by rank
func RegisterRoutes(rg *gin.RouterGroup, h *Handlers) {
	rg.GET("/health", h.HandleHealth)

	projects := rg.Group("/projects")
	{
		projects.POST("", h.HandleCreateProject)
		projects.POST("/:project_id/run_match", h.HandleRunMatch)
		projects.GET("/:project_id/matches", h.HandleLatestMatches)
	}
}
