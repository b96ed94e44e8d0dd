// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/daleelhub/daleel/services/index"
)

// Retriever answers similarity queries over the program index.
// Satisfied by *index.Store.
type Retriever interface {
	SimilaritySearchWithScore(ctx context.Context, query string, k int) ([]index.Candidate, error)
}

// BuildQueryText renders a project as the retrieval query. The layout is
// fixed because the indexed documents carry the same field labels.
func BuildQueryText(p Project) string {
	funding := ""
	if p.FundingNeed != 0 {
		funding = strconv.FormatFloat(p.FundingNeed, 'f', -1, 64)
	}
	return fmt.Sprintf("%s\n%s\nSectors: %s\nStage: %s\nFundingNeed:%s\nGoals:%s",
		strings.TrimSpace(p.Name),
		strings.TrimSpace(p.Description),
		strings.Join(p.Sectors, ", "),
		p.Stage,
		funding,
		strings.Join(p.Goals, ", "),
	)
}

// RetrieveCandidates runs the broad similarity search for a project and
// logs the distance spread, which is the main signal when tuning the
// index.
func RetrieveCandidates(ctx context.Context, r Retriever, p Project, k int, logger *slog.Logger) ([]index.Candidate, error) {
	if logger == nil {
		logger = slog.Default()
	}

	cands, err := r.SimilaritySearchWithScore(ctx, BuildQueryText(p), k)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", ErrIndex, err)
	}

	if len(cands) == 0 {
		logger.Warn("retrieval returned no candidates", slog.Int("k", k))
		return cands, nil
	}

	min, max := cands[0].Distance, cands[0].Distance
	sum := 0.0
	for _, c := range cands {
		if c.Distance < min {
			min = c.Distance
		}
		if c.Distance > max {
			max = c.Distance
		}
		sum += c.Distance
	}
	logger.Debug("retrieval finished",
		slog.Int("got", len(cands)),
		slog.Float64("dist_min", min),
		slog.Float64("dist_avg", sum/float64(len(cands))),
		slog.Float64("dist_max", max),
	)
	return cands, nil
}
