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
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/daleelhub/daleel/services/index"
	"github.com/daleelhub/daleel/services/llm"
)

// Weights blends the three score components into final_raw. They must
// sum to 1.
type Weights struct {
	Rule    float64 `json:"rule"`
	Content float64 `json:"content"`
	Goal    float64 `json:"goal"`
}

// Scores are the blended components for one candidate.
type Scores struct {
	Rule     float64 `json:"rule"`
	Content  float64 `json:"content"`
	Goal     float64 `json:"goal"`
	FinalRaw float64 `json:"final_raw"`
	FinalCal float64 `json:"final_cal"`
}

// Subscores are the LLM judgments on the three rule dimensions, each
// rounded to the nearest 0.1.
type Subscores struct {
	Sector  float64 `json:"sector"`
	Stage   float64 `json:"stage"`
	Funding float64 `json:"funding"`
}

// RankedResult is one scored candidate. Rank is 1-based and assigned
// after sorting by FinalRaw descending.
type RankedResult struct {
	Candidate    index.Candidate
	RawDistance  float64
	Scores       Scores
	Subscores    Subscores
	Reasons      []string
	Improvements []string
	Rank         int
}

// Rule dimension weights inside the rule score.
const (
	ruleSectorWeight  = 0.4
	ruleStageWeight   = 0.4
	ruleFundingWeight = 0.2
)

const contentExcerptRunes = 1000

// Scorer judges candidates against a project with a chat model.
//
// Thread Safety: Scorer is safe for concurrent use; Rank itself fans the
// candidates out over a bounded worker pool.
type Scorer struct {
	chat        llm.ChatClient
	seed        int
	temperature float64
	concurrency int
	logger      *slog.Logger
}

// NewScorer creates a Scorer. Concurrency below 1 is raised to 1; a nil
// logger uses slog.Default.
func NewScorer(chat llm.ChatClient, seed int, temperature float64, concurrency int, logger *slog.Logger) *Scorer {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scorer{chat: chat, seed: seed, temperature: temperature, concurrency: concurrency, logger: logger}
}

// programText condenses a candidate's metadata plus a content excerpt
// into the text the judge sees.
func programText(c index.Candidate) string {
	md := c.Doc.Metadata
	name := firstNonEmpty(metaStr(md, "name"), metaStr(md, "program_name"), metaStr(md, "title"), "Program")

	lines := []string{
		"name: " + name,
		"description: " + metaStr(md, "description"),
		"objectives: " + metaStr(md, "objectives"),
	}
	appendListLine := func(label, key string) {
		if vals := metaStrList(md, key); len(vals) > 0 {
			lines = append(lines, label+": "+strings.Join(vals, ", "))
		}
	}
	appendListLine("goals", "goals")
	appendListLine("features", "features")
	appendListLine("eligibility_must", "eligibility_must")
	appendListLine("sectors", "sector_tags")
	appendListLine("stages", "stage_tags")

	url := firstNonEmpty(metaStr(md, "url"), metaStr(md, "source_url"))
	path := firstNonEmpty(metaStr(md, "source_path"), metaStr(md, "source"))
	if url != "" {
		lines = append(lines, "url: "+url)
	} else if path != "" {
		lines = append(lines, "source_path: "+path)
	}

	if c.Doc.Content != "" {
		excerpt := []rune(c.Doc.Content)
		if len(excerpt) > contentExcerptRunes {
			excerpt = excerpt[:contentExcerptRunes]
		}
		lines = append(lines, "content_excerpt: "+string(excerpt))
	}
	return strings.Join(lines, "\n")
}

// scoreOne judges a single candidate.
func (s *Scorer) scoreOne(ctx context.Context, p Project, c index.Candidate, weights Weights) (RankedResult, error) {
	reply, err := s.chat.Chat(ctx, []llm.Message{
		{Role: "system", Content: scoringSystemPrompt},
		{Role: "user", Content: buildScoringUserPrompt(p, programText(c))},
	}, llm.GenerationParams{
		Temperature: &s.temperature,
		Seed:        &s.seed,
		JSONObject:  true,
	})
	if err != nil {
		return RankedResult{}, &ScoreError{ProgramID: c.Doc.ID, Err: err}
	}

	ev, err := parseEvaluation(reply)
	if err != nil {
		return RankedResult{}, &ScoreError{ProgramID: c.Doc.ID, Err: err}
	}

	sector := roundTenth(ev.SectorMatch)
	stage := roundTenth(ev.StageMatch)
	funding := roundTenth(ev.FundingMatch)
	goal := clamp01(ev.GoalAlignment)

	rule := ruleSectorWeight*sector + ruleStageWeight*stage + ruleFundingWeight*funding
	content := contentFromDistance(c.Distance)
	finalRaw := weights.Rule*rule + weights.Content*content + weights.Goal*goal

	return RankedResult{
		Candidate:    c,
		RawDistance:  c.Distance,
		Scores:       Scores{Rule: rule, Content: content, Goal: goal, FinalRaw: finalRaw, FinalCal: finalRaw},
		Subscores:    Subscores{Sector: sector, Stage: stage, Funding: funding},
		Reasons:      ev.Reasons,
		Improvements: ev.Improvements,
	}, nil
}

// Rank scores every candidate concurrently and returns them sorted by
// FinalRaw descending with 1-based ranks. A candidate whose judgment
// fails is dropped and counted, not fatal; ties keep retrieval order.
func (s *Scorer) Rank(ctx context.Context, p Project, candidates []index.Candidate, weights Weights) ([]RankedResult, int, error) {
	if len(candidates) == 0 {
		return nil, 0, nil
	}

	type slot struct {
		result RankedResult
		ok     bool
	}
	slots := make([]slot, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.concurrency)

	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			res, err := s.scoreOne(gctx, p, cand, weights)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.logger.Warn("dropping candidate after scoring failure",
					slog.String("program_id", cand.Doc.ID),
					slog.String("error", err.Error()),
				)
				candidatesDroppedTotal.Inc()
				return nil
			}
			slots[i] = slot{result: res, ok: true}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, fmt.Errorf("matcher: scoring aborted: %w", err)
	}

	ranked := make([]RankedResult, 0, len(candidates))
	dropped := 0
	for _, sl := range slots {
		if sl.ok {
			ranked = append(ranked, sl.result)
		} else {
			dropped++
		}
	}

	sort.SliceStable(ranked, func(a, b int) bool {
		return ranked[a].Scores.FinalRaw > ranked[b].Scores.FinalRaw
	})
	for i := range ranked {
		ranked[i].Rank = i + 1
	}
	candidatesScoredTotal.Add(float64(len(ranked)))
	return ranked, dropped, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
