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
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/daleelhub/daleel/services/catalog"
	"github.com/daleelhub/daleel/services/index"
)

// Ranker scores retrieved candidates. Satisfied by *Scorer.
type Ranker interface {
	Rank(ctx context.Context, p Project, candidates []index.Candidate, weights Weights) ([]RankedResult, int, error)
}

// MatchRun is the condensed shape handed to the persistence sink.
type MatchRun struct {
	ProjectID   string
	ProjectSlug string
	RunAt       string
	Results     []PackedResult
}

// ResultSink persists ranked rows. The returned count is the number of
// rows actually verified in storage.
type ResultSink interface {
	InsertMatchRows(ctx context.Context, run MatchRun) (int, error)
}

// PackedResult is one ranked program in the response payload and the
// persisted rows.
type PackedResult struct {
	Rank         int          `json:"rank"`
	ProgramID    string       `json:"program_id"`
	ProgramName  string       `json:"program_name"`
	SourceURL    string       `json:"source_url,omitempty"`
	Scores       ResultScores `json:"scores"`
	Subscores    Subscores    `json:"subscores"`
	Reasons      []string     `json:"reasons"`
	Improvements []string     `json:"improvements"`
	Evidence     Evidence     `json:"evidence"`
	Violations   []Violation  `json:"violations"`
}

// ResultScores extends the blended scores with the raw retrieval
// distance for the persisted row.
type ResultScores struct {
	Rule        float64 `json:"rule"`
	Content     float64 `json:"content"`
	Goal        float64 `json:"goal"`
	FinalRaw    float64 `json:"final_raw"`
	FinalCal    float64 `json:"final_cal"`
	RawDistance float64 `json:"raw_distance"`
}

// Evidence quotes up to two snippets from each side of the match.
type Evidence struct {
	Project []string `json:"project"`
	Program []string `json:"program"`
}

// Payload is the full response of one match run.
type Payload struct {
	ProjectRef ProjectRef     `json:"project_ref"`
	Project    ProjectInfo    `json:"project"`
	Meta       Meta           `json:"meta"`
	Results    []PackedResult `json:"results"`
}

type ProjectRef struct {
	ID   string `json:"id"`
	Slug string `json:"slug,omitempty"`
}

type ProjectInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Sectors     []string `json:"sectors"`
	Stage       string   `json:"stage"`
	FundingNeed float64  `json:"funding_need"`
	Goals       []string `json:"goals"`
}

type Meta struct {
	RunAt       string           `json:"run_at"`
	Weights     Weights          `json:"weights"`
	Retrieval   RetrievalMeta    `json:"retrieval"`
	Calibration *CalibrationMeta `json:"calibration"`
	Models      ModelsMeta       `json:"models"`
	Diag        DiagMeta         `json:"diag"`
}

type RetrievalMeta struct {
	Collection string `json:"collection"`
	Metric     string `json:"metric"`
	KRequested int    `json:"k_requested"`
}

type CalibrationMeta struct {
	Strategy string `json:"strategy"`
}

type ModelsMeta struct {
	LLM       string `json:"llm"`
	Embedding string `json:"embedding"`
}

type DiagMeta struct {
	Retrieved   int `json:"retrieved"`
	RankedTotal int `json:"ranked_total"`
	Dropped     int `json:"dropped"`
}

// RunOutcome is the result of one match run: the response payload plus
// the verified persisted-row count.
type RunOutcome struct {
	Payload  Payload
	Inserted int
	RunAt    string
}

// Options are the run-invariant settings of a Service.
type Options struct {
	Collection          string
	LLMModel            string
	EmbedModel          string
	Weights             Weights
	RetrievalMultiplier int
	RunTimeout          time.Duration // overall deadline for one RunMatch
}

// Service wires retrieval, scoring, calibration, and persistence into
// the single RunMatch operation.
type Service struct {
	retriever Retriever
	ranker    Ranker
	sink      ResultSink // nil disables persistence
	opts      Options
	logger    *slog.Logger
}

// NewService creates a Service. sink may be nil when persistence is not
// configured; a nil logger uses slog.Default.
func NewService(retriever Retriever, ranker Ranker, sink ResultSink, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RetrievalMultiplier < 1 {
		opts.RetrievalMultiplier = 10
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = 2 * time.Minute
	}
	return &Service{retriever: retriever, ranker: ranker, sink: sink, opts: opts, logger: logger}
}

// retrievalK widens topK into the candidate pool size, never below 50.
func (s *Service) retrievalK(topK int) int {
	k := topK * s.opts.RetrievalMultiplier
	if k < 50 {
		k = 50
	}
	return k
}

// RunMatch compares the project against the whole catalog and returns
// the top-K programs with scores, reasons, and violations. The run never
// hard-gates: weak fits come back with low scores and violations instead
// of disappearing.
//
// A persistence failure does not void the run: the outcome still carries
// the full payload, Inserted stays 0, and the returned error wraps
// ErrPersist.
func (s *Service) RunMatch(ctx context.Context, p Project, topK int, calibration string) (RunOutcome, error) {
	tracer := otel.Tracer("daleel/matcher")
	ctx, span := tracer.Start(ctx, "matcher.run_match")
	defer span.End()

	// one deadline bounds retrieval, every judge call, and persistence
	ctx, cancel := context.WithTimeout(ctx, s.opts.RunTimeout)
	defer cancel()
	span.SetAttributes(
		attribute.String("project.id", p.ID),
		attribute.Int("match.top_k", topK),
	)

	start := time.Now()
	runID := uuid.NewString()
	logger := s.logger.With(slog.String("run_id", runID), slog.String("project_id", p.ID))

	kReq := s.retrievalK(topK)
	cands, err := RetrieveCandidates(ctx, s.retriever, p, kReq, logger)
	if err != nil {
		matchRunsTotal.WithLabelValues("index_error").Inc()
		return RunOutcome{}, err
	}

	ranked, dropped, err := s.ranker.Rank(ctx, p, cands, s.opts.Weights)
	if err != nil {
		matchRunsTotal.WithLabelValues("score_error").Inc()
		return RunOutcome{}, err
	}
	if dropped > 0 {
		logger.Warn("candidates dropped during scoring", slog.Int("dropped", dropped))
	}

	rankedTop := ranked
	if len(rankedTop) > topK {
		rankedTop = rankedTop[:topK]
	}
	ApplyCalibration(rankedTop, calibration)

	runAt := time.Now().UTC().Format("2006-01-02T15:04:05.000000Z07:00")
	results := make([]PackedResult, 0, len(rankedTop))
	for _, r := range rankedTop {
		results = append(results, packResult(r, p))
	}

	var calMeta *CalibrationMeta
	if calibration != "" && calibration != "none" {
		calMeta = &CalibrationMeta{Strategy: calibration}
	}

	payload := Payload{
		ProjectRef: ProjectRef{ID: p.ID, Slug: p.Slug},
		Project: ProjectInfo{
			Name:        p.Name,
			Description: p.Description,
			Sectors:     p.Sectors,
			Stage:       p.Stage,
			FundingNeed: p.FundingNeed,
			Goals:       p.Goals,
		},
		Meta: Meta{
			RunAt:       runAt,
			Weights:     s.opts.Weights,
			Retrieval:   RetrievalMeta{Collection: s.opts.Collection, Metric: "cosine", KRequested: kReq},
			Calibration: calMeta,
			Models:      ModelsMeta{LLM: s.opts.LLMModel, Embedding: s.opts.EmbedModel},
			Diag:        DiagMeta{Retrieved: len(cands), RankedTotal: len(ranked), Dropped: dropped},
		},
		Results: results,
	}

	outcome := RunOutcome{Payload: payload, RunAt: runAt}

	if s.sink != nil && len(results) > 0 {
		inserted, err := s.sink.InsertMatchRows(ctx, MatchRun{
			ProjectID:   p.ID,
			ProjectSlug: p.Slug,
			RunAt:       runAt,
			Results:     results,
		})
		if err != nil {
			matchRunsTotal.WithLabelValues("persist_error").Inc()
			matchRunDuration.Observe(time.Since(start).Seconds())
			logger.Error("persisting match rows failed", slog.String("error", err.Error()))
			return outcome, fmt.Errorf("%w: %v", ErrPersist, err)
		}
		outcome.Inserted = inserted
		matchRowsInsertedTotal.Add(float64(inserted))
	}

	matchRunsTotal.WithLabelValues("ok").Inc()
	matchRunDuration.Observe(time.Since(start).Seconds())
	logger.Info("match run finished",
		slog.Int("results", len(results)),
		slog.Int("inserted", outcome.Inserted),
		slog.String("run_at", runAt),
	)
	return outcome, nil
}

// packResult flattens one ranked candidate into the payload shape.
func packResult(r RankedResult, p Project) PackedResult {
	md := r.Candidate.Doc.Metadata
	if md == nil {
		md = map[string]any{}
	}
	src := firstNonEmpty(metaStr(md, "source_path"), metaStr(md, "source"))
	programID, programName, sourceURL := catalog.IdentifyProgram(md, src)

	reasons := r.Reasons
	if reasons == nil {
		reasons = []string{}
	}
	improvements := r.Improvements
	if improvements == nil {
		improvements = []string{}
	}

	return PackedResult{
		Rank:        r.Rank,
		ProgramID:   programID,
		ProgramName: programName,
		SourceURL:   sourceURL,
		Scores: ResultScores{
			Rule:        r.Scores.Rule,
			Content:     r.Scores.Content,
			Goal:        r.Scores.Goal,
			FinalRaw:    r.Scores.FinalRaw,
			FinalCal:    r.Scores.FinalCal,
			RawDistance: r.RawDistance,
		},
		Subscores:    r.Subscores,
		Reasons:      reasons,
		Improvements: improvements,
		Evidence: Evidence{
			Project: evidencePair(p.Description, p.Goals),
			Program: evidencePair(firstNonEmpty(metaStr(md, "objectives"), metaStr(md, "description")), metaStrList(md, "goals")),
		},
		Violations: DeriveViolations(md, p),
	}
}

// evidencePair builds up to two snippets: a description-like text and
// the first five goals joined.
func evidencePair(text string, goals []string) []string {
	out := []string{}
	if text != "" {
		out = append(out, text)
	}
	if len(goals) > 5 {
		goals = goals[:5]
	}
	if joined := strings.Join(goals, ", "); joined != "" {
		out = append(out, joined)
	}
	return out
}
