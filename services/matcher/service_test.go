// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/daleelhub/daleel/services/config"
	"github.com/daleelhub/daleel/services/index"
)

type fakeRetriever struct {
	cands []index.Candidate
	err   error
	gotK  int
	gotQ  string
}

func (f *fakeRetriever) SimilaritySearchWithScore(_ context.Context, query string, k int) ([]index.Candidate, error) {
	f.gotK, f.gotQ = k, query
	return f.cands, f.err
}

// passthroughRanker scores candidates by 1-distance without an LLM.
type passthroughRanker struct {
	dropped int
}

func (r *passthroughRanker) Rank(_ context.Context, _ Project, cands []index.Candidate, _ Weights) ([]RankedResult, int, error) {
	out := make([]RankedResult, 0, len(cands))
	for _, c := range cands {
		final := contentFromDistance(c.Distance)
		out = append(out, RankedResult{
			Candidate:   c,
			RawDistance: c.Distance,
			Scores:      Scores{Content: final, FinalRaw: final, FinalCal: final},
		})
	}
	// candidates arrive distance-ascending, so this is already sorted
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, r.dropped, nil
}

type fakeSink struct {
	got      MatchRun
	inserted int
	err      error
	calls    int
}

func (f *fakeSink) InsertMatchRows(_ context.Context, run MatchRun) (int, error) {
	f.calls++
	f.got = run
	return f.inserted, f.err
}

func testOptions() Options {
	return Options{
		Collection:          "programs_index",
		LLMModel:            "gpt-4o-mini",
		EmbedModel:          "text-embedding-3-small",
		Weights:             Weights{Rule: 0.45, Content: 0.35, Goal: 0.20},
		RetrievalMultiplier: 10,
	}
}

func testProject() Project {
	return Project{
		ID:          "proj-1",
		Slug:        "sihati",
		Name:        "صحتي",
		Description: "منصة صحة رقمية",
		Stage:       "MVP",
		Sectors:     []string{"الصحة"},
		Goals:       []string{"توسيع المستخدمين"},
		FundingNeed: 500000,
	}
}

func TestRunMatch_HappyPath(t *testing.T) {
	retr := &fakeRetriever{cands: []index.Candidate{
		candidate("a", "برنامج أ", 0.2),
		candidate("b", "برنامج ب", 0.4),
		candidate("c", "برنامج ج", 0.6),
	}}
	sink := &fakeSink{inserted: 2}
	svc := NewService(retr, &passthroughRanker{}, sink, testOptions(), nil)

	out, err := svc.RunMatch(context.Background(), testProject(), 2, config.CalibrationNone)
	if err != nil {
		t.Fatalf("RunMatch failed: %v", err)
	}

	if retr.gotK != 50 {
		t.Errorf("retrieval k = %d, want floor 50 for top_k=2", retr.gotK)
	}
	if !strings.Contains(retr.gotQ, "Sectors: الصحة") || !strings.Contains(retr.gotQ, "FundingNeed:500000") {
		t.Errorf("query text malformed:\n%s", retr.gotQ)
	}

	if len(out.Payload.Results) != 2 {
		t.Fatalf("results = %d, want top_k", len(out.Payload.Results))
	}
	if out.Payload.Results[0].ProgramID != "a" || out.Payload.Results[0].Rank != 1 {
		t.Errorf("first result = %+v", out.Payload.Results[0])
	}
	if out.Inserted != 2 {
		t.Errorf("inserted = %d", out.Inserted)
	}

	meta := out.Payload.Meta
	if meta.Retrieval.Collection != "programs_index" || meta.Retrieval.Metric != "cosine" || meta.Retrieval.KRequested != 50 {
		t.Errorf("retrieval meta = %+v", meta.Retrieval)
	}
	if meta.Weights.Rule != 0.45 {
		t.Errorf("weights meta = %+v", meta.Weights)
	}
	if meta.Calibration != nil {
		t.Errorf("calibration meta should be nil for none, got %+v", meta.Calibration)
	}
	if meta.Models.LLM != "gpt-4o-mini" || meta.Models.Embedding != "text-embedding-3-small" {
		t.Errorf("models meta = %+v", meta.Models)
	}
	if meta.Diag.Retrieved != 3 || meta.Diag.RankedTotal != 3 {
		t.Errorf("diag = %+v", meta.Diag)
	}
	if !strings.HasSuffix(meta.RunAt, "Z") || !strings.Contains(meta.RunAt, "T") {
		t.Errorf("run_at not UTC ISO-8601: %q", meta.RunAt)
	}

	if sink.got.ProjectID != "proj-1" || sink.got.ProjectSlug != "sihati" || sink.got.RunAt != out.RunAt {
		t.Errorf("sink run = %+v", sink.got)
	}
	if len(sink.got.Results) != 2 {
		t.Errorf("sink results = %d", len(sink.got.Results))
	}
}

func TestRunMatch_CalibrationAppliedToTopKOnly(t *testing.T) {
	retr := &fakeRetriever{cands: []index.Candidate{
		candidate("a", "أ", 0.1),
		candidate("b", "ب", 0.5),
		candidate("c", "ج", 0.9),
	}}
	svc := NewService(retr, &passthroughRanker{}, nil, testOptions(), nil)

	out, err := svc.RunMatch(context.Background(), testProject(), 2, config.CalibrationRelativeMinMax)
	if err != nil {
		t.Fatalf("RunMatch failed: %v", err)
	}
	if len(out.Payload.Results) != 2 {
		t.Fatalf("results = %d", len(out.Payload.Results))
	}
	// min-max over the two kept results: best 0.85, worst 0.40
	if got := out.Payload.Results[0].Scores.FinalCal; got != 0.85 {
		t.Errorf("top final_cal = %v, want 0.85", got)
	}
	if got := out.Payload.Results[1].Scores.FinalCal; got != 0.40 {
		t.Errorf("second final_cal = %v, want 0.40", got)
	}
	if out.Payload.Meta.Calibration == nil || out.Payload.Meta.Calibration.Strategy != config.CalibrationRelativeMinMax {
		t.Errorf("calibration meta = %+v", out.Payload.Meta.Calibration)
	}
}

func TestRunMatch_EmptyRetrieval(t *testing.T) {
	sink := &fakeSink{}
	svc := NewService(&fakeRetriever{}, &passthroughRanker{}, sink, testOptions(), nil)

	out, err := svc.RunMatch(context.Background(), testProject(), 5, config.CalibrationNone)
	if err != nil {
		t.Fatalf("empty retrieval must not error: %v", err)
	}
	if len(out.Payload.Results) != 0 || out.Inserted != 0 {
		t.Errorf("results=%d inserted=%d", len(out.Payload.Results), out.Inserted)
	}
	if sink.calls != 0 {
		t.Error("sink should not be called for an empty run")
	}
	if out.Payload.Meta.Diag.Retrieved != 0 {
		t.Errorf("diag = %+v", out.Payload.Meta.Diag)
	}
}

func TestRunMatch_IndexError(t *testing.T) {
	svc := NewService(&fakeRetriever{err: errors.New("disk gone")}, &passthroughRanker{}, nil, testOptions(), nil)
	_, err := svc.RunMatch(context.Background(), testProject(), 5, config.CalibrationNone)
	if !errors.Is(err, ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}
}

func TestRunMatch_PersistFailureKeepsPayload(t *testing.T) {
	retr := &fakeRetriever{cands: []index.Candidate{candidate("a", "أ", 0.2)}}
	sink := &fakeSink{err: errors.New("column missing")}
	svc := NewService(retr, &passthroughRanker{}, sink, testOptions(), nil)

	out, err := svc.RunMatch(context.Background(), testProject(), 5, config.CalibrationNone)
	if !errors.Is(err, ErrPersist) {
		t.Fatalf("expected ErrPersist, got %v", err)
	}
	if len(out.Payload.Results) != 1 {
		t.Errorf("payload should survive persist failure, results = %d", len(out.Payload.Results))
	}
	if out.Inserted != 0 {
		t.Errorf("inserted = %d, want 0", out.Inserted)
	}
}

// stalledRanker never finishes on its own; it only returns once the run
// context is cancelled.
type stalledRanker struct{}

func (stalledRanker) Rank(ctx context.Context, _ Project, _ []index.Candidate, _ Weights) ([]RankedResult, int, error) {
	<-ctx.Done()
	return nil, 0, ctx.Err()
}

func TestRunMatch_DeadlineAbortsStalledRun(t *testing.T) {
	retr := &fakeRetriever{cands: []index.Candidate{candidate("a", "أ", 0.2)}}
	sink := &fakeSink{}
	opts := testOptions()
	opts.RunTimeout = 20 * time.Millisecond
	svc := NewService(retr, stalledRanker{}, sink, opts, nil)

	_, err := svc.RunMatch(context.Background(), testProject(), 5, config.CalibrationNone)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if sink.calls != 0 {
		t.Error("nothing must be persisted when the run times out")
	}
}

func TestRunMatch_DroppedCountInDiag(t *testing.T) {
	retr := &fakeRetriever{cands: []index.Candidate{candidate("a", "أ", 0.2)}}
	svc := NewService(retr, &passthroughRanker{dropped: 3}, nil, testOptions(), nil)

	out, err := svc.RunMatch(context.Background(), testProject(), 5, config.CalibrationNone)
	if err != nil {
		t.Fatalf("RunMatch failed: %v", err)
	}
	if out.Payload.Meta.Diag.Dropped != 3 {
		t.Errorf("diag dropped = %d", out.Payload.Meta.Diag.Dropped)
	}
}

func TestPackResult_IdentityAndEvidence(t *testing.T) {
	r := RankedResult{
		Rank:        1,
		RawDistance: 0.25,
		Candidate: index.Candidate{
			Doc: index.Document{
				ID: "doc-1",
				Metadata: map[string]any{
					"slug":        "tamkeen",
					"name":        "برنامج تمكين",
					"url":         "[رابط](https://example.sa/t)",
					"objectives":  "تمكين الشركات",
					"goals":       []any{"أ", "ب", "ج", "د", "هـ", "و"},
					"sector_tags": []any{"التجارة الإلكترونية"},
				},
			},
			Distance: 0.25,
		},
		Scores: Scores{Rule: 0.5, Content: 0.75, Goal: 0.6, FinalRaw: 0.62, FinalCal: 0.62},
	}
	p := testProject()

	pr := packResult(r, p)
	if pr.ProgramID != "tamkeen" {
		t.Errorf("program_id = %q", pr.ProgramID)
	}
	if pr.SourceURL != "https://example.sa/t" {
		t.Errorf("source_url = %q", pr.SourceURL)
	}
	if pr.Scores.RawDistance != 0.25 {
		t.Errorf("raw_distance = %v", pr.Scores.RawDistance)
	}
	if len(pr.Evidence.Project) != 2 || pr.Evidence.Project[0] != p.Description {
		t.Errorf("project evidence = %v", pr.Evidence.Project)
	}
	// program goals capped at 5 in the evidence join
	if len(pr.Evidence.Program) != 2 || pr.Evidence.Program[1] != "أ, ب, ج, د, هـ" {
		t.Errorf("program evidence = %v", pr.Evidence.Program)
	}
	// sectors disjoint from the health project, so a violation is attached
	if len(pr.Violations) != 1 || pr.Violations[0].Type != "sector_mismatch" {
		t.Errorf("violations = %+v", pr.Violations)
	}
	if pr.Reasons == nil || pr.Improvements == nil {
		t.Error("reasons/improvements must be empty lists, not null")
	}
}
