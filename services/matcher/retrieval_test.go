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
	"testing"
)

func TestBuildQueryText(t *testing.T) {
	p := Project{
		Name:        " صحتي ",
		Description: "منصة صحة رقمية",
		Sectors:     []string{"الصحة", "تقنية صحية"},
		Stage:       "MVP",
		FundingNeed: 500000,
		Goals:       []string{"توسع", "شراكات"},
	}
	got := BuildQueryText(p)
	want := "صحتي\nمنصة صحة رقمية\nSectors: الصحة, تقنية صحية\nStage: MVP\nFundingNeed:500000\nGoals:توسع, شراكات"
	if got != want {
		t.Errorf("query text:\n got %q\nwant %q", got, want)
	}
}

func TestBuildQueryText_ZeroFundingLeftEmpty(t *testing.T) {
	got := BuildQueryText(Project{Name: "x"})
	want := "x\n\nSectors: \nStage: \nFundingNeed:\nGoals:"
	if got != want {
		t.Errorf("query text:\n got %q\nwant %q", got, want)
	}
}

func TestRetrieveCandidates_WrapsIndexError(t *testing.T) {
	r := &fakeRetriever{err: errors.New("db locked")}
	_, err := RetrieveCandidates(context.Background(), r, Project{}, 50, nil)
	if !errors.Is(err, ErrIndex) {
		t.Fatalf("expected ErrIndex, got %v", err)
	}
}

func TestNormalizeStage(t *testing.T) {
	tests := []struct {
		in     string
		want   string
		wantOK bool
	}{
		{"فكرة", "فكرة", true},
		{"MVP", "MVP", true},
		{"mvp", "MVP", true},
		{"idea", "فكرة", true},
		{"Launch", "إطلاق", true},
		{"early growth", "نمو مبكر", true},
		{"scale", "توسع", true},
		{" تشغيل ", "تشغيل", true},
		{"seed", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := NormalizeStage(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("NormalizeStage(%q) = (%q, %v), want (%q, %v)", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
