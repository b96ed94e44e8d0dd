// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"errors"
	"fmt"
)

var (
	// ErrIndex marks failures talking to the vector index.
	ErrIndex = errors.New("matcher: index error")

	// ErrPersist marks failures writing ranked rows to the database.
	// A run that hits it still carries a complete payload.
	ErrPersist = errors.New("matcher: persist error")
)

// ScoreError is the per-candidate scoring failure. It drops the
// candidate from the run, never the run itself.
type ScoreError struct {
	ProgramID string
	Err       error
}

func (e *ScoreError) Error() string {
	return fmt.Sprintf("scoring %q: %v", e.ProgramID, e.Err)
}

func (e *ScoreError) Unwrap() error { return e.Err }
