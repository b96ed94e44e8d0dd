// Copyright (C) 2025 Daleel Hub (dev@daleelhub.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package matcher

import (
	"math"

	"github.com/daleelhub/daleel/services/config"
)

// ApplyCalibration rewrites FinalCal for the batch according to the
// strategy. Calibration is presentational: FinalRaw and the ordering are
// never touched.
//
//   - relative_minmax: min-max over the batch mapped into [0.40, 0.85];
//     a batch with no spread collapses to 0.55.
//   - affine_floor: 0.6 + 0.4*v, lifting everything above 0.6.
//   - sigmoid: 0.65 + 0.30*sigmoid(6*(v-0.5)).
//   - none (or empty): FinalCal = FinalRaw.
func ApplyCalibration(results []RankedResult, strategy string) {
	if len(results) == 0 {
		return
	}

	switch strategy {
	case config.CalibrationRelativeMinMax:
		lo, hi := results[0].Scores.FinalRaw, results[0].Scores.FinalRaw
		for _, r := range results[1:] {
			v := r.Scores.FinalRaw
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if math.Abs(hi-lo) < 1e-9 {
			for i := range results {
				results[i].Scores.FinalCal = 0.55
			}
			return
		}
		for i := range results {
			t := (results[i].Scores.FinalRaw - lo) / (hi - lo)
			results[i].Scores.FinalCal = clamp01(0.40 + 0.45*t)
		}

	case config.CalibrationAffineFloor:
		for i := range results {
			results[i].Scores.FinalCal = clamp01(0.6 + 0.4*clamp01(results[i].Scores.FinalRaw))
		}

	case config.CalibrationSigmoid:
		for i := range results {
			v := results[i].Scores.FinalRaw
			results[i].Scores.FinalCal = clamp01(0.65 + 0.30*(1/(1+math.Exp(-6*(v-0.5)))))
		}

	default:
		for i := range results {
			results[i].Scores.FinalCal = results[i].Scores.FinalRaw
		}
	}
}
