/*
 * Copyright 2025 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package derived

import "github.com/htdam/pipeline/types"

// annotateHunting implements spec.md §4.4's control-loop hunting
// detector: a reversal is a sign change in ΔT_chw's row-to-row slope (a
// local peak or trough), and a row is flagged when the count of reversals
// within the trailing HuntWindowHours reaches HuntCycleMinCount and the
// resulting frequency crosses the configured per-hour thresholds.
//
// The trailing count is kept with a forward-advancing window-start
// pointer over the reversal timestamps, the same amortized O(N) idiom
// gridsync's cursor and the teacher's sliding_window.go use for a
// monotonic window boundary.
func annotateHunting(rows []types.DerivedRow, cfg types.Config) {
	type reversal struct {
		hours float64 // hours since the pipeline's first row, for windowing
	}

	if len(rows) < 3 {
		return
	}

	baseHours := rows[0].Timestamp
	var reversals []reversal
	var prevDelta float64
	var prevOK, prevPrevOK bool
	var prevPrevDelta float64

	for i, r := range rows {
		v, ok := r.DeltaTChw.Float64()
		if !ok {
			prevOK, prevPrevOK = false, false
			continue
		}
		if prevOK && prevPrevOK {
			d1 := prevDelta - prevPrevDelta
			d2 := v - prevDelta
			if d1 != 0 && d2 != 0 && (d1 > 0) != (d2 > 0) {
				reversals = append(reversals, reversal{
					hours: rows[i-1].Timestamp.Sub(baseHours).Hours(),
				})
			}
		}
		prevPrevDelta, prevPrevOK = prevDelta, prevOK
		prevDelta, prevOK = v, true
	}

	windowStart := 0
	for i := range rows {
		nowHours := rows[i].Timestamp.Sub(baseHours).Hours()
		for windowStart < len(reversals) && nowHours-reversals[windowStart].hours > cfg.HuntWindowHours {
			windowStart++
		}
		count := 0
		for j := windowStart; j < len(reversals) && reversals[j].hours <= nowHours; j++ {
			count++
		}
		freq := 0.0
		if cfg.HuntWindowHours > 0 {
			freq = float64(count) / cfg.HuntWindowHours
		}

		severity := types.HuntNone
		switch {
		case count >= cfg.HuntCycleMinCount && freq >= cfg.HuntMajorFreqPerHr:
			severity = types.HuntMajor
		case count >= cfg.HuntCycleMinCount && freq >= cfg.HuntMinorFreqPerHr:
			severity = types.HuntMinor
		}

		rows[i].HuntSeverity = severity
		rows[i].HuntFlag = severity != types.HuntNone
	}
}
