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

import (
	"sort"

	"github.com/htdam/pipeline/types"
)

// annotateFouling implements spec.md §4.4's heat-exchanger fouling drift
// check: the evaporator side is tracked through its effective UA proxy
// (Q_evap / ΔT_chw), which falls as evaporator tubes foul; the condenser
// side is tracked through lift, which rises as condenser tubes foul for
// the same load. Both are compared against a baseline — an externally
// supplied one if cfg carries it, otherwise one computed from the dataset:
// the mean UA (mirroring the teacher's aggregator/builtin.go Avg used as a
// summary statistic) and the median lift.
// It returns the baselines actually used, for Stage4Metrics.FoulingAnalysis.
func annotateFouling(rows []types.DerivedRow, cfg types.Config) (baselineUA, baselineLift float64) {
	var uaSum, uaCount float64
	var lifts []float64
	ua := make([]float64, len(rows))
	hasUA := make([]bool, len(rows))

	for i, r := range rows {
		q, okQ := r.QEvapKW.Float64()
		dt, okDT := r.DeltaTChw.Float64()
		if okQ && okDT && dt > 0 {
			ua[i] = q / dt
			hasUA[i] = true
			uaSum += ua[i]
			uaCount++
		}
		if v, ok := r.Lift.Float64(); ok {
			lifts = append(lifts, v)
		}
	}

	if cfg.BaselineUFOA != nil {
		baselineUA = *cfg.BaselineUFOA
	} else if uaCount > 0 {
		baselineUA = uaSum / uaCount
	}

	if cfg.BaselineLift != nil {
		baselineLift = *cfg.BaselineLift
	} else if len(lifts) > 0 {
		sort.Float64s(lifts)
		mid := len(lifts) / 2
		if len(lifts)%2 == 1 {
			baselineLift = lifts[mid]
		} else {
			baselineLift = (lifts[mid-1] + lifts[mid]) / 2
		}
	}

	for i := range rows {
		if hasUA[i] && baselineUA > 0 {
			pct := (baselineUA - ua[i]) / baselineUA * 100
			rows[i].FoulingEvapPct = types.Present(pct)
			rows[i].FoulingEvapSeverity = classifyFouling(pct, cfg.FoulingEvapMinorPct, cfg.FoulingEvapMajorPct)
		}
		if v, ok := rows[i].Lift.Float64(); ok && baselineLift > 0 {
			pct := (v - baselineLift) / baselineLift * 100
			rows[i].FoulingCondenserPct = types.Present(pct)
			rows[i].FoulingCondenserSeverity = classifyFouling(pct, cfg.FoulingCondenserMinorPct, cfg.FoulingCondenserMajorPct)
		}
	}
	return baselineUA, baselineLift
}

func classifyFouling(pct, minorPct, majorPct float64) types.FoulingSeverity {
	switch {
	case pct >= majorPct:
		return types.FoulingMajor
	case pct >= minorPct:
		return types.FoulingMinor
	default:
		return types.FoulingClean
	}
}
