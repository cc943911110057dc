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

// Package derived implements Stage 4 (spec.md §4.4): the per-row derived
// chiller metrics (ΔT, lift, evaporator load, COP, Carnot COP), control-loop
// hunting detection over a trailing window, and evaporator/condenser
// fouling drift against a baseline.
//
// The per-row arithmetic follows spec.md's formulas directly; the summary
// statistics backing the fouling baselines (mean UA, median lift) are
// grounded on the teacher's aggregator/builtin.go analytic-function
// family, and the trailing-window reversal count is grounded on the same
// window/sliding_window.go forward-advancing pointer idiom gridsync uses.
package derived

import (
	"math"

	"github.com/htdam/pipeline/types"
)

const (
	waterSpecificHeatKJPerKgC = 4.186
	waterDensityKgPerM3       = 1000.0
	kelvinOffset              = 273.15

	// copMin/copMax bound the physically plausible COP range (spec.md
	// §4.4, invariant I7); a COP outside this band is recorded absent
	// rather than clamped.
	copMin = 2.0
	copMax = 7.0
)

// rowValue extracts a present float for stream from a grid row's
// alignment, or (0,false) if the stream is absent from the row at all.
func rowValue(row types.GridRow, tag types.StreamTag) (float64, bool) {
	align, ok := row.Streams[tag]
	if !ok {
		return 0, false
	}
	return align.Value.Float64()
}

// computeRow fills in Stage 4's per-row fields from a Stage 3 GridRow's
// aligned stream values. Rows whose GapType already excludes them
// (EXCLUDED, GAP) are passed through with Stage 4 fields left Absent — a
// row Stage 3 could not synchronize has nothing for Stage 4 to derive.
func computeRow(row types.GridRow, cfg types.Config) types.DerivedRow {
	out := types.DerivedRow{GridRow: row}
	if row.GapType == types.RowExcluded || row.GapType == types.RowGap {
		out.FinalRowConfidence = row.Confidence
		return out
	}

	chwst, okS := rowValue(row, types.CHWST)
	chwrt, okR := rowValue(row, types.CHWRT)
	cdwrt, okC := rowValue(row, types.CDWRT)
	flow, okF := rowValue(row, types.FLOW)
	power, okP := rowValue(row, types.POWER)

	deltaT := chwrt - chwst
	deltaTValid := okS && okR && deltaT >= 0
	if deltaTValid {
		out.DeltaTChw = types.Present(deltaT)
	}
	if okC && okS && cdwrt-chwst > 0 {
		out.Lift = types.Present(cdwrt - chwst)
	}

	if deltaTValid && okF {
		q := waterDensityKgPerM3 * flow * waterSpecificHeatKJPerKgC * deltaT / 1000.0
		out.QEvapKW = types.Present(q)
		out.QConfidence = row.Confidence
	}

	if out.QEvapKW.IsPresent() && okP && power > 0 {
		cop := out.QEvapKW.Must() / power
		if cop >= copMin && cop <= copMax {
			out.Cop = types.Present(cop)
			out.CopConfidence = math.Min(out.QConfidence, row.Confidence)
		} else {
			out.CopConfidence = 0
		}
	}

	if okS && okC {
		tEvapK := chwst + kelvinOffset
		tCondK := cdwrt + kelvinOffset
		denom := tCondK - tEvapK
		if denom > 0 {
			out.CopCarnot = types.Present(tEvapK / denom)
			if out.Cop.IsPresent() && out.CopCarnot.Must() > 0 {
				out.CopNormalized = types.Present(out.Cop.Must() / out.CopCarnot.Must())
			}
		}
	}

	out.FinalRowConfidence = row.Confidence
	return out
}

// Run computes Stage 4's derived fields for every Stage 3 row, then the
// trailing-window hunting flags and the fouling-drift classification, and
// assembles the stage's summary metrics.
func Run(rows []types.GridRow, cfg types.Config) ([]types.DerivedRow, types.Stage4Metrics) {
	metrics := types.Stage4Metrics{Stage: "SPOC"}
	derivedRows := make([]types.DerivedRow, len(rows))
	for i, r := range rows {
		derivedRows[i] = computeRow(r, cfg)
	}

	annotateHunting(derivedRows, cfg)
	baselineUA, baselineLift := annotateFouling(derivedRows, cfg)

	summarize(derivedRows, &metrics)
	metrics.FoulingAnalysis.BaselineUFOA = baselineUA
	metrics.FoulingAnalysis.BaselineLift = baselineLift
	return derivedRows, metrics
}

func summarize(rows []types.DerivedRow, metrics *types.Stage4Metrics) {
	var qSum, qConfSum float64
	var qCount int
	var copSum float64
	var copCount, copOutOfRange int
	var huntFlagged, huntMinor, huntMajor int
	var evapMajor, condMajor int

	for _, r := range rows {
		if v, ok := r.QEvapKW.Float64(); ok {
			qSum += v
			qConfSum += r.QConfidence
			qCount++
		}
		if v, ok := r.Cop.Float64(); ok {
			copSum += v
			copCount++
			if v <= 0 || v > 15 {
				copOutOfRange++
			}
		}
		if r.HuntFlag {
			huntFlagged++
		}
		switch r.HuntSeverity {
		case types.HuntMinor:
			huntMinor++
		case types.HuntMajor:
			huntMajor++
		}
		if r.FoulingEvapSeverity == types.FoulingMajor {
			evapMajor++
		}
		if r.FoulingCondenserSeverity == types.FoulingMajor {
			condMajor++
		}
	}

	load := types.LoadAnalysis{RowsWithLoad: qCount}
	if qCount > 0 {
		load.MeanQKW = qSum / float64(qCount)
		load.MeanConfidence = qConfSum / float64(qCount)
	}
	metrics.LoadAnalysis = load

	cop := types.CopAnalysis{RowsWithCop: copCount, RowsOutOfRange: copOutOfRange}
	if copCount > 0 {
		cop.MeanCop = copSum / float64(copCount)
	}
	metrics.CopAnalysis = cop

	metrics.HuntAnalysis = types.HuntAnalysis{RowsFlagged: huntFlagged, RowsMajor: huntMajor, RowsMinor: huntMinor}
	metrics.FoulingAnalysis.EvapMajorRows = evapMajor
	metrics.FoulingAnalysis.CondenserMajorRows = condMajor

	total := len(rows)
	confSum := 0.0
	for _, r := range rows {
		confSum += r.FinalRowConfidence
	}
	if total > 0 {
		metrics.Stage4Confidence = confSum / float64(total)
	} else {
		metrics.Stage4Confidence = 1.0
	}
}
