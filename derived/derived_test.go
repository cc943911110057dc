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
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htdam/pipeline/types"
)

func gridRow(ts time.Time, chwst, chwrt, cdwrt, flow, power float64) types.GridRow {
	return types.GridRow{
		Timestamp: ts,
		GapType:   types.RowValid,
		Confidence: 0.95,
		Streams: map[types.StreamTag]types.StreamAlignment{
			types.CHWST: {Value: types.Present(chwst), Quality: types.AlignExact},
			types.CHWRT: {Value: types.Present(chwrt), Quality: types.AlignExact},
			types.CDWRT: {Value: types.Present(cdwrt), Quality: types.AlignExact},
			types.FLOW:  {Value: types.Present(flow), Quality: types.AlignExact},
			types.POWER: {Value: types.Present(power), Quality: types.AlignExact},
		},
	}
}

func TestComputeRowDerivesDeltaTLiftLoadAndCop(t *testing.T) {
	cfg := types.DefaultConfig()
	row := gridRow(time.Unix(900, 0).UTC(), 7.0, 12.0, 30.0, 0.05, 150.0)
	out := computeRow(row, cfg)

	require.InDelta(t, 5.0, out.DeltaTChw.Must(), 1e-9)
	require.InDelta(t, 23.0, out.Lift.Must(), 1e-9)

	expectedQ := 0.05 * waterSpecificHeatKJPerKgC * 5.0
	require.InDelta(t, expectedQ, out.QEvapKW.Must(), 1e-6)

	// expectedQ/150.0 ~= 0.00698, well outside the [2, 7] plausible COP
	// band, so it must be recorded absent rather than clamped.
	require.False(t, out.Cop.IsPresent())
	require.Equal(t, 0.0, out.CopConfidence)

	require.True(t, out.CopCarnot.IsPresent())
	require.False(t, out.CopNormalized.IsPresent(), "COP normalization requires a present COP")
}

func TestComputeRowDropsNegativeDeltaTAndLift(t *testing.T) {
	cfg := types.DefaultConfig()
	// Reversed row: CHWRT < CHWST, so delta_t_chw would be negative.
	row := gridRow(time.Unix(900, 0).UTC(), 12.0, 7.0, 10.0, 0.05, 150.0)
	out := computeRow(row, cfg)

	require.False(t, out.DeltaTChw.IsPresent(), "a negative delta_t_chw must be recorded absent, not negative")
	require.False(t, out.Lift.IsPresent(), "lift must be absent when CDWRT-CHWST is not strictly positive")
	require.False(t, out.QEvapKW.IsPresent(), "load cannot be derived without a valid delta_t_chw")
}

func TestComputeRowCopWithinRangeIsPresent(t *testing.T) {
	cfg := types.DefaultConfig()
	// q = flow*4.186*delta_t = 0.5*4.186*10 = 20.93 kW; cop = q/power =
	// 20.93/5 = 4.186, squarely inside the [2, 7] plausible band.
	row := gridRow(time.Unix(900, 0).UTC(), 7.0, 17.0, 30.0, 0.5, 5.0)
	out := computeRow(row, cfg)

	require.InDelta(t, 20.93, out.QEvapKW.Must(), 1e-6)
	require.True(t, out.Cop.IsPresent())
	require.InDelta(t, 4.186, out.Cop.Must(), 1e-6)
	require.Greater(t, out.CopConfidence, 0.0)
}

func TestComputeRowSkipsExcludedAndGapRows(t *testing.T) {
	cfg := types.DefaultConfig()
	row := gridRow(time.Unix(900, 0).UTC(), 7.0, 12.0, 30.0, 0.05, 150.0)
	row.GapType = types.RowExcluded
	out := computeRow(row, cfg)
	require.False(t, out.DeltaTChw.IsPresent())
	require.False(t, out.QEvapKW.IsPresent())

	gapRow := gridRow(time.Unix(1800, 0).UTC(), 7.0, 12.0, 30.0, 0.05, 150.0)
	gapRow.GapType = types.RowGap
	gapOut := computeRow(gapRow, cfg)
	require.False(t, gapOut.DeltaTChw.IsPresent())
	require.False(t, gapOut.QEvapKW.IsPresent())
}

func TestAnnotateHuntingFlagsRapidOscillation(t *testing.T) {
	cfg := types.DefaultConfig()
	cfg.HuntWindowHours = 1
	cfg.HuntCycleMinCount = 2
	cfg.HuntMinorFreqPerHr = 1.0
	cfg.HuntMajorFreqPerHr = 3.0

	base := time.Unix(0, 0).UTC()
	deltas := []float64{5.0, 6.0, 5.0, 6.0, 5.0, 6.0, 5.0}
	rows := make([]types.DerivedRow, len(deltas))
	for i, d := range deltas {
		rows[i] = types.DerivedRow{
			GridRow:   types.GridRow{Timestamp: base.Add(time.Duration(i*10) * time.Minute)},
			DeltaTChw: types.Present(d),
		}
	}
	annotateHunting(rows, cfg)

	flaggedAny := false
	for _, r := range rows {
		if r.HuntFlag {
			flaggedAny = true
		}
	}
	require.True(t, flaggedAny, "oscillating ΔT_chw should eventually flag hunting")
}

func TestAnnotateFoulingUsesExternalBaselineWhenProvided(t *testing.T) {
	cfg := types.DefaultConfig()
	baselineUA := 10.0
	baselineLift := 20.0
	cfg.BaselineUFOA = &baselineUA
	cfg.BaselineLift = &baselineLift

	rows := []types.DerivedRow{
		{
			GridRow:   types.GridRow{Timestamp: time.Unix(900, 0).UTC()},
			DeltaTChw: types.Present(5.0),
			QEvapKW:   types.Present(40.0), // UA = 8, a 20% drop from baseline 10
			Lift:      types.Present(24.0), // 20% rise from baseline 20
		},
	}
	baselineUAUsed, baselineLiftUsed := annotateFouling(rows, cfg)
	require.Equal(t, 10.0, baselineUAUsed)
	require.Equal(t, 20.0, baselineLiftUsed)

	require.InDelta(t, 20.0, rows[0].FoulingEvapPct.Must(), 1e-9)
	require.Equal(t, types.FoulingMinor, rows[0].FoulingEvapSeverity)
	require.InDelta(t, 20.0, rows[0].FoulingCondenserPct.Must(), 1e-9)
	// Condenser thresholds are tighter than evaporator's (5%/15% vs 10%/25%),
	// so the same 20% drift crosses into MAJOR_FOULING here.
	require.Equal(t, types.FoulingMajor, rows[0].FoulingCondenserSeverity)
}

func TestRunProducesStage4Metrics(t *testing.T) {
	cfg := types.DefaultConfig()
	rows := []types.GridRow{
		gridRow(time.Unix(900, 0).UTC(), 7.0, 12.0, 30.0, 0.05, 150.0),
		gridRow(time.Unix(1800, 0).UTC(), 7.0, 12.0, 30.0, 0.05, 150.0),
	}
	derivedRows, metrics := Run(rows, cfg)
	require.Len(t, derivedRows, 2)
	require.Equal(t, "SPOC", metrics.Stage)
	require.Equal(t, 2, metrics.LoadAnalysis.RowsWithLoad)
	require.Greater(t, metrics.Stage4Confidence, 0.0)
}
