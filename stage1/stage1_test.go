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

package stage1

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htdam/pipeline/logger"
	"github.com/htdam/pipeline/types"
)

func series(startUnix, stepSeconds int64, values ...float64) types.RawSeries {
	out := make(types.RawSeries, len(values))
	for i, v := range values {
		out[i] = types.Sample{
			Instant: time.Unix(startUnix+stepSeconds*int64(i), 0).UTC(),
			Value:   types.Present(v),
		}
	}
	return out
}

func cleanStreams() map[types.StreamTag]types.RawSeries {
	return map[types.StreamTag]types.RawSeries{
		types.CHWST: series(0, 900, 7.0, 7.1, 7.2, 7.0, 7.1),
		types.CHWRT: series(0, 900, 12.0, 12.1, 12.2, 12.0, 12.1),
		types.CDWRT: series(0, 900, 30.0, 30.1, 30.2, 30.0, 30.1),
		types.FLOW:  series(0, 900, 0.05, 0.05, 0.05, 0.05, 0.05),
		types.POWER: series(0, 900, 150.0, 151.0, 150.0, 149.0, 150.0),
	}
}

func TestRunCleanInputProducesCanonicalSeriesWithNoHalt(t *testing.T) {
	cfg := types.DefaultConfig()
	result, metrics := Run(cleanStreams(), nil, cfg, logger.NewDiscardLogger())

	require.False(t, metrics.Halt)
	require.False(t, result.Halt)
	require.Equal(t, "UNITS", metrics.Stage)
	require.Len(t, result.Canonical[types.CHWST], 5)
	require.Equal(t, "C", result.ChannelMeta[types.CHWST].TargetUnit)
	require.Greater(t, metrics.OverallConfidence, 0.0)
}

func TestRunHaltsWhenNoStreamsSupplied(t *testing.T) {
	cfg := types.DefaultConfig()
	_, metrics := Run(map[types.StreamTag]types.RawSeries{}, nil, cfg, logger.NewDiscardLogger())
	require.True(t, metrics.Halt)
}

func TestRunHaltsWhenMandatoryStreamEntirelyAbsent(t *testing.T) {
	cfg := types.DefaultConfig()
	streams := map[types.StreamTag]types.RawSeries{
		types.CHWST: series(0, 900, 7.0, 7.1),
		types.CHWRT: series(0, 900, 12.0, 12.1),
		// CDWRT, mandatory, is never supplied.
	}
	result, metrics := Run(streams, nil, cfg, logger.NewDiscardLogger())
	require.True(t, metrics.Halt)
	require.True(t, result.Halt)
	require.Contains(t, metrics.HaltReasons[0], "CDWRT")
}

func TestRunHaltsOnExcessivePhysicsRangeViolation(t *testing.T) {
	cfg := types.DefaultConfig()
	streams := cleanStreams()
	// CHWST valid range is [3, 20]; push every sample far outside it.
	streams[types.CHWST] = series(0, 900, 99.0, 99.0, 99.0, 99.0, 99.0)

	_, metrics := Run(streams, nil, cfg, logger.NewDiscardLogger())
	require.True(t, metrics.Halt)
	found := false
	for _, r := range metrics.HaltReasons {
		if r != "" {
			found = true
		}
	}
	require.True(t, found)
}

func TestRunHaltsOnNegativeFlow(t *testing.T) {
	cfg := types.DefaultConfig()
	streams := cleanStreams()
	streams[types.FLOW] = series(0, 900, -0.01, 0.05, 0.05, 0.05, 0.05)

	_, metrics := Run(streams, nil, cfg, logger.NewDiscardLogger())
	require.True(t, metrics.Halt)
}

func TestRunSalvagesStandbyReversal(t *testing.T) {
	cfg := types.DefaultConfig()
	// Eight joined samples where CHWRT<CHWST ("reversed", i.e. standby idle
	// loop) and two clearly ACTIVE samples with a wide, legitimate delta-T.
	// The reversed majority alone would HALT on CHWRT>=CHWST; a single
	// ACTIVE sample out of ten would sit exactly at Salvage.MinActiveRatio
	// (0.10), so two ACTIVE samples out of ten (20%) clear it comfortably.
	chwst := make([]float64, 0, 10)
	chwrt := make([]float64, 0, 10)
	for i := 0; i < 8; i++ {
		chwst = append(chwst, 10.0)
		chwrt = append(chwrt, 9.5) // reversed: CHWRT < CHWST
	}
	for i := 0; i < 2; i++ {
		chwst = append(chwst, 7.0)
		chwrt = append(chwrt, 12.0) // genuinely ACTIVE: delta 5.0 >= 0.5
	}
	streams := map[types.StreamTag]types.RawSeries{
		types.CHWST: series(0, 900, chwst...),
		types.CHWRT: series(0, 900, chwrt...),
		types.CDWRT: series(0, 900, 30.0, 30.0, 30.0, 30.0, 30.0, 30.0, 30.0, 30.0, 30.1, 30.1),
		types.FLOW:  series(0, 900, 0, 0, 0, 0, 0, 0, 0, 0, 0.05, 0.05),
		types.POWER: series(0, 900, 0, 0, 0, 0, 0, 0, 0, 0, 150.0, 150.0),
	}

	result, metrics := Run(streams, nil, cfg, logger.NewDiscardLogger())
	require.False(t, metrics.Halt, "a salvageable standby reversal should not halt")
	require.NotNil(t, result.OperationalStates)
	require.Contains(t, metrics.Warnings, "Filtered to ACTIVE due to suspected standby reversal")
	// Only the two ACTIVE-classified timestamps should survive into the
	// canonical view.
	require.Len(t, result.Canonical[types.CHWST], 2)
}

func TestRunUsesHintOverHeuristicForUnitDetection(t *testing.T) {
	cfg := types.DefaultConfig()
	streams := cleanStreams()
	hints := map[types.StreamTag]string{types.CHWST: "F"}
	// Fahrenheit values that read as plausible Celsius too, so the hint
	// must be what decides it, not the heuristic.
	streams[types.CHWST] = series(0, 900, 44.6, 44.8, 45.0, 44.7, 44.9)

	result, metrics := Run(streams, hints, cfg, logger.NewDiscardLogger())
	require.False(t, metrics.Halt)
	require.Equal(t, "F", result.ChannelMeta[types.CHWST].SourceUnit)
	converted, _ := result.Canonical[types.CHWST][0].Value.Float64()
	require.InDelta(t, 7.0, converted, 0.2)
}
