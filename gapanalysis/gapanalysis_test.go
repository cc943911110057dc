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

package gapanalysis

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htdam/pipeline/types"
)

func TestClassifyInterval(t *testing.T) {
	factors := types.GapClassFactors{NormalAtMost: 1.5, MinorAtMost: 4.0}
	const gridStep = 900.0

	require.Equal(t, types.Normal, ClassifyInterval(900, gridStep, factors))
	require.Equal(t, types.Normal, ClassifyInterval(1350, gridStep, factors))
	require.Equal(t, types.MinorGap, ClassifyInterval(1351, gridStep, factors))
	require.Equal(t, types.MinorGap, ClassifyInterval(3600, gridStep, factors))
	require.Equal(t, types.MajorGap, ClassifyInterval(3601, gridStep, factors))
}

func TestClassifySemantic(t *testing.T) {
	// Large absolute jump always wins, regardless of relative change.
	require.Equal(t, types.SemanticSensorAnomaly, ClassifySemantic(10, 16, 5.0, 0.5))

	// Small absolute and small relative change -> COV_CONSTANT.
	require.Equal(t, types.SemanticCovConstant, ClassifySemantic(10.0, 10.02, 5.0, 0.5))

	// Small absolute but above the relative-change tolerance -> COV_MINOR.
	require.Equal(t, types.SemanticCovMinor, ClassifySemantic(10.0, 10.5, 5.0, 0.5))
}

func ts(offsetSeconds int) time.Time {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return base.Add(time.Duration(offsetSeconds) * time.Second)
}

func TestAnnotateStreamClassifiesEachInterval(t *testing.T) {
	cfg := types.DefaultConfig()
	series := types.RawSeries{
		{Instant: ts(0), Value: types.Present(10.0)},
		{Instant: ts(900), Value: types.Present(10.01)},  // NORMAL
		{Instant: ts(900 + 3600), Value: types.Present(10.02)}, // MINOR_GAP, COV_CONSTANT
		{Instant: ts(900 + 3600 + 7200), Value: types.Present(30.0)}, // MAJOR_GAP, SENSOR_ANOMALY
	}

	result := AnnotateStream(types.CHWST, series, cfg)
	require.Len(t, result.Annotated, 4)
	require.False(t, result.Annotated[0].HasGap)

	require.Equal(t, types.Normal, result.Annotated[1].Annotation.GapBeforeClass)
	require.Equal(t, types.MinorGap, result.Annotated[2].Annotation.GapBeforeClass)
	require.Equal(t, types.SemanticCovConstant, result.Annotated[2].Annotation.GapBeforeSemantic)
	require.Equal(t, types.MajorGap, result.Annotated[3].Annotation.GapBeforeClass)
	require.Equal(t, types.SemanticSensorAnomaly, result.Annotated[3].Annotation.GapBeforeSemantic)

	require.Len(t, result.MajorGaps, 1)
	require.Equal(t, types.CHWST, result.MajorGaps[0].Stream)

	require.Less(t, result.Summary.StreamConfidence, 1.0)
}

func TestAnnotateStreamSingleSampleHasNoIntervals(t *testing.T) {
	cfg := types.DefaultConfig()
	series := types.RawSeries{{Instant: ts(0), Value: types.Present(10.0)}}
	result := AnnotateStream(types.CHWST, series, cfg)
	require.Len(t, result.Annotated, 1)
	require.Empty(t, result.MajorGaps)
	require.Equal(t, 1.0, result.Summary.StreamConfidence)
}

func TestDetectExclusionWindowsRequiresTwoDistinctStreamsAndMinDuration(t *testing.T) {
	cfg := types.DefaultConfig()

	// CHWST and CHWRT gaps overlap for 9h (above the 8h default threshold).
	gaps := []GapInterval{
		{Stream: types.CHWST, Start: ts(0), End: ts(10 * 3600), Class: types.MajorGap},
		{Stream: types.CHWRT, Start: ts(1 * 3600), End: ts(11 * 3600), Class: types.MajorGap},
	}
	windows := DetectExclusionWindows(gaps, cfg)
	require.Len(t, windows, 1)
	require.Equal(t, "EXW_001", windows[0].ID)
	require.Equal(t, types.PendingApproval, windows[0].Status)
	require.Len(t, windows[0].AffectingStreams, 2)
	require.InDelta(t, 9.0, windows[0].DurationHours(), 1e-9)
}

func TestDetectExclusionWindowsDropsShortOverlaps(t *testing.T) {
	cfg := types.DefaultConfig()
	gaps := []GapInterval{
		{Stream: types.CHWST, Start: ts(0), End: ts(3 * 3600), Class: types.MajorGap},
		{Stream: types.CHWRT, Start: ts(1 * 3600), End: ts(4 * 3600), Class: types.MajorGap},
	}
	windows := DetectExclusionWindows(gaps, cfg)
	require.Empty(t, windows)
}

func TestDetectExclusionWindowsMergesAdjacentOverlaps(t *testing.T) {
	cfg := types.DefaultConfig()
	gaps := []GapInterval{
		{Stream: types.CHWST, Start: ts(0), End: ts(10 * 3600), Class: types.MajorGap},
		{Stream: types.CHWRT, Start: ts(0), End: ts(10 * 3600), Class: types.MajorGap},
		// A second overlap, touching the first at its end, involving a third stream.
		{Stream: types.CDWRT, Start: ts(10 * 3600), End: ts(20 * 3600), Class: types.MajorGap},
		{Stream: types.CHWST, Start: ts(10 * 3600), End: ts(20 * 3600), Class: types.MajorGap},
	}
	windows := DetectExclusionWindows(gaps, cfg)
	require.Len(t, windows, 1)
	require.Len(t, windows[0].AffectingStreams, 3)
	require.Equal(t, ts(0), windows[0].Start)
	require.Equal(t, ts(20*3600), windows[0].End)
}

func TestDetectExclusionWindowsIgnoresSameStreamOverlap(t *testing.T) {
	cfg := types.DefaultConfig()
	gaps := []GapInterval{
		{Stream: types.CHWST, Start: ts(0), End: ts(10 * 3600), Class: types.MajorGap},
		{Stream: types.CHWST, Start: ts(1 * 3600), End: ts(11 * 3600), Class: types.MajorGap},
	}
	windows := DetectExclusionWindows(gaps, cfg)
	require.Empty(t, windows)
}
