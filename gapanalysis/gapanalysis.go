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

// Package gapanalysis implements Stage 2 (spec.md §4.2): per-stream gap
// detection and semantic classification on unsynchronized series, and
// cross-stream exclusion-window detection.
//
// The interval-classification boundary arithmetic (Δt against multiples
// of grid_step) is grounded on the teacher's window/tumbling_window.go
// boundary-stepping idiom, adapted from an event-driven ticker into a
// deterministic batch classification. Exclusion-window overlap/merge is
// grounded on types.ExclusionWindow (itself adapted from the teacher's
// model.TimeSlot overlap/Contains idiom).
package gapanalysis

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/htdam/pipeline/types"
)

// epsilon protects the COV relative-change denominator against a
// near-zero baseline (spec.md §4.2).
const epsilon = 1e-6

// ClassifyInterval buckets an inter-sample interval (seconds) against the
// grid step per spec.md §4.2's inclusive boundaries.
func ClassifyInterval(deltaSeconds, gridStep float64, factors types.GapClassFactors) types.GapClass {
	switch {
	case deltaSeconds <= factors.NormalAtMost*gridStep:
		return types.Normal
	case deltaSeconds <= factors.MinorAtMost*gridStep:
		return types.MinorGap
	default:
		return types.MajorGap
	}
}

// ClassifySemantic implements spec.md §4.2's three-branch semantic rule
// for a non-NORMAL interval given the values straddling it.
func ClassifySemantic(prev, next float64, absAnomalyJump, covRelTolerancePct float64) types.GapSemantic {
	absChange := math.Abs(next - prev)
	if absChange > absAnomalyJump {
		return types.SemanticSensorAnomaly
	}
	denom := math.Max(math.Abs(prev), epsilon)
	relPct := absChange / denom * 100
	if relPct < covRelTolerancePct {
		return types.SemanticCovConstant
	}
	return types.SemanticCovMinor
}

// StreamResult is Stage 2's per-stream output: the sorted series annotated
// per spec.md §3, the stream's MAJOR_GAP intervals (feeding cross-stream
// exclusion-window detection), and its penalty/confidence contribution.
type StreamResult struct {
	Stream     types.StreamTag
	Annotated  []types.AnnotatedSample
	MajorGaps  []GapInterval
	Penalty    float64
	Summary    types.StreamGapSummary
}

// GapInterval is one classified inter-sample interval, tagged with its
// owning stream for cross-stream exclusion-window detection.
type GapInterval struct {
	Stream types.StreamTag
	Start  time.Time
	End    time.Time
	Class  types.GapClass
}

// AnnotateStream implements the per-stream half of Stage 2: sorting,
// interval computation, classification, and semantic assignment.
func AnnotateStream(tag types.StreamTag, series types.RawSeries, cfg types.Config) StreamResult {
	sorted := series.SortStable()
	annotated := make([]types.AnnotatedSample, len(sorted))
	intervalStats := map[types.GapClass]types.IntervalStats{types.Normal: {}, types.MinorGap: {}, types.MajorGap: {}}
	semanticCounts := map[types.GapSemantic]int{}
	var majorGaps []GapInterval
	var penalty float64

	for i, s := range sorted {
		if i == 0 {
			annotated[i] = types.AnnotatedSample{Sample: s}
			continue
		}
		prevSample := sorted[i-1]
		deltaS := s.Instant.Sub(prevSample.Instant).Seconds()
		class := ClassifyInterval(deltaS, cfg.GridStepSeconds, cfg.GapClassFactors)

		semantic := types.SemanticNotApplicable
		relPct := 0.0
		if class != types.Normal {
			pv, pOK := prevSample.Value.Float64()
			nv, nOK := s.Value.Float64()
			if pOK && nOK {
				semantic = ClassifySemantic(pv, nv, cfg.SensorAnomalyAbsJumpC, cfg.CovRelTolerancePct)
				relPct = math.Abs(nv-pv) / math.Max(math.Abs(pv), epsilon) * 100
			}
			if p, ok := cfg.GapSemanticPenalties[semantic]; ok {
				penalty += p
			}
			if class == types.MajorGap {
				majorGaps = append(majorGaps, GapInterval{
					Stream: tag,
					Start:  prevSample.Instant,
					End:    s.Instant,
					Class:  class,
				})
			}
		}

		cs := intervalStats[class]
		cs.Count++
		intervalStats[class] = cs
		semanticCounts[semantic]++

		annotated[i] = types.AnnotatedSample{
			Sample: s,
			HasGap: true,
			Annotation: types.Stage2Annotation{
				GapBeforeDurationS: deltaS,
				GapBeforeClass:     class,
				GapBeforeSemantic:  semantic,
				ValueChangedRelPct: relPct,
			},
		}
	}

	total := len(sorted) - 1
	if total < 0 {
		total = 0
	}
	for class, cs := range intervalStats {
		if total > 0 {
			cs.Pct = float64(cs.Count) / float64(total) * 100
		}
		intervalStats[class] = cs
	}

	confidence := 1.0 + penalty

	return StreamResult{
		Stream:    tag,
		Annotated: annotated,
		MajorGaps: majorGaps,
		Penalty:   penalty,
		Summary: types.StreamGapSummary{
			TotalRecords:      len(sorted),
			IntervalStats:     intervalStats,
			GapSemanticCounts: semanticCounts,
			StreamPenalty:     penalty,
			StreamConfidence:  confidence,
		},
	}
}

// DetectExclusionWindows implements spec.md §4.2's cross-stream
// MAJOR_GAP-overlap aggregation: pairwise overlaps of distinct-stream
// MAJOR_GAPs retained at >= MinOverlapHours, then merged by start time
// when they touch or overlap, unioning affecting-stream sets.
func DetectExclusionWindows(allMajorGaps []GapInterval, cfg types.Config) []types.ExclusionWindow {
	type candidate struct {
		Start, End time.Time
		Streams    map[types.StreamTag]struct{}
	}
	var candidates []candidate

	for i := 0; i < len(allMajorGaps); i++ {
		for j := i + 1; j < len(allMajorGaps); j++ {
			a, b := allMajorGaps[i], allMajorGaps[j]
			if a.Stream == b.Stream {
				continue
			}
			start := a.Start
			if b.Start.After(start) {
				start = b.Start
			}
			end := a.End
			if b.End.Before(end) {
				end = b.End
			}
			if !end.After(start) {
				continue
			}
			if end.Sub(start).Hours() < cfg.ExclusionThresholds.MinOverlapHours {
				continue
			}
			candidates = append(candidates, candidate{
				Start:   start,
				End:     end,
				Streams: map[types.StreamTag]struct{}{a.Stream: {}, b.Stream: {}},
			})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Start.Before(candidates[j].Start) })

	var merged []candidate
	for _, c := range candidates {
		if len(merged) > 0 {
			last := &merged[len(merged)-1]
			if !c.Start.After(last.End) {
				if c.End.After(last.End) {
					last.End = c.End
				}
				for s := range c.Streams {
					last.Streams[s] = struct{}{}
				}
				continue
			}
		}
		merged = append(merged, c)
	}

	var windows []types.ExclusionWindow
	seq := 0
	for _, m := range merged {
		if len(m.Streams) < cfg.ExclusionThresholds.MinAffectedStreams {
			continue
		}
		seq++
		windows = append(windows, types.ExclusionWindow{
			ID:               fmt.Sprintf("EXW_%03d", seq),
			Start:            m.Start,
			End:              m.End,
			AffectingStreams: m.Streams,
			Status:           types.PendingApproval,
		})
	}
	return windows
}
