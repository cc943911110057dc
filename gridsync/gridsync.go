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

// Package gridsync implements Stage 3 (spec.md §4.3): construction of the
// uniform grid_step_seconds grid and alignment of every stream's annotated
// series onto it via a single forward-advancing nearest-neighbor pointer
// per stream.
//
// The pointer-per-stream idiom is grounded on the teacher's
// window/sliding_window.go (a monotonically-advancing cursor over a
// bounded queue); here it is adapted from a live, timer-driven cursor into
// a pure O(N+M) batch walk: each stream's pointer only ever advances, so
// total pointer movement across the whole grid is bounded by that
// stream's sample count, not the grid size times the sample count.
package gridsync

import (
	"math"
	"sort"
	"time"

	"github.com/htdam/pipeline/types"
)

// ceilToStep returns the first instant at or after t that is an exact
// multiple of stepSeconds since the Unix epoch.
func ceilToStep(t time.Time, stepSeconds float64) time.Time {
	step := int64(stepSeconds)
	sec := t.Unix()
	rem := sec % step
	if rem == 0 {
		return time.Unix(sec, 0).UTC()
	}
	return time.Unix(sec+(step-rem), 0).UTC()
}

// BuildGrid returns every step-aligned instant in [start, end], inclusive,
// starting at the first boundary at or after start.
func BuildGrid(start, end time.Time, stepSeconds float64) []time.Time {
	if stepSeconds <= 0 || end.Before(start) {
		return nil
	}
	step := time.Duration(stepSeconds) * time.Second
	g := ceilToStep(start, stepSeconds)
	var grid []time.Time
	for !g.After(end) {
		grid = append(grid, g)
		g = g.Add(step)
	}
	return grid
}

// cursor walks one stream's annotated series forward across an ascending
// sequence of grid points, never stepping backward.
type cursor struct {
	samples []types.AnnotatedSample
	pos     int
}

func absSeconds(d time.Duration) float64 {
	if d < 0 {
		return -d.Seconds()
	}
	return d.Seconds()
}

// nearest advances the cursor to the sample closest to g and returns its
// index, or -1 if the stream has no samples at all.
func (c *cursor) nearest(g time.Time) int {
	if len(c.samples) == 0 {
		return -1
	}
	for c.pos+1 < len(c.samples) {
		dCur := absSeconds(c.samples[c.pos].Sample.Instant.Sub(g))
		dNext := absSeconds(c.samples[c.pos+1].Sample.Instant.Sub(g))
		if dNext >= dCur {
			break
		}
		c.pos++
	}
	return c.pos
}

// semanticNear looks for a Stage 2 gap semantic within +/-stepSeconds of g
// among the samples around the cursor's current position, for use when a
// mandatory stream has no sample aligned to g at all. Grounded on
// deriveRowGapTypeAndConfidence.py's stage2_semantic lookup: a row whose
// mandatory stream is MISSING still inherits the nearby Stage 2
// classification instead of collapsing straight to a generic gap.
func semanticNear(c *cursor, g time.Time, stepSeconds float64) (types.GapSemantic, bool) {
	bestIdx := -1
	bestDist := math.Inf(1)
	for _, idx := range [3]int{c.pos - 1, c.pos, c.pos + 1} {
		if idx < 0 || idx >= len(c.samples) {
			continue
		}
		s := c.samples[idx]
		if !s.HasGap || s.Annotation.GapBeforeSemantic == "" {
			continue
		}
		d := absSeconds(s.Sample.Instant.Sub(g))
		if d <= stepSeconds && d < bestDist {
			bestDist = d
			bestIdx = idx
		}
	}
	if bestIdx < 0 {
		return "", false
	}
	return c.samples[bestIdx].Annotation.GapBeforeSemantic, true
}

// classifyDistance buckets an alignment distance (seconds) per spec.md
// §4.3's threshold table. Bounds are: EXACT below ExactBelowS, CLOSE below
// CloseBelowS, INTERP at or below InterpAtMostS, else MISSING.
func classifyDistance(distanceS float64, th types.AlignThresholds) types.AlignQuality {
	switch {
	case distanceS < th.ExactBelowS:
		return types.AlignExact
	case distanceS < th.CloseBelowS:
		return types.AlignClose
	case distanceS <= th.InterpAtMostS:
		return types.AlignInterp
	default:
		return types.AlignMissing
	}
}

// semanticToGapType maps a Stage 2 GapSemantic found near a MISSING
// mandatory stream to the row-level GapType it implies (spec.md §4.3,
// deriveRowGapTypeAndConfidence.py).
func semanticToGapType(sem types.GapSemantic) types.GapType {
	switch sem {
	case types.SemanticCovConstant:
		return types.RowCovConstant
	case types.SemanticCovMinor:
		return types.RowCovMinor
	case types.SemanticSensorAnomaly:
		return types.RowSensorAnomaly
	default:
		return types.RowGap
	}
}

// rowSeverity ranks GapType so the worst semantic across streams wins a
// row's classification (spec.md §4.3: a row is only VALID if every
// mandatory stream contributing to it is VALID).
func rowSeverity(gt types.GapType) int {
	switch gt {
	case types.RowValid:
		return 0
	case types.RowCovConstant:
		return 1
	case types.RowCovMinor:
		return 2
	case types.RowSensorAnomaly:
		return 3
	default:
		return 4
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Run implements Stage 3 in full: grid construction, per-stream
// nearest-neighbor alignment, per-row classification against exclusion
// windows and Stage 2 semantics, and the stage's summary metrics.
// stage2Confidence is Stage 2's confidence score, the base Stage3Confidence
// is built from (buildStage3Metrics.py: stage3_confidence =
// stage2_confidence + total_penalty).
func Run(streams map[types.StreamTag][]types.AnnotatedSample, exclusionWindows []types.ExclusionWindow, cfg types.Config, stage2Confidence float64) ([]types.GridRow, types.Stage3Metrics) {
	metrics := types.Stage3Metrics{Stage: "SYNC"}

	var start, end time.Time
	haveBounds := false
	for _, tag := range types.AllStreams {
		samples := streams[tag]
		if len(samples) == 0 {
			continue
		}
		first := samples[0].Sample.Instant
		last := samples[len(samples)-1].Sample.Instant
		if !haveBounds {
			start, end = first, last
			haveBounds = true
			continue
		}
		if first.Before(start) {
			start = first
		}
		if last.After(end) {
			end = last
		}
	}
	if !haveBounds {
		metrics.Halt = true
		metrics.HaltReasons = []string{"no stream carries any samples"}
		metrics.Errors = append(metrics.Errors, "SYNC: no input streams")
		return nil, metrics
	}

	grid := BuildGrid(start, end, cfg.GridStepSeconds)
	metrics.TimestampStart = start
	metrics.TimestampEnd = end
	metrics.Grid = types.GridInfo{
		TNominalSeconds: cfg.GridStepSeconds,
		GridPoints:      len(grid),
		CoverageSeconds: end.Sub(start).Seconds(),
	}

	cursors := make(map[types.StreamTag]*cursor, len(types.AllStreams))
	for _, tag := range types.AllStreams {
		cursors[tag] = &cursor{samples: streams[tag]}
	}

	sortedWindows := append([]types.ExclusionWindow(nil), exclusionWindows...)
	sort.Slice(sortedWindows, func(i, j int) bool { return sortedWindows[i].Start.Before(sortedWindows[j].Start) })

	rowClassification := map[types.GapType]types.IntervalStats{}
	alignSummaries := map[types.StreamTag]*types.StreamAlignmentSummary{}
	for _, tag := range types.AllStreams {
		if len(streams[tag]) == 0 {
			continue
		}
		alignSummaries[tag] = &types.StreamAlignmentSummary{
			TotalRawRecords: len(streams[tag]),
			QualityCounts:   map[types.AlignQuality]types.IntervalStats{},
		}
	}

	rows := make([]types.GridRow, 0, len(grid))
	var distances []float64
	streamDistances := map[types.StreamTag][]float64{}

	for _, g := range grid {
		row := types.GridRow{
			Timestamp: g,
			Streams:   map[types.StreamTag]types.StreamAlignment{},
		}

		excluded := ""
		for _, w := range sortedWindows {
			if w.Contains(g) && w.EffectiveForSync(cfg.PendingApprovalEffective) {
				excluded = w.ID
				break
			}
		}

		anyMandatoryMissing := false
		nearbyGapType := types.RowGap
		haveNearbyGapType := false
		var confidenceFloor = 1.0

		for _, tag := range types.AllStreams {
			c := cursors[tag]
			mandatory := cfg.IsMandatoryFor(tag)
			idx := c.nearest(g)
			if idx < 0 {
				row.Streams[tag] = types.StreamAlignment{Quality: types.AlignMissing, Value: types.Absent, DistanceS: types.Absent}
				if mandatory {
					anyMandatoryMissing = true
				}
				continue
			}
			sample := c.samples[idx]
			distanceS := absSeconds(sample.Sample.Instant.Sub(g))
			quality := classifyDistance(distanceS, cfg.AlignThresholds)

			if summary := alignSummaries[tag]; summary != nil {
				cs := summary.QualityCounts[quality]
				cs.Count++
				summary.QualityCounts[quality] = cs
			}

			if quality == types.AlignMissing {
				row.Streams[tag] = types.StreamAlignment{Quality: quality, Value: types.Absent, DistanceS: types.Present(distanceS)}
				if mandatory {
					anyMandatoryMissing = true
					if sem, ok := semanticNear(c, g, cfg.GridStepSeconds); ok {
						gt := semanticToGapType(sem)
						if !haveNearbyGapType || rowSeverity(gt) > rowSeverity(nearbyGapType) {
							nearbyGapType = gt
							haveNearbyGapType = true
						}
					}
				}
				continue
			}

			distances = append(distances, distanceS)
			streamDistances[tag] = append(streamDistances[tag], distanceS)
			row.Streams[tag] = types.StreamAlignment{
				Quality:   quality,
				Value:     sample.Sample.Value,
				DistanceS: types.Present(distanceS),
			}
			if mandatory {
				if c := quality.ConfidenceOf(); c < confidenceFloor {
					confidenceFloor = c
				}
			}
		}

		switch {
		case excluded != "":
			row.GapType = types.RowExcluded
			row.ExclusionWindowID = excluded
			row.Confidence = 0
		case anyMandatoryMissing:
			if haveNearbyGapType {
				row.GapType = nearbyGapType
			} else {
				row.GapType = types.RowGap
			}
			row.Confidence = 0
		default:
			// All mandatory streams present: the row is VALID regardless of
			// any HasGap annotation on the aligned samples themselves (spec.md
			// §4.3; deriveRowGapTypeAndConfidence.py priority 3).
			row.GapType = types.RowValid
			row.Confidence = clamp01(confidenceFloor)
		}

		cs := rowClassification[row.GapType]
		cs.Count++
		rowClassification[row.GapType] = cs

		rows = append(rows, row)
	}

	total := len(rows)
	for gt, cs := range rowClassification {
		if total > 0 {
			cs.Pct = float64(cs.Count) / float64(total) * 100
		}
		rowClassification[gt] = cs
	}
	for _, summary := range alignSummaries {
		subtotal := 0
		for _, cs := range summary.QualityCounts {
			subtotal += cs.Count
		}
		for q, cs := range summary.QualityCounts {
			if subtotal > 0 {
				cs.Pct = float64(cs.Count) / float64(subtotal) * 100
			}
			summary.QualityCounts[q] = cs
		}
		switch {
		case subtotal == 0:
			summary.Status = types.AlignStatusNotProvided
		case subtotal < len(rows):
			summary.Status = types.AlignStatusPartial
		default:
			summary.Status = types.AlignStatusOK
		}
	}

	perStreamAlignment := map[types.StreamTag]types.StreamAlignmentSummary{}
	for tag, summary := range alignSummaries {
		if ds := streamDistances[tag]; len(ds) > 0 {
			var sum, max float64
			for _, d := range ds {
				sum += d
				if d > max {
					max = d
				}
			}
			summary.MeanAlignDistanceS = sum / float64(len(ds))
			summary.MaxAlignDistanceS = max
		}
		perStreamAlignment[tag] = *summary
	}
	metrics.PerStreamAlignment = perStreamAlignment
	metrics.RowClassification = rowClassification

	jitter := computeJitter(distances)
	metrics.Jitter = jitter

	validPct := 0.0
	if cs, ok := rowClassification[types.RowValid]; ok {
		validPct = cs.Pct
	}
	coveragePenalty := cfg.CoveragePenalty(validPct)
	jitterPenalty := 0.0
	if jitter.IntervalCVPct > cfg.JitterCVTolerancePct {
		jitterPenalty = -0.02
	}
	metrics.Penalties = types.PenaltyBreakdown{
		CoveragePenalty: coveragePenalty,
		JitterPenalty:   jitterPenalty,
		TotalPenalty:    coveragePenalty + jitterPenalty,
	}

	metrics.Stage3Confidence = clamp01(stage2Confidence + metrics.Penalties.TotalPenalty)

	return rows, metrics
}

// computeJitter summarizes the distribution of per-row alignment
// distances: its mean, population standard deviation, and coefficient of
// variation. This is the pipeline's reasonable reading of spec.md's
// "jitter" metric, applied to the distances Stage 3 itself produces
// rather than to raw inter-sample spacing already covered by Stage 2's
// gap classification.
func computeJitter(distances []float64) types.JitterStats {
	if len(distances) == 0 {
		return types.JitterStats{}
	}
	var sum float64
	for _, d := range distances {
		sum += d
	}
	mean := sum / float64(len(distances))

	var sqSum float64
	for _, d := range distances {
		diff := d - mean
		sqSum += diff * diff
	}
	std := math.Sqrt(sqSum / float64(len(distances)))

	cv := 0.0
	if mean > 0 {
		cv = std / mean * 100
	}
	return types.JitterStats{IntervalMeanS: mean, IntervalStdS: std, IntervalCVPct: cv}
}
