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

// Package pipeline sequences Stage 1 through Stage 4 (spec.md §2, §5): a
// single forward pass with no branching back, context cancellation
// checked at each stage boundary, and an early return the moment any
// stage's metrics report a HALT.
//
// Stage 2 has no dedicated orchestration package of its own — unlike
// Stage 1's salvage branch or Stage 3/4's batch walks, Stage 2 is a
// straight per-stream map plus a cross-stream reduction over
// gapanalysis's exported primitives (AnnotateStream,
// DetectExclusionWindows), so it is assembled here rather than behind
// another package boundary.
package pipeline

import (
	"context"
	"fmt"

	"github.com/htdam/pipeline/derived"
	"github.com/htdam/pipeline/gapanalysis"
	"github.com/htdam/pipeline/gridsync"
	"github.com/htdam/pipeline/logger"
	"github.com/htdam/pipeline/stage1"
	"github.com/htdam/pipeline/types"
	"github.com/htdam/pipeline/weighting"
)

// Input is everything Run needs beyond configuration: the raw,
// unsynchronized per-stream series and any unit hints supplied out of
// band (spec.md §3).
type Input struct {
	Streams map[types.StreamTag]types.RawSeries
	Hints   map[types.StreamTag]string
}

// Run executes the full four-stage pipeline. rule combines the four
// per-stage confidences into PipelineResult.FinalConfidence; a nil rule
// falls back to weighting.MinimumRule, spec.md §7's default.
func Run(ctx context.Context, in Input, cfg types.Config, log logger.Logger, rule weighting.Rule) (types.PipelineResult, error) {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	if rule == nil {
		rule = weighting.MinimumRule
	}

	if err := ctx.Err(); err != nil {
		return types.PipelineResult{}, fmt.Errorf("pipeline: %w", err)
	}

	log.Info("pipeline: starting stage UNITS")
	stage1Result, stage1Metrics := stage1.Run(in.Streams, in.Hints, cfg, log)
	if stage1Metrics.Halt {
		log.Error("pipeline: halted at UNITS: %v", stage1Metrics.HaltReasons)
		return haltedResult("UNITS", stage1Metrics), nil
	}

	if err := ctx.Err(); err != nil {
		return types.PipelineResult{}, fmt.Errorf("pipeline: %w", err)
	}

	log.Info("pipeline: starting stage GAPS")
	stage2Annotated, stage2Metrics, exclusionWindows := runGapAnalysis(stage1Result.Canonical, stage1Metrics.FinalScore, cfg, log)
	if stage2Metrics.Halt {
		log.Error("pipeline: halted at GAPS: %v", stage2Metrics.HaltReasons)
		result := haltedResult("GAPS", stage1Metrics)
		result.Stage2 = stage2Metrics
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return types.PipelineResult{}, fmt.Errorf("pipeline: %w", err)
	}

	log.Info("pipeline: starting stage SYNC")
	if len(cfg.ApprovedExclusionWindows) > 0 {
		exclusionWindows = cfg.ApprovedExclusionWindows
	}
	gridRows, stage3Metrics := gridsync.Run(stage2Annotated, exclusionWindows, cfg, stage2Metrics.Stage2Confidence)
	if stage3Metrics.Halt {
		log.Error("pipeline: halted at SYNC: %v", stage3Metrics.HaltReasons)
		result := haltedResult("SYNC", stage1Metrics)
		result.Stage2 = stage2Metrics
		result.Stage3 = stage3Metrics
		return result, nil
	}

	if err := ctx.Err(); err != nil {
		return types.PipelineResult{}, fmt.Errorf("pipeline: %w", err)
	}

	log.Info("pipeline: starting stage SPOC")
	derivedRows, stage4Metrics := derived.Run(gridRows, cfg)

	scores := weighting.ScoresFrom(stage1Metrics, stage2Metrics, stage3Metrics, stage4Metrics)
	final, err := rule.Combine(scores)
	if err != nil {
		return types.PipelineResult{}, fmt.Errorf("pipeline: combine confidence: %w", err)
	}

	log.Info("pipeline: finished, final_confidence=%.3f tier=%s", final, types.TierOf(final))

	return types.PipelineResult{
		Rows:            derivedRows,
		Stage1:          stage1Metrics,
		Stage2:          stage2Metrics,
		Stage3:          stage3Metrics,
		Stage4:          stage4Metrics,
		FinalConfidence: final,
		QualityTier:     types.TierOf(final),
		Halted:          false,
	}, nil
}

func haltedResult(stage string, s1 types.Stage1Metrics) types.PipelineResult {
	return types.PipelineResult{
		Stage1:        s1,
		Halted:        true,
		HaltedAtStage: stage,
		QualityTier:   types.TierF,
	}
}

// runGapAnalysis runs Stage 2 across every canonical stream in
// deterministic, stream-name-ascending order, then reduces the per-stream
// MAJOR_GAP intervals into cross-stream exclusion windows. stage1Confidence
// is Stage 1's final score, the base Stage2Confidence is built from
// (useStage2GapDetector.py / buildStage2Metrics.py: stage2_confidence =
// stage1_confidence + aggregate_penalty).
func runGapAnalysis(canonical map[types.StreamTag]types.RawSeries, stage1Confidence float64, cfg types.Config, log logger.Logger) (map[types.StreamTag][]types.AnnotatedSample, types.Stage2Metrics, []types.ExclusionWindow) {
	metrics := types.Stage2Metrics{Stage: "GAPS", PerStreamSummary: map[types.StreamTag]types.StreamGapSummary{}}

	annotated := map[types.StreamTag][]types.AnnotatedSample{}
	var allMajorGaps []gapanalysis.GapInterval
	var penaltySum float64
	var streamCount int

	for _, tag := range types.AllStreams {
		series, ok := canonical[tag]
		if !ok {
			continue
		}
		streamResult := gapanalysis.AnnotateStream(tag, series, cfg)
		annotated[tag] = streamResult.Annotated
		metrics.PerStreamSummary[tag] = streamResult.Summary
		allMajorGaps = append(allMajorGaps, streamResult.MajorGaps...)
		penaltySum += streamResult.Penalty
		streamCount++

		if cfg.IsMandatoryFor(tag) && len(streamResult.Annotated) == 0 {
			metrics.Halt = true
			reason := fmt.Sprintf("mandatory stream %s has no samples reaching Stage 2", tag)
			metrics.HaltReasons = append(metrics.HaltReasons, reason)
			metrics.Errors = append(metrics.Errors, reason)
		}
	}

	windows := gapanalysis.DetectExclusionWindows(allMajorGaps, cfg)
	metrics.ExclusionWindows = windows
	for _, w := range windows {
		if w.Status == types.PendingApproval {
			metrics.HumanApprovalRequired = true
			log.Warn("pipeline: exclusion window %s pending approval (%s..%s)", w.ID, w.Start, w.End)
		}
	}

	metrics.AggregatePenalty = 0.0
	if streamCount > 0 {
		metrics.AggregatePenalty = penaltySum
	}
	metrics.Stage2Confidence = clamp01(stage1Confidence + metrics.AggregatePenalty)

	return annotated, metrics, windows
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
