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

// Package stage1 orchestrates unit verification and physics validation
// (spec.md §4.1) by combining the units and physics packages into the
// pipeline's first pure stage transform.
package stage1

import (
	"sort"
	"time"

	"github.com/htdam/pipeline/herrors"
	"github.com/htdam/pipeline/logger"
	"github.com/htdam/pipeline/physics"
	"github.com/htdam/pipeline/types"
	"github.com/htdam/pipeline/units"
)

// Result is Stage 1's output: the canonical (SI-unit) series per stream,
// ready for Stage 2, plus the operational state classified at each joined
// timestamp when the salvage path ran.
type Result struct {
	Canonical         map[types.StreamTag]types.RawSeries
	ChannelMeta       map[types.StreamTag]types.ChannelMetadata
	OperationalStates map[time.Time]types.OperationalState // non-nil only when salvage ran
	Halt              bool
}

// Run executes Stage 1 (spec.md §4.1) over the supplied raw streams.
func Run(
	streams map[types.StreamTag]types.RawSeries,
	hints map[types.StreamTag]string,
	cfg types.Config,
	log logger.Logger,
) (Result, types.Stage1Metrics) {
	metrics := types.Stage1Metrics{
		Stage:              "UNITS",
		UnitConversions:    map[types.StreamTag]types.ChannelMetadata{},
		ChannelConfidences: map[types.StreamTag]float64{},
	}
	result := Result{
		Canonical:   map[types.StreamTag]types.RawSeries{},
		ChannelMeta: map[types.StreamTag]types.ChannelMetadata{},
	}

	channels := allPresentChannels(streams, cfg)
	if len(channels) == 0 {
		return haltResult(result, metrics, herrors.Precondition, "", "no streams supplied")
	}
	for _, tag := range cfg.Mandatory() {
		if s, ok := streams[tag]; !ok || len(s) == 0 {
			return haltResult(result, metrics, herrors.Precondition, string(tag),
				"mandatory stream "+string(tag)+" has no samples")
		}
	}

	for _, tag := range channels {
		metrics.TotalRecords += len(streams[tag])
	}

	// 1. Unit detection + conversion per channel.
	for _, tag := range channels {
		series := streams[tag].SortStable()
		kind := units.KindOf(string(tag))
		raw := nonAbsentFloats(series)

		det := units.DetectUnit(kind, raw, hints[tag])
		meta := types.ChannelMetadata{
			Stream:              tag,
			SourceUnit:          det.Unit,
			DetectionConfidence: det.Confidence,
			WasInferred:         det.WasInferred,
		}

		if det.Unit == "" {
			meta.TargetUnit = ""
			metrics.UnitConversions[tag] = meta
			if cfg.IsMandatoryFor(tag) {
				return haltResult(result, metrics, herrors.Precondition, string(tag),
					"unable to identify source unit for a channel required by physics")
			}
			metrics.Warnings = append(metrics.Warnings,
				"unit could not be identified for optional channel "+string(tag)+"; channel confidence set to 0")
			metrics.ChannelConfidences[tag] = 0
			result.Canonical[tag] = types.RawSeries{}
			result.ChannelMeta[tag] = meta
			continue
		}

		converted := make(types.RawSeries, len(series))
		targetUnit := targetUnitFor(kind)
		factorID := ""
		for i, s := range series {
			v, present := s.Value.Float64()
			if !present {
				converted[i] = s
				continue
			}
			cv, fid, ok := units.Convert(det.Unit, v)
			if !ok {
				return haltResult(result, metrics, herrors.Precondition, string(tag),
					"unsupported source unit '"+det.Unit+"'")
			}
			factorID = fid
			converted[i] = types.Sample{Instant: s.Instant, Value: types.Present(cv)}
		}
		meta.TargetUnit = targetUnit
		meta.ConversionFactorID = factorID
		meta.ConversionApplied = det.Unit != targetUnit || factorID != ""
		result.Canonical[tag] = converted
		result.ChannelMeta[tag] = meta
		metrics.UnitConversions[tag] = meta
	}

	if metrics.Halt {
		return result, metrics
	}

	// 2. Physics checks + HALT evaluation, with one salvage retry.
	halted, haltCauses := evaluatePhysics(result.Canonical, cfg, &metrics)
	if halted && cfg.AllowHalt {
		metrics.HaltReasons = haltCauses
		if salvaged, newHaltCauses := trySalvage(&result, cfg, &metrics, log); salvaged {
			halted = false
			metrics.HaltReasons = nil
		} else {
			haltCauses = newHaltCauses
		}
	}

	if halted && cfg.AllowHalt {
		metrics.Halt = true
		metrics.HaltReasons = haltCauses
		for _, c := range haltCauses {
			metrics.Errors = append(metrics.Errors, c)
		}
		result.Halt = true
		return result, metrics
	}

	// 3. Confidence roll-up.
	overall := 1.0
	for _, tag := range channels {
		meta := result.ChannelMeta[tag]
		unitConf := physics.UnitConfidence(meta.SourceUnit != "", meta.WasInferred, meta.DetectionConfidence, false)
		physConf := physicsConfidenceFor(tag, result.Canonical[tag], cfg)
		chConf := physics.ChannelConfidence(unitConf, physConf)
		metrics.ChannelConfidences[tag] = chConf
		if chConf < overall {
			overall = chConf
		}
	}
	metrics.OverallConfidence = overall
	metrics.Penalty = cfg.Stage1Penalty(overall)
	metrics.FinalScore = clamp01(overall + metrics.Penalty)

	return result, metrics
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

func targetUnitFor(kind units.SignalKind) string {
	switch kind {
	case units.Temperature:
		return "C"
	case units.Flow:
		return "m3s"
	case units.Power:
		return "kW"
	default:
		return ""
	}
}

func allPresentChannels(streams map[types.StreamTag]types.RawSeries, cfg types.Config) []types.StreamTag {
	var out []types.StreamTag
	for _, tag := range types.AllStreams {
		if s, ok := streams[tag]; ok && len(s) > 0 {
			out = append(out, tag)
		}
	}
	return out
}

func nonAbsentFloats(series types.RawSeries) []float64 {
	out := make([]float64, 0, len(series))
	for _, s := range series {
		if v, ok := s.Value.Float64(); ok {
			out = append(out, v)
		}
	}
	return out
}

func haltResult(result Result, metrics types.Stage1Metrics, kind herrors.Kind, channel, msg string) (Result, types.Stage1Metrics) {
	err := herrors.New(kind, "UNITS", channel, "", msg, nil)
	metrics.Halt = true
	metrics.Errors = append(metrics.Errors, err.Error())
	metrics.HaltReasons = append(metrics.HaltReasons, err.Error())
	result.Halt = true
	return result, metrics
}

func physicsConfidenceFor(tag types.StreamTag, series types.RawSeries, cfg types.Config) float64 {
	r, ok := cfg.PhysicsRanges[tag]
	if !ok {
		return 1.0
	}
	violations, checked := 0, 0
	for _, s := range series {
		inRange, isChecked := physics.InRange(s.Value, r)
		if !isChecked {
			continue
		}
		checked++
		if !inRange {
			violations++
		}
	}
	if checked == 0 {
		return 1.0
	}
	pct := float64(violations) / float64(checked) * 100
	return physics.PhysicsConfidence(pct)
}

// evaluatePhysics runs every range/relationship/non-negative check,
// records a PhysicsViolationSummary per constraint, and reports whether
// any HALT threshold from spec.md §4.1 was exceeded.
func evaluatePhysics(canonical map[types.StreamTag]types.RawSeries, cfg types.Config, metrics *types.Stage1Metrics) (halted bool, reasons []string) {
	// Range checks, one constraint per mandatory+optional stream present.
	for _, tag := range types.AllStreams {
		series, ok := canonical[tag]
		if !ok {
			continue
		}
		r, hasRange := cfg.PhysicsRanges[tag]
		if !hasRange {
			continue
		}
		violations, checked := 0, 0
		for _, s := range series {
			inRange, isChecked := physics.InRange(s.Value, r)
			if !isChecked {
				continue
			}
			checked++
			if !inRange {
				violations++
			}
		}
		if checked == 0 {
			continue
		}
		pct := float64(violations) / float64(checked) * 100
		metrics.PhysicsViolations = append(metrics.PhysicsViolations, types.PhysicsViolationSummary{
			Constraint:   string(tag) + "_range",
			Violations:   violations,
			Checked:      checked,
			ViolationPct: pct,
		})
		if pct > cfg.HaltThresholds.PhysicsViolationPct {
			halted = true
			reasons = append(reasons, herrors.New(herrors.QualityViolation, "UNITS", string(tag), string(tag)+"_range",
				"physics-range violation exceeds threshold",
				map[string]float64{"violation_pct": pct}).Error())
		}

		if tag == types.FLOW || tag == types.POWER {
			negCount := 0
			for _, s := range series {
				if violated, isChecked := physics.NonNegative(s.Value); isChecked && violated {
					negCount++
				}
			}
			if negCount > 0 {
				halted = true
				reasons = append(reasons, herrors.New(herrors.QualityViolation, "UNITS", string(tag), string(tag)+"_nonnegative",
					"negative value observed in a non-negative channel",
					map[string]float64{"count": float64(negCount)}).Error())
			}
		}
	}

	// Relationship checks over joined samples.
	_, joined := joinSamples(canonical)
	if len(joined) > 0 {
		for _, rc := range physics.Relationships {
			violations, checked := 0, 0
			for _, j := range joined {
				v, isChecked := rc.Eval(j)
				if !isChecked {
					continue
				}
				checked++
				if v {
					violations++
				}
			}
			if checked == 0 {
				continue
			}
			pct := float64(violations) / float64(checked) * 100
			metrics.PhysicsViolations = append(metrics.PhysicsViolations, types.PhysicsViolationSummary{
				Constraint:   rc.Name,
				Violations:   violations,
				Checked:      checked,
				ViolationPct: pct,
			})
			if pct > cfg.HaltThresholds.RelationshipViolationPct {
				halted = true
				reasons = append(reasons, herrors.New(herrors.QualityViolation, "UNITS", "", rc.Name,
					"relationship violation exceeds threshold",
					map[string]float64{"violation_pct": pct}).Error())
			}
		}
	}

	return halted, reasons
}

// joinSamples groups canonical samples by exact timestamp across streams,
// the precondition spec.md §4.1 imposes on relationship checks. It
// returns the timestamps and their joined samples in parallel,
// time-ascending order.
func joinSamples(canonical map[types.StreamTag]types.RawSeries) ([]time.Time, []physics.JoinedSample) {
	byTime := map[time.Time]*physics.JoinedSample{}
	var order []time.Time
	assign := func(series types.RawSeries, set func(*physics.JoinedSample, types.Value)) {
		for _, s := range series {
			j, ok := byTime[s.Instant]
			if !ok {
				j = &physics.JoinedSample{}
				byTime[s.Instant] = j
				order = append(order, s.Instant)
			}
			set(j, s.Value)
		}
	}
	if s, ok := canonical[types.CHWST]; ok {
		assign(s, func(j *physics.JoinedSample, v types.Value) { j.Chwst = v })
	}
	if s, ok := canonical[types.CHWRT]; ok {
		assign(s, func(j *physics.JoinedSample, v types.Value) { j.Chwrt = v })
	}
	if s, ok := canonical[types.CDWRT]; ok {
		assign(s, func(j *physics.JoinedSample, v types.Value) { j.Cdwrt = v })
	}
	if s, ok := canonical[types.FLOW]; ok {
		assign(s, func(j *physics.JoinedSample, v types.Value) { j.Flow = v })
	}
	if s, ok := canonical[types.POWER]; ok {
		assign(s, func(j *physics.JoinedSample, v types.Value) { j.Power = v })
	}
	sort.Slice(order, func(i, k int) bool { return order[i].Before(order[k]) })
	out := make([]physics.JoinedSample, 0, len(order))
	for _, t := range order {
		out = append(out, *byTime[t])
	}
	return order, out
}
