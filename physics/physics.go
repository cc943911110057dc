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

// Package physics implements the second half of Stage 1 (spec.md §4.1):
// per-row range and relationship checks on canonical (SI) units, the
// ACTIVE/STANDBY/OFF operational-state classifier that backs the
// standby-reversal salvage rule, and the confidence arithmetic that
// combines unit-detection and physics-violation rates into a per-channel
// score.
//
// Relationship checks are grounded on the teacher's condition/condition.go
// boolean-predicate idiom (a small set of named, independently testable
// predicates rather than one monolithic validator).
package physics

import "github.com/htdam/pipeline/types"

// JoinedSample is one instant at which CHWST, CHWRT, and CDWRT (and,
// where present, FLOW/POWER) were all sampled — the original
// implementation's relationship checks only apply to samples joined on
// identical timestamps (spec.md §4.1).
type JoinedSample struct {
	Chwst types.Value
	Chwrt types.Value
	Cdwrt types.Value
	Flow  types.Value
	Power types.Value
}

// InRange reports whether v satisfies cfg's physics range for stream.
// Absent values are never in violation — they are simply not checked.
func InRange(v types.Value, r types.PhysicsRange) (ok bool, checked bool) {
	f, present := v.Float64()
	if !present {
		return true, false
	}
	return r.Contains(f), true
}

// NonNegative reports whether v is present and negative (a violation for
// FLOW/POWER per spec.md §4.1's unconditional-HALT rule).
func NonNegative(v types.Value) (violated bool, checked bool) {
	f, present := v.Float64()
	if !present {
		return false, false
	}
	return f < 0, true
}

// RelationshipCheck is one of the two joined-sample relationship
// constraints from spec.md §4.1.
type RelationshipCheck struct {
	Name string
	Eval func(JoinedSample) (violated bool, checked bool)
}

// Relationships lists CHWRT >= CHWST and CDWRT > CHWST, the two joined
// checks spec.md §4.1 requires.
var Relationships = []RelationshipCheck{
	{
		Name: "CHWRT>=CHWST",
		Eval: func(j JoinedSample) (bool, bool) {
			chwrt, okR := j.Chwrt.Float64()
			chwst, okS := j.Chwst.Float64()
			if !okR || !okS {
				return false, false
			}
			return chwrt < chwst, true
		},
	},
	{
		Name: "CDWRT>CHWST",
		Eval: func(j JoinedSample) (bool, bool) {
			cdwrt, okC := j.Cdwrt.Float64()
			chwst, okS := j.Chwst.Float64()
			if !okC || !okS {
				return false, false
			}
			return cdwrt <= chwst, true
		},
	},
}

// ClassifyState implements spec.md §4.1's salvage-rule ACTIVE/STANDBY/OFF
// classifier. OFF requires both FLOW and POWER present and approximately
// zero; ACTIVE requires CHWRT-CHWST >= activeDeltaT; everything else is
// STANDBY.
func ClassifyState(j JoinedSample, activeDeltaT float64) types.OperationalState {
	flow, flowOK := j.Flow.Float64()
	power, powerOK := j.Power.Float64()
	const nearZero = 1e-6
	if flowOK && powerOK && flow <= nearZero && power <= nearZero {
		return types.StateOff
	}
	chwrt, okR := j.Chwrt.Float64()
	chwst, okS := j.Chwst.Float64()
	if okR && okS && (chwrt-chwst) >= activeDeltaT {
		return types.StateActive
	}
	return types.StateStandby
}

// UnitConfidence computes spec.md §4.1's unit_confidence: 1.0 minus
// penalties for a missing unit, an inferred (no-hint) detection, an
// ambiguous (<0.80) detection, or a manual override — exactly one
// scenario applies per channel, so the penalties are not summed, the
// first applicable one is returned.
func UnitConfidence(unitKnown bool, wasInferred bool, detectionConfidence float64, manualOverride bool) float64 {
	if !unitKnown {
		return 1.0 - 0.30
	}
	if wasInferred {
		return 1.0 - 0.30
	}
	if detectionConfidence < 0.80 {
		return 1.0 - 0.20
	}
	if manualOverride {
		return 1.0 - 0.10
	}
	return 1.0
}

// PhysicsConfidence computes spec.md §4.1's physics_confidence from a
// channel's violation percentage (0..100).
func PhysicsConfidence(violationPct float64) float64 {
	c := 1.0 - violationPct/100*0.10
	if c < 0 {
		return 0
	}
	return c
}

// ChannelConfidence is the per-channel min(unit_confidence,
// physics_confidence) spec.md §4.1 defines.
func ChannelConfidence(unitConfidence, physicsConfidence float64) float64 {
	if unitConfidence < physicsConfidence {
		return unitConfidence
	}
	return physicsConfidence
}
