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

package types

// PhysicsRange is an inclusive valid range for a channel's canonical-unit
// values (spec.md §4.1).
type PhysicsRange struct {
	Min float64
	Max float64
}

// Contains reports whether v lies within r (min and max inclusive).
func (r PhysicsRange) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

// AlignThresholds are the distance cutoffs (seconds) that bucket Stage 3
// alignment distances into EXACT/CLOSE/INTERP/MISSING (spec.md §3, §4.3).
type AlignThresholds struct {
	ExactBelowS   float64 // d < ExactBelowS -> EXACT
	CloseBelowS   float64 // d < CloseBelowS -> CLOSE
	InterpAtMostS float64 // d <= InterpAtMostS -> INTERP (inclusive per open question #3)
}

// GapClassFactors are multiples of grid_step_seconds bounding NORMAL and
// MINOR_GAP classification (spec.md §3, §4.2). Both bounds are inclusive.
type GapClassFactors struct {
	NormalAtMost float64 // Δt <= NormalAtMost * grid_step -> NORMAL
	MinorAtMost  float64 // NormalAtMost*grid_step < Δt <= MinorAtMost*grid_step -> MINOR_GAP
}

// ExclusionWindowThresholds gate when an overlap of MAJOR_GAPs becomes an
// exclusion-window candidate (spec.md §3, §4.2).
type ExclusionWindowThresholds struct {
	MinAffectedStreams int
	MinOverlapHours    float64
}

// CoverageTier is one band of the VALID-row coverage penalty table
// (spec.md §4.3).
type CoverageTier struct {
	MinPct  float64
	Penalty float64
}

// SalvageConfig parameterizes the Stage 1 standby-reversal salvage rule
// (spec.md §4.1, open question #4).
type SalvageConfig struct {
	Enabled        bool
	ActiveDeltaTC  float64 // minimum CHWRT-CHWST to call a joined sample ACTIVE
	MinActiveRatio float64 // minimum fraction of joined samples that must be ACTIVE to attempt salvage
}

// HaltThresholds are the percentage cutoffs that trigger a Stage 1 HALT
// (spec.md §4.1).
type HaltThresholds struct {
	PhysicsViolationPct      float64 // > this % of non-absent samples halts
	RelationshipViolationPct float64 // > this % of joined samples halts
}

// Config is the pipeline's single, read-only-after-start configuration
// record (spec.md §3). It is passed by value through every stage, per
// §9's "no process-wide mutable state" mapping — there is exactly one
// Config, not a scattered set of module-level constants.
type Config struct {
	GridStepSeconds       float64
	SyncToleranceSeconds  float64
	AlignThresholds       AlignThresholds
	GapClassFactors       GapClassFactors
	CovRelTolerancePct    float64 // 0.5 means 0.5%
	SensorAnomalyAbsJumpC float64

	ExclusionThresholds  ExclusionWindowThresholds
	GapSemanticPenalties map[GapSemantic]float64

	CoverageTiers        []CoverageTier // ordered by descending MinPct
	JitterCVTolerancePct float64

	MandatoryStreams map[StreamTag]struct{}
	OptionalStreams  map[StreamTag]struct{}

	PhysicsRanges  map[StreamTag]PhysicsRange
	HaltThresholds HaltThresholds
	Salvage        SalvageConfig
	AllowHalt      bool // true = HALT conditions are honored (the normal case)

	// PendingApprovalEffective resolves the open question of whether a
	// PENDING_APPROVAL exclusion window is treated as effective for Stage 3
	// row classification. spec.md §9 adopts "yes" as the default.
	PendingApprovalEffective bool

	ApprovedExclusionWindows []ExclusionWindow

	HuntWindowHours    float64
	HuntCycleMinCount  int
	HuntMinorFreqPerHr float64
	HuntMajorFreqPerHr float64

	FoulingEvapMinorPct      float64
	FoulingEvapMajorPct      float64
	FoulingCondenserMinorPct float64
	FoulingCondenserMajorPct float64

	BaselineUFOA *float64 // externally supplied baseline, nil = compute from data
	BaselineLift *float64

	Stage1PenaltyHighConfidence float64 // confidence >= this -> 0 penalty
	Stage1PenaltyGoodConfidence float64 // confidence >= this -> -0.02 penalty, else -0.05
}

// DefaultConfig returns the spec.md §3 default configuration, mirroring
// the teacher's types.NewConfig()/DefaultPerformanceConfig() constructor
// idiom of spelling out every default inline rather than relying on zero
// values.
func DefaultConfig() Config {
	return Config{
		GridStepSeconds:      900,
		SyncToleranceSeconds: 1800,
		AlignThresholds: AlignThresholds{
			ExactBelowS:   60,
			CloseBelowS:   300,
			InterpAtMostS: 1800,
		},
		GapClassFactors: GapClassFactors{
			NormalAtMost: 1.5,
			MinorAtMost:  4.0,
		},
		CovRelTolerancePct:    0.5,
		SensorAnomalyAbsJumpC: 5.0,

		ExclusionThresholds: ExclusionWindowThresholds{
			MinAffectedStreams: 2,
			MinOverlapHours:    8.0,
		},
		GapSemanticPenalties: map[GapSemantic]float64{
			SemanticCovConstant:   0.0,
			SemanticCovMinor:      -0.02,
			SemanticSensorAnomaly: -0.05,
		},

		CoverageTiers: []CoverageTier{
			{MinPct: 95, Penalty: 0.0},
			{MinPct: 90, Penalty: -0.02},
			{MinPct: 80, Penalty: -0.05},
			{MinPct: 0, Penalty: -0.10},
		},
		JitterCVTolerancePct: 5.0,

		MandatoryStreams: map[StreamTag]struct{}{CHWST: {}, CHWRT: {}, CDWRT: {}},
		OptionalStreams:  map[StreamTag]struct{}{FLOW: {}, POWER: {}},

		PhysicsRanges: map[StreamTag]PhysicsRange{
			CHWST: {Min: 3, Max: 20},
			CHWRT: {Min: 5, Max: 30},
			CDWRT: {Min: 15, Max: 45},
			FLOW:  {Min: 0, Max: 1e18},
			POWER: {Min: 0, Max: 1e18},
		},
		HaltThresholds: HaltThresholds{
			PhysicsViolationPct:      1.0,
			RelationshipViolationPct: 1.0,
		},
		Salvage: SalvageConfig{
			Enabled:        true,
			ActiveDeltaTC:  0.5,
			MinActiveRatio: 0.10,
		},
		AllowHalt: true,

		PendingApprovalEffective: true,

		HuntWindowHours:    24,
		HuntCycleMinCount:  3,
		HuntMinorFreqPerHr: 0.2,
		HuntMajorFreqPerHr: 1.0,

		FoulingEvapMinorPct:      10.0,
		FoulingEvapMajorPct:      25.0,
		FoulingCondenserMinorPct: 5.0,
		FoulingCondenserMajorPct: 15.0,

		Stage1PenaltyHighConfidence: 0.95,
		Stage1PenaltyGoodConfidence: 0.80,
	}
}

// CoveragePenalty returns the configured penalty for a VALID-row coverage
// percentage, per spec.md §4.3's tier table. Tiers are checked in
// descending MinPct order; the first tier whose MinPct the percentage
// satisfies wins.
func (c Config) CoveragePenalty(pct float64) float64 {
	for _, tier := range c.CoverageTiers {
		if pct >= tier.MinPct {
			return tier.Penalty
		}
	}
	return 0
}

// Stage1Penalty returns the spec.md §4.1 penalty for an overall Stage-1
// confidence value.
func (c Config) Stage1Penalty(confidence float64) float64 {
	switch {
	case confidence >= c.Stage1PenaltyHighConfidence:
		return 0
	case confidence >= c.Stage1PenaltyGoodConfidence:
		return -0.02
	default:
		return -0.05
	}
}
