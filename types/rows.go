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

import "time"

// GapClass classifies an inter-sample interval against the grid step
// (spec.md §4.2).
type GapClass string

const (
	Normal   GapClass = "NORMAL"
	MinorGap GapClass = "MINOR_GAP"
	MajorGap GapClass = "MAJOR_GAP"
)

// GapSemantic explains a non-NORMAL interval (spec.md §4.2).
type GapSemantic string

const (
	SemanticCovConstant    GapSemantic = "COV_CONSTANT"
	SemanticCovMinor       GapSemantic = "COV_MINOR"
	SemanticSensorAnomaly  GapSemantic = "SENSOR_ANOMALY"
	SemanticNotApplicable  GapSemantic = "N_A"
)

// AlignQuality is the distance-based quality bucket assigned by Stage 3's
// nearest-neighbor alignment (spec.md §4.3).
type AlignQuality string

const (
	AlignExact   AlignQuality = "EXACT"
	AlignClose   AlignQuality = "CLOSE"
	AlignInterp  AlignQuality = "INTERP"
	AlignMissing AlignQuality = "MISSING"
)

// qualityConfidence is the fixed per-quality confidence table from
// spec.md §4.3 step 3, used both by Stage 3's VALID-row confidence and by
// invariant I3's per-row ceiling check.
var qualityConfidence = map[AlignQuality]float64{
	AlignExact:  0.95,
	AlignClose:  0.90,
	AlignInterp: 0.85,
}

// ConfidenceOf returns the fixed confidence associated with q, or 0 for
// MISSING (matching invariant I3's usage: a MISSING mandatory stream
// ceilings row confidence at 0).
func (q AlignQuality) ConfidenceOf() float64 {
	return qualityConfidence[q]
}

// GapType is the per-row classification Stage 3 assigns (spec.md §3).
type GapType string

const (
	RowValid         GapType = "VALID"
	RowCovConstant   GapType = "COV_CONSTANT"
	RowCovMinor      GapType = "COV_MINOR"
	RowSensorAnomaly GapType = "SENSOR_ANOMALY"
	RowExcluded      GapType = "EXCLUDED"
	RowGap           GapType = "GAP"
)

// OperationalState is Stage 1's ACTIVE/STANDBY/OFF classification used by
// the standby-reversal salvage rule (spec.md §4.1).
type OperationalState string

const (
	StateActive  OperationalState = "ACTIVE"
	StateStandby OperationalState = "STANDBY"
	StateOff     OperationalState = "OFF"
)

// HuntSeverity is Stage 4's control-loop oscillation severity (spec.md §4.4).
type HuntSeverity string

const (
	HuntNone  HuntSeverity = "NONE"
	HuntMinor HuntSeverity = "MINOR"
	HuntMajor HuntSeverity = "MAJOR"
)

// FoulingSeverity is Stage 4's heat-exchanger fouling severity (spec.md §4.4).
type FoulingSeverity string

const (
	FoulingClean FoulingSeverity = "CLEAN"
	FoulingMinor FoulingSeverity = "MINOR_FOULING"
	FoulingMajor FoulingSeverity = "MAJOR_FOULING"
)

// QualityTier is the final pipeline-level confidence tier (spec.md §6).
type QualityTier string

const (
	TierA QualityTier = "TIER_A"
	TierB QualityTier = "TIER_B"
	TierC QualityTier = "TIER_C"
	TierD QualityTier = "TIER_D"
	TierF QualityTier = "TIER_F"
)

// TierOf buckets a final confidence scalar into its quality tier.
func TierOf(confidence float64) QualityTier {
	switch {
	case confidence >= 0.90:
		return TierA
	case confidence >= 0.80:
		return TierB
	case confidence >= 0.70:
		return TierC
	case confidence >= 0.60:
		return TierD
	default:
		return TierF
	}
}

// ChannelMetadata is Stage 1's per-channel unit record (spec.md §3).
type ChannelMetadata struct {
	Stream             StreamTag
	SourceUnit         string
	TargetUnit         string
	ConversionFactorID string
	DetectionConfidence float64
	WasInferred        bool
	ConversionApplied  bool
}

// Stage2Annotation is the per-sample (index ≥ 1) annotation Stage 2
// attaches to a stream's sorted samples (spec.md §3).
type Stage2Annotation struct {
	GapBeforeDurationS    float64
	GapBeforeClass        GapClass
	GapBeforeSemantic     GapSemantic
	GapBeforeConfidence   float64
	ValueChangedRelPct    float64
	ExclusionWindowID     string // empty when absent
}

// AnnotatedSample pairs a raw sample with its Stage 2 annotation. Index 0
// of a stream's annotated series has a zero-value Annotation (§3: "Index 0
// has these fields absent").
type AnnotatedSample struct {
	Sample     Sample
	Annotation Stage2Annotation
	HasGap     bool // false for index 0
}

// StreamAlignment is a single stream's Stage 3 alignment result at one
// grid point (spec.md §3).
type StreamAlignment struct {
	Value      Value
	Quality    AlignQuality
	DistanceS  Value
}

// GridRow is one synchronized row produced by Stage 3 (spec.md §3).
type GridRow struct {
	Timestamp         time.Time
	Streams           map[StreamTag]StreamAlignment
	GapType           GapType
	Confidence        float64
	ExclusionWindowID string // empty when absent
}

// DerivedRow extends a GridRow with Stage 4's computed fields (spec.md §3).
type DerivedRow struct {
	GridRow

	DeltaTChw Value
	Lift      Value

	QEvapKW      Value
	QConfidence  float64

	Cop            Value
	CopConfidence  float64
	CopCarnot      Value
	CopNormalized  Value

	HuntFlag     bool
	HuntSeverity HuntSeverity

	FoulingEvapPct         Value
	FoulingEvapSeverity    FoulingSeverity
	FoulingCondenserPct    Value
	FoulingCondenserSeverity FoulingSeverity

	FinalRowConfidence float64
}
