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

// Package units implements the first half of Stage 1 (spec.md §4.1): unit
// detection from an explicit hint or a value-range heuristic, and
// conversion of a channel's raw values to SI (°C, m³/s, kW).
//
// The conversion arithmetic is grounded on the teacher's
// functions/functions_conversion.go and functions_math.go (the percentile
// helper backing the detection heuristic reuses that package's
// sort-then-index-by-floor idiom, e.g. functions_aggregation.go's
// PercentileFunction).
package units

import (
	"sort"

	"github.com/spf13/cast"
)

// SignalKind is the physical quantity a stream measures, which determines
// which disjoint unit-range table §4.1 uses for heuristic detection.
type SignalKind int

const (
	Temperature SignalKind = iota
	Flow
	Power
)

// Detection is the outcome of unit detection for one channel.
type Detection struct {
	Unit        string
	Confidence  float64
	WasInferred bool // true when no hint was supplied and the heuristic had to infer
}

// Percentile returns the p-th (0..1) order statistic of values using
// linear floor-indexing into the ascending-sorted copy, matching the
// teacher's PercentileFunction (functions/functions_aggregation.go):
// index = floor(p * (n-1)).
func Percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	idx := int(p * float64(len(sorted)-1))
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// hint confidence per spec.md §4.1 step (a).
const hintConfidence = 0.95

// DetectUnit implements spec.md §4.1's detection order: an explicit hint
// wins outright at 0.95 confidence; otherwise a disjoint-range heuristic
// runs on the 99.5th percentile (and, for temperatures, the 0.5th
// percentile too, so a handful of out-of-range outliers don't mask the
// true unit). Values known to be non-finite must already be filtered out
// by the caller (Absent samples never reach here).
func DetectUnit(kind SignalKind, values []float64, hint string) Detection {
	if hint != "" {
		if unit, ok := normalizeHint(kind, hint); ok {
			return Detection{Unit: unit, Confidence: hintConfidence, WasInferred: false}
		}
	}
	if len(values) == 0 {
		return Detection{WasInferred: true}
	}
	p995 := Percentile(values, 0.995)
	p005 := Percentile(values, 0.005)

	switch kind {
	case Temperature:
		return detectTemperature(p005, p995)
	case Flow:
		return detectFlow(p995)
	case Power:
		return detectPower(p005, p995)
	default:
		return Detection{WasInferred: true}
	}
}

func normalizeHint(kind SignalKind, hint string) (string, bool) {
	switch kind {
	case Temperature:
		switch hint {
		case "°C", "C", "degC", "celsius":
			return "C", true
		case "°F", "F", "degF", "fahrenheit":
			return "F", true
		case "K", "kelvin":
			return "K", true
		}
	case Flow:
		switch hint {
		case "m3/s", "m³/s":
			return "m3s", true
		case "L/s", "l/s":
			return "Ls", true
		case "m3/h", "m³/h":
			return "m3h", true
		case "GPM", "gpm":
			return "GPM", true
		}
	case Power:
		switch hint {
		case "W", "w":
			return "W", true
		case "kW", "KW", "kw":
			return "kW", true
		case "MW", "mw":
			return "MW", true
		}
	}
	return "", false
}

// Heuristic confidences within spec.md §4.1's stated 0.70-0.85 band.
const (
	temperatureHeuristicConfidence = 0.85
	flowHeuristicConfidence        = 0.78
	powerHeuristicConfidence       = 0.70
)

func detectTemperature(p005, p995 float64) Detection {
	switch {
	case inRange(p005, p995, 3, 45):
		return Detection{Unit: "C", Confidence: temperatureHeuristicConfidence, WasInferred: true}
	case inRange(p005, p995, 37, 113):
		return Detection{Unit: "F", Confidence: temperatureHeuristicConfidence, WasInferred: true}
	case inRange(p005, p995, 276, 318):
		return Detection{Unit: "K", Confidence: temperatureHeuristicConfidence, WasInferred: true}
	default:
		return Detection{WasInferred: true}
	}
}

func inRange(lo, hi, rangeLo, rangeHi float64) bool {
	return lo >= rangeLo-0.5 && hi <= rangeHi+0.5
}

func detectFlow(p995 float64) Detection {
	switch {
	case p995 < 5:
		return Detection{Unit: "m3s", Confidence: flowHeuristicConfidence, WasInferred: true}
	case p995 < 5000:
		return Detection{Unit: "Ls", Confidence: flowHeuristicConfidence, WasInferred: true}
	case p995 < 18000:
		return Detection{Unit: "m3h", Confidence: flowHeuristicConfidence, WasInferred: true}
	case p995 < 80000:
		return Detection{Unit: "GPM", Confidence: flowHeuristicConfidence, WasInferred: true}
	default:
		return Detection{WasInferred: true}
	}
}

// powerWattsLowerThreshold/powerMegawattsUpperThreshold bound the "raw
// magnitude implies the unit" heuristic: chiller plants pull low hundreds
// of kW, so a lower-5-per-mille percentile above 10,000 implies the
// stream is already in watts, and an upper percentile below 0.05 implies
// megawatts.
const (
	powerWattsLowerThreshold     = 10000.0
	powerMegawattsUpperThreshold = 0.05
)

func detectPower(p005, p995 float64) Detection {
	switch {
	case p005 > powerWattsLowerThreshold:
		return Detection{Unit: "W", Confidence: powerHeuristicConfidence, WasInferred: true}
	case p995 < powerMegawattsUpperThreshold:
		return Detection{Unit: "MW", Confidence: powerHeuristicConfidence, WasInferred: true}
	default:
		return Detection{Unit: "kW", Confidence: powerHeuristicConfidence, WasInferred: true}
	}
}

// Convert applies the spec.md §4.1 conversion arithmetic for unit to its
// SI target (°C, m³/s, or kW). ok is false for an unsupported/unknown
// unit string; factorID names the conversion applied, for
// ChannelMetadata.ConversionFactorID.
func Convert(unit string, v float64) (converted float64, factorID string, ok bool) {
	switch unit {
	case "C":
		return v, "identity_C", true
	case "F":
		return (v - 32) * 5 / 9, "F_to_C", true
	case "K":
		return v - 273.15, "K_to_C", true
	case "m3s":
		return v, "identity_m3s", true
	case "Ls":
		return v * 1e-3, "Ls_to_m3s", true
	case "GPM":
		return v * 6.30902e-5, "GPM_to_m3s", true
	case "m3h":
		return v / 3600, "m3h_to_m3s", true
	case "W":
		return v * 1e-3, "W_to_kW", true
	case "kW":
		return v, "identity_kW", true
	case "MW":
		return v * 1000, "MW_to_kW", true
	default:
		return 0, "", false
	}
}

// KindOf maps a stream tag to the physical quantity it measures.
func KindOf(tag string) SignalKind {
	switch tag {
	case "CHWST", "CHWRT", "CDWRT":
		return Temperature
	case "FLOW":
		return Flow
	case "POWER":
		return Power
	default:
		return Temperature
	}
}

// ParseHintNumber loosely coerces an externally-supplied hint value (which
// may arrive as a string, int, or float from the metadata collaborator)
// to float64, matching the teacher's boundary-coercion idiom in
// functions/functions_expr.go (cast.ToStringE) — used here for any
// numeric override a caller bundles alongside a unit hint string.
func ParseHintNumber(raw interface{}) (float64, error) {
	return cast.ToFloat64E(raw)
}
