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

// Package weighting implements spec.md §7's open question on how the four
// stage confidences combine into the pipeline's final confidence: the
// default is MinimumRule (the original implementation's "weakest link"
// behavior), with a caller-suppliable expression formula as the
// documented escape hatch for callers wanting a custom blend.
//
// Compile follows the teacher's condition/condition.go ExprCondition
// construction: expr.Compile once at setup with
// expr.AllowUndefinedVariables so a caller's formula may reference only a
// subset of the four stage scores, and expr.Run per evaluation against a
// flat map environment.
package weighting

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/htdam/pipeline/types"
)

// Scores is the four per-stage confidence values a Rule combines into one
// final pipeline confidence.
type Scores struct {
	Stage1 float64
	Stage2 float64
	Stage3 float64
	Stage4 float64
}

func (s Scores) env() map[string]interface{} {
	return map[string]interface{}{
		"stage1": s.Stage1,
		"stage2": s.Stage2,
		"stage3": s.Stage3,
		"stage4": s.Stage4,
	}
}

// Rule combines a Scores into a single final confidence in [0, 1].
type Rule interface {
	Combine(s Scores) (float64, error)
}

// minimumRule is spec.md's default combination: the final confidence is
// never higher than the weakest stage.
type minimumRule struct{}

// MinimumRule is the default Rule: final confidence is the minimum across
// all four stage confidences.
var MinimumRule Rule = minimumRule{}

func (minimumRule) Combine(s Scores) (float64, error) {
	min := s.Stage1
	if s.Stage2 < min {
		min = s.Stage2
	}
	if s.Stage3 < min {
		min = s.Stage3
	}
	if s.Stage4 < min {
		min = s.Stage4
	}
	return clamp01(min), nil
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

// exprRule evaluates a compiled caller-supplied formula against stage1..4.
type exprRule struct {
	program *vm.Program
	source  string
}

// Compile parses formula once, at setup time, for reuse across a whole
// pipeline run (and, in a long-lived caller, across many runs). formula
// must evaluate to a number; stage1, stage2, stage3, and stage4 are the
// only variables bound, and any subset may be referenced.
func Compile(formula string) (Rule, error) {
	program, err := expr.Compile(formula, expr.AllowUndefinedVariables(), expr.AsFloat64())
	if err != nil {
		return nil, fmt.Errorf("weighting: compile formula: %w", err)
	}
	return &exprRule{program: program, source: formula}, nil
}

func (r *exprRule) Combine(s Scores) (float64, error) {
	result, err := expr.Run(r.program, s.env())
	if err != nil {
		return 0, fmt.Errorf("weighting: evaluate formula %q: %w", r.source, err)
	}
	v, ok := result.(float64)
	if !ok {
		return 0, fmt.Errorf("weighting: formula %q did not evaluate to a number", r.source)
	}
	return clamp01(v), nil
}

// ScoresFrom builds a Scores from the four stage metrics records, reading
// each stage's own confidence field.
func ScoresFrom(s1 types.Stage1Metrics, s2 types.Stage2Metrics, s3 types.Stage3Metrics, s4 types.Stage4Metrics) Scores {
	return Scores{
		Stage1: s1.FinalScore,
		Stage2: s2.Stage2Confidence,
		Stage3: s3.Stage3Confidence,
		Stage4: s4.Stage4Confidence,
	}
}
