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

package htdam

import (
	"github.com/htdam/pipeline/logger"
	"github.com/htdam/pipeline/types"
	"github.com/htdam/pipeline/weighting"
)

// Option modifies a Pipeline's default behavior. The functional-options
// pattern lets a caller configure logging, pipeline parameters, and the
// final-confidence rule without a constructor that grows a parameter
// per knob.
type Option func(*Pipeline)

// WithLogger injects a custom Logger. Stage 1 and the pipeline
// orchestrator (which also assembles Stage 2) receive it directly rather
// than reaching for a package-level default; Stages 3 and 4 do not log.
func WithLogger(log logger.Logger) Option {
	return func(p *Pipeline) {
		p.log = log
	}
}

// WithConfig overrides the pipeline's Config wholesale, replacing
// types.DefaultConfig().
func WithConfig(cfg types.Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithWeightingRule sets the final-confidence combination rule. Without
// this option, Pipeline.Run falls back to weighting.MinimumRule.
func WithWeightingRule(rule weighting.Rule) Option {
	return func(p *Pipeline) {
		p.rule = rule
	}
}

// WithWeightingFormula compiles formula via weighting.Compile and sets
// it as the final-confidence rule. Panics are never raised; a compile
// error is stored and surfaced the first time Run is called, mirroring
// how a malformed Option can't fail New itself.
func WithWeightingFormula(formula string) Option {
	return func(p *Pipeline) {
		rule, err := weighting.Compile(formula)
		if err != nil {
			p.optionErr = err
			return
		}
		p.rule = rule
	}
}
