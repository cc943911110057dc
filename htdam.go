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

// Package htdam is the HVAC chiller telemetry data-assimilation
// pipeline's public entry point: a thin façade over package pipeline,
// configured with the teacher's functional-options constructor shape
// (New(options ...Option) *Pipeline) instead of a growing parameter
// list.
package htdam

import (
	"context"
	"fmt"

	"github.com/htdam/pipeline/logger"
	"github.com/htdam/pipeline/pipeline"
	"github.com/htdam/pipeline/types"
	"github.com/htdam/pipeline/weighting"
)

// Input is the set of raw, unsynchronized per-stream series and any
// out-of-band unit hints to run through the pipeline.
type Input = pipeline.Input

// Result is the full per-stage metrics and final confidence/tier
// roll-up spec.md §6 defines.
type Result = types.PipelineResult

// Pipeline holds a fixed Config/Logger/Rule and runs the four-stage
// HTDAM transform any number of times against different Input values.
type Pipeline struct {
	cfg       types.Config
	log       logger.Logger
	rule      weighting.Rule
	optionErr error
}

// New constructs a Pipeline with types.DefaultConfig() and a
// discard logger, then applies options in order.
func New(options ...Option) *Pipeline {
	p := &Pipeline{
		cfg: types.DefaultConfig(),
		log: logger.NewDiscardLogger(),
	}
	for _, opt := range options {
		opt(p)
	}
	return p
}

// Run executes the full four-stage pipeline against in, honoring ctx
// cancellation between stage boundaries.
func (p *Pipeline) Run(ctx context.Context, in Input) (Result, error) {
	if p.optionErr != nil {
		return Result{}, fmt.Errorf("htdam: invalid option: %w", p.optionErr)
	}
	return pipeline.Run(ctx, in, p.cfg, p.log, p.rule)
}

// Config returns the Pipeline's effective configuration, for callers
// that want to inspect or clone it (e.g. before supplying approved
// exclusion windows via WithConfig on a subsequent run).
func (p *Pipeline) Config() types.Config {
	return p.cfg
}
