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

package stage1

import (
	"strings"
	"time"

	"github.com/htdam/pipeline/logger"
	"github.com/htdam/pipeline/physics"
	"github.com/htdam/pipeline/types"
)

const relationshipConstraintReversedChw = "CHWRT>=CHWST"

// trySalvage implements spec.md §4.1's standby-reversal salvage rule: when
// the sole HALT cause is a majority-reversed CHWRT<CHWST relationship and
// a meaningful fraction of joined samples look genuinely ACTIVE, restrict
// the canonical view to ACTIVE rows and re-check physics once.
func trySalvage(result *Result, cfg types.Config, metrics *types.Stage1Metrics, log logger.Logger) (salvaged bool, haltCauses []string) {
	if !cfg.Salvage.Enabled || len(metrics.HaltReasons) != 1 {
		return false, metrics.HaltReasons
	}
	if !strings.Contains(metrics.HaltReasons[0], relationshipConstraintReversedChw) {
		return false, metrics.HaltReasons
	}
	var reversedPct float64
	found := false
	for _, v := range metrics.PhysicsViolations {
		if v.Constraint == relationshipConstraintReversedChw {
			reversedPct = v.ViolationPct
			found = true
		}
	}
	if !found || reversedPct < 50.0 {
		return false, metrics.HaltReasons
	}

	joinedTimes, joined := joinSamples(result.Canonical)
	if len(joined) == 0 {
		return false, metrics.HaltReasons
	}

	activeCount := 0
	states := make(map[time.Time]types.OperationalState, len(joined))
	for i, j := range joined {
		st := physics.ClassifyState(j, cfg.Salvage.ActiveDeltaTC)
		states[joinedTimes[i]] = st
		if st == types.StateActive {
			activeCount++
		}
	}
	activeRatio := float64(activeCount) / float64(len(joined))
	if activeRatio < cfg.Salvage.MinActiveRatio {
		return false, metrics.HaltReasons
	}

	activeSet := map[time.Time]struct{}{}
	for t, st := range states {
		if st == types.StateActive {
			activeSet[t] = struct{}{}
		}
	}

	filtered := map[types.StreamTag]types.RawSeries{}
	for tag, series := range result.Canonical {
		out := make(types.RawSeries, 0, len(series))
		for _, s := range series {
			if _, ok := activeSet[s.Instant]; ok {
				out = append(out, s)
			}
		}
		filtered[tag] = out
	}

	retryMetrics := types.Stage1Metrics{Stage: "UNITS"}
	halted, causes := evaluatePhysics(filtered, cfg, &retryMetrics)
	if halted {
		return false, metrics.HaltReasons
	}

	for tag, series := range filtered {
		result.Canonical[tag] = series
	}
	result.OperationalStates = states
	metrics.PhysicsViolations = retryMetrics.PhysicsViolations
	metrics.Warnings = append(metrics.Warnings, "Filtered to ACTIVE due to suspected standby reversal")
	log.Warn("stage1: filtered to ACTIVE rows due to suspected standby reversal (active_ratio=%.3f)", activeRatio)
	_ = causes
	return true, nil
}

