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

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/htdam/pipeline/logger"
	"github.com/htdam/pipeline/types"
)

func series(start int64, step int64, n int, values ...float64) types.RawSeries {
	out := make(types.RawSeries, n)
	for i := 0; i < n; i++ {
		v := values[i%len(values)]
		out[i] = types.Sample{Instant: time.Unix(start+step*int64(i), 0).UTC(), Value: types.Present(v)}
	}
	return out
}

func TestRunProducesAFullResultOnCleanInput(t *testing.T) {
	cfg := types.DefaultConfig()
	in := Input{
		Streams: map[types.StreamTag]types.RawSeries{
			types.CHWST: series(0, 900, 10, 7.0, 7.1, 7.2),
			types.CHWRT: series(0, 900, 10, 12.0, 12.1, 12.2),
			types.CDWRT: series(0, 900, 10, 30.0, 30.1, 30.2),
			types.FLOW:  series(0, 900, 10, 0.05),
			types.POWER: series(0, 900, 10, 150.0),
		},
	}

	result, err := Run(context.Background(), in, cfg, logger.NewDiscardLogger(), nil)
	require.NoError(t, err)
	require.False(t, result.Halted)
	require.NotEmpty(t, result.Rows)
	require.Equal(t, "UNITS", result.Stage1.Stage)
	require.Equal(t, "GAPS", result.Stage2.Stage)
	require.Equal(t, "SYNC", result.Stage3.Stage)
	require.Equal(t, "SPOC", result.Stage4.Stage)
	require.GreaterOrEqual(t, result.FinalConfidence, 0.0)
	require.LessOrEqual(t, result.FinalConfidence, 1.0)
}

func TestRunHaltsWhenAMandatoryStreamIsEntirelyMissing(t *testing.T) {
	cfg := types.DefaultConfig()
	in := Input{
		Streams: map[types.StreamTag]types.RawSeries{
			types.CHWST: series(0, 900, 5, 7.0),
			types.CHWRT: series(0, 900, 5, 12.0),
			// CDWRT, a mandatory stream, is absent entirely.
		},
	}
	result, err := Run(context.Background(), in, cfg, logger.NewDiscardLogger(), nil)
	require.NoError(t, err)
	require.True(t, result.Halted)
	require.Equal(t, "UNITS", result.HaltedAtStage)
}

func TestRunReturnsErrorOnCancelledContext(t *testing.T) {
	cfg := types.DefaultConfig()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, Input{}, cfg, logger.NewDiscardLogger(), nil)
	require.Error(t, err)
}
