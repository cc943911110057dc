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

// Command htdam is a thin demonstrator: it reads a JSON fixture of
// per-stream samples, runs the HTDAM pipeline once, and prints the
// per-stage metrics and final confidence/tier to stdout.
//
// CLI parsing is explicitly out of scope beyond this demonstrator
// (spec.md §1), so flag parsing uses only the standard library — no
// third-party CLI framework appears anywhere in the example pack
// either.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	htdam "github.com/htdam/pipeline"
	"github.com/htdam/pipeline/logger"
	"github.com/htdam/pipeline/types"
)

// fixtureSample is one JSON-encoded observation. Absent is set true for
// a known gap; otherwise V carries the raw (pre-unit-conversion) value.
type fixtureSample struct {
	T      time.Time `json:"t"`
	V      float64   `json:"v"`
	Absent bool      `json:"absent,omitempty"`
}

// fixture is the on-disk input shape: one ordered sample list per
// stream tag, plus optional out-of-band unit hints.
type fixture struct {
	Streams map[string][]fixtureSample `json:"streams"`
	Hints   map[string]string          `json:"hints"`
}

func main() {
	path := flag.String("fixture", "", "path to a JSON fixture of per-stream samples")
	logLevel := flag.String("log-level", "warn", "debug|info|warn|error|off")
	flag.Parse()

	if *path == "" {
		fmt.Fprintln(os.Stderr, "htdam: -fixture is required")
		os.Exit(2)
	}

	log := logger.NewLogger(parseLevel(*logLevel), os.Stderr)

	data, err := os.ReadFile(*path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "htdam: read fixture: %v\n", err)
		os.Exit(1)
	}

	var f fixture
	if err := json.Unmarshal(data, &f); err != nil {
		fmt.Fprintf(os.Stderr, "htdam: parse fixture: %v\n", err)
		os.Exit(1)
	}

	p := htdam.New(htdam.WithLogger(log))
	result, err := p.Run(context.Background(), toInput(f))
	if err != nil {
		fmt.Fprintf(os.Stderr, "htdam: run: %v\n", err)
		os.Exit(1)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "htdam: encode result: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))
}

func toInput(f fixture) htdam.Input {
	streams := make(map[types.StreamTag]types.RawSeries, len(f.Streams))
	for tag, samples := range f.Streams {
		series := make(types.RawSeries, len(samples))
		for i, s := range samples {
			v := types.Present(s.V)
			if s.Absent {
				v = types.Absent
			}
			series[i] = types.Sample{Instant: s.T, Value: v}
		}
		streams[types.StreamTag(tag)] = series
	}
	hints := make(map[types.StreamTag]string, len(f.Hints))
	for tag, hint := range f.Hints {
		hints[types.StreamTag(tag)] = hint
	}
	return htdam.Input{Streams: streams, Hints: hints}
}

func parseLevel(s string) logger.Level {
	switch s {
	case "debug":
		return logger.DEBUG
	case "info":
		return logger.INFO
	case "error":
		return logger.ERROR
	case "off":
		return logger.OFF
	default:
		return logger.WARN
	}
}
