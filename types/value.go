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

// Package types defines the HTDAM pipeline's shared data model: the
// Present/Absent value sentinel, stream identifiers, configuration, and
// the row and metrics records every stage produces.
package types

import (
	"encoding/json"
	"fmt"
)

// Value is a tagged real-or-absent sample. It replaces the NaN-as-sentinel
// and dynamically-typed "value" field patterns found in the original
// implementation: arithmetic on an Absent operand always short-circuits to
// Absent instead of propagating NaN.
type Value struct {
	ok bool
	v  float64
}

// Present wraps a finite real number as a present value.
func Present(v float64) Value {
	return Value{ok: true, v: v}
}

// Absent is the explicit "no sample" sentinel.
var Absent = Value{}

// IsPresent reports whether v carries a real number.
func (v Value) IsPresent() bool { return v.ok }

// IsAbsent reports the complement of IsPresent.
func (v Value) IsAbsent() bool { return !v.ok }

// Float64 returns the underlying number and whether it is present.
func (v Value) Float64() (float64, bool) { return v.v, v.ok }

// Must returns the underlying number, panicking if v is Absent. Callers
// must check IsPresent first; this exists for call sites that already
// hold that invariant (e.g. just inside an `if both.IsPresent()` guard).
func (v Value) Must() float64 {
	if !v.ok {
		panic("types: Must called on an Absent value")
	}
	return v.v
}

// OrElse returns the underlying number, or fallback if v is Absent.
func (v Value) OrElse(fallback float64) float64 {
	if v.ok {
		return v.v
	}
	return fallback
}

func (v Value) String() string {
	if !v.ok {
		return "absent"
	}
	return fmt.Sprintf("%g", v.v)
}

// MarshalJSON encodes a present value as a JSON number and Absent as
// JSON null, so a Value round-trips through the cmd/htdam fixture and
// result encoding without exposing its internal tag byte.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.ok {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// UnmarshalJSON accepts a JSON number as Present and JSON null as
// Absent.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Absent
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*v = Present(f)
	return nil
}

// Add returns a+b, Absent if either operand is Absent.
func Add(a, b Value) Value {
	if !a.ok || !b.ok {
		return Absent
	}
	return Present(a.v + b.v)
}

// Sub returns a-b, Absent if either operand is Absent.
func Sub(a, b Value) Value {
	if !a.ok || !b.ok {
		return Absent
	}
	return Present(a.v - b.v)
}

// Mul returns a*b, Absent if either operand is Absent.
func Mul(a, b Value) Value {
	if !a.ok || !b.ok {
		return Absent
	}
	return Present(a.v * b.v)
}

// Div returns a/b, Absent if either operand is Absent or b is zero.
func Div(a, b Value) Value {
	if !a.ok || !b.ok || b.v == 0 {
		return Absent
	}
	return Present(a.v / b.v)
}

// Clamp returns v clamped into [lo, hi]; Absent stays Absent.
func Clamp(v Value, lo, hi float64) Value {
	if !v.ok {
		return Absent
	}
	if v.v < lo {
		return Present(lo)
	}
	if v.v > hi {
		return Present(hi)
	}
	return v
}
