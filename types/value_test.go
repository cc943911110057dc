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

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPresentAbsent(t *testing.T) {
	v := Present(1.5)
	require.True(t, v.IsPresent())
	require.False(t, v.IsAbsent())
	f, ok := v.Float64()
	require.True(t, ok)
	require.Equal(t, 1.5, f)

	a := Absent
	require.False(t, a.IsPresent())
	require.True(t, a.IsAbsent())
}

func TestArithmeticShortCircuitsOnAbsent(t *testing.T) {
	require.True(t, Add(Present(1), Absent).IsAbsent())
	require.True(t, Sub(Absent, Present(1)).IsAbsent())
	require.True(t, Mul(Absent, Absent).IsAbsent())
	require.True(t, Div(Present(1), Absent).IsAbsent())
	require.True(t, Div(Present(1), Present(0)).IsAbsent(), "division by zero is Absent, not Inf")
}

func TestArithmeticWhenBothPresent(t *testing.T) {
	require.Equal(t, 3.0, Add(Present(1), Present(2)).Must())
	require.Equal(t, -1.0, Sub(Present(1), Present(2)).Must())
	require.Equal(t, 6.0, Mul(Present(2), Present(3)).Must())
	require.Equal(t, 2.0, Div(Present(6), Present(3)).Must())
}

func TestClamp(t *testing.T) {
	require.Equal(t, 0.0, Clamp(Present(-5), 0, 10).Must())
	require.Equal(t, 10.0, Clamp(Present(50), 0, 10).Must())
	require.Equal(t, 5.0, Clamp(Present(5), 0, 10).Must())
	require.True(t, Clamp(Absent, 0, 10).IsAbsent())
}

func TestOrElse(t *testing.T) {
	require.Equal(t, 3.0, Present(3).OrElse(-1))
	require.Equal(t, -1.0, Absent.OrElse(-1))
}

func TestMustPanicsOnAbsent(t *testing.T) {
	require.Panics(t, func() { Absent.Must() })
}

func TestValueJSONRoundTrips(t *testing.T) {
	present, err := json.Marshal(Present(7.5))
	require.NoError(t, err)
	require.Equal(t, "7.5", string(present))

	absent, err := json.Marshal(Absent)
	require.NoError(t, err)
	require.Equal(t, "null", string(absent))

	var v Value
	require.NoError(t, json.Unmarshal([]byte("7.5"), &v))
	require.Equal(t, 7.5, v.Must())

	require.NoError(t, json.Unmarshal([]byte("null"), &v))
	require.True(t, v.IsAbsent())
}
