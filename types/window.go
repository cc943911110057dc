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

// ExclusionWindowStatus is an exclusion window's approval state.
type ExclusionWindowStatus string

const (
	PendingApproval ExclusionWindowStatus = "PENDING_APPROVAL"
	Approved        ExclusionWindowStatus = "APPROVED"
	Rejected        ExclusionWindowStatus = "REJECTED"
)

// ExclusionWindow is a contiguous interval during which two or more
// streams are simultaneously in MAJOR_GAP (spec.md §3, §4.2).
//
// Adapted from the teacher's model.TimeSlot, which pairs *time.Time
// start/end pointers with Contains/Hash helpers for a live stream window.
// An exclusion window additionally needs an identity, the set of streams
// that produced it, and an approval lifecycle that TimeSlot has no notion
// of, so Start/End are carried as value time.Time (no nil-pointer cases
// arise: every exclusion window is fully known at construction) and the
// extra bookkeeping fields are added directly rather than grafted onto
// TimeSlot's shape.
type ExclusionWindow struct {
	ID                string
	Start             time.Time
	End               time.Time
	AffectingStreams  map[StreamTag]struct{}
	Status            ExclusionWindowStatus
}

// DurationHours returns the window's span in hours.
func (w ExclusionWindow) DurationHours() float64 {
	return w.End.Sub(w.Start).Hours()
}

// Contains reports whether t falls within [Start, End], inclusive of both
// endpoints (mirrors model.TimeSlot.Contains's inclusive-both convention).
func (w ExclusionWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// Overlaps reports whether w and other share any instant.
func (w ExclusionWindow) Overlaps(other ExclusionWindow) bool {
	return w.Start.Before(other.End) && other.Start.Before(w.End)
}

// OverlapDuration returns the duration w and other have in common, zero if
// they do not overlap.
func (w ExclusionWindow) OverlapDuration(other ExclusionWindow) time.Duration {
	start := w.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := w.End
	if other.End.Before(end) {
		end = other.End
	}
	if end.Before(start) {
		return 0
	}
	return end.Sub(start)
}

// EffectiveForSync reports whether w should be treated as blocking Stage 3
// rows. By default, spec.md's adopted open-question answer treats
// PENDING_APPROVAL the same as APPROVED; pendingEffective toggles that.
func (w ExclusionWindow) EffectiveForSync(pendingEffective bool) bool {
	switch w.Status {
	case Approved:
		return true
	case PendingApproval:
		return pendingEffective
	default:
		return false
	}
}
