// Package activity lays flow runs out on a fixed number of display slots.
//
// The bar graph shows one run per slot across a time window. Runs land in the
// slot matching their position in the window; when two runs want the same slot
// the later one moves to the nearest free neighbour instead of stacking.
package activity

import (
	"math"
	"sort"
	"time"
)

// Record is anything that can be placed on the bar graph.
type Record interface {
	// EffectiveTime returns the instant used for placement. Records that
	// report false are never placed.
	EffectiveTime() (time.Time, bool)
}

// Window is the [Start, End) span covered by the slots.
type Window struct {
	Start time.Time
	End   time.Time
}

// Valid reports whether both bounds are set and End is after Start.
func (w Window) Valid() bool {
	return !w.Start.IsZero() && !w.End.IsZero() && w.End.After(w.Start)
}

// Forward reports whether the window reaches past now (upcoming runs).
func (w Window) Forward(now time.Time) bool {
	return w.End.After(now)
}

// BucketWidth returns the span represented by a single slot.
func (w Window) BucketWidth(n int) time.Duration {
	if n <= 0 || !w.Valid() {
		return 0
	}
	return w.End.Sub(w.Start) / time.Duration(n)
}

// Bucketize places records onto n slots covering w.
//
// The result always has length n (empty for an invalid window or n <= 0).
// A nil cell is an empty slot; a non-nil cell points at a copy of the record.
// In a forward-looking window records are placed in ascending time order and
// collisions move toward later slots; in a historical window records keep the
// given order and collisions move toward earlier slots. A record that finds no
// free slot in that direction is dropped.
func Bucketize[R Record](records []R, w Window, n int, now time.Time) []*R {
	if !w.Valid() || n <= 0 {
		return []*R{}
	}

	width := float64(w.End.Sub(w.Start)) / float64(n)
	slots := make([]*R, n)
	maxIdx := n - 1

	forward := w.Forward(now)
	step := -1
	if forward {
		step = 1
	}

	placed := timed(records)
	if forward {
		sort.SliceStable(placed, func(i, j int) bool {
			return placed[i].at.Before(placed[j].at)
		})
	}

	for i := range placed {
		idx := slotIndex(placed[i].at, w, width, maxIdx)
		idx = freeSlot(slots, idx, step)
		if idx < 0 {
			continue
		}
		rec := placed[i].rec
		slots[idx] = &rec
	}

	return slots
}

// slotIndex clamps in float space, so far-off times and sub-nanosecond
// buckets cannot overflow the int conversion.
func slotIndex(at time.Time, w Window, width float64, maxIdx int) int {
	if !at.Before(w.End) {
		return maxIdx
	}
	if at.Before(w.Start) {
		return 0
	}
	f := math.Floor(float64(at.Sub(w.Start)) / width)
	switch {
	case f >= float64(maxIdx):
		return maxIdx
	case f < 0:
		return 0
	default:
		return int(f)
	}
}

type timedRecord[R Record] struct {
	rec R
	at  time.Time
}

// timed copies the records that have an effective time, preserving order.
func timed[R Record](records []R) []timedRecord[R] {
	out := make([]timedRecord[R], 0, len(records))
	for _, r := range records {
		at, ok := r.EffectiveTime()
		if !ok {
			continue
		}
		out = append(out, timedRecord[R]{rec: r, at: at})
	}
	return out
}

// freeSlot scans from idx by step and returns the first empty slot, or -1.
func freeSlot[R any](slots []*R, idx, step int) int {
	for idx >= 0 && idx < len(slots) {
		if slots[idx] == nil {
			return idx
		}
		idx += step
	}
	return -1
}

// Filled counts the occupied slots.
func Filled[R any](slots []*R) int {
	n := 0
	for _, s := range slots {
		if s != nil {
			n++
		}
	}
	return n
}
