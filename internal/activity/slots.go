package activity

import (
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultBarSize is the width of one bar in pixels.
	DefaultBarSize = 8
	// DefaultBarGap is the space between bars in pixels.
	DefaultBarGap = 4
	// DefaultSlots is used until the container width is known.
	DefaultSlots = 10
	// MaxSlots bounds SlotCount for very large widths.
	MaxSlots = math.MaxInt32
)

// SlotCount returns how many bars of barSize+barGap fit into width.
// NaN or non-positive widths yield DefaultSlots. The result never exceeds
// MaxSlots.
func SlotCount(width, barSize, barGap float64) int {
	if !(width > 0) {
		return DefaultSlots
	}
	pitch := barSize + barGap
	if !(pitch > 0) || math.IsInf(pitch, 0) {
		pitch = DefaultBarSize + DefaultBarGap
	}
	n := math.Floor(width / pitch)
	if n >= MaxSlots {
		return MaxSlots
	}
	return int(n)
}

// ApproximateDuration renders a run time in seconds as "3 minutes", "2 hours", ...
func ApproximateDuration(seconds float64) string {
	if !(seconds >= 1) {
		return "0 seconds"
	}
	d := time.Duration(math.MaxInt64)
	if seconds < float64(math.MaxInt64)/float64(time.Second) {
		d = time.Duration(seconds * float64(time.Second))
	}
	ref := time.Unix(0, 0)
	return strings.TrimSpace(humanize.RelTime(ref, ref.Add(d), "", ""))
}
