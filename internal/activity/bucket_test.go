package activity

import (
	"testing"
	"time"
)

type testRun struct {
	id       string
	start    *time.Time
	expected *time.Time
}

func (r testRun) EffectiveTime() (time.Time, bool) {
	if r.start != nil {
		return *r.start, true
	}
	if r.expected != nil {
		return *r.expected, true
	}
	return time.Time{}, false
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func at(d time.Duration) *time.Time {
	t := t0.Add(d)
	return &t
}

func started(id string, d time.Duration) testRun {
	return testRun{id: id, start: at(d)}
}

func ids(slots []*testRun) []string {
	out := make([]string, len(slots))
	for i, s := range slots {
		if s != nil {
			out[i] = s.id
		}
	}
	return out
}

func assertLayout(t *testing.T, slots []*testRun, want []string) {
	t.Helper()
	got := ids(slots)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d (%v)", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("slot %d = %q, want %q (layout %v)", i, got[i], want[i], got)
		}
	}
}

func TestBucketize_HistoricalScenario(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0.Add(time.Hour)

	runs := []testRun{
		started("r1", 2*time.Second),
		started("r2", 3*time.Second),
		started("r3", 95*time.Second),
	}

	slots := Bucketize(runs, w, 10, now)
	assertLayout(t, slots, []string{"r1", "", "", "", "", "", "", "", "", "r3"})
}

func TestBucketize_ForwardScenario(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0

	runs := []testRun{
		started("r95", 95*time.Second),
		started("r2", 2*time.Second),
		started("r3", 3*time.Second),
	}

	slots := Bucketize(runs, w, 10, now)
	assertLayout(t, slots, []string{"r2", "r3", "", "", "", "", "", "", "", "r95"})

	// The caller's slice keeps its order.
	if runs[0].id != "r95" || runs[1].id != "r2" || runs[2].id != "r3" {
		t.Errorf("input reordered: %v", []string{runs[0].id, runs[1].id, runs[2].id})
	}
}

func TestBucketize_HistoricalCollisionMovesDown(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0.Add(100 * time.Second) // end == now is historical

	runs := []testRun{
		started("newer", 58*time.Second),
		started("older", 52*time.Second),
		started("oldest", 51*time.Second),
	}

	slots := Bucketize(runs, w, 10, now)
	assertLayout(t, slots, []string{"", "", "", "oldest", "older", "newer", "", "", "", ""})
}

func TestBucketize_ForwardCollisionMovesUp(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0.Add(-time.Minute)

	runs := []testRun{
		started("c", 59*time.Second),
		started("a", 51*time.Second),
		started("b", 55*time.Second),
	}

	slots := Bucketize(runs, w, 10, now)
	assertLayout(t, slots, []string{"", "", "", "", "", "a", "b", "c", "", ""})
}

func TestBucketize_ForwardOverflowDropped(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0

	runs := []testRun{
		started("a", 91*time.Second),
		started("b", 92*time.Second),
	}

	slots := Bucketize(runs, w, 10, now)
	assertLayout(t, slots, []string{"", "", "", "", "", "", "", "", "", "a"})
}

func TestBucketize_Clamping(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0.Add(time.Hour)

	tests := []struct {
		name string
		run  testRun
		want int
	}{
		{"at end", started("x", 100*time.Second), 9},
		{"after end", started("x", 10*time.Minute), 9},
		{"before start", started("x", -5*time.Second), 0},
		{"at start", started("x", 0), 0},
		{"last ms of first bucket", started("x", 10*time.Second-time.Millisecond), 0},
		{"first ms of second bucket", started("x", 10*time.Second), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := Bucketize([]testRun{tt.run}, w, 10, now)
			if len(slots) != 10 {
				t.Fatalf("len = %d, want 10", len(slots))
			}
			if slots[tt.want] == nil {
				t.Errorf("slot %d empty, layout %v", tt.want, ids(slots))
			}
			if Filled(slots) != 1 {
				t.Errorf("filled = %d, want 1", Filled(slots))
			}
		})
	}
}

func TestBucketize_ClampingExtremeRatios(t *testing.T) {
	// Ten 0.5ns buckets: offsets divided by the width exceed the int range.
	w := Window{Start: t0, End: t0.Add(5 * time.Nanosecond)}
	now := t0.Add(time.Hour)

	tests := []struct {
		name string
		at   time.Time
		want int
	}{
		{"centuries after end", t0.AddDate(400, 0, 0), 9},
		{"centuries before start", t0.AddDate(-400, 0, 0), 0},
		{"just after end", t0.Add(6 * time.Nanosecond), 9},
		{"inside", t0.Add(2 * time.Nanosecond), 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := tt.at
			slots := Bucketize([]testRun{{id: "x", start: &ts}}, w, 10, now)
			if slots[tt.want] == nil {
				t.Errorf("slot %d empty, layout %v", tt.want, ids(slots))
			}
		})
	}
}

func TestBucketize_TimestampFallback(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0.Add(time.Hour)

	runs := []testRun{
		{id: "scheduled", expected: at(45 * time.Second)},
		{id: "both", start: at(15 * time.Second), expected: at(85 * time.Second)},
		{id: "none"},
	}

	slots := Bucketize(runs, w, 10, now)
	assertLayout(t, slots, []string{"", "both", "", "", "scheduled", "", "", "", "", ""})
}

func TestBucketize_DegenerateInput(t *testing.T) {
	runs := []testRun{started("a", time.Second)}
	now := t0.Add(time.Hour)

	tests := []struct {
		name string
		w    Window
		n    int
	}{
		{"missing start", Window{End: t0.Add(time.Minute)}, 10},
		{"missing end", Window{Start: t0}, 10},
		{"end equals start", Window{Start: t0, End: t0}, 10},
		{"end before start", Window{Start: t0, End: t0.Add(-time.Minute)}, 10},
		{"zero slots", Window{Start: t0, End: t0.Add(time.Minute)}, 0},
		{"negative slots", Window{Start: t0, End: t0.Add(time.Minute)}, -3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slots := Bucketize(runs, tt.w, tt.n, now)
			if slots == nil {
				t.Fatal("expected empty slice, got nil")
			}
			if len(slots) != 0 {
				t.Errorf("len = %d, want 0", len(slots))
			}
		})
	}
}

func TestBucketize_LengthAndNoDuplicates(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(time.Hour)}

	var runs []testRun
	for i := 0; i < 50; i++ {
		runs = append(runs, started(string(rune('A'+i%26))+string(rune('a'+i/26)), time.Duration(i*i)*time.Second))
	}
	runs = append(runs, testRun{id: "untimed"})

	for _, now := range []time.Time{t0.Add(-time.Hour), t0.Add(2 * time.Hour)} {
		for _, n := range []int{1, 2, 7, 10, 60, 200} {
			slots := Bucketize(runs, w, n, now)
			if len(slots) != n {
				t.Fatalf("n=%d: len = %d", n, len(slots))
			}
			seen := make(map[string]bool)
			for _, s := range slots {
				if s == nil {
					continue
				}
				if s.id == "untimed" {
					t.Errorf("n=%d: untimed run placed", n)
				}
				if seen[s.id] {
					t.Errorf("n=%d: run %s placed twice", n, s.id)
				}
				seen[s.id] = true
			}
			if got := Filled(slots); got > n {
				t.Errorf("n=%d: filled %d", n, got)
			}
		}
	}
}

func TestBucketize_ForwardKeepsScheduleOrder(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0

	// Five runs all inside the first bucket, given out of order.
	runs := []testRun{
		{id: "e", expected: at(5 * time.Second)},
		{id: "a", expected: at(1 * time.Second)},
		{id: "d", expected: at(4 * time.Second)},
		{id: "b", expected: at(2 * time.Second)},
		{id: "c", expected: at(3 * time.Second)},
	}

	slots := Bucketize(runs, w, 10, now)
	assertLayout(t, slots, []string{"a", "b", "c", "d", "e", "", "", "", "", ""})
}

func TestBucketize_ForwardStableForEqualTimes(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	now := t0

	runs := []testRun{
		started("first", 20*time.Second),
		started("second", 20*time.Second),
	}

	slots := Bucketize(runs, w, 10, now)
	assertLayout(t, slots, []string{"", "", "first", "second", "", "", "", "", "", ""})
}

func TestWindow_BucketWidth(t *testing.T) {
	w := Window{Start: t0, End: t0.Add(100 * time.Second)}
	if got := w.BucketWidth(10); got != 10*time.Second {
		t.Errorf("BucketWidth(10) = %v, want 10s", got)
	}
	if got := w.BucketWidth(0); got != 0 {
		t.Errorf("BucketWidth(0) = %v, want 0", got)
	}
	if got := (Window{}).BucketWidth(10); got != 0 {
		t.Errorf("zero window BucketWidth = %v, want 0", got)
	}
}
