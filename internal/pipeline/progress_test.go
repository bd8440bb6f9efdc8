package pipeline

import (
	"testing"

	"github.com/framefold/framefold/internal/domain"
)

func TestReporterPerFileMath(t *testing.T) {
	var got []domain.ProgressUpdate
	r := newReporter(func(p domain.ProgressUpdate) { got = append(got, p) })

	r.FileDone(1, 3, "a.png")
	r.FileDone(2, 3, "b.png")
	r.FileDone(3, 3, "c.png")

	want := []float64{30, 60, 90}
	if len(got) != len(want) {
		t.Fatalf("expected %d updates, got %d", len(want), len(got))
	}
	for i, p := range want {
		if got[i].Percent != p {
			t.Fatalf("update %d: expected %.0f%%, got %.2f%%", i, p, got[i].Percent)
		}
	}
	if got[0].Label != "Converted a.png (1/3)" {
		t.Fatalf("unexpected label %q", got[0].Label)
	}
}

func TestReporterPackagingSpansLastTenPercent(t *testing.T) {
	var got []float64
	r := newReporter(func(p domain.ProgressUpdate) { got = append(got, p.Percent) })

	r.Packaging(1, 2)
	r.Packaging(2, 2)

	if len(got) != 2 || got[0] != 95 || got[1] != 100 {
		t.Fatalf("expected [95 100], got %v", got)
	}
}

func TestReporterMergeCeiling(t *testing.T) {
	var got []float64
	r := newReporter(func(p domain.ProgressUpdate) { got = append(got, p.Percent) })

	r.FrameDone(1, 4)
	r.FrameDone(4, 4)
	r.Finish()

	if len(got) != 3 || got[0] != 20 || got[1] != 80 || got[2] != 100 {
		t.Fatalf("expected [20 80 100], got %v", got)
	}
}

func TestReporterResetSendsZeroUpdate(t *testing.T) {
	var got []domain.ProgressUpdate
	r := newReporter(func(p domain.ProgressUpdate) { got = append(got, p) })

	r.Finish()
	r.Reset()

	last := got[len(got)-1]
	if last.Label != "" || last.Percent != 0 {
		t.Fatalf("expected zero update, got %+v", last)
	}
}

func TestReporterNilSink(t *testing.T) {
	r := newReporter(nil)
	r.FileDone(1, 1, "a.png")
	r.Packaging(1, 1)
	r.FrameDone(1, 1)
	r.Finish()
	r.Reset()
}
