package pipeline

import (
	"fmt"

	"github.com/framefold/framefold/internal/domain"
)

// ProgressFunc receives progress updates as the run advances.
type ProgressFunc func(domain.ProgressUpdate)

const (
	// Per-file conversion spans [0,90]; packaging takes the rest.
	perFileCeiling = 90.0
	// Frame ingestion on the merge path spans [0,80]; the final encode has
	// no granular signal and jumps to 100.
	mergeCeiling = 80.0
)

type reporter struct {
	sink ProgressFunc
}

func newReporter(sink ProgressFunc) *reporter {
	return &reporter{sink: sink}
}

func (r *reporter) send(label string, percent float64) {
	if r.sink == nil {
		return
	}
	r.sink(domain.ProgressUpdate{Label: label, Percent: percent})
}

func (r *reporter) FileDone(done, total int, name string) {
	r.send(
		fmt.Sprintf("Converted %s (%d/%d)", name, done, total),
		perFileCeiling*float64(done)/float64(total),
	)
}

// Packaging maps the archiver's own progress onto [90,100].
func (r *reporter) Packaging(done, total int) {
	if total < 1 {
		total = 1
	}
	r.send(
		"Packaging archive",
		perFileCeiling+(100-perFileCeiling)*float64(done)/float64(total),
	)
}

func (r *reporter) FrameDone(done, total int) {
	r.send(
		fmt.Sprintf("Merged frame %d/%d", done, total),
		mergeCeiling*float64(done)/float64(total),
	)
}

func (r *reporter) Finish() {
	r.send("Done", 100)
}

// Reset clears progress to the zero update once the run settles, whatever
// the outcome.
func (r *reporter) Reset() {
	if r.sink == nil {
		return
	}
	r.sink(domain.ProgressUpdate{})
}
