package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/framefold/framefold/internal/catalog"
)

const (
	RunStatusCreated    = "created"
	RunStatusQueued     = "queued"
	RunStatusProcessing = "processing"
	RunStatusSucceeded  = "succeeded"
	RunStatusFailed     = "failed"
)

type ResizeMode string

const (
	ResizeNone    ResizeMode = "none"
	ResizePercent ResizeMode = "percent"
	ResizePixels  ResizeMode = "pixels"
)

// Resize is the tagged resize variant. Only the fields belonging to Mode are
// meaningful; Validate rejects combinations the mode does not use.
type Resize struct {
	Mode      ResizeMode `json:"mode"`
	Percent   int        `json:"percent,omitempty"`
	Width     int        `json:"width,omitempty"`
	Height    int        `json:"height,omitempty"`
	LockRatio bool       `json:"lock_ratio,omitempty"`
}

// EditSpec is the shared set of edits applied to every frame of every input.
// It is an immutable snapshot taken once per run.
//
// RotationDegrees carries whatever the caller accumulated, raw and signed;
// repeated left rotation can grow negative without bound and is passed to the
// engine verbatim rather than normalized into [0,360).
type EditSpec struct {
	RotationDegrees int    `json:"rotation_degrees"`
	Resize          Resize `json:"resize"`
	Quality         int    `json:"quality"`
}

func (e EditSpec) Validate() error {
	if e.Quality < 1 || e.Quality > 100 {
		return fmt.Errorf("quality must be in [1,100], got %d", e.Quality)
	}

	switch e.Resize.Mode {
	case ResizeNone:
		if e.Resize.Percent != 0 || e.Resize.Width != 0 || e.Resize.Height != 0 {
			return errors.New("resize mode none takes no dimensions")
		}
	case ResizePercent:
		if e.Resize.Percent < 1 || e.Resize.Percent > 200 {
			return fmt.Errorf("resize percent must be in [1,200], got %d", e.Resize.Percent)
		}
		if e.Resize.Width != 0 || e.Resize.Height != 0 {
			return errors.New("resize mode percent takes no pixel dimensions")
		}
	case ResizePixels:
		// Both width and height unset is legal: the resize is a no-op.
		if e.Resize.Width < 0 || e.Resize.Height < 0 {
			return errors.New("resize width and height must be positive when set")
		}
		if e.Resize.Percent != 0 {
			return errors.New("resize mode pixels takes no percent")
		}
	default:
		return fmt.Errorf("unsupported resize mode: %s", e.Resize.Mode)
	}

	return nil
}

// ImageItem is one accepted input. Data is loaded for the duration of a run
// and never persisted with the job row.
type ImageItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Data []byte `json:"-"`
}

// ConversionJob is the immutable input to one run, captured from caller
// state at run start. It is never mutated mid-run.
type ConversionJob struct {
	Items            []ImageItem    `json:"items"`
	TargetFormat     catalog.Format `json:"target_format"`
	Edits            EditSpec       `json:"edits"`
	MergeToAnimation bool           `json:"merge_to_animation"`
	FrameDelayMS     int            `json:"frame_delay_ms"`
	BundleAsZip      bool           `json:"bundle_as_zip"`
}

func (j ConversionJob) Validate() error {
	if len(j.Items) == 0 {
		return errors.New("job must contain at least one image")
	}
	for i, item := range j.Items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("items[%d].name is required", i)
		}
	}
	if _, ok := catalog.Lookup(j.TargetFormat); !ok {
		return fmt.Errorf("unsupported target format: %s", j.TargetFormat)
	}
	if err := j.Edits.Validate(); err != nil {
		return err
	}
	if j.MergeToAnimation && j.FrameDelayMS < 1 {
		return fmt.Errorf("frame delay must be a positive millisecond count, got %d", j.FrameDelayMS)
	}
	return nil
}

// MergePath reports whether the run takes the animation-merge path: the flag
// is set, the target can hold a merged animation, and there are at least two
// inputs to merge.
func (j ConversionJob) MergePath() bool {
	return j.MergeToAnimation &&
		catalog.SupportsAnimationMerge(j.TargetFormat) &&
		len(j.Items) >= 2
}

// OutputFile is a named byte payload handed to the delivery collaborator.
type OutputFile struct {
	Name     string
	Data     []byte
	MIMEType string
}

const ArchiveName = "converted_images.zip"

// RunStats are the accounting totals for one successful run.
type RunStats struct {
	ItemsProcessed  int
	PixelsProcessed int64
}

// RunResult is the outcome of a successful run: exactly one of Single or
// Archive is set.
type RunResult struct {
	Single  *OutputFile
	Archive *OutputFile
	Stats   RunStats
}

func (r RunResult) Output() OutputFile {
	if r.Archive != nil {
		return *r.Archive
	}
	if r.Single != nil {
		return *r.Single
	}
	return OutputFile{}
}

// ProgressUpdate is the externally visible progress of a run. The zero value
// means "no run in flight"; progress is reset to it after a run settles.
type ProgressUpdate struct {
	Label   string  `json:"label"`
	Percent float64 `json:"percent"`
}

// Run is the persisted aggregate around one ConversionJob.
type Run struct {
	ID         string
	Status     string
	Job        ConversionJob
	SourceKeys []string
	WebhookURL string
	ResultKey  string
	ResultName string
	ResultMIME string
	Rejected   []string
	ErrMessage string
	Progress   ProgressUpdate
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type UsageLog struct {
	RunID           string
	ItemsProcessed  int
	PixelsProcessed int64
	OutputBytes     int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
