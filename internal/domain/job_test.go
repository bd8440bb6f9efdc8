package domain

import (
	"testing"

	"github.com/framefold/framefold/internal/catalog"
)

func TestConversionJobValidate(t *testing.T) {
	valid := ConversionJob{
		Items:        []ImageItem{{ID: "a", Name: "photo.png"}},
		TargetFormat: catalog.FormatJPEG,
		Edits: EditSpec{
			Quality: 85,
			Resize:  Resize{Mode: ResizeNone},
		},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid job, got error: %v", err)
	}

	empty := ConversionJob{TargetFormat: catalog.FormatJPEG}
	if err := empty.Validate(); err == nil {
		t.Fatal("expected validation error for empty item list")
	}

	badFormat := valid
	badFormat.TargetFormat = "svg"
	if err := badFormat.Validate(); err == nil {
		t.Fatal("expected validation error for unsupported format")
	}

	badDelay := valid
	badDelay.MergeToAnimation = true
	badDelay.FrameDelayMS = 0
	if err := badDelay.Validate(); err == nil {
		t.Fatal("expected validation error for non-positive frame delay")
	}
}

func TestEditSpecValidate(t *testing.T) {
	base := EditSpec{Quality: 80, Resize: Resize{Mode: ResizeNone}}
	if err := base.Validate(); err != nil {
		t.Fatalf("expected valid edit spec, got error: %v", err)
	}

	// Raw signed rotation is legal at any magnitude.
	rotated := base
	rotated.RotationDegrees = -450
	if err := rotated.Validate(); err != nil {
		t.Fatalf("expected raw rotation to validate, got error: %v", err)
	}

	badQuality := base
	badQuality.Quality = 0
	if err := badQuality.Validate(); err == nil {
		t.Fatal("expected validation error for quality below range")
	}

	percentOutOfRange := EditSpec{Quality: 80, Resize: Resize{Mode: ResizePercent, Percent: 201}}
	if err := percentOutOfRange.Validate(); err == nil {
		t.Fatal("expected validation error for percent above 200")
	}

	percentWithPixels := EditSpec{Quality: 80, Resize: Resize{Mode: ResizePercent, Percent: 50, Width: 10}}
	if err := percentWithPixels.Validate(); err == nil {
		t.Fatal("expected validation error for pixel dims on percent mode")
	}

	// Pixels mode with no dimensions is a legal no-op.
	pixelsUnset := EditSpec{Quality: 80, Resize: Resize{Mode: ResizePixels, LockRatio: true}}
	if err := pixelsUnset.Validate(); err != nil {
		t.Fatalf("expected pixels mode with no dims to validate, got error: %v", err)
	}

	unknownMode := EditSpec{Quality: 80, Resize: Resize{Mode: "stretch"}}
	if err := unknownMode.Validate(); err == nil {
		t.Fatal("expected validation error for unknown resize mode")
	}
}

func TestMergePath(t *testing.T) {
	twoItems := []ImageItem{{ID: "a", Name: "a.png"}, {ID: "b", Name: "b.png"}}

	job := ConversionJob{Items: twoItems, TargetFormat: catalog.FormatGIF, MergeToAnimation: true}
	if !job.MergePath() {
		t.Fatal("expected merge path for gif target with two items")
	}

	job.TargetFormat = catalog.FormatTIFF
	if job.MergePath() {
		t.Fatal("expected per-file path for non-mergeable target")
	}

	job.TargetFormat = catalog.FormatGIF
	job.Items = twoItems[:1]
	if job.MergePath() {
		t.Fatal("expected per-file path for a single item")
	}

	job.Items = twoItems
	job.MergeToAnimation = false
	if job.MergePath() {
		t.Fatal("expected per-file path when merge flag is off")
	}
}
