package pipeline

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/framefold/framefold/internal/engine"
)

func TestClassifyKnownCategories(t *testing.T) {
	cases := []struct {
		err  error
		want Category
	}{
		{fmt.Errorf("startup: %w", ErrEngineUnavailable), CategoryEngineUnavailable},
		{fmt.Errorf("encode webp: %w", engine.ErrCodecUnavailable), CategoryUnsupportedCodec},
		{fmt.Errorf("encode gif 10x10 vs 20x20: %w", engine.ErrFrameSizeMismatch), CategoryFrameSizeMismatch},
	}

	for _, tc := range cases {
		got := Classify(tc.err)
		if got.Category != tc.want {
			t.Fatalf("expected category %s for %v, got %s", tc.want, tc.err, got.Category)
		}
		if got.Message == "" {
			t.Fatalf("expected a user-facing message for %s", tc.want)
		}
	}
}

func TestClassifyHints(t *testing.T) {
	codec := Classify(engine.ErrCodecUnavailable)
	if want := "GIF or WebP"; !strings.Contains(codec.Message, want) {
		t.Fatalf("expected codec hint to name %q, got %q", want, codec.Message)
	}

	mismatch := Classify(engine.ErrFrameSizeMismatch)
	if want := "aspect ratio is locked"; !strings.Contains(mismatch.Message, want) {
		t.Fatalf("expected size hint to mention the ratio lock, got %q", mismatch.Message)
	}
}

func TestClassifyUnknownSurfacesRawMessage(t *testing.T) {
	raw := errors.New("something very specific exploded")
	got := Classify(raw)
	if got.Category != CategoryUnknown {
		t.Fatalf("expected unknown category, got %s", got.Category)
	}
	if got.Message != raw.Error() {
		t.Fatalf("expected raw message verbatim, got %q", got.Message)
	}
}
