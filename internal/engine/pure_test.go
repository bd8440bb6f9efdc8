package engine

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/framefold/framefold/internal/catalog"
)

func TestDecodeStillYieldsOneFrame(t *testing.T) {
	eng := pureEngine{}

	seq, err := eng.Decode(context.Background(), buildPNG(t, 200, 100))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if len(seq.Frames) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(seq.Frames))
	}
	if seq.Frames[0].Width() != 200 || seq.Frames[0].Height() != 100 {
		t.Fatalf("expected 200x100, got %dx%d", seq.Frames[0].Width(), seq.Frames[0].Height())
	}
}

func TestDecodeAnimatedGIFCoalescesAllFrames(t *testing.T) {
	eng := pureEngine{}

	seq, err := eng.Decode(context.Background(), buildGIF(t, 3, 40, 30))
	if err != nil {
		t.Fatalf("decode gif: %v", err)
	}
	if len(seq.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(seq.Frames))
	}
	for i, f := range seq.Frames {
		if f.Width() != 40 || f.Height() != 30 {
			t.Fatalf("frame %d: expected coalesced 40x30 canvas, got %dx%d", i, f.Width(), f.Height())
		}
	}
}

func TestDecodeFirstIgnoresAnimation(t *testing.T) {
	eng := pureEngine{}

	frame, err := eng.DecodeFirst(context.Background(), buildGIF(t, 3, 40, 30))
	if err != nil {
		t.Fatalf("decode first: %v", err)
	}
	if frame.Width() != 40 || frame.Height() != 30 {
		t.Fatalf("expected 40x30, got %dx%d", frame.Width(), frame.Height())
	}
}

func TestResizePercentPreservesAspect(t *testing.T) {
	eng := pureEngine{}
	frame := frameOf(200, 100)

	eng.ResizePercent(frame, 50)
	if frame.Width() != 100 || frame.Height() != 50 {
		t.Fatalf("expected 100x50, got %dx%d", frame.Width(), frame.Height())
	}
}

func TestFitBoundsWidthAndKeepsRatio(t *testing.T) {
	eng := pureEngine{}
	frame := frameOf(200, 100)

	eng.Fit(frame, 100, 100)
	if frame.Width() > 100 {
		t.Fatalf("expected width <= 100, got %d", frame.Width())
	}
	if frame.Width() != 2*frame.Height() {
		t.Fatalf("expected 2:1 ratio preserved, got %dx%d", frame.Width(), frame.Height())
	}
}

func TestResizeExactIgnoresAspect(t *testing.T) {
	eng := pureEngine{}
	frame := frameOf(200, 100)

	eng.ResizeExact(frame, 100, 50)
	if frame.Width() != 100 || frame.Height() != 50 {
		t.Fatalf("expected exactly 100x50, got %dx%d", frame.Width(), frame.Height())
	}

	eng.ResizeExact(frame, 30, 90)
	if frame.Width() != 30 || frame.Height() != 90 {
		t.Fatalf("expected arbitrary stretch to 30x90, got %dx%d", frame.Width(), frame.Height())
	}
}

func TestRotateQuarterTurnSwapsDimensions(t *testing.T) {
	eng := pureEngine{}
	frame := frameOf(200, 100)

	eng.Rotate(frame, 90)
	if frame.Width() != 100 || frame.Height() != 200 {
		t.Fatalf("expected 100x200 after quarter turn, got %dx%d", frame.Width(), frame.Height())
	}

	// Full turns are a no-op regardless of sign or magnitude.
	before := frame.Image
	eng.Rotate(frame, -720)
	if frame.Image != before {
		t.Fatal("expected full-turn rotation to leave the frame untouched")
	}
}

func TestExtentPadsWithTransparentBackground(t *testing.T) {
	eng := pureEngine{}
	frame := frameOf(10, 10)

	eng.Extent(frame, 30, 20)
	if frame.Width() != 30 || frame.Height() != 20 {
		t.Fatalf("expected 30x20 canvas, got %dx%d", frame.Width(), frame.Height())
	}

	if _, _, _, a := frame.Image.At(0, 0).RGBA(); a != 0 {
		t.Fatal("expected padded corner to be fully transparent")
	}
	if _, _, _, a := frame.Image.At(15, 10).RGBA(); a == 0 {
		t.Fatal("expected original content at center to stay opaque")
	}
}

func TestEncodeMultiFrameGIFKeepsTimingAndDisposal(t *testing.T) {
	eng := pureEngine{}

	seq := &Sequence{}
	for i := 0; i < 3; i++ {
		f := frameOf(20, 20)
		f.DelayCS = 20
		f.DisposalBackground = true
		seq.Frames = append(seq.Frames, f)
	}

	data, err := eng.Encode(context.Background(), seq, catalog.FormatGIF, 80)
	if err != nil {
		t.Fatalf("encode gif: %v", err)
	}

	decoded, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode produced gif: %v", err)
	}
	if len(decoded.Image) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(decoded.Image))
	}
	for i := range decoded.Image {
		if decoded.Delay[i] != 20 {
			t.Fatalf("frame %d: expected delay 20cs, got %d", i, decoded.Delay[i])
		}
		if decoded.Disposal[i] != gif.DisposalBackground {
			t.Fatalf("frame %d: expected restore-to-background disposal, got %d", i, decoded.Disposal[i])
		}
	}
}

func TestEncodeGIFRejectsMixedFrameSizes(t *testing.T) {
	eng := pureEngine{}

	seq := &Sequence{Frames: []*Frame{frameOf(20, 20), frameOf(30, 20)}}
	_, err := eng.Encode(context.Background(), seq, catalog.FormatGIF, 80)
	if !errors.Is(err, ErrFrameSizeMismatch) {
		t.Fatalf("expected ErrFrameSizeMismatch, got %v", err)
	}
}

func TestEncodeUnavailableCodecs(t *testing.T) {
	eng := pureEngine{}
	seq := &Sequence{Frames: []*Frame{frameOf(10, 10)}}

	for _, format := range []catalog.Format{catalog.FormatWebP, catalog.FormatPDF} {
		_, err := eng.Encode(context.Background(), seq, format, 80)
		if !errors.Is(err, ErrCodecUnavailable) {
			t.Fatalf("expected ErrCodecUnavailable for %s, got %v", format, err)
		}
	}

	multi := &Sequence{Frames: []*Frame{frameOf(10, 10), frameOf(10, 10)}}
	_, err := eng.Encode(context.Background(), multi, catalog.FormatTIFF, 80)
	if !errors.Is(err, ErrCodecUnavailable) {
		t.Fatalf("expected ErrCodecUnavailable for multi-page tiff, got %v", err)
	}
}

func TestEncodeDeterministic(t *testing.T) {
	eng := pureEngine{}
	ctx := context.Background()

	run := func() []byte {
		seq, err := eng.Decode(ctx, buildPNG(t, 64, 48))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		eng.ResizePercent(seq.Frames[0], 50)
		data, err := eng.Encode(ctx, seq, catalog.FormatJPEG, 85)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		return data
	}

	if !bytes.Equal(run(), run()) {
		t.Fatal("expected identical bytes for identical input and edits")
	}
}

func frameOf(w, h int) *Frame {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 7), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	return &Frame{Image: img}
}

func buildPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, frameOf(w, h).Image); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func buildGIF(t *testing.T, frames, w, h int) []byte {
	t.Helper()

	out := &gif.GIF{Config: image.Config{Width: w, Height: h}}
	pal := color.Palette{color.Black, color.White, color.NRGBA{R: 255, A: 255}}
	for i := 0; i < frames; i++ {
		img := image.NewPaletted(image.Rect(0, 0, w, h), pal)
		for p := range img.Pix {
			img.Pix[p] = uint8((p + i) % len(pal))
		}
		out.Image = append(out.Image, img)
		out.Delay = append(out.Delay, 10)
		out.Disposal = append(out.Disposal, gif.DisposalNone)
	}

	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, out); err != nil {
		t.Fatalf("encode source gif: %v", err)
	}
	return buf.Bytes()
}
