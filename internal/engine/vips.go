//go:build govips && cgo

package engine

import (
	"bytes"
	"context"
	"fmt"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"

	"github.com/framefold/framefold/internal/catalog"
)

// vipsEngine keeps the pure-Go decode and per-frame edit path and routes
// export through libvips for the formats the pure engine cannot write:
// webp (still and animated) and multi-page tiff. Frames cross into vips as
// lossless png intermediates.
type vipsEngine struct {
	pure pureEngine
}

func (e vipsEngine) Decode(ctx context.Context, data []byte) (*Sequence, error) {
	return e.pure.Decode(ctx, data)
}

func (e vipsEngine) DecodeFirst(ctx context.Context, data []byte) (*Frame, error) {
	return e.pure.DecodeFirst(ctx, data)
}

func (e vipsEngine) Rotate(f *Frame, degrees int)            { e.pure.Rotate(f, degrees) }
func (e vipsEngine) ResizePercent(f *Frame, percent int)     { e.pure.ResizePercent(f, percent) }
func (e vipsEngine) ResizeExact(f *Frame, width, height int) { e.pure.ResizeExact(f, width, height) }
func (e vipsEngine) Fit(f *Frame, width, height int)         { e.pure.Fit(f, width, height) }
func (e vipsEngine) Extent(f *Frame, width, height int)      { e.pure.Extent(f, width, height) }

func (e vipsEngine) Encode(ctx context.Context, seq *Sequence, format catalog.Format, quality int) ([]byte, error) {
	switch format {
	case catalog.FormatWebP:
		return e.encodeWebP(ctx, seq, quality)
	case catalog.FormatTIFF:
		return e.encodeTIFF(ctx, seq, quality)
	default:
		return e.pure.Encode(ctx, seq, format, quality)
	}
}

func (e vipsEngine) encodeWebP(ctx context.Context, seq *Sequence, quality int) ([]byte, error) {
	if seq == nil || len(seq.Frames) == 0 {
		return nil, fmt.Errorf("encode webp: empty frame sequence")
	}

	if len(seq.Frames) == 1 {
		img, err := loadFramePNG(seq.Frames[0])
		if err != nil {
			return nil, err
		}
		defer img.Close()
		return exportWebP(img, quality)
	}

	// Animated webp: assemble the frames as a GIF (carrying the delays and
	// disposal already set on them), reload all pages through vips, and
	// export; libvips preserves per-page timing.
	gifData, err := e.pure.Encode(ctx, seq, catalog.FormatGIF, quality)
	if err != nil {
		return nil, fmt.Errorf("stage animated webp: %w", err)
	}

	params := vips.NewImportParams()
	params.NumPages.Set(-1)
	img, err := vips.LoadImageFromBuffer(gifData, params)
	if err != nil {
		return nil, fmt.Errorf("load staged animation: %w", err)
	}
	defer img.Close()

	return exportWebP(img, quality)
}

func (e vipsEngine) encodeTIFF(ctx context.Context, seq *Sequence, quality int) ([]byte, error) {
	if seq == nil || len(seq.Frames) == 0 {
		return nil, fmt.Errorf("encode tiff: empty frame sequence")
	}
	if len(seq.Frames) == 1 {
		return e.pure.Encode(ctx, seq, catalog.FormatTIFF, quality)
	}

	img, err := loadFramePNG(seq.Frames[0])
	if err != nil {
		return nil, err
	}
	defer img.Close()

	for _, f := range seq.Frames[1:] {
		page, err := loadFramePNG(f)
		if err != nil {
			return nil, err
		}
		joinErr := img.Join(page, vips.DirectionVertical)
		page.Close()
		if joinErr != nil {
			return nil, fmt.Errorf("join tiff page: %w", joinErr)
		}
	}
	if err := img.SetPageHeight(seq.Frames[0].Height()); err != nil {
		return nil, fmt.Errorf("set tiff page height: %w", err)
	}

	data, _, err := img.ExportTiff(vips.NewTiffExportParams())
	if err != nil {
		return nil, fmt.Errorf("encode tiff: %w", err)
	}
	return data, nil
}

func loadFramePNG(f *Frame) (*vips.ImageRef, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, f.Image); err != nil {
		return nil, fmt.Errorf("stage frame for vips: %w", err)
	}
	img, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("load frame into vips: %w", err)
	}
	return img, nil
}

func exportWebP(img *vips.ImageRef, quality int) ([]byte, error) {
	params := vips.NewWebpExportParams()
	if quality > 0 && quality <= 100 {
		params.Quality = quality
	}
	data, _, err := img.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return data, nil
}
