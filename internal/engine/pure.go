package engine

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/disintegration/imaging"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/framefold/framefold/internal/catalog"
)

// pureEngine implements Engine on disintegration/imaging plus the stdlib and
// x/image codecs. It decodes jpeg/png/gif/webp/bmp/tiff and encodes
// everything except webp and pdf, which need libvips.
type pureEngine struct{}

func (pureEngine) Decode(ctx context.Context, data []byte) (*Sequence, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if isGIF(data) {
		return decodeGIFAll(data)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return &Sequence{Frames: []*Frame{{Image: imaging.Clone(img)}}}, nil
}

func (pureEngine) DecodeFirst(ctx context.Context, data []byte) (*Frame, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return &Frame{Image: imaging.Clone(img)}, nil
}

func (pureEngine) Rotate(f *Frame, degrees int) {
	if degrees%360 == 0 {
		return
	}
	// imaging rotates counter-clockwise; callers supply clockwise degrees.
	f.Image = imaging.Rotate(f.Image, -float64(degrees), color.NRGBA{})
}

func (pureEngine) ResizePercent(f *Frame, percent int) {
	if percent == 100 {
		return
	}
	factor := float64(percent) / 100
	w := scaledDim(f.Width(), factor)
	h := scaledDim(f.Height(), factor)
	f.Image = imaging.Resize(f.Image, w, h, imaging.Lanczos)
}

func (pureEngine) ResizeExact(f *Frame, width, height int) {
	if width == f.Width() && height == f.Height() {
		return
	}
	f.Image = imaging.Resize(f.Image, width, height, imaging.Lanczos)
}

func (pureEngine) Fit(f *Frame, width, height int) {
	f.Image = imaging.Fit(f.Image, width, height, imaging.Lanczos)
}

func (pureEngine) Extent(f *Frame, width, height int) {
	if width == f.Width() && height == f.Height() {
		return
	}
	canvas := image.NewNRGBA(image.Rect(0, 0, width, height))
	f.Image = imaging.PasteCenter(canvas, f.Image)
}

func (pureEngine) Encode(ctx context.Context, seq *Sequence, format catalog.Format, quality int) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if seq == nil || len(seq.Frames) == 0 {
		return nil, fmt.Errorf("encode %s: empty frame sequence", format)
	}
	if quality < 1 || quality > 100 {
		quality = 80
	}

	var buf bytes.Buffer
	switch format {
	case catalog.FormatJPEG:
		if err := jpeg.Encode(&buf, seq.Frames[0].Image, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
	case catalog.FormatPNG:
		if err := png.Encode(&buf, seq.Frames[0].Image); err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
	case catalog.FormatBMP:
		if err := bmp.Encode(&buf, seq.Frames[0].Image); err != nil {
			return nil, fmt.Errorf("encode bmp: %w", err)
		}
	case catalog.FormatTIFF:
		if len(seq.Frames) > 1 {
			return nil, fmt.Errorf("encode multi-page tiff: %w", ErrCodecUnavailable)
		}
		opts := &tiff.Options{Compression: tiff.Deflate, Predictor: true}
		if err := tiff.Encode(&buf, seq.Frames[0].Image, opts); err != nil {
			return nil, fmt.Errorf("encode tiff: %w", err)
		}
	case catalog.FormatGIF:
		if err := encodeGIF(&buf, seq); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("encode %s: %w", format, ErrCodecUnavailable)
	}

	return buf.Bytes(), nil
}

func isGIF(data []byte) bool {
	return bytes.HasPrefix(data, []byte("GIF8"))
}

// decodeGIFAll coalesces an animated GIF: each decoded frame is composited
// onto the logical canvas and snapshotted, so inter-frame deltas and
// disposal are resolved before any edit touches the frames.
func decodeGIFAll(data []byte) (*Sequence, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	if len(g.Image) == 0 {
		return nil, fmt.Errorf("decode source image: gif has no frames")
	}

	w, h := g.Config.Width, g.Config.Height
	if w == 0 || h == 0 {
		b := g.Image[0].Bounds()
		w, h = b.Max.X, b.Max.Y
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, w, h))
	frames := make([]*Frame, 0, len(g.Image))

	for i, src := range g.Image {
		disposal := byte(gif.DisposalNone)
		if i < len(g.Disposal) {
			disposal = g.Disposal[i]
		}

		var restore *image.NRGBA
		if disposal == gif.DisposalPrevious {
			restore = cloneNRGBA(canvas)
		}

		draw.Draw(canvas, src.Bounds(), src, src.Bounds().Min, draw.Over)

		delay := 0
		if i < len(g.Delay) {
			delay = g.Delay[i]
		}
		frames = append(frames, &Frame{Image: cloneNRGBA(canvas), DelayCS: delay})

		switch disposal {
		case gif.DisposalBackground:
			clearRect(canvas, src.Bounds())
		case gif.DisposalPrevious:
			canvas = restore
		}
	}

	return &Sequence{Frames: frames}, nil
}

// encodeGIF quantizes every frame to a 256-color palette with a reserved
// transparent entry (the optimization pass) and writes the full sequence.
// Multi-frame output requires uniform frame dimensions.
func encodeGIF(buf *bytes.Buffer, seq *Sequence) error {
	first := seq.Frames[0]
	for _, f := range seq.Frames[1:] {
		if f.Width() != first.Width() || f.Height() != first.Height() {
			return fmt.Errorf("encode gif %dx%d vs %dx%d: %w",
				first.Width(), first.Height(), f.Width(), f.Height(), ErrFrameSizeMismatch)
		}
	}

	out := &gif.GIF{
		Image:    make([]*image.Paletted, 0, len(seq.Frames)),
		Delay:    make([]int, 0, len(seq.Frames)),
		Disposal: make([]byte, 0, len(seq.Frames)),
	}

	pal := gifPalette()
	for _, f := range seq.Frames {
		b := image.Rect(0, 0, f.Width(), f.Height())
		paletted := image.NewPaletted(b, pal)
		draw.FloydSteinberg.Draw(paletted, b, f.Image, f.Image.Bounds().Min)

		disposal := byte(gif.DisposalNone)
		if f.DisposalBackground {
			disposal = gif.DisposalBackground
		}

		out.Image = append(out.Image, paletted)
		out.Delay = append(out.Delay, f.DelayCS)
		out.Disposal = append(out.Disposal, disposal)
	}

	if err := gif.EncodeAll(buf, out); err != nil {
		return fmt.Errorf("encode gif: %w", err)
	}
	return nil
}

// gifPalette is Plan9 with index 0 replaced by full transparency so padded
// canvas area survives quantization.
func gifPalette() color.Palette {
	pal := make(color.Palette, 0, 256)
	pal = append(pal, color.NRGBA{})
	pal = append(pal, palette.Plan9[1:]...)
	return pal
}

func cloneNRGBA(src *image.NRGBA) *image.NRGBA {
	dst := image.NewNRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

func clearRect(img *image.NRGBA, r image.Rectangle) {
	draw.Draw(img, r.Intersect(img.Bounds()), image.Transparent, image.Point{}, draw.Src)
}

func scaledDim(v int, factor float64) int {
	scaled := int(math.Round(float64(v) * factor))
	if scaled < 1 {
		return 1
	}
	return scaled
}
