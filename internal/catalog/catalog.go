// Package catalog holds the static table of output formats the service can
// produce. Capability dispatch (multi-frame? mergeable?) is a closed lookup
// keyed by format identifier rather than conditionals scattered through the
// pipelines.
package catalog

import (
	"slices"
	"strings"
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatGIF  Format = "gif"
	FormatWebP Format = "webp"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
	FormatPDF  Format = "pdf"
)

// FallbackExtension is used when a format is not in the table.
const FallbackExtension = "dat"

type Descriptor struct {
	Key        Format
	MIMEType   string
	Extension  string
	MultiFrame bool
	// AnimMerge marks formats selectable as the target of an animation
	// merge. Always a strict subset of MultiFrame: TIFF and PDF can hold
	// multiple pages on output but are not animation targets.
	AnimMerge bool
}

var descriptors = map[Format]Descriptor{
	FormatJPEG: {Key: FormatJPEG, MIMEType: "image/jpeg", Extension: "jpg"},
	FormatPNG:  {Key: FormatPNG, MIMEType: "image/png", Extension: "png"},
	FormatGIF:  {Key: FormatGIF, MIMEType: "image/gif", Extension: "gif", MultiFrame: true, AnimMerge: true},
	FormatWebP: {Key: FormatWebP, MIMEType: "image/webp", Extension: "webp", MultiFrame: true, AnimMerge: true},
	FormatBMP:  {Key: FormatBMP, MIMEType: "image/bmp", Extension: "bmp"},
	FormatTIFF: {Key: FormatTIFF, MIMEType: "image/tiff", Extension: "tiff", MultiFrame: true},
	FormatPDF:  {Key: FormatPDF, MIMEType: "application/pdf", Extension: "pdf", MultiFrame: true},
}

// Parse normalizes a caller-supplied format key. The JPEG family collapses
// onto a single descriptor.
func Parse(key string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "jpeg", "jpg", "jpe":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "gif":
		return FormatGIF, true
	case "webp":
		return FormatWebP, true
	case "bmp":
		return FormatBMP, true
	case "tiff", "tif":
		return FormatTIFF, true
	case "pdf":
		return FormatPDF, true
	default:
		return "", false
	}
}

func Lookup(format Format) (Descriptor, bool) {
	d, ok := descriptors[format]
	return d, ok
}

// Extension resolves the output file extension for a format. The JPEG family
// yields "jpg" rather than "jpeg"; unknown formats fall back to "dat".
func Extension(format Format) string {
	if d, ok := descriptors[format]; ok {
		return d.Extension
	}
	return FallbackExtension
}

func MIMEType(format Format) string {
	if d, ok := descriptors[format]; ok {
		return d.MIMEType
	}
	return "application/octet-stream"
}

func IsMultiFrame(format Format) bool {
	return descriptors[format].MultiFrame
}

func SupportsAnimationMerge(format Format) bool {
	return descriptors[format].AnimMerge
}

// Formats returns the cataloged format keys in stable order.
func Formats() []Format {
	out := make([]Format, 0, len(descriptors))
	for key := range descriptors {
		out = append(out, key)
	}
	slices.Sort(out)
	return out
}
