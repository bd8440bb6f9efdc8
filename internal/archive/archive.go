// Package archive packages converted outputs into the delivery zip. Entry
// metadata is fixed so the same inputs always produce the same bytes, and the
// deflate stream comes from klauspost/compress.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/flate"
)

// Entry is one named output destined for the archive.
type Entry struct {
	Name string
	Data []byte
}

// ProgressFunc receives (done, total) after each entry is written.
type ProgressFunc func(done, total int)

// epoch pins every entry's modification time; archives are byte-identical
// across runs for identical inputs.
var epoch = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// Build writes all entries, in order, into a single zip. Duplicate entry
// names are not deduplicated: both entries are written and extraction is
// last-write-wins in common tooling.
func Build(entries []Entry, progress ProgressFunc) ([]byte, error) {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	total := len(entries)
	for i, entry := range entries {
		header := &zip.FileHeader{
			Name:     entry.Name,
			Method:   zip.Deflate,
			Modified: epoch,
		}
		w, err := zw.CreateHeader(header)
		if err != nil {
			return nil, fmt.Errorf("create archive entry %s: %w", entry.Name, err)
		}
		if _, err := w.Write(entry.Data); err != nil {
			return nil, fmt.Errorf("write archive entry %s: %w", entry.Name, err)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
