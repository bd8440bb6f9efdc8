package domain

import (
	"fmt"
	"strings"
)

// Upload is one entry handed over by the file-selection collaborator.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}

// PartitionUploads splits a selection into accepted image entries and the
// names of everything else. Only entries whose declared content type begins
// with "image/" proceed; rejection is informational and never aborts the
// accepted set.
func PartitionUploads(uploads []Upload) (accepted []Upload, rejected []string) {
	for _, u := range uploads {
		if strings.HasPrefix(strings.ToLower(strings.TrimSpace(u.ContentType)), "image/") {
			accepted = append(accepted, u)
			continue
		}
		rejected = append(rejected, u.Name)
	}
	return accepted, rejected
}

const maxRejectedNames = 5

// RejectionNote renders the rejected-file list for the user, capped at five
// names with an "and N others." suffix beyond that.
func RejectionNote(rejected []string) string {
	if len(rejected) == 0 {
		return ""
	}

	shown := rejected
	if len(shown) > maxRejectedNames {
		shown = shown[:maxRejectedNames]
	}

	note := "Skipped non-image files: " + strings.Join(shown, ", ")
	if extra := len(rejected) - len(shown); extra > 0 {
		note += fmt.Sprintf(" and %d others.", extra)
	}
	return note
}
