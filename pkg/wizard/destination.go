package wizard

import (
	"strings"
	"time"
)

// DatasetRoot is the first segment of every upload path.
const DatasetRoot = "dataset"

var (
	timestampReplacer = strings.NewReplacer(":", "-", ".", "-")
	separatorReplacer = strings.NewReplacer("/", "_", "\\", "_", "\x00", "_")
)

// Folder returns the upload folder for m:
//
//	dataset/{organization}/{category}/{phrase}
//
// Segments are lower-cased. The organization segment is present only when
// the collector is affiliated and the trimmed name is non-blank. Metadata
// that fails Validate is still confined to one segment per field: separators
// and dot entries become '_'.
func Folder(m Metadata) string {
	parts := []string{DatasetRoot}
	if org := m.OrganizationName(); org != "" {
		parts = append(parts, segment(org))
	}
	parts = append(parts, segment(m.Category), segment(m.Phrase))
	return strings.Join(parts, "/")
}

func segment(v string) string {
	v = strings.ToLower(separatorReplacer.Replace(v))
	if v == "." || v == ".." {
		return "_"
	}
	return v
}

// FileName returns "audio_{timestamp}.{ext}" where timestamp is the UTC
// ISO-8601 instant with millisecond precision and ':' and '.' replaced by
// '-', for example audio_2024-05-01T12-30-45-123Z.wav.
func FileName(at time.Time, ext string) string {
	ts := at.UTC().Format("2006-01-02T15:04:05.000Z")
	return "audio_" + timestampReplacer.Replace(ts) + "." + ext
}

// Destination returns the full upload path for a recording of m finalized
// at the given time.
func Destination(m Metadata, at time.Time, ext string) string {
	return Folder(m) + "/" + FileName(at, ext)
}
