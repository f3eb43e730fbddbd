package multipart

import (
	"mime"
	"path/filepath"
	"sort"
	"strings"
)

const defaultContentType = "application/octet-stream"

var lineBreaks = strings.NewReplacer("\r", "", "\n", "")

// escape makes a header parameter value safe to quote: line breaks are
// dropped, then double quotes are backslash-escaped.
func escape(value string) string {
	return strings.ReplaceAll(lineBreaks.Replace(value), `"`, `\"`)
}

// guessContentType maps a filename extension to a media type without
// parameters.
func guessContentType(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" {
		return defaultContentType
	}
	t := mime.TypeByExtension(ext)
	if t == "" {
		return defaultContentType
	}
	mediaType, _, err := mime.ParseMediaType(t)
	if err != nil {
		return defaultContentType
	}
	return mediaType
}

// sortFields orders scalars before attachments and each group by name.
// Fields with equal keys keep their input order.
func sortFields(fields []Field) {
	sort.SliceStable(fields, func(i, j int) bool {
		ki, kj := fieldRank(fields[i]), fieldRank(fields[j])
		if ki != kj {
			return ki < kj
		}
		return fields[i].Name < fields[j].Name
	})
}

func fieldRank(f Field) int {
	if f.IsAttachment() {
		return 1
	}
	return 0
}
