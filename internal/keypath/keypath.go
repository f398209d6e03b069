// Package keypath splits flat store keys into tree path segments.
//
// Delimiters are kept as the leading character of the segment that follows
// them, so joining the segments with "" gives back the original key.
package keypath

import (
	"strings"
	"unicode/utf8"
)

// Split partitions key into segments. Every delimiter starts a new segment.
// An empty key yields no segments.
func Split(key, delimiters string) []string {
	if key == "" {
		return nil
	}
	parts := make([]string, 0, 4)
	start := 0
	for i, r := range key {
		if strings.ContainsRune(delimiters, r) {
			parts = append(parts, key[start:i])
			start = i
		}
	}
	return append(parts, key[start:])
}

// Join concatenates segments back into a key.
func Join(segments []string) string {
	return strings.Join(segments, "")
}

// Label is the display text of a segment: the leading delimiter is dropped
// unless the segment is nothing but that delimiter.
func Label(segment, delimiters string) string {
	r, size := utf8.DecodeRuneInString(segment)
	if size == 0 || size == len(segment) || !strings.ContainsRune(delimiters, r) {
		return segment
	}
	return segment[size:]
}

// Parent returns every segment but the last one.
func Parent(segments []string) []string {
	if len(segments) == 0 {
		return nil
	}
	return segments[:len(segments)-1]
}
