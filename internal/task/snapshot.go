package task

import "strings"

const (
	urlPrefix      = "- Page URL:"
	titlePrefix    = "- Page Title:"
	snapshotMarker = "- Page Snapshot:"
)

// ParseSnapshot extracts URL, title, and the accessibility outline from the
// markdown-like document browser_snapshot returns. The outline text is kept
// verbatim; predicates do their own substring matching against it.
func ParseSnapshot(raw string) (NormalizedSnapshot, error) {
	url, ok := extractLine(raw, urlPrefix)
	if !ok {
		return NormalizedSnapshot{}, NewSnapshotValidationError(raw)
	}
	title, ok := extractLine(raw, titlePrefix)
	if !ok {
		return NormalizedSnapshot{}, NewSnapshotValidationError(raw)
	}
	markerIdx := strings.Index(raw, snapshotMarker)
	if markerIdx < 0 {
		return NormalizedSnapshot{}, NewSnapshotValidationError(raw)
	}
	content := strings.TrimLeft(raw[markerIdx+len(snapshotMarker):], "\n")

	return NormalizedSnapshot{URL: url, Title: title, Content: content}, nil
}

// extractLine finds a line beginning with prefix and returns the trimmed
// remainder.
func extractLine(raw, prefix string) (string, bool) {
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)), true
		}
	}
	return "", false
}
