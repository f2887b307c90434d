package runner

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/openmaw-ai/openmaw/pkg/value"
)

// extractPath walks a JSON document along a small path language of ".key"
// and "[index]" segments, e.g. ".choices[0].message.content". The selected
// value renders as plain text (scalars bare, containers as compact JSON).
func extractPath(data []byte, path string) (string, error) {
	v, err := value.Decode(data)
	if err != nil {
		return "", fmt.Errorf("response is not JSON: %w", err)
	}

	rest := strings.TrimSpace(path)
	for rest != "" {
		switch {
		case strings.HasPrefix(rest, "."):
			rest = rest[1:]
			end := strings.IndexAny(rest, ".[")
			key := rest
			if end >= 0 {
				key = rest[:end]
				rest = rest[end:]
			} else {
				rest = ""
			}
			if key == "" {
				return "", fmt.Errorf("empty key in path %q", path)
			}
			field, ok := v.Field(key)
			if !ok {
				return "", fmt.Errorf("key %q not found", key)
			}
			v = field

		case strings.HasPrefix(rest, "["):
			closing := strings.Index(rest, "]")
			if closing < 0 {
				return "", fmt.Errorf("unterminated index in path %q", path)
			}
			idx, err := strconv.Atoi(rest[1:closing])
			if err != nil {
				return "", fmt.Errorf("bad index in path %q: %w", path, err)
			}
			if v.Kind() != value.KindArray || idx < 0 || idx >= v.Len() {
				return "", fmt.Errorf("index %d out of range", idx)
			}
			v = v.Index(idx)
			rest = rest[closing+1:]

		default:
			return "", fmt.Errorf("unexpected path segment %q", rest)
		}
	}
	return v.Text(), nil
}
