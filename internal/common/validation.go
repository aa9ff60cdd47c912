package common

import (
	"errors"
	"regexp"
	"strings"
)

var tagRegex = regexp.MustCompile(`^[a-z0-9_]+$`)

const maxTagLength = 50

// NormalizeTags trims, lowercases, strips a leading '#' and dedupes tags.
// Empty entries are dropped. Order of first appearance is kept.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		tag = strings.TrimPrefix(tag, "#")
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}

// ValidateTag checks a single normalized tag.
func ValidateTag(tag string) error {
	if len(tag) == 0 || len(tag) > maxTagLength {
		return errors.New("tag must be between 1 and 50 characters")
	}
	if !tagRegex.MatchString(tag) {
		return errors.New("tag can only contain lowercase letters, numbers, and underscores")
	}
	return nil
}

// SplitTags parses a comma separated tag list, as sent in query strings and forms.
func SplitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return NormalizeTags(strings.Split(raw, ","))
}
