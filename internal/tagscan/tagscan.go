// Package tagscan holds the string scanning shared by the inline markup
// extractors.
package tagscan

import "strings"

// Index returns the position and value of the earliest occurrence of any
// tag in s. When two tags start at the same position the longer one wins.
// It returns -1 and "" when no tag occurs.
func Index(s string, tags []string) (int, string) {
	best, match := -1, ""
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		i := strings.Index(s, tag)
		if i < 0 {
			continue
		}
		if best < 0 || i < best || (i == best && len(tag) > len(match)) {
			best, match = i, tag
		}
	}
	return best, match
}

// PartialSuffix returns the length of the longest suffix of s that is a
// proper prefix of one of tags. Those bytes cannot be resolved until more
// input arrives.
func PartialSuffix(s string, tags []string) int {
	longest := 0
	for _, tag := range tags {
		n := len(tag) - 1
		if n > len(s) {
			n = len(s)
		}
		for ; n > longest; n-- {
			if strings.HasSuffix(s, tag[:n]) {
				longest = n
				break
			}
		}
	}
	return longest
}

// IsPrefix reports whether s is a proper prefix of tag.
func IsPrefix(s, tag string) bool {
	return len(s) < len(tag) && strings.HasPrefix(tag, s)
}
