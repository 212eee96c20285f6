package parser

import "regexp"

var tagPattern = regexp.MustCompile(`\[([^\]]+)\]`)

// ExtractTags returns every bracketed tag in order of appearance and the
// text with those tags removed.
func ExtractTags(text string) ([]string, string) {
	matches := tagPattern.FindAllStringSubmatch(text, -1)
	tags := make([]string, 0, len(matches))
	for _, m := range matches {
		tags = append(tags, m[1])
	}
	return tags, tagPattern.ReplaceAllString(text, "")
}
