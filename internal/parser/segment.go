package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// strategy attempts one way of splitting dish text. ok is false when the
// strategy does not apply or its result is not usable.
type strategy struct {
	name  string
	split func(text string) (parts []string, ok bool)
}

// strategies run most specific first; the first usable split wins.
var strategies = []strategy{
	{name: "tab", split: splitTabs},
	{name: "newline", split: splitNewlines},
	{name: "slash", split: splitSlashes},
	{name: "wide-space", split: splitWideSpace},
	{name: "hangul-run", split: splitHangulRuns},
	{name: "space", split: splitSpaces},
	{name: "whole", split: wholeText},
}

var (
	tabSeparator       = regexp.MustCompile(`[\s\p{Zs}]*\t[\s\p{Zs}]*`)
	wideSpaceSeparator = regexp.MustCompile(`[\s\p{Zs}]{2,}`)
	hangulRun          = regexp.MustCompile(`[\x{AC00}-\x{D7A3}]+`)
)

// Segment splits tag-free dish text into an ordered dish list.
func Segment(text string) []string {
	parts, _ := segment(text)
	return parts
}

func segment(text string) ([]string, string) {
	for _, s := range strategies {
		if parts, ok := s.split(text); ok {
			return parts, s.name
		}
	}
	return []string{}, ""
}

func splitTabs(text string) ([]string, bool) {
	if !strings.Contains(text, "\t") {
		return nil, false
	}
	parts := compact(tabSeparator.Split(text, -1))
	return parts, len(parts) > 0
}

func splitNewlines(text string) ([]string, bool) {
	if !strings.Contains(text, "\n") {
		return nil, false
	}
	parts := compact(strings.Split(text, "\n"))
	return parts, len(parts) > 1
}

func splitSlashes(text string) ([]string, bool) {
	if strings.Count(text, "/") < 2 {
		return nil, false
	}
	parts := compact(strings.Split(text, "/"))
	return parts, len(parts) > 1
}

func splitWideSpace(text string) ([]string, bool) {
	parts := compact(wideSpaceSeparator.Split(text, -1))
	return parts, len(parts) > 1
}

func splitHangulRuns(text string) ([]string, bool) {
	parts := hangulRun.FindAllString(text, -1)
	return parts, len(parts) > 1
}

func splitSpaces(text string) ([]string, bool) {
	parts := strings.Fields(text)
	return parts, len(parts) > 0
}

func wholeText(text string) ([]string, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, false
	}
	return []string{trimmed}, true
}

func compact(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ValidDishes rejects empty lists, lists dominated by one-character
// fragments, and lists that contain a notice.
func ValidDishes(dishes []string) bool {
	if len(dishes) == 0 {
		return false
	}
	long := 0
	for _, d := range dishes {
		if utf8.RuneCountInString(d) >= 2 {
			long++
		}
	}
	if long*2 < len(dishes) {
		return false
	}
	for _, d := range dishes {
		if IsNotice(d) {
			return false
		}
	}
	return true
}
