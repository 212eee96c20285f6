package parser

import (
	"regexp"
	"strings"
)

// noticePatterns match operational announcements (closures, holidays,
// contact details) that the site publishes in place of menu entries.
var noticePatterns = []*regexp.Regexp{
	regexp.MustCompile(`운영합니다`),
	regexp.MustCompile(`코너만.*운영`),
	regexp.MustCompile(`금요일.*한.*코너만`),
	regexp.MustCompile(`휴무|휴업`),
	regexp.MustCompile(`문의.*전화`),
	regexp.MustCompile(`연락.*안내`),
	regexp.MustCompile(`공지.*알림`),
	regexp.MustCompile(`운영\s*없`),
}

var noticeKeywords = []string{
	"운영합니다", "휴무", "휴업", "연휴", "문의", "전화", "연락", "안내", "공지", "알림",
}

// IsNotice reports whether text is an operational notice rather than a menu.
func IsNotice(text string) bool {
	for _, re := range noticePatterns {
		if re.MatchString(text) {
			return true
		}
	}
	lower := strings.ToLower(text)
	for _, kw := range noticeKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
