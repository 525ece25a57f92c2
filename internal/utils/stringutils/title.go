package stringutils

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MaxTitleRunes caps generated chat titles.
	MaxTitleRunes = 80
	DefaultTitle  = "Untitled"
)

var (
	urlPattern          = regexp.MustCompile(`(?i)(https?://|ftp://|www\.)[^\s]+`)
	markdownLinkPattern = regexp.MustCompile(`\[([^\]]*)\]\([^)]+\)`)
	titlePrefixPattern  = regexp.MustCompile(`(?i)^\s*title\s*:\s*`)
	multiSpacePattern   = regexp.MustCompile(`\s+`)
)

// SanitizeTitleContent strips URLs, markdown and symbols so the remainder can be used as a title.
func SanitizeTitleContent(content string) string {
	content = urlPattern.ReplaceAllString(content, "")
	content = markdownLinkPattern.ReplaceAllString(content, "$1")

	var result strings.Builder
	for _, r := range content {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || unicode.IsSpace(r) ||
			r == '.' || r == ',' || r == '!' || r == '?' || r == '-' || r == '\'' || r == '+' || r == '#' {
			result.WriteRune(r)
		}
	}

	content = multiSpacePattern.ReplaceAllString(result.String(), " ")
	content = strings.TrimSpace(content)
	return strings.TrimRight(content, " .,!?-'")
}

// TruncateTitle cuts a title to maxRunes runes, preferring a word boundary, and appends "...".
func TruncateTitle(title string, maxRunes int) string {
	if utf8.RuneCountInString(title) <= maxRunes {
		return title
	}

	const ellipsis = "..."
	limit := maxRunes - len(ellipsis)
	if limit < 0 {
		limit = 0
	}

	runes := []rune(title)
	truncated := string(runes[:limit])
	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > len(truncated)/2 {
		truncated = strings.TrimRight(truncated[:lastSpace], " ")
	}
	return truncated + ellipsis
}

// NormalizeGeneratedTitle cleans model output meant to be a title: it drops a leading "Title:",
// wrapping quotes and markdown emphasis, then sanitises and truncates. Empty results become
// DefaultTitle.
func NormalizeGeneratedTitle(raw string) string {
	title := strings.TrimSpace(raw)
	if idx := strings.IndexByte(title, '\n'); idx >= 0 {
		title = title[:idx]
	}
	title = titlePrefixPattern.ReplaceAllString(title, "")
	title = strings.Trim(title, "\"'`*_# ")

	title = SanitizeTitleContent(title)
	if title == "" {
		return DefaultTitle
	}
	return TruncateTitle(title, MaxTitleRunes)
}

// GenerateTitle derives a fallback title directly from message content.
func GenerateTitle(content string, maxRunes int) string {
	sanitized := SanitizeTitleContent(content)
	if sanitized == "" {
		return ""
	}
	return TruncateTitle(sanitized, maxRunes)
}
