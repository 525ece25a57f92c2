package stringutils

import "strings"

var lineEndingReplacer = strings.NewReplacer("\r\n", "\n", "\r", "\n")

// NormalizeUserText converts CRLF and lone CR line endings to LF.
func NormalizeUserText(text string) string {
	if text == "" {
		return ""
	}
	return lineEndingReplacer.Replace(text)
}

// NormalizeUserTextPtr is NormalizeUserText for optional values; nil yields "".
func NormalizeUserTextPtr(text *string) string {
	if text == nil {
		return ""
	}
	return NormalizeUserText(*text)
}
