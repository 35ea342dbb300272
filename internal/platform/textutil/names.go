package textutil

import (
	"html"
	"strconv"
	"strings"
	"unicode"

	"github.com/microcosm-cc/bluemonday"
)

var markupPolicy = bluemonday.StrictPolicy()

// StripWhitespace removes every Unicode whitespace rune, including the ideographic space.
func StripWhitespace(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value)
}

// ProductName normalises a catalog name for storage: markup is removed and all whitespace is
// stripped so that name matching is whitespace-insensitive.
func ProductName(raw string) string {
	if raw == "" {
		return ""
	}
	cleaned := html.UnescapeString(markupPolicy.Sanitize(raw))
	return StripWhitespace(cleaned)
}

// ParseAmount parses a spreadsheet or model supplied number. Thousands separators, currency
// marks and surrounding whitespace are ignored. Unparseable or negative input yields 0.
func ParseAmount(raw string) float64 {
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsSpace(r):
			return -1
		case r == ',' || r == '，' || r == '￥' || r == '¥':
			return -1
		}
		return r
	}, raw)
	if cleaned == "" {
		return 0
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || value < 0 || value != value {
		return 0
	}
	return value
}
