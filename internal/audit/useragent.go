package audit

import (
	"strings"
	"unicode/utf8"

	"github.com/mssola/useragent"
)

// MaxUserAgentLength bounds what is logged and stored per attempt.
const MaxUserAgentLength = 256

// TruncateUserAgent clips ua to at most MaxUserAgentLength bytes without
// splitting a rune. Invalid UTF-8 is dropped so the value always stores.
func TruncateUserAgent(ua string) string {
	if len(ua) > MaxUserAgentLength {
		cut := MaxUserAgentLength
		for cut > 0 && !utf8.RuneStart(ua[cut]) {
			cut--
		}
		ua = ua[:cut]
	}
	return strings.ToValidUTF8(ua, "")
}

// DescribeUserAgent returns a short browser and OS summary.
func DescribeUserAgent(ua string) (browser, os string) {
	if strings.TrimSpace(ua) == "" {
		return "", ""
	}
	parsed := useragent.New(ua)
	name, version := parsed.Browser()
	browser = strings.TrimSpace(name + " " + version)
	return browser, parsed.OS()
}
