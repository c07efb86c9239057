package utils

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

const urlFlags = purell.FlagsUsuallySafeGreedy |
	purell.FlagRemoveDirectoryIndex |
	purell.FlagRemoveFragment |
	purell.FlagSortQuery

// NormalizeURL canonicalizes a listing or page URL so trivially different
// spellings of the same address compare equal. Unparsable input is
// returned trimmed.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	normalized, err := purell.NormalizeURLString(raw, urlFlags)
	if err != nil {
		return raw
	}
	return normalized
}

// AbsoluteURL resolves href against base. It returns "" when either side
// cannot be parsed or href is empty.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	b, err := url.Parse(base)
	if err != nil {
		return ""
	}
	h, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return b.ResolveReference(h).String()
}

// ValidPageURL reports whether raw is an absolute http(s) URL.
func ValidPageURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
