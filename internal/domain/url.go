package domain

import (
	"net/url"
	"strings"
)

// NormalizeURL returns the comparison key used for duplicate detection.
//
// Scheme, host and path are kept; the host is lowercased, a leading
// "www." and default ports are dropped, and trailing slashes on the path
// are ignored. Query strings are kept so that two different searches on
// the same site stay two bookmarks. Fragments are dropped.
//
// Examples:
//
//	"https://www.GitHub.com/"      -> "https://github.com"
//	"github.com/golang/go/"        -> "https://github.com/golang/go"
//	"http://example.com:80/a?q=1"  -> "http://example.com/a?q=1"
func NormalizeURL(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	u, err := url.Parse(s)
	if (err != nil || u.Host == "") && !strings.Contains(s, "://") {
		// Bare "example.com/path" entries are common in imports.
		u, err = url.Parse("https://" + s)
	}
	if err != nil || u == nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(s, "/"))
	}

	scheme := strings.ToLower(u.Scheme)
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if port := u.Port(); port != "" && !isDefaultPort(scheme, port) {
		host += ":" + port
	}

	key := scheme + "://" + host + strings.TrimRight(u.EscapedPath(), "/")
	if u.RawQuery != "" {
		key += "?" + u.RawQuery
	}
	return key
}

func isDefaultPort(scheme, port string) bool {
	return (scheme == "http" && port == "80") || (scheme == "https" && port == "443")
}

// Hostname returns the lowercased host of a bookmark url without "www.".
// Used for search fragments.
func Hostname(raw string) string {
	key := NormalizeURL(raw)
	if i := strings.Index(key, "://"); i >= 0 {
		key = key[i+3:]
	}
	if i := strings.IndexAny(key, "/?"); i >= 0 {
		key = key[:i]
	}
	return key
}
