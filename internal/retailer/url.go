package retailer

import (
	"net/url"
	"path"
	"strings"
)

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
}

// NormalizeURL maps equivalent product URLs onto one string: scheme and host
// are lowercased, http is upgraded to https, default ports, query string,
// fragment and trailing slashes are removed. It must be applied to stored and
// incoming URLs alike.
func NormalizeURL(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return stripURL(raw)
	}

	originalScheme := strings.ToLower(parsed.Scheme)
	parsed.Scheme = "https"
	parsed.Host = normalizeHost(parsed, originalScheme)
	parsed.User = nil
	parsed.RawQuery = ""
	parsed.ForceQuery = false
	parsed.Fragment = ""
	parsed.RawFragment = ""
	parsed.Path = normalizePath(parsed.Path)
	parsed.RawPath = ""

	return parsed.String()
}

// NormalizeImageURL normalizes an image URL for primary-image comparison.
// CDN resize parameters live in the query string, so the same rules apply.
func NormalizeImageURL(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	return NormalizeURL(raw)
}

// stripURL is the fallback for relative or unparsable URLs.
func stripURL(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return strings.TrimRight(raw, "/")
}

func normalizeHost(u *url.URL, originalScheme string) string {
	hostname := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		return hostname
	}

	for _, scheme := range []string{originalScheme, u.Scheme} {
		if defaultPort, ok := defaultPorts[scheme]; ok && port == defaultPort {
			return hostname
		}
	}

	return hostname + ":" + port
}

// normalizePath resolves dot-segments and removes trailing slashes, including the root.
func normalizePath(p string) string {
	if p == "" || p == "/" {
		return ""
	}
	return strings.TrimRight(path.Clean(p), "/")
}

// URLPath returns the path component used for product-code extraction.
func URLPath(rawURL string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return stripURL(rawURL)
	}
	return parsed.Path
}
