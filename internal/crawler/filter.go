package crawler

import (
	"net/url"
	"strings"
)

// urlPrefix turns a root domain into a frontier URL
const urlPrefix = "https://"

// ExtractDomain extracts the lower-cased hostname from an absolute URL.
// Returns "" for relative or host-less URLs.
func ExtractDomain(urlStr string) (string, error) {
	// Handle protocol-relative URLs
	if strings.HasPrefix(urlStr, "//") {
		urlStr = "https:" + urlStr
	}

	// Handle relative URLs (no scheme)
	if !strings.Contains(urlStr, "://") {
		return "", nil
	}

	parsed, err := url.Parse(urlStr)
	if err != nil {
		return "", err
	}

	hostname := parsed.Hostname()
	if hostname == "" {
		return "", nil
	}

	return strings.ToLower(hostname), nil
}

// ExtractRootDomain reduces a host to its last two labels.
// Example: www.blog.example.com -> example.com
// The reduction is idempotent, so already reduced domains map to themselves.
func ExtractRootDomain(domain string) string {
	domain = strings.TrimSuffix(strings.ToLower(domain), ".")
	parts := strings.Split(domain, ".")
	if len(parts) >= 2 {
		return parts[len(parts)-2] + "." + parts[len(parts)-1]
	}
	return domain
}

// RootOf returns the root domain of an absolute URL, or "" if the URL has
// no host
func RootOf(urlStr string) string {
	host, err := ExtractDomain(urlStr)
	if err != nil || host == "" {
		return ""
	}
	return ExtractRootDomain(host)
}

// DomainURL builds the frontier URL for a root domain
func DomainURL(domain string) string {
	return urlPrefix + domain
}
