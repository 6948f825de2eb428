package crawler

import (
	"net/url"
	"regexp"
)

var (
	// Four 1-3 digit octets and a 2-5 digit port, word bounded
	proxyPattern = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}:\d{2,5}\b`)

	// Absolute http(s) link up to whitespace, a quote or an angle bracket
	linkPattern = regexp.MustCompile(`(?i)https?://[^\s'"<>]+`)
)

// ExtractProxies returns every ip:port literal in body, in order of
// appearance and including repeats
func ExtractProxies(body []byte) []string {
	return findAll(proxyPattern, body)
}

// ExtractLinks returns every absolute http(s) link literal in body, in order
// of appearance and including repeats
func ExtractLinks(body []byte) []string {
	return findAll(linkPattern, body)
}

func findAll(re *regexp.Regexp, body []byte) []string {
	matches := re.FindAll(body, -1)
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = string(m)
	}
	return out
}

// linkRoot returns the root domain of an extracted link, or "" when the link
// is not a usable absolute URL
func linkRoot(link string) string {
	u, err := url.Parse(link)
	if err != nil || !u.IsAbs() || u.Hostname() == "" {
		return ""
	}
	return ExtractRootDomain(u.Hostname())
}

// harvest applies the extraction results of one page body to the crawl
// state. Only first sightings bump the run counters.
func (c *Crawler) harvest(body []byte) {
	for _, p := range ExtractProxies(body) {
		if c.state.AddProxy(p) {
			c.tracker.IncrementProxiesFound()
		}
	}

	for _, link := range ExtractLinks(body) {
		if !c.state.AddLink(link) {
			continue
		}
		c.tracker.IncrementLinksFound()

		if root := linkRoot(link); root != "" {
			c.state.RegisterDomain(root)
		}
	}
}
