// Package trust maps source domains to credibility scores used to rank
// evidence. Scores are priors about the publisher, not judgments about any
// individual article.
package trust

import (
	"net/url"
	"strings"

	"github.com/agentra/factcheck/internal/model"
)

// Table scores domains: whitelisted domains get the ceiling, known domains
// get their reputation prior, unknown domains get the floor.
type Table struct {
	floor      float64
	ceiling    float64
	whitelist  []string
	reputation map[string]float64
}

// NewTable builds a trust table from configuration.
func NewTable(cfg model.TrustConfig) *Table {
	t := &Table{
		floor:      cfg.Floor,
		ceiling:    cfg.Ceiling,
		reputation: make(map[string]float64, len(cfg.Reputation)),
	}
	for _, d := range cfg.Whitelist {
		if d = normalizeDomain(d); d != "" {
			t.whitelist = append(t.whitelist, d)
		}
	}
	for d, score := range cfg.Reputation {
		if d = normalizeDomain(d); d != "" {
			t.reputation[d] = score
		}
	}
	return t
}

// Score returns the trust score for a host name.
func (t *Table) Score(host string) float64 {
	host = normalizeDomain(host)
	if host == "" {
		return t.floor
	}

	for _, d := range t.whitelist {
		if hostMatches(host, d) {
			return t.ceiling
		}
	}

	// Exact entry first, then registrable-suffix match so that
	// en.wikipedia.org inherits the wikipedia.org prior.
	if score, ok := t.reputation[host]; ok {
		return t.clamp(score)
	}
	for d, score := range t.reputation {
		if hostMatches(host, d) {
			return t.clamp(score)
		}
	}

	return t.floor
}

// ScoreURL parses a URL and scores its host. Unparseable URLs get the floor.
func (t *Table) ScoreURL(rawURL string) float64 {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return t.floor
	}
	return t.Score(parsed.Host)
}

// Whitelisted reports whether the host is on the configured whitelist.
func (t *Table) Whitelisted(host string) bool {
	host = normalizeDomain(host)
	for _, d := range t.whitelist {
		if hostMatches(host, d) {
			return true
		}
	}
	return false
}

func (t *Table) clamp(score float64) float64 {
	if score < t.floor {
		return t.floor
	}
	if score > t.ceiling {
		return t.ceiling
	}
	return score
}

func hostMatches(host, domain string) bool {
	return host == domain || strings.HasSuffix(host, "."+domain)
}

func normalizeDomain(d string) string {
	d = strings.ToLower(strings.TrimSpace(d))
	d = strings.TrimPrefix(d, "www.")
	if idx := strings.Index(d, ":"); idx > 0 {
		d = d[:idx]
	}
	return d
}

// Domain extracts the normalized host from a URL, empty if unparseable.
func Domain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizeDomain(parsed.Host)
}
