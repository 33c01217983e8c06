package domain

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// SiteID is the display name of a monitored site, e.g. "YouTube".
type SiteID string

var (
	ErrRestrictedURL = errors.New("restricted url")
	ErrInvalidURL    = errors.New("invalid url")
)

var restrictedSchemes = []string{
	"chrome:", "chrome-extension:", "moz-extension:", "about:", "data:", "javascript:", "file:",
}

// Entry maps a domain fragment to the site it identifies.
type Entry struct {
	Domain string
	Site   SiteID
}

func DefaultEntries() []Entry {
	return []Entry{
		{Domain: "youtube.com", Site: "YouTube"},
		{Domain: "whatsapp.com", Site: "WhatsApp"},
		{Domain: "web.whatsapp.com", Site: "WhatsApp"},
	}
}

// Registry is an ordered, read-only set of monitored domains.
type Registry struct {
	entries []Entry
}

// NewRegistry normalizes entries. A later entry for a domain already present
// replaces the earlier one in place.
func NewRegistry(entries ...Entry) *Registry {
	r := &Registry{}
	for _, e := range entries {
		domain := normalizeHost(e.Domain)
		if domain == "" || strings.TrimSpace(string(e.Site)) == "" {
			continue
		}
		e = Entry{Domain: domain, Site: SiteID(strings.TrimSpace(string(e.Site)))}
		replaced := false
		for i := range r.entries {
			if r.entries[i].Domain == domain {
				r.entries[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			r.entries = append(r.entries, e)
		}
	}
	return r
}

func DefaultRegistry() *Registry {
	return NewRegistry(DefaultEntries()...)
}

func (r *Registry) Entries() []Entry {
	return append([]Entry(nil), r.entries...)
}

// Sites lists distinct site ids in registry order.
func (r *Registry) Sites() []SiteID {
	seen := map[SiteID]bool{}
	out := make([]SiteID, 0, len(r.entries))
	for _, e := range r.entries {
		if !seen[e.Site] {
			seen[e.Site] = true
			out = append(out, e.Site)
		}
	}
	return out
}

// Classify reports the site whose domain is contained in hostname. When
// several domains match, the longest wins, then the earliest registered.
func (r *Registry) Classify(hostname string) (SiteID, bool) {
	host := normalizeHost(hostname)
	if host == "" {
		return "", false
	}
	best := -1
	for i, e := range r.entries {
		if !strings.Contains(host, e.Domain) {
			continue
		}
		if best < 0 || len(e.Domain) > len(r.entries[best].Domain) {
			best = i
		}
	}
	if best < 0 {
		return "", false
	}
	return r.entries[best].Site, true
}

// Match is the outcome of classifying a full URL.
type Match struct {
	Hostname  string
	Site      SiteID
	Monitored bool
}

// ClassifyURL rejects browser-internal and unparsable URLs before classifying
// the hostname.
func (r *Registry) ClassifyURL(raw string) (Match, error) {
	trimmed := strings.TrimSpace(raw)
	lower := strings.ToLower(trimmed)
	for _, scheme := range restrictedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return Match{}, fmt.Errorf("%w: %s", ErrRestrictedURL, scheme)
		}
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return Match{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Hostname() == "" {
		return Match{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}
	host := normalizeHost(u.Hostname())
	site, ok := r.Classify(host)
	return Match{Hostname: host, Site: site, Monitored: ok}, nil
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	return strings.TrimPrefix(host, "www.")
}
