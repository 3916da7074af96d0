package validation

import "strings"

type providerPatterns struct {
	name     string
	patterns []string
}

// Catalog holds the static lookup tables used for classification. It is never
// mutated after construction and is safe to share.
type Catalog struct {
	freeDomains       map[string]struct{}
	rolePrefixes      map[string]struct{}
	disposableDomains map[string]struct{}
	exampleDomains    map[string]struct{}
	providers         []providerPatterns
	catchAllPatterns  map[string][]string
}

func setOf(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func DefaultCatalog() *Catalog {
	return &Catalog{
		freeDomains: setOf(
			"gmail.com", "yahoo.com", "hotmail.com", "outlook.com", "aol.com",
			"icloud.com", "protonmail.com", "zoho.com", "yandex.com",
		),
		rolePrefixes: setOf(
			"admin", "administrator", "support", "help", "info", "contact",
			"sales", "marketing", "billing", "accounts", "abuse", "postmaster",
		),
		disposableDomains: setOf(
			"mailinator.com", "mailinator.net", "mailinator.org", "mailinator.info",
			"guerrillamail.com", "guerrillamail.info", "guerrillamail.biz",
			"guerrillamail.de", "guerrillamail.net", "guerrillamail.org",
			"guerrillamailblock.com", "grr.la",
			"tempmail.com", "throwawaymail.com", "tempmail.net",
			"disposablemail.com", "yopmail.com", "maildrop.cc",
			"temp-mail.org", "fakeinbox.com", "10minutemail.com",
			"trashmail.com", "sharklasers.com", "spam4.me",
		),
		exampleDomains: setOf(
			"example.com", "example.net", "example.org", "test.com", "test.net",
			"test.org", "domain.com", "domain.net", "domain.org",
		),
		providers: []providerPatterns{
			{name: "google", patterns: []string{"google", "gmail"}},
			{name: "microsoft", patterns: []string{"outlook", "hotmail", "microsoft"}},
			{name: "yahoo", patterns: []string{"yahoo"}},
			{name: "aol", patterns: []string{"aol"}},
			{name: "proton", patterns: []string{"proton"}},
			{name: "zoho", patterns: []string{"zoho"}},
			{name: "yandex", patterns: []string{"yandex"}},
		},
		// Only google and microsoft are assumed catch-all from DNS alone.
		catchAllPatterns: map[string][]string{
			"google":    {"aspmx.l.google.com", "alt1.aspmx.l.google.com", "alt2.aspmx.l.google.com"},
			"microsoft": {"mail.protection.outlook.com"},
		},
	}
}

func contains(set map[string]struct{}, value string) bool {
	_, ok := set[strings.ToLower(value)]
	return ok
}

func (c *Catalog) IsFree(domain string) bool {
	return contains(c.freeDomains, domain)
}

// IsRole matches the local part before any plus tag.
func (c *Catalog) IsRole(local string) bool {
	base, _, _ := strings.Cut(local, "+")
	return contains(c.rolePrefixes, base)
}

func (c *Catalog) IsDisposable(domain string) bool {
	return contains(c.disposableDomains, domain)
}

func (c *Catalog) IsExample(domain string) bool {
	return contains(c.exampleDomains, domain)
}

// Provider names the mail provider behind an MX host, or "" when unknown.
func (c *Catalog) Provider(mxHost string) string {
	host := strings.ToLower(mxHost)
	for _, p := range c.providers {
		for _, pattern := range p.patterns {
			if strings.Contains(host, pattern) {
				return p.name
			}
		}
	}
	return ""
}

// LikelyCatchAll applies the DNS-only catch-all heuristic to the primary MX host.
func (c *Catalog) LikelyCatchAll(primaryMX string) bool {
	host := strings.ToLower(primaryMX)
	for _, pattern := range c.catchAllPatterns[c.Provider(host)] {
		if strings.Contains(host, pattern) {
			return true
		}
	}
	return false
}
