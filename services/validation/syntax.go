package validation

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/badoux/checkmail"
	"github.com/customeros/mailsherpa/mailvalidate"
	"golang.org/x/net/idna"

	"github.com/customeros/mailprobe/internal/models"
	"github.com/customeros/mailprobe/internal/utils"
)

const (
	maxLocalLength  = 64
	maxDomainLength = 255
)

var (
	localPartPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+$`)

	// Checked after IDN conversion, so an internationalised TLD arrives as xn--.
	domainPattern = regexp.MustCompile(`^(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+(?:[a-zA-Z]{2,63}|xn--[a-zA-Z0-9-]{1,59})$`)
)

// ParseAddress checks the address syntax and returns its parts with the domain
// in ASCII (punycode) form.
func ParseAddress(email string) (models.EmailAddress, bool) {
	local, domain, ok := utils.SplitEmail(email)
	if !ok {
		return models.EmailAddress{}, false
	}
	if len(local) > maxLocalLength || !localPartPattern.MatchString(local) {
		return models.EmailAddress{}, false
	}

	asciiDomain, err := idna.Lookup.ToASCII(domain)
	if err != nil {
		return models.EmailAddress{}, false
	}
	if len(asciiDomain) > maxDomainLength || !domainPattern.MatchString(asciiDomain) {
		return models.EmailAddress{}, false
	}

	address := local + "@" + asciiDomain
	if err = checkmail.ValidateFormat(address); err != nil {
		return models.EmailAddress{}, false
	}
	return models.EmailAddress{Email: address, Local: local, Domain: asciiDomain}, true
}

// CharacterCounts tallies digits, letters and everything else in the local part.
func CharacterCounts(local string) (numeric, alpha, symbols int) {
	for _, r := range local {
		switch {
		case unicode.IsDigit(r):
			numeric++
		case unicode.IsLetter(r):
			alpha++
		default:
			symbols++
		}
	}
	return
}

// Attributes classifies an address. The catalog decides disposable and free
// status; mailsherpa adds role and system-generated detection.
func (c *Catalog) Attributes(address models.EmailAddress) models.EmailAttributes {
	numeric, alpha, symbols := CharacterCounts(address.Local)
	lowerLocal := strings.ToLower(address.Local)
	sherpa := mailvalidate.ValidateEmailSyntax(address.Email)

	return models.EmailAttributes{
		FreeEmail:         c.IsFree(address.Domain) || sherpa.IsFreeAccount,
		RoleAccount:       c.IsRole(address.Local) || sherpa.IsRoleAccount,
		Disposable:        c.IsDisposable(address.Domain),
		HasPlusTag:        strings.Contains(address.Local, "+"),
		NoReply:           strings.HasPrefix(lowerLocal, "noreply") || strings.HasPrefix(lowerLocal, "no-reply"),
		SystemGenerated:   sherpa.IsSystemGenerated,
		NumericalChars:    numeric,
		AlphabeticalChars: alpha,
		SymbolChars:       symbols,
	}
}
