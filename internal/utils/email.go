package utils

import (
	"strings"
)

// SplitEmail returns the local part and the lowercased domain. ok is false unless
// the address has exactly one '@' with non-empty sides.
func SplitEmail(email string) (local, domain string, ok bool) {
	email = strings.TrimSpace(email)
	if strings.Count(email, "@") != 1 {
		return "", "", false
	}
	parts := strings.SplitN(email, "@", 2)
	if parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], strings.ToLower(parts[1]), true
}

func ExtractDomainFromEmail(email string) string {
	if email == "" {
		return ""
	}

	email = strings.TrimSpace(email)

	// "Name <email@domain.com>"
	if strings.Contains(email, "<") && strings.Contains(email, ">") {
		startIdx := strings.LastIndex(email, "<") + 1
		endIdx := strings.LastIndex(email, ">")
		if startIdx > 0 && endIdx > startIdx {
			email = email[startIdx:endIdx]
		}
	}

	_, domain, ok := SplitEmail(email)
	if !ok {
		return ""
	}
	return domain
}
