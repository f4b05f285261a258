package utils

import "strings"

// EmailDomainAllowed reports whether email belongs to one of domains.
// An empty domain list allows every address.
func EmailDomainAllowed(email string, domains []string) bool {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	if len(domains) == 0 {
		return true
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range domains {
		if domain == strings.ToLower(d) {
			return true
		}
	}
	return false
}
