package directory

import (
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// GroupNames returns the leading RDN value of each memberOf DN, in order,
// without duplicates. "CN=Supervisores,OU=Grupos,DC=corp,DC=local" yields
// "Supervisores".
func GroupNames(dns []string) []string {
	seen := make(map[string]struct{}, len(dns))
	names := make([]string, 0, len(dns))
	for _, dn := range dns {
		name := leadingRDNValue(dn)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}

func leadingRDNValue(dn string) string {
	parsed, err := ldap.ParseDN(dn)
	if err == nil && len(parsed.RDNs) > 0 && len(parsed.RDNs[0].Attributes) > 0 {
		return strings.TrimSpace(parsed.RDNs[0].Attributes[0].Value)
	}
	// Not a valid DN; take whatever precedes the first comma.
	first, _, _ := strings.Cut(dn, ",")
	if _, v, ok := strings.Cut(first, "="); ok {
		return strings.TrimSpace(v)
	}
	return strings.TrimSpace(first)
}
