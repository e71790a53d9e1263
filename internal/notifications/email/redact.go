package email

import "strings"

// RedactEmail masks a recipient for log output, keeping the first character
// of the local part and the whole domain: "dana@example.com" becomes
// "d***@example.com". Input without an "@" is masked entirely.
func RedactEmail(addr string) string {
	if addr == "" {
		return ""
	}
	local, domain, ok := strings.Cut(addr, "@")
	if !ok {
		return "***"
	}
	if local == "" {
		return "***@" + domain
	}
	return local[:1] + "***@" + domain
}
