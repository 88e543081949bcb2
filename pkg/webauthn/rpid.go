package webauthn

import (
	"net/url"
	"regexp"
	"strings"
)

const fallbackRPID = "localhost"

var (
	schemePrefix = regexp.MustCompile(`^https?://`)
	portSuffix   = regexp.MustCompile(`:\d+$`)
	hostPattern  = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9.-]*[A-Za-z0-9])?$`)
)

// ExtractRpID returns the host of origin, or "localhost" when no host can be
// recovered from it.
func ExtractRpID(origin string) string {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return fallbackRPID
	}
	if u, err := url.Parse(origin); err == nil && u.Hostname() != "" {
		return u.Hostname()
	}

	host := schemePrefix.ReplaceAllString(origin, "")
	if i := strings.IndexByte(host, '/'); i >= 0 {
		host = host[:i]
	}
	host = portSuffix.ReplaceAllString(host, "")
	if hostPattern.MatchString(host) {
		return host
	}
	return fallbackRPID
}
