package visit

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrMalformedURL is returned when a navigation URL cannot be parsed or has
// no host.
var ErrMalformedURL = errors.New("malformed url")

// multiPartSuffixes are the compound public suffixes recognised when
// computing a top-level domain. The list is a fixed heuristic, not a public
// suffix database; domains under other compound suffixes collapse to their
// last two labels.
var multiPartSuffixes = []string{
	"co.uk", "com.au", "co.nz", "co.za", "com.br",
	"com.mx", "org.uk", "net.uk", "gov.uk",
}

// NormalizeHostname strips a single leading "www." from hostname.
func NormalizeHostname(hostname string) string {
	return strings.TrimPrefix(hostname, "www.")
}

// TopLevelDomain returns the registrable-domain approximation used for
// deduplicating consecutive visits. Examples:
//
//	www.reddit.com          -> reddit.com
//	old.reddit.com          -> reddit.com
//	subdomain.example.co.uk -> example.co.uk
//
// Only one leading "www." is stripped, before the labels are cut, so the
// result is not a fixed point when the kept labels start with "www":
// a.www.co.uk gives www.co.uk, which in turn gives co.uk. Callers compare
// results of single applications only.
func TopLevelDomain(hostname string) string {
	parts := strings.Split(NormalizeHostname(hostname), ".")

	if len(parts) >= 3 {
		lastTwo := strings.Join(parts[len(parts)-2:], ".")
		for _, suffix := range multiPartSuffixes {
			if strings.HasSuffix(lastTwo, suffix) {
				return strings.Join(parts[len(parts)-3:], ".")
			}
		}
	}

	if len(parts) < 2 {
		return strings.Join(parts, ".")
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// HostnameFromURL extracts the normalized hostname from a full URL. The host
// is lower-cased the way a browser URL parser reports it.
func HostnameFromURL(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrMalformedURL, rawURL)
	}
	return NormalizeHostname(host), nil
}
