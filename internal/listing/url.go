package listing

import (
	"net/url"
	"regexp"
	"strings"
)

const (
	// canonicalHost is the only host listings may be registered from.
	canonicalHost = "www.booking.com"
	bareHost      = "booking.com"

	// pathMarker identifies a property detail page.
	pathMarker = "/hotel/"

	// idParam is the query parameter the site uses to carry the numeric
	// property id on some entry points.
	idParam = "hotel_id"
)

// slugIDPattern matches the leading numeric prefix of a detail-page slug,
// e.g. /hotel/nl/123456-grand-plaza.html -> 123456.
var slugIDPattern = regexp.MustCompile(`^/hotel/[^/]+/(\d+)`)

// Validate reports whether raw is a listing URL on the target site.
// Malformed URLs are invalid, not errors.
func Validate(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host != canonicalHost && host != bareHost {
		return false
	}
	return strings.Contains(u.Path, pathMarker)
}

// ExtractIdentifier pulls the site-assigned numeric identifier out of a
// listing URL. It tries the hotel_id query parameter first, then the
// leading numeric prefix of the detail-page slug. An empty string means
// no identifier could be found, which is a normal outcome.
func ExtractIdentifier(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	if id := u.Query().Get(idParam); id != "" && isDigits(id) {
		return id
	}

	path := u.Path
	if i := strings.Index(path, pathMarker); i > 0 {
		path = path[i:]
	}
	if m := slugIDPattern.FindStringSubmatch(path); m != nil {
		return m[1]
	}
	return ""
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}
