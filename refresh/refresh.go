// This file defines how a caller asks for a forced refresh.
// A forced refresh skips the freshness check and always regenerates.

package refresh

import "net/url"

// Param is the query parameter that carries the forced-refresh flag.
const Param = "refresh"

/*
Requested reports whether the query asks for a forced refresh.

Only the exact, lower-case value "true" counts. "TRUE", " true", "1", "yes"
or an empty value do not force anything. With a repeated parameter the
first value decides.
*/
func Requested(query url.Values) bool {
	return query.Get(Param) == "true"
}

// RequestedURL is Requested for a raw URL or query string. Unparseable input
// never forces a refresh.
func RequestedURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return Requested(u.Query())
}

// Query returns the query values that force (or don't force) a refresh.
func Query(force bool) url.Values {
	if !force {
		return url.Values{}
	}
	return url.Values{Param: []string{"true"}}
}
