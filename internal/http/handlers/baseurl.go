package handlers

import (
	"net/http"
	"net/url"
	"strings"
)

// BaseURL derives the absolute origin used in file URLs. The scheme always
// follows the inbound request (X-Forwarded-Proto first); when external is
// set its host replaces the request host.
func BaseURL(r *http.Request, external string) string {
	scheme := firstHeaderValue(r.Header.Get("X-Forwarded-Proto"))
	if scheme == "" {
		scheme = "http"
		if r.TLS != nil {
			scheme = "https"
		}
	}

	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	if external != "" {
		if u, err := url.Parse(external); err == nil && u.Host != "" {
			host = u.Host
		}
	}
	return scheme + "://" + host
}

func firstHeaderValue(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v)
}
