package proxy

import (
	"net/http"
	"strings"
)

// hopByHopHeaders are connection-scoped headers that must not be relayed
// between the client and the backend (RFC 9110 §7.6.1).
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// copyProxyHeaders copies end-to-end headers from src to dst, dropping
// hop-by-hop headers and any headers nominated by the Connection header.
func copyProxyHeaders(dst, src http.Header) {
	nominated := connectionNominated(src)

	for name, values := range src {
		if isHopByHop(name) || nominated[http.CanonicalHeaderKey(name)] {
			continue
		}
		for _, v := range values {
			dst.Add(name, v)
		}
	}
}

func isHopByHop(name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	for _, h := range hopByHopHeaders {
		if canonical == h {
			return true
		}
	}
	return false
}

// connectionNominated returns headers listed in the Connection header, which
// become hop-by-hop for this exchange.
func connectionNominated(h http.Header) map[string]bool {
	out := make(map[string]bool)
	for _, value := range h.Values("Connection") {
		for _, token := range strings.Split(value, ",") {
			token = strings.TrimSpace(token)
			if token != "" {
				out[http.CanonicalHeaderKey(token)] = true
			}
		}
	}
	return out
}

// upstreamURL joins a normalized instance base URL with the original request
// path and query. The base never ends in a slash (registry normalization),
// and business paths always start with one.
func upstreamURL(baseURL, path, rawQuery string) string {
	var b strings.Builder
	b.WriteString(baseURL)
	b.WriteString(path)
	if rawQuery != "" {
		b.WriteString("?")
		b.WriteString(rawQuery)
	}
	return b.String()
}
