package httputil

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/TransAdvocacyAndComplaintCollective/fact-index-tacc/pkg/session"
	"github.com/gorilla/mux"
)

// ProxyHeaders are request headers set by reverse proxies and CDNs. A request carrying any
// of them did not reach the server directly.
var ProxyHeaders = []string{
	"X-Forwarded-For",
	"X-Forwarded-Proto",
	"X-Forwarded-Host",
	"X-Forwarded-Port",
	"X-Real-Ip",
	"Forwarded",
	"Cf-Connecting-Ip",
	"True-Client-Ip",
	"Fastly-Client-Ip",
	"X-Client-Ip",
	"X-Cluster-Client-Ip",
	"X-Original-Forwarded-For",
	"X-Remote-Addr",
	"X-Proxyuser-Ip",
}

// IsProxied reports whether r carries any proxy header, even an empty one
func IsProxied(r *http.Request) bool {
	for _, h := range ProxyHeaders {
		if _, ok := r.Header[http.CanonicalHeaderKey(h)]; ok {
			return true
		}
	}
	return false
}

// RemoteAddr parses the peer address of r. IPv4-mapped IPv6 addresses are unmapped; an
// unparseable address yields the zero Addr, which is never local.
func RemoteAddr(r *http.Request) netip.Addr {
	host := r.RemoteAddr
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "::ffff:")
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host = host[:i]
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// OriginFromRequest describes where r came from. Forwarding headers are never trusted for
// the address; they only mark the request as proxied.
func OriginFromRequest(r *http.Request) session.Origin {
	return session.Origin{
		RemoteAddr: RemoteAddr(r),
		Proxied:    IsProxied(r),
	}
}

// ParsePathString extracts a string path parameter
func ParsePathString(r *http.Request, key string) (string, error) {
	str := mux.Vars(r)[key]
	if str == "" {
		return "", fmt.Errorf("missing path parameter: %s", key)
	}
	return str, nil
}
