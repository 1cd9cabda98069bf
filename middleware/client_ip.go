package middleware

import (
	"net"
	"net/http"

	"github.com/MrEthical07/authcore"
)

// ClientIP stores the peer address of the request for audit events.
// Forwarded headers are ignored; put a trusted proxy middleware such as
// chi's RealIP in front when running behind a load balancer.
func ClientIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := r.RemoteAddr
		if host, _, err := net.SplitHostPort(ip); err == nil {
			ip = host
		}
		if ip != "" {
			r = r.WithContext(authcore.WithClientIP(r.Context(), ip))
		}
		next.ServeHTTP(w, r)
	})
}
