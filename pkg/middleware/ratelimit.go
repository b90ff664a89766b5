package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/ratelimit"
)

// RateLimit rejects clients that exceed the limiter with 429. Clients are
// keyed by the first X-Forwarded-For address, else the remote host.
func RateLimit(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)
			if !limiter.Allow(client) {
				logger.FromContext(r.Context()).Warn("rate limit exceeded", "client", client)
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.RetryAfter(client).Seconds())))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
