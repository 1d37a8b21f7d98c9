package middleware

import "net/http"

// HealthPath is the probe path answered by Health.
const HealthPath = "/health"

// Health returns middleware that answers liveness probes before the rest of the chain.
// A request whose path is exactly HealthPath gets 200 OK with an empty body and
// never reaches next. Every other request is forwarded untouched, so /healthcheck
// and /health/ belong to downstream handlers. The method is not inspected.
func Health() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == HealthPath {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
