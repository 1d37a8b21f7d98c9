package middleware

import "net/http"

// Vary adds Accept to the Vary header on every response.
// Accept selects JSON or CBOR on the info API and decides whether an unknown
// path falls back to the index document. CORS adds Origin on its own.
func Vary() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Accept")
			next.ServeHTTP(w, r)
		})
	}
}
