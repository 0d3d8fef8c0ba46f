package middleware

import (
	"crypto/subtle"
	"net/http"
)

// APIKey guards operator endpoints with a static key, accepted either
// as the X-API-Key header or the api_key query parameter. An empty
// configured key disables the check entirely. Device push endpoints
// are never wrapped in this: terminal firmware cannot authenticate.
func APIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			provided := r.Header.Get("X-API-Key")
			if provided == "" {
				provided = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(provided), []byte(key)) != 1 {
				http.Error(w, "Invalid API key", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
