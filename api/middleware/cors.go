package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS applies the configured origin policy. Idempotency-Key must be
// allowed so browsers can retry mutations safely.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", "Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
