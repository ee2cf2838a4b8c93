package middleware

import (
	"net/http"

	"github.com/go-chi/cors"

	"github.com/medimart/storefront/api/responses"
)

var defaultCORSOrigins = []string{"http://localhost:3000", "http://localhost:5173"}

// CORS applies the allowed-origin policy. An empty list falls back to local dev
// origins.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = defaultCORSOrigins
	}
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id", responses.NextCursorHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
