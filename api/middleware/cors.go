package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// Embedded players and the coaching dashboard call the playback sign
// endpoint cross-origin.
var defaultCORSOrigins = []string{
	"http://localhost:3000", // local dev
	"https://www.kravtofly.com",
	"https://kravtofly.vercel.app",
}

// CORS returns middleware that applies the API's allowed origin policy.
func CORS() func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   defaultCORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Admin-Key", "X-Requested-With"},
		AllowCredentials: false,
		MaxAge:           300,
	}).Handler
}
