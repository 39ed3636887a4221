package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

// AllowedHeaders are the request headers browser clients of the hosted
// platform send with function calls.
var AllowedHeaders = []string{
	"authorization",
	"x-client-info",
	"apikey",
	"content-type",
	"x-supabase-client-platform",
	"x-supabase-client-platform-version",
	"x-supabase-client-runtime",
	"x-supabase-client-runtime-version",
}

// CORS answers preflight requests with a wildcard origin.
func CORS() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders:   AllowedHeaders,
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	})
}

// FunctionCORS is CORS plus unconditional allow headers on every response,
// including the ones written before a handler runs (401, 429).
func FunctionCORS() func(http.Handler) http.Handler {
	preflight := CORS()
	allowHeaders := strings.Join(AllowedHeaders, ", ")
	return func(next http.Handler) http.Handler {
		h := preflight(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
			h.ServeHTTP(w, r)
		})
	}
}
