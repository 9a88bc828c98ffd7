package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"orders-graphql/internal/config"
)

// CORSConfig configures Cross-Origin Resource Sharing (CORS) policies.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// CORSConfigFromServer builds the policy for the GraphQL endpoint.
func CORSConfigFromServer(server config.ServerConfig) CORSConfig {
	return CORSConfig{
		Enabled:          server.CORSEnabled,
		AllowedOrigins:   server.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", RequestIDHeader},
		ExposeHeaders:    []string{RequestIDHeader},
		AllowCredentials: server.CORSAllowCredentials,
		MaxAge:           server.CORSMaxAge,
	}
}

type corsPolicy struct {
	anyOrigin   bool
	origins     map[string]bool
	credentials bool
	// Preflight and simple response headers, precomputed.
	preflight http.Header
	simple    http.Header
}

func newCORSPolicy(cfg CORSConfig) *corsPolicy {
	p := &corsPolicy{
		origins:   make(map[string]bool),
		preflight: http.Header{},
		simple:    http.Header{},
	}
	for _, origin := range cfg.AllowedOrigins {
		switch origin = strings.TrimSpace(origin); origin {
		case "":
		case "*":
			p.anyOrigin = true
		default:
			p.origins[origin] = true
		}
	}
	p.credentials = cfg.AllowCredentials && !p.anyOrigin

	if len(cfg.ExposeHeaders) > 0 {
		p.simple.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
	}
	if len(cfg.AllowedMethods) > 0 {
		p.preflight.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowedMethods, ", "))
	}
	if len(cfg.AllowedHeaders) > 0 {
		p.preflight.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowedHeaders, ", "))
	}
	if cfg.MaxAge > 0 {
		p.preflight.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
	}
	return p
}

// allow writes the origin headers and reports whether origin is permitted.
func (p *corsPolicy) allow(h http.Header, origin string) bool {
	switch {
	case p.anyOrigin:
		h.Set("Access-Control-Allow-Origin", "*")
	case p.origins[origin]:
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	default:
		return false
	}
	if p.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	copyHeader(h, p.simple)
	return true
}

func copyHeader(dst, src http.Header) {
	for k, v := range src {
		dst[k] = append([]string(nil), v...)
	}
}

// CORSMiddleware adds CORS headers and answers preflight requests. Preflights
// never reach the wrapped handler.
func CORSMiddleware(cfg CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}
	policy := newCORSPolicy(cfg)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			allowed := policy.allow(w.Header(), origin)
			if r.Method == http.MethodOptions {
				if allowed {
					copyHeader(w.Header(), policy.preflight)
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
