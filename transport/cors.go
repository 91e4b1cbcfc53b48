package transport

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig controls cross-origin access to the HTTP endpoints. Browser
// clients need it: the event stream is a cross-origin GET and requests are
// cross-origin POSTs with a JSON content type, which triggers preflight.
type CORSConfig struct {
	// AllowOrigins lists the origins granted access; "*" grants all.
	AllowOrigins []string

	// AllowMethods lists the methods announced to preflight requests.
	// Defaults to GET, POST, OPTIONS.
	AllowMethods []string

	// AllowHeaders lists the request headers announced to preflight
	// requests. Defaults to Content-Type and Last-Event-ID.
	AllowHeaders []string

	// ExposeHeaders lists response headers the browser may read.
	ExposeHeaders []string

	// AllowCredentials permits cookies and authorization headers.
	AllowCredentials bool

	// MaxAge is how long, in seconds, a preflight result may be cached.
	// Defaults to 86400.
	MaxAge int
}

// DefaultCORSConfig grants every origin access. Suitable for development;
// production deployments should list their origins.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Content-Type", "Last-Event-ID"},
		MaxAge:       86400,
	}
}

// CORSHandler wraps next with cross-origin headers and preflight handling.
func CORSHandler(cfg CORSConfig, next http.Handler) http.Handler {
	defaults := DefaultCORSConfig()
	if len(cfg.AllowMethods) == 0 {
		cfg.AllowMethods = defaults.AllowMethods
	}
	if len(cfg.AllowHeaders) == 0 {
		cfg.AllowHeaders = defaults.AllowHeaders
	}
	if cfg.MaxAge == 0 {
		cfg.MaxAge = defaults.MaxAge
	}

	allowed := make(map[string]bool, len(cfg.AllowOrigins))
	for _, origin := range cfg.AllowOrigins {
		allowed[origin] = true
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		grant := ""
		switch {
		case allowed["*"]:
			grant = "*"
		case origin != "" && allowed[origin]:
			grant = origin
		}
		if grant == "" {
			next.ServeHTTP(w, r)
			return
		}

		header := w.Header()
		header.Set("Access-Control-Allow-Origin", grant)
		if cfg.AllowCredentials {
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			header.Set("Access-Control-Allow-Methods", strings.Join(cfg.AllowMethods, ", "))
			header.Set("Access-Control-Allow-Headers", strings.Join(cfg.AllowHeaders, ", "))
			header.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if len(cfg.ExposeHeaders) > 0 {
			header.Set("Access-Control-Expose-Headers", strings.Join(cfg.ExposeHeaders, ", "))
		}
		next.ServeHTTP(w, r)
	})
}

// WithCORS applies the given cross-origin policy to every HTTP endpoint.
func WithCORS(cfg CORSConfig) HTTPOption {
	return func(h *HTTP) {
		h.corsConfig = &cfg
	}
}

// WithDefaultCORS applies the permissive development policy.
func WithDefaultCORS() HTTPOption {
	return WithCORS(DefaultCORSConfig())
}
