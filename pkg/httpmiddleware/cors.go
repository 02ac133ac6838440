package httpmiddleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig configures the CORS middleware behaviour.
type CORSConfig struct {
	// AllowOrigins lists origins allowed to make cross-origin requests. An
	// empty list or the single entry "*" allows all origins.
	AllowOrigins []string

	// AllowMethods lists the HTTP methods clients may use in actual requests.
	// Defaults to "GET, POST, PATCH, PUT, DELETE, OPTIONS" when empty.
	AllowMethods []string

	// AllowHeaders lists the request headers clients may use. When empty the
	// middleware echoes back the Access-Control-Request-Headers from the
	// preflight request.
	AllowHeaders []string

	// ExposeHeaders lists response headers the browser is allowed to access.
	ExposeHeaders []string

	// AllowCredentials exposes the response when the request's credentials
	// flag is true. Credentials with a wildcard origin is forbidden by the
	// fetch spec, so enabling this forces specific-origin echo.
	AllowCredentials bool

	// MaxAge is how long (in seconds) preflight results can be cached. Zero
	// omits the header; a negative value sends "0".
	MaxAge int
}

// corsHeaders holds the precomputed header values shared by every request.
type corsHeaders struct {
	allowAll    bool
	allowed     map[string]string // lowercase origin -> original case
	methods     string
	headers     string
	expose      string
	maxAge      string
	credentials bool
}

// CORS returns a middleware that handles Cross-Origin Resource Sharing,
// including preflight requests. Origin matching is case-insensitive and the
// configured original-case value is echoed back. Vary headers are set so
// shared caches never serve one origin's response to another.
func CORS(cfg CORSConfig) Middleware {
	hs := corsHeaders{
		allowAll:    len(cfg.AllowOrigins) == 0,
		allowed:     make(map[string]string, len(cfg.AllowOrigins)),
		methods:     strings.Join(cfg.AllowMethods, ", "),
		headers:     strings.Join(cfg.AllowHeaders, ", "),
		expose:      strings.Join(cfg.ExposeHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	for _, o := range cfg.AllowOrigins {
		if o == "*" {
			hs.allowAll = true
			break
		}
		hs.allowed[strings.ToLower(o)] = o
	}
	if hs.credentials {
		hs.allowAll = false
	}
	if hs.methods == "" {
		hs.methods = "GET, POST, PATCH, PUT, DELETE, OPTIONS"
	}
	switch {
	case cfg.MaxAge > 0:
		hs.maxAge = strconv.Itoa(cfg.MaxAge)
	case cfg.MaxAge < 0:
		hs.maxAge = "0"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				// Outside CORS scope, but caches must still key on Origin.
				if !hs.allowAll {
					w.Header().Add("Vary", "Origin")
				}
				next.ServeHTTP(w, r)
				return
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				hs.preflight(w, r, origin)
				return
			}

			hs.actual(w, origin)
			next.ServeHTTP(w, r)
		})
	}
}

// preflight answers an OPTIONS probe with 204 and the allow headers, or 204
// with no CORS headers for a disallowed origin.
func (hs corsHeaders) preflight(w http.ResponseWriter, r *http.Request, origin string) {
	h := w.Header()
	h.Add("Vary", "Origin")
	h.Add("Vary", "Access-Control-Request-Method")
	h.Add("Vary", "Access-Control-Request-Headers")

	allowOrigin := hs.matchOrigin(origin)
	if allowOrigin == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	h.Set("Access-Control-Allow-Origin", allowOrigin)
	h.Set("Access-Control-Allow-Methods", hs.methods)
	if hs.headers != "" {
		h.Set("Access-Control-Allow-Headers", hs.headers)
	} else if rh := r.Header.Get("Access-Control-Request-Headers"); rh != "" {
		h.Set("Access-Control-Allow-Headers", rh)
	}
	if hs.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if hs.maxAge != "" {
		h.Set("Access-Control-Max-Age", hs.maxAge)
	}

	w.WriteHeader(http.StatusNoContent)
}

// actual sets the response headers for a simple or actual CORS request.
func (hs corsHeaders) actual(w http.ResponseWriter, origin string) {
	h := w.Header()
	if !hs.allowAll {
		h.Add("Vary", "Origin")
	}

	allowOrigin := hs.matchOrigin(origin)
	if allowOrigin == "" {
		return
	}
	h.Set("Access-Control-Allow-Origin", allowOrigin)
	if hs.credentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if hs.expose != "" {
		h.Set("Access-Control-Expose-Headers", hs.expose)
	}
}

// matchOrigin returns the Access-Control-Allow-Origin value, or "" when the
// origin is not allowed.
func (hs corsHeaders) matchOrigin(origin string) string {
	if hs.allowAll {
		return "*"
	}
	if orig, ok := hs.allowed[strings.ToLower(origin)]; ok {
		return orig
	}
	return ""
}
