package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/mux"
)

// corsMethods are the methods a preflight may ask for.
var corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete}

// withCORS wraps the router. It sits outside the router because mux only
// runs middleware for requests that match a route, and a preflight OPTIONS
// request never does.
func (s *Server) withCORS(router *mux.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			router.ServeHTTP(w, r)
			return
		}

		allowed := s.allowOrigin(origin)
		if allowed {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Expose-Headers", "Retry-After")
			h.Add("Vary", "Origin")
		}

		if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
			router.ServeHTTP(w, r)
			return
		}

		methods := routeMethods(router, r)
		if len(methods) == 0 {
			http.NotFound(w, r)
			return
		}
		if allowed {
			h := w.Header()
			h.Set("Access-Control-Allow-Methods", strings.Join(append(methods, http.MethodOptions), ", "))
			h.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Authorization")
			h.Set("Access-Control-Max-Age", "86400")
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

// routeMethods lists the methods some route of router accepts for the path
// of r.
func routeMethods(router *mux.Router, r *http.Request) []string {
	var methods []string
	for _, method := range corsMethods {
		candidate := r.Clone(r.Context())
		candidate.Method = method

		var match mux.RouteMatch
		if router.Match(candidate, &match) && match.MatchErr == nil {
			methods = append(methods, method)
		}
	}
	return methods
}

// allowOrigin reports whether origin matches a configured pattern: the
// exact origin, "*", or a host wildcard such as "*.example.com" that
// matches subdomains only.
func (s *Server) allowOrigin(origin string) bool {
	var host string
	if u, err := url.Parse(origin); err == nil {
		host = u.Hostname()
	}

	for _, pattern := range s.config.CORS.AllowedOrigins {
		switch {
		case pattern == "*", pattern == origin:
			return true
		case strings.HasPrefix(pattern, "*.") && host != "":
			suffix := pattern[1:]
			if strings.HasSuffix(host, suffix) && len(host) > len(suffix) {
				return true
			}
		}
	}
	return false
}
