package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSOptions configures cross-origin access for the booking frontend.
// Origins may be exact ("https://barbearia.example"), a subdomain pattern
// ("https://*.barbearia.example") or "*".
type CORSOptions struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

var (
	defaultCORSMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete}
	defaultCORSHeaders = []string{"Authorization", "Content-Type", "X-Request-Id"}
)

type originMatcher struct {
	any      bool
	exact    map[string]struct{}
	suffixes []originSuffix
}

type originSuffix struct {
	scheme string
	domain string
}

func newOriginMatcher(origins []string) originMatcher {
	m := originMatcher{exact: map[string]struct{}{}}
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch {
		case origin == "":
		case origin == "*":
			m.any = true
		case strings.Contains(origin, "://*."):
			scheme, host, _ := strings.Cut(origin, "://*")
			m.suffixes = append(m.suffixes, originSuffix{scheme: scheme + "://", domain: strings.ToLower(host)})
		default:
			m.exact[strings.ToLower(origin)] = struct{}{}
		}
	}
	return m
}

func (m originMatcher) allows(origin string) bool {
	if m.any {
		return true
	}
	origin = strings.ToLower(origin)
	if _, ok := m.exact[origin]; ok {
		return true
	}
	for _, s := range m.suffixes {
		rest, ok := strings.CutPrefix(origin, s.scheme)
		if ok && strings.HasSuffix(rest, s.domain) && len(rest) > len(s.domain) {
			return true
		}
	}
	return false
}

// CORS answers browser preflights and decorates responses for allowed
// origins. A preflight asking for a method outside AllowedMethods gets no
// allow headers, which the browser treats as a refusal.
func CORS(opts CORSOptions) func(http.Handler) http.Handler {
	origins := newOriginMatcher(opts.AllowedOrigins)
	methods := opts.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	headers := opts.AllowedHeaders
	if len(headers) == 0 {
		headers = defaultCORSHeaders
	}
	exposed := opts.ExposedHeaders
	if len(exposed) == 0 {
		exposed = []string{"X-Request-Id", "Retry-After"}
	}
	allowedMethod := make(map[string]struct{}, len(methods))
	for _, m := range methods {
		allowedMethod[strings.ToUpper(strings.TrimSpace(m))] = struct{}{}
	}
	allowMethods := strings.Join(append(append([]string(nil), methods...), http.MethodOptions), ", ")
	allowHeaders := strings.Join(headers, ", ")
	exposeHeaders := strings.Join(exposed, ", ")
	maxAge := ""
	if opts.MaxAge > 0 {
		maxAge = strconv.Itoa(int(opts.MaxAge / time.Second))
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			preflight := r.Method == http.MethodOptions && origin != "" && r.Header.Get("Access-Control-Request-Method") != ""
			w.Header().Add("Vary", "Origin")

			if origin == "" || !origins.allows(origin) {
				if preflight {
					w.WriteHeader(http.StatusNoContent)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("Access-Control-Allow-Origin", origin)
			if opts.AllowCredentials {
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			}
			if !preflight {
				w.Header().Set("Access-Control-Expose-Headers", exposeHeaders)
				next.ServeHTTP(w, r)
				return
			}

			requested := strings.ToUpper(strings.TrimSpace(r.Header.Get("Access-Control-Request-Method")))
			if _, ok := allowedMethod[requested]; ok {
				w.Header().Set("Access-Control-Allow-Methods", allowMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowHeaders)
				if maxAge != "" {
					w.Header().Set("Access-Control-Max-Age", maxAge)
				}
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
