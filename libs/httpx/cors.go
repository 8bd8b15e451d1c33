package httpx

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSPolicy lists what cross-origin callers may do. "*" in AllowedOrigins
// matches any origin.
type CORSPolicy struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// PublicCORS is the policy for the embeddable booking widget: anonymous
// GET and POST from a comma separated origin list.
func PublicCORS(rawOrigins string) CORSPolicy {
	return CORSPolicy{
		AllowedOrigins: strings.Split(rawOrigins, ","),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Accept-Language", RequestIDHeader},
		MaxAge:         10 * time.Minute,
	}
}

type corsRules struct {
	any         bool
	origins     map[string]struct{}
	credentials bool
	fixed       http.Header
}

func (p CORSPolicy) compile() corsRules {
	rules := corsRules{origins: map[string]struct{}{}, credentials: p.AllowCredentials, fixed: http.Header{}}
	for _, o := range trimAll(p.AllowedOrigins) {
		if o == "*" {
			rules.any = true
			continue
		}
		rules.origins[strings.ToLower(o)] = struct{}{}
	}
	if m := trimAll(p.AllowedMethods); len(m) > 0 {
		rules.fixed.Set("Access-Control-Allow-Methods", strings.Join(m, ", "))
	}
	if h := trimAll(p.AllowedHeaders); len(h) > 0 {
		rules.fixed.Set("Access-Control-Allow-Headers", strings.Join(h, ", "))
	}
	if secs := int(p.MaxAge.Seconds()); secs > 0 {
		rules.fixed.Set("Access-Control-Max-Age", strconv.Itoa(secs))
	}
	if p.AllowCredentials {
		rules.fixed.Set("Access-Control-Allow-Credentials", "true")
	}
	return rules
}

func (c corsRules) empty() bool { return !c.any && len(c.origins) == 0 }

// allow returns the Access-Control-Allow-Origin value for origin. A
// wildcard is echoed back as the origin when credentials are allowed.
func (c corsRules) allow(origin string) (string, bool) {
	if _, ok := c.origins[strings.ToLower(origin)]; ok {
		return origin, true
	}
	if c.any {
		if c.credentials {
			return origin, true
		}
		return "*", true
	}
	return "", false
}

// WithCORS answers preflight requests and decorates responses for allowed
// origins. With no origins configured it does nothing.
func WithCORS(p CORSPolicy) Middleware {
	rules := p.compile()
	if rules.empty() {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			value, ok := rules.allow(origin)
			if origin == "" || !ok {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			for k, v := range rules.fixed {
				h[k] = append([]string(nil), v...)
			}
			h.Set("Access-Control-Allow-Origin", value)
			h.Add("Vary", "Origin")

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
