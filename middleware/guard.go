package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/authgate-io/authgate"
)

type principalContextKey struct{}

// PrincipalFromContext returns the principal attached by [Guard], if any.
func PrincipalFromContext(ctx context.Context) (*authgate.Principal, bool) {
	p, ok := ctx.Value(principalContextKey{}).(*authgate.Principal)
	return p, ok
}

// Route identifies one public endpoint by method and path.
type Route struct {
	Method string
	Path   string
}

// PublicRoutes is the fixed allowlist of endpoints that bypass
// authentication. Matching is exact on method and path — never prefix-based,
// so a public "/auth/login" does not accidentally expose "/auth/login/x".
type PublicRoutes map[Route]struct{}

// NewPublicRoutes builds an allowlist from explicit routes.
func NewPublicRoutes(routes ...Route) PublicRoutes {
	public := make(PublicRoutes, len(routes))
	for _, r := range routes {
		public[Route{Method: strings.ToUpper(r.Method), Path: r.Path}] = struct{}{}
	}
	return public
}

// Contains reports whether the request matches the allowlist exactly.
func (p PublicRoutes) Contains(r *http.Request) bool {
	if p == nil {
		return false
	}
	_, ok := p[Route{Method: strings.ToUpper(r.Method), Path: r.URL.Path}]
	return ok
}

// Guard returns middleware enforcing authentication on every route outside
// the public allowlist. A request without an Authorization bearer value on a
// protected route is denied with 403, never treated as anonymous.
func Guard(engine *authgate.Engine, public PublicRoutes) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if public.Contains(r) {
				next.ServeHTTP(w, r)
				return
			}

			if engine == nil {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			tokenStr, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			principal, err := engine.Authenticate(r.Context(), tokenStr)
			if err != nil {
				status, message := denial(err)
				http.Error(w, message, status)
				return
			}

			ctx := context.WithValue(r.Context(), principalContextKey{}, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func denial(err error) (int, string) {
	switch {
	case errors.Is(err, authgate.ErrTokenRevoked), errors.Is(err, authgate.ErrMissingToken):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, authgate.ErrTokenInvalid):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, authgate.ErrCacheUnavailable), errors.Is(err, authgate.ErrStoreUnavailable):
		// Fail closed: a backend outage is a denial, not an allow.
		return http.StatusServiceUnavailable, "service unavailable"
	default:
		return http.StatusUnauthorized, "unauthorized"
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}
