package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"permitdesk.org/internal/identity"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/",
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			respondUnauthorized(w, r, err.Error())
			return
		}

		actor, err := identity.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, identity.ErrInvalidToken) {
				respondUnauthorized(w, r, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := identity.ContextWithIdentity(r.Context(), actor)
		ctx = identity.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func respondUnauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="permitdesk"`)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// actorFrom returns the authenticated identity or writes a 401.
func actorFrom(w http.ResponseWriter, r *http.Request) (identity.Identity, bool) {
	actor, ok := identity.FromContext(r.Context())
	if !ok || actor.IsZero() {
		respondUnauthorized(w, r, "authentication required")
		return identity.Identity{}, false
	}
	return actor, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
