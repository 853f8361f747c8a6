package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/barbershop-scheduler/internal/http/respond"
	"github.com/wolfman30/barbershop-scheduler/internal/identity"
	"github.com/wolfman30/barbershop-scheduler/internal/scheduling"
)

// ActorClaims are the JWT claims identifying an actor. Tokens issued by the
// legacy frontend carry "id" and "tipo" instead of "sub" and "role".
type ActorClaims struct {
	Role       string `json:"role,omitempty"`
	LegacyID   any    `json:"id,omitempty"`
	LegacyTipo string `json:"tipo,omitempty"`
	jwt.RegisteredClaims
}

// Actor resolves the claims into an actor with a known role.
func (c ActorClaims) Actor() (scheduling.Actor, error) {
	id := strings.TrimSpace(c.Subject)
	if id == "" && c.LegacyID != nil {
		id = strings.TrimSpace(fmt.Sprint(c.LegacyID))
	}
	if id == "" {
		return scheduling.Actor{}, fmt.Errorf("token has no subject")
	}
	raw := c.Role
	if raw == "" {
		raw = c.LegacyTipo
	}
	role, err := scheduling.ParseRole(raw)
	if err != nil {
		return scheduling.Actor{}, err
	}
	return scheduling.Actor{ID: id, Role: role}, nil
}

// ActorJWT authenticates requests with an HMAC-signed bearer token and stores
// the actor in the request context.
func ActorJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				respond.Error(w, http.StatusUnauthorized, "authentication disabled")
				return
			}
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				respond.Error(w, http.StatusUnauthorized, "missing authorization header")
				return
			}
			tokenString := strings.TrimPrefix(auth, "Bearer ")
			claims := ActorClaims{}
			token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
				return []byte(secret), nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !token.Valid {
				respond.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			actor, err := claims.Actor()
			if err != nil {
				respond.Error(w, http.StatusUnauthorized, "invalid token")
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.WithActor(r.Context(), actor)))
		})
	}
}

// RequireRole refuses actors whose role is not listed. It must run after ActorJWT.
func RequireRole(roles ...scheduling.Role) func(http.Handler) http.Handler {
	allowed := make(map[scheduling.Role]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := identity.ActorFromContext(r.Context())
			if !ok {
				respond.Error(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if _, ok := allowed[actor.Role]; !ok {
				respond.Rejection(w, http.StatusForbidden, scheduling.ErrForbiddenForRole.Reason, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
