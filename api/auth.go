/*
auth.go - Bearer token authentication

PURPOSE:
  Resolves the caller of every /api request to a shift.Actor. Tokens are
  HS256 JWTs whose subject is the actor id and whose admin claim is the
  admin capability bit. Role storage lives outside this service; whoever
  issues tokens decides who is an admin.

HEADERS:
  Authorization: Bearer <token>

SEE ALSO:
  - server.go: Mounts Authenticate on the /api group
  - shift/types.go: Actor
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/angau/shift-engine/shift"
)

const issuer = "shift-engine"

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrMissingToken = errors.New("missing authorization token")
)

// Claims is the token payload. Subject carries the actor id.
type Claims struct {
	Name  string `json:"name,omitempty"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

// Authenticator issues and verifies actor tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret), now: time.Now}
}

// IssueToken signs a token for actor valid for ttl.
func (a *Authenticator) IssueToken(actor shift.Actor, ttl time.Duration) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(ttl)
	claims := &Claims{
		Name:  actor.Name,
		Admin: actor.Admin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(actor.ID),
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// ParseToken verifies a token and returns the actor it names.
func (a *Authenticator) ParseToken(tokenString string) (shift.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(a.now))
	if err != nil {
		return shift.Actor{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return shift.Actor{}, ErrInvalidToken
	}
	return shift.Actor{ID: shift.ActorID(claims.Subject), Name: claims.Name, Admin: claims.Admin}, nil
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

type actorKey struct{}

// Authenticate rejects requests without a valid bearer token and stores
// the actor on the request context.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, ErrMissingToken.Error())
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, "malformed authorization header")
			return
		}

		actor, err := a.ParseToken(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, codeUnauthenticated, err.Error())
			return
		}

		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), actor)))
	})
}

func withActor(ctx context.Context, actor shift.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the authenticated actor. Handlers behind Authenticate
// always have one.
func ActorFrom(ctx context.Context) (shift.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(shift.Actor)
	return actor, ok
}
