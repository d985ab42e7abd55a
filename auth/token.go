/*
Package auth is the identity collaborator: it hashes passwords, issues and
verifies session tokens, and turns a bearer token into a finance.Principal.

TOKENS:
  HS256 JWTs with registered claims only:
    sub  decimal user id
    iat  issue time
    exp  iat + TTL
    jti  random uuid
  Anything else (other algorithms, missing or non-numeric sub, expired)
  is rejected as unauthorized.
*/
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/warp/finance-engine/finance"
)

// ErrInvalidToken is returned for any token that does not verify.
var ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", finance.ErrUnauthorized)

// Token is a signed session token.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for userID.
func (i *Issuer) Issue(userID finance.UserID) (Token, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(int64(userID), 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Verify returns the principal a token was issued for.
func (i *Issuer) Verify(raw string) (finance.Principal, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return finance.Principal{}, ErrInvalidToken
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return finance.Principal{}, ErrInvalidToken
	}
	return finance.Principal{UserID: finance.UserID(id)}, nil
}

// =============================================================================
// REQUEST CONTEXT
// =============================================================================

type ctxKey string

const principalKey ctxKey = "principal"

func WithPrincipal(ctx context.Context, p finance.Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom returns the zero Principal when the request carries no session.
func PrincipalFrom(ctx context.Context) finance.Principal {
	p, _ := ctx.Value(principalKey).(finance.Principal)
	return p
}

// Middleware requires a valid "Authorization: Bearer <token>" header and
// stores the principal in the request context. Rejections are written by
// unauthorized so the API keeps a single error format.
func (i *Issuer) Middleware(unauthorized func(http.ResponseWriter, *http.Request, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r)
			if !ok {
				unauthorized(w, r, fmt.Errorf("%w: missing bearer token", finance.ErrUnauthorized))
				return
			}
			p, err := i.Verify(raw)
			if err != nil {
				unauthorized(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
