package app

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/backoffice/internal/ledger/activity"
	"github.com/odyssey-erp/backoffice/internal/ledger/httpapi"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
)

// Claims is the bearer token payload. Subject carries the user id.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity verifies HS256 bearer tokens and attaches the author to the request.
type Identity struct {
	secret []byte
	parser *jwt.Parser
}

// NewIdentity constructs the verifier for secret.
func NewIdentity(secret string) *Identity {
	return &Identity{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// Authenticate resolves the author carried by a raw token.
func (i *Identity) Authenticate(raw string) (activity.Author, error) {
	var claims Claims
	token, err := i.parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return activity.Author{}, httpx.ErrUnauthorized
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil || id == uuid.Nil {
		return activity.Author{}, httpx.ErrUnauthorized
	}
	return activity.Author{ID: id, Username: claims.Username}, nil
}

// Issue signs a token for author. Used by the CLI and tests.
func (i *Identity) Issue(author activity.Author, claims jwt.RegisteredClaims) (string, error) {
	if author.ID == uuid.Nil {
		return "", errors.New("identity: author id required")
	}
	claims.Subject = author.ID.String()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Username: author.Username, RegisteredClaims: claims})
	return token.SignedString(i.secret)
}

// Middleware rejects requests without a valid bearer token.
func (i *Identity) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearer(r.Header.Get("Authorization"))
		if !ok {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		author, err := i.Authenticate(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(httpapi.WithAuthor(r.Context(), author)))
	})
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
