package rpc

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// ScopeAdmin gates the privileged (mutating) RPC methods.
const ScopeAdmin = "admin"

var (
	ErrMissingToken      = errors.New("rpc: missing bearer token")
	ErrInvalidToken      = errors.New("rpc: invalid token")
	ErrInsufficientScope = errors.New("rpc: insufficient scope")
)

// Authenticator validates HS256 bearer tokens and their scope claim.
type Authenticator struct {
	secret    []byte
	issuer    string
	clockSkew time.Duration
}

// NewAuthenticator builds an authenticator over the shared HMAC secret. An
// empty secret yields a nil authenticator, leaving privileged methods closed.
func NewAuthenticator(secret, issuer string) *Authenticator {
	trimmed := strings.TrimSpace(secret)
	if trimmed == "" {
		return nil
	}
	return &Authenticator{
		secret:    []byte(trimmed),
		issuer:    strings.TrimSpace(issuer),
		clockSkew: 2 * time.Minute,
	}
}

// Authorize checks the request's bearer token for the required scope.
func (a *Authenticator) Authorize(r *http.Request, requiredScope string) error {
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return ErrMissingToken
	}
	claims, err := a.parseToken(tokenString)
	if err != nil {
		return err
	}
	if a.issuer != "" {
		issuer, err := claims.GetIssuer()
		if err != nil || issuer != a.issuer {
			return ErrInvalidToken
		}
	}
	if requiredScope != "" && !hasScope(claims, requiredScope) {
		return ErrInsufficientScope
	}
	return nil
}

// IssueToken mints a token carrying the supplied scope, used by the operator
// CLI and tests.
func (a *Authenticator) IssueToken(subject, scope string, ttl time.Duration) (string, error) {
	if a == nil {
		return "", errors.New("rpc: authenticator not configured")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"scope": scope,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	if a.issuer != "" {
		claims["iss"] = a.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *Authenticator) parseToken(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, jwt.WithLeeway(a.clockSkew))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func hasScope(claims jwt.MapClaims, required string) bool {
	raw, ok := claims["scope"]
	if !ok {
		return false
	}
	switch value := raw.(type) {
	case string:
		for _, scope := range strings.Fields(value) {
			if scope == required {
				return true
			}
		}
	case []interface{}:
		for _, entry := range value {
			if s, ok := entry.(string); ok && s == required {
				return true
			}
		}
	}
	return false
}
