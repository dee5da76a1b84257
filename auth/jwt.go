package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xraph/subledger/id"
)

// JWTVerifier checks HS256 bearer tokens whose subject is a principal ID.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier returns a verifier using secret. An empty issuer disables
// the issuer check.
func NewJWTVerifier(secret []byte, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: secret, issuer: issuer}
}

// Issue signs a token for p valid for ttl.
func (v *JWTVerifier) Issue(p id.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   p.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	if v.issuer != "" {
		claims.Issuer = v.issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}

// Verify parses tokenStr and returns the principal it names.
func (v *JWTVerifier) Verify(tokenStr string) (id.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims jwt.RegisteredClaims
	token, err := jwt.ParseWithClaims(tokenStr, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return v.secret, nil
	}, opts...)
	if err == nil && !token.Valid {
		err = jwt.ErrTokenSignatureInvalid
	}
	if err != nil {
		return id.Nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	p, err := id.ParsePrincipal(claims.Subject)
	if err != nil {
		return id.Nil, fmt.Errorf("%w: subject: %w", ErrInvalidToken, err)
	}
	return p, nil
}

// FromRequest verifies the request's "Authorization: Bearer" header.
func (v *JWTVerifier) FromRequest(r *http.Request) (id.Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return id.Nil, fmt.Errorf("%w: missing bearer token", ErrAuthRequired)
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return id.Nil, fmt.Errorf("%w: malformed authorization header", ErrInvalidToken)
	}
	return v.Verify(strings.TrimSpace(parts[1]))
}
