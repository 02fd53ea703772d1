package jwt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrNoToken means no Authorization header was supplied at all.
	// Callers treating identity as optional let this pass through.
	ErrNoToken = errors.New("no authorization token")

	ErrInvalidAuthHeader  = errors.New("invalid Authorization header")
	ErrInvalidToken       = errors.New("invalid token")
	ErrMissingUserIDClaim = errors.New("uid missing in token")
)

// JWTParser validates bearer tokens issued by the external identity
// service and extracts the user id claim. It never issues tokens.
type JWTParser struct {
	secret []byte
}

func New(secret string) *JWTParser {
	return &JWTParser{secret: []byte(secret)}
}

// ParseHeader extracts the user id from an Authorization header value.
// An empty header returns ErrNoToken.
func (p *JWTParser) ParseHeader(authHeader string) (int64, error) {
	if authHeader == "" {
		return 0, ErrNoToken
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return 0, ErrInvalidAuthHeader
	}

	return p.ParseToken(parts[1])
}

// ParseToken validates a raw token string and returns the uid claim.
func (p *JWTParser) ParseToken(tokenString string) (int64, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return p.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrInvalidToken
	}

	uidFloat, ok := claims["uid"].(float64)
	if !ok {
		return 0, ErrMissingUserIDClaim
	}

	return int64(uidFloat), nil
}
