package auth

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the slice of the auth provider's token this service cares about.
// The provider itself stays an opaque issuer; we only verify and read.
type Claims struct {
	Subject string
	Email   string
	Name    string
}

type Verifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

type tokenClaims struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	jwt.RegisteredClaims
}

// HSVerifier validates HS256 bearer tokens against a shared secret.
type HSVerifier struct {
	secret []byte
	issuer string
}

func NewHSVerifier(secret, issuer string) *HSVerifier {
	return &HSVerifier{secret: []byte(secret), issuer: issuer}
}

func (v *HSVerifier) Verify(_ context.Context, raw string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var claims tokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		return Claims{}, ErrInvalidToken
	}
	if claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return Claims{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}
