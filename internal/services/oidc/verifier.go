package oidc

import (
	"context"
	"errors"
	"fmt"

	"github.com/benvon/habitual/internal/models"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Verifier validates bearer tokens against a provider's key set
type Verifier struct {
	jwks    *JWKSManager
	jwksURL string
	issuer  string
}

// NewVerifier creates a verifier for tokens signed by keys at jwksURL.
// An empty issuer disables the issuer check.
func NewVerifier(jwks *JWKSManager, jwksURL, issuer string) *Verifier {
	return &Verifier{jwks: jwks, jwksURL: jwksURL, issuer: issuer}
}

// Verify checks the token signature and standard claims and extracts the claims the API uses
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.TokenClaims, error) {
	keys, err := v.jwks.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	opts := []jwt.ParseOption{jwt.WithKeySet(keys), jwt.WithValidate(true)}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	if token.Subject() == "" {
		return nil, errors.New("token missing sub claim")
	}

	claims := &models.TokenClaims{
		Sub: token.Subject(),
		Iss: token.Issuer(),
	}
	claims.Email = stringClaim(token, "email")
	claims.Name = stringClaim(token, "name")
	claims.Zoneinfo = stringClaim(token, "zoneinfo")
	return claims, nil
}

func stringClaim(token jwt.Token, name string) string {
	v, ok := token.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
