package models

// TokenClaims are the bearer-token claims the API relies on.
// Tokens are issued by the external identity provider; only sub is required.
type TokenClaims struct {
	Sub      string `json:"sub"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Iss      string `json:"iss"`
	Zoneinfo string `json:"zoneinfo"` // OIDC standard claim, IANA zone name
}
