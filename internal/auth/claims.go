package auth

import "github.com/golang-jwt/jwt/v5"

// Claims is the access token shape minted by the managed identity provider.
// Subject is the provider's user id and maps to users.auth_id.
type Claims struct {
	jwt.RegisteredClaims

	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}
