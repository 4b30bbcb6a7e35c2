package auth

import "github.com/golang-jwt/jwt/v5"

// Authenticator validates the bearer tokens issued by the account service.
// Token issuance lives there; this API only needs to attribute requests.
type Authenticator interface {
	ValidateAccessToken(token string) (*jwt.Token, error)
}
