package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lokrise/checkout/pkg/enums"
)

// AccessTokenPayload captures the data available when minting a JWT.
type AccessTokenPayload struct {
	UserID string
	Email  string
	Role   enums.UserRole
	JTI    string
}

// AccessTokenClaims represents the marketplace access token presented by storefront clients.
// Older tokens carry the user only in sub.
type AccessTokenClaims struct {
	UserID string         `json:"userId"`
	Email  string         `json:"email,omitempty"`
	Role   enums.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validate runs after the registered claims are verified by the parser.
func (c AccessTokenClaims) Validate() error {
	if c.UserID == "" && c.Subject == "" {
		return errors.New("token carries no user id")
	}
	if !c.Role.IsValid() {
		return fmt.Errorf("invalid role %q", c.Role)
	}
	return nil
}
