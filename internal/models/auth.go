package models

import (
	"strconv"

	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the bearer token payload issued by the account service.
type JWTClaims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the numeric user id, falling back to a numeric "sub" claim. Zero
// means the token names no usable account.
func (c *JWTClaims) Identity() int64 {
	if c == nil {
		return 0
	}
	if c.UserID > 0 {
		return c.UserID
	}
	if id, err := strconv.ParseInt(c.Subject, 10, 64); err == nil && id > 0 {
		return id
	}
	return 0
}
