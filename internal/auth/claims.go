package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for staff tokens.
// Every staff member belongs to exactly one business; BusinessID scopes all
// staff-side operations.
type Claims struct {
	jwt.RegisteredClaims

	StaffID    string    `json:"staff_id"`
	BusinessID string    `json:"business_id"`
	Role       string    `json:"role"`
	TokenType  TokenType `json:"token_type"`
}
