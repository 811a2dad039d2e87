package auth

import (
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/huyanhvn/threadcraft-backend/pkg/enums"
)

// AccessTokenClaims is the JWT payload carried by API callers.
type AccessTokenClaims struct {
	UserID uuid.UUID        `json:"uid"`
	Email  string           `json:"email,omitempty"`
	Role   enums.MemberRole `json:"role"`
	jwt.RegisteredClaims
}

// AccessTokenPayload is the input for minting a token.
type AccessTokenPayload struct {
	UserID uuid.UUID
	Email  string
	Role   enums.MemberRole
	JTI    string
}
