package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required"`
	CaptchaToken string `json:"captcha_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RequestMeta carries client details recorded in audit logs.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// Identity is the public view of an authenticated account.
type Identity struct {
	Role  UserRole `json:"role"`
	Email string   `json:"email"`
}

// LoginResult is returned by a successful login; the token travels in a cookie, never in the body.
type LoginResult struct {
	Identity
	Token     string `json:"-"`
	ExpiresIn int64  `json:"expires_in"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8"`
}

// JWTClaims represents the signed session token payload.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	jwt.RegisteredClaims
}
