package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/college-portal-api/internal/models"
	appErrors "github.com/noah-isme/college-portal-api/pkg/errors"
)

// ErrMissingSigningSecret is returned when a session issuer is built without a secret.
var ErrMissingSigningSecret = errors.New("session signing secret is required")

// SessionConfig configures session token minting.
type SessionConfig struct {
	Secret string
	Expiry time.Duration
	Issuer string
}

// SessionIssuer mints and validates HS256 session tokens. It keeps no server-side state.
type SessionIssuer struct {
	secret []byte
	expiry time.Duration
	issuer string
	now    func() time.Time
}

// NewSessionIssuer constructs an issuer. Expiry defaults to seven days.
func NewSessionIssuer(cfg SessionConfig) (*SessionIssuer, error) {
	if cfg.Secret == "" {
		return nil, ErrMissingSigningSecret
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 7 * 24 * time.Hour
	}
	return &SessionIssuer{
		secret: []byte(cfg.Secret),
		expiry: cfg.Expiry,
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Expiry returns the lifetime of minted tokens.
func (s *SessionIssuer) Expiry() time.Duration {
	return s.expiry
}

// Mint signs a token carrying the user's id, role and email as stored at issuance.
func (s *SessionIssuer) Mint(user *models.User) (string, time.Time, error) {
	if user == nil || user.ID == "" || !user.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("mint session: incomplete identity")
	}
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.expiry)
	claims := &models.JWTClaims{
		UserID: user.ID,
		Role:   user.Role,
		Email:  user.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session: %w", err)
	}
	return signed, expiresAt, nil
}

// Validate verifies signature, algorithm, issuer and expiry. Any failure yields no claims.
func (s *SessionIssuer) Validate(tokenString string) (*models.JWTClaims, error) {
	if tokenString == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "missing token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid || claims.UserID == "" || !claims.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	return claims, nil
}
