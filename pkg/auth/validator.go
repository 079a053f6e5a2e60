package auth

import (
	"crypto/subtle"
	"fmt"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator accepts a static admin token and, when a secret is set,
// HS256 tokens whose subject identifies the caller
type TokenValidator struct {
	adminToken string
	jwtSecret  []byte
}

func NewTokenValidator(adminToken, jwtSecret string) *TokenValidator {
	v := &TokenValidator{adminToken: adminToken}
	if jwtSecret != "" {
		v.jwtSecret = []byte(jwtSecret)
	}
	return v
}

// Enabled is false when neither credential is configured; every caller is
// then treated as admin
func (v *TokenValidator) Enabled() bool {
	return v.adminToken != "" || len(v.jwtSecret) > 0
}

func (v *TokenValidator) Validate(token string) (*types.AuthInfo, error) {
	if !v.Enabled() {
		return &types.AuthInfo{TokenType: types.TokenTypeAdmin}, nil
	}
	if token == "" {
		return nil, ErrAuthRequired
	}

	if v.adminToken != "" && subtle.ConstantTimeCompare([]byte(token), []byte(v.adminToken)) == 1 {
		return &types.AuthInfo{TokenType: types.TokenTypeAdmin}, nil
	}

	if len(v.jwtSecret) == 0 {
		return nil, ErrInvalidToken
	}

	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	return &types.AuthInfo{TokenType: types.TokenTypeUser, Subject: claims.Subject}, nil
}

// IssueToken signs a user token. Used by the CLI's local tooling and tests.
func IssueToken(secret, subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
