package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/RafaelOrge92/proyecto-sistema-caidas-sub000/internal/apperrors"
)

// Claims bearer token payload. Subject carries the account id.
type Claims struct {
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	FullName string `json:"fullName,omitempty"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Generate mints a token for the given identity.
func (m *TokenManager) Generate(id Identity) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)

	claims := Claims{
		Email:    id.Email,
		Role:     id.Role,
		FullName: id.FullName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.AccountID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenString and returns the identity it carries.
func (m *TokenManager) Parse(tokenString string) (Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, apperrors.Unauthorized(apperrors.CodeTokenExpired, "token expired")
		}
		return Identity{}, apperrors.Unauthorized(apperrors.CodeTokenInvalid, "invalid token")
	}
	if !token.Valid || claims.Subject == "" {
		return Identity{}, apperrors.Unauthorized(apperrors.CodeTokenInvalid, "invalid token claims")
	}

	role := claims.Role
	if role != RoleAdmin {
		role = RoleMember
	}
	return Identity{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Role:      role,
		FullName:  claims.FullName,
	}, nil
}
