package utils

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in access tokens.
const (
	RoleCustomer = "customer"
	RoleMerchant = "merchant"
	RoleAdmin    = "admin"
)

type jwtCustomClaims struct {
	AccountID string `json:"account_id"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the account and role.
func GenerateToken(secret string, accountID uuid.UUID, role string, ttl time.Duration) (string, error) {
	claims := &jwtCustomClaims{
		AccountID: accountID.String(),
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseToken validates the token and returns the embedded account ID and role.
func ParseToken(secret, tokenString string) (uuid.UUID, string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwtCustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, "", err
	}

	if claims, ok := token.Claims.(*jwtCustomClaims); ok && token.Valid {
		id, err := uuid.Parse(claims.AccountID)
		if err != nil {
			return uuid.Nil, "", err
		}
		return id, claims.Role, nil
	}

	return uuid.Nil, "", jwt.ErrTokenInvalidClaims
}
