package utils

import (
	"errors"
	"time"

	"github.com/cloudvault/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	signingKey   = []byte("change-me-in-production")
	tokenTTL     = 24 * time.Hour
	errBadMethod = errors.New("unexpected signing method")
	errBadToken  = errors.New("invalid token")
)

// Claims carries the identity a request acts under. Role is embedded so
// the admin gate does not need a user lookup just to reject.
type Claims struct {
	UserID uuid.UUID       `json:"userID"`
	Email  string          `json:"email"`
	Role   models.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// ConfigureJWT sets the signing secret and token lifetime. Empty or
// non-positive values keep the previous configuration.
func ConfigureJWT(secret string, expirationHours int) {
	if secret != "" {
		signingKey = []byte(secret)
	}
	if expirationHours > 0 {
		tokenTTL = time.Duration(expirationHours) * time.Hour
	}
}

func GenerateToken(user *models.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
}

func ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errBadMethod
		}
		return signingKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errBadToken
	}
	return claims, nil
}
