package jwtutil

import (
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/internal/claims"
	"github.com/p-Chip-Cloud-IMP-Mobile-Application/pcc-cloud-service/pkg/config"
)

var (
	secret     = []byte("pcccloudsecretkey")
	expiration = time.Hour
)

// Initialize configures the signing key and token lifetime from config
func Initialize(cfg *config.JWTConfig) {
	if cfg.SigningKey != "" {
		secret = []byte(cfg.SigningKey)
	}
	if cfg.ExpirationHours > 0 {
		expiration = time.Duration(cfg.ExpirationHours) * time.Hour
	}
}

// UserClaims represents the JWT claims for user authentication. Access holds
// the derived authorization payload; it is absent until the identity
// provider has attached claims for the subject and the client has obtained a
// fresh token.
type UserClaims struct {
	Email  string         `json:"email,omitempty"`
	Access *claims.Claims `json:"access,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken creates a JWT token for a subject without an access payload
func GenerateToken(subjectUID, email string) (string, error) {
	return GenerateTokenWithAccess(subjectUID, email, nil)
}

// GenerateTokenWithAccess creates a JWT token embedding the derived claims payload
func GenerateTokenWithAccess(subjectUID, email string, access *claims.Claims) (string, error) {
	userClaims := UserClaims{
		Email:  email,
		Access: access,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectUID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, userClaims)
	return token.SignedString(secret)
}

// ValidateToken validates and parses the JWT token
func ValidateToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	})

	if err != nil {
		return nil, err
	}

	if userClaims, ok := token.Claims.(*UserClaims); ok && token.Valid {
		return userClaims, nil
	}

	return nil, jwt.ErrSignatureInvalid
}
