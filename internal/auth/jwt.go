// Package auth verifies the bearer tokens issued by the platform's
// account service. Token issuance (and everything credential-related)
// lives outside this server; GenerateToken exists for tooling and tests.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// JWTManager signs and validates JWT tokens used by the API.
type JWTManager struct {
	secretKey string
	duration  time.Duration
}

// Claims is the custom JWT payload (user id + role).
type Claims struct {
	UserID               string `json:"user_id"` // MongoDB ObjectID in hex form
	Role                 string `json:"role"`    // client | professional | admin
	jwt.RegisteredClaims        // ExpiresAt, IssuedAt, etc.
}

// SubjectID returns the user id claim parsed back into an ObjectID.
func (c *Claims) SubjectID() (bson.ObjectID, error) {
	return bson.ObjectIDFromHex(c.UserID)
}

// NewJWTManager returns a configured JWTManager.
func NewJWTManager(secretKey string, duration time.Duration) *JWTManager {
	return &JWTManager{
		secretKey: secretKey,
		duration:  duration,
	}
}

// GenerateToken issues a signed JWT token for a user.
func (m *JWTManager) GenerateToken(userID bson.ObjectID, role string) (string, time.Time, error) {
	expiresAt := time.Now().Add(m.duration)

	claims := &Claims{
		UserID: userID.Hex(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(m.secretKey))
	if err != nil {
		return "", time.Time{}, err
	}

	return tokenString, expiresAt, nil
}

// VerifyToken parses and validates a token and returns its claims.
func (m *JWTManager) VerifyToken(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Only HMAC tokens are accepted; an asymmetric alg header here
		// means the token was not issued for this service.
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(m.secretKey), nil
	})
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}
