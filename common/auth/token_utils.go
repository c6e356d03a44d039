package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// ParseUserID validates an HS256 access token and returns its "user_id" claim.
func ParseUserID(tokenStr string, secret []byte) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("JWT secret not configured")
	}

	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil || token == nil || !token.Valid {
		return "", fmt.Errorf("invalid or expired token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}
	if typ, ok := claims["typ"].(string); ok && typ != "access" {
		return "", fmt.Errorf("invalid token type")
	}
	userID, ok := claims["user_id"].(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("token has no user_id")
	}
	return userID, nil
}
