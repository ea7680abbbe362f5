package httpserver

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenTTL is how long an issued token stays valid
const tokenTTL = 24 * time.Hour

// issueToken signs a bearer token carrying the wallet address
func (s *Server) issueToken(walletAddress string) (string, error) {
	claims := jwt.MapClaims{
		"sub": walletAddress,
		"iss": "karmad",
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(tokenTTL).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// verifyToken validates a bearer token and returns the wallet address it
// was issued for
func (s *Server) verifyToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token claims")
	}

	wallet, _ := claims["sub"].(string)
	if wallet == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return wallet, nil
}

// requireAuth rejects requests without a valid bearer token
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "missing bearer token")
			return
		}

		if _, err := s.verifyToken(strings.TrimPrefix(header, "Bearer ")); err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized", "invalid or expired token")
			return
		}

		next(w, r)
	}
}
