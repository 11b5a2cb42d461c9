package service

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"survey-engine/internal/model"
	"survey-engine/pkg/apierror"
)

// TokenService verifies the HS256 access tokens issued by the identity
// service. Every token names the tenant its bearer acts for.
type TokenService struct {
	jwtSecret []byte
	now       func() time.Time
}

func NewTokenService(secret string) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("jwt secret is required")
	}
	return &TokenService{
		jwtSecret: []byte(secret),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *TokenService) ValidateToken(tokenString string, expectedType string) (*model.AuthClaims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierror.New("UNAUTHORIZED", "invalid token signing method", "", http.StatusUnauthorized)
		}
		return s.jwtSecret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return nil, apierror.New("UNAUTHORIZED", "invalid token", "", http.StatusUnauthorized)
	}

	claimsMap, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apierror.New("UNAUTHORIZED", "invalid token claims", "", http.StatusUnauthorized)
	}

	typ, _ := claimsMap["typ"].(string)
	if expectedType != "" && typ != expectedType {
		return nil, apierror.New("UNAUTHORIZED", "invalid token type", "", http.StatusUnauthorized)
	}

	claims := &model.AuthClaims{Type: typ}
	claims.UserID, _ = claimsMap["sub"].(string)
	claims.TenantID, _ = claimsMap["tenant"].(string)
	claims.Role, _ = claimsMap["role"].(string)
	claims.TokenID, _ = claimsMap["jti"].(string)

	if claims.UserID == "" {
		return nil, apierror.New("UNAUTHORIZED", "invalid token subject", "", http.StatusUnauthorized)
	}
	if claims.TenantID == "" {
		return nil, apierror.New("UNAUTHORIZED", "token carries no tenant", "", http.StatusUnauthorized)
	}

	return claims, nil
}

// IssueToken signs an access token. Operators use it through surveyctl to
// mint service tokens.
func (s *TokenService) IssueToken(claims model.AuthClaims, ttl time.Duration) (string, error) {
	if claims.UserID == "" || claims.TenantID == "" {
		return "", apierror.New("BAD_REQUEST", "subject and tenant are required", "", http.StatusBadRequest)
	}
	if claims.Role == "" {
		claims.Role = model.RoleViewer
	}

	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    claims.UserID,
		"tenant": claims.TenantID,
		"role":   claims.Role,
		"typ":    "access",
		"jti":    uuid.NewString(),
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	})
	return token.SignedString(s.jwtSecret)
}
