package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

// BaseValidator проверяет JWT, подписанные RS256 внешним identity-провайдером.
type BaseValidator struct {
	publicKey *rsa.PublicKey
	opts      []jwt.ParserOption
}

func NewBaseValidator(pubKey *rsa.PublicKey, opts ...jwt.ParserOption) *BaseValidator {
	base := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithLeeway(30 * time.Second),
	}
	return &BaseValidator{publicKey: pubKey, opts: append(base, opts...)}
}

// NewValidatorFromPEM: сборка валидатора прямо из конфига.
// Пустой ключ возвращает nil без ошибки: аутентификация выключена.
func NewValidatorFromPEM(data []byte, issuer string) (*BaseValidator, error) {
	if len(data) == 0 {
		return nil, nil
	}
	key, err := ParseRSAPublicKey(data)
	if err != nil {
		return nil, err
	}
	var opts []jwt.ParserOption
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return NewBaseValidator(key, opts...), nil
}

// VerifyToken реализует TokenValidator.
func (v *BaseValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))

	token, err := jwt.ParseWithClaims(tokenStr, &domain.CustomClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}, v.opts...)
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(*domain.CustomClaims)
	if !ok || claims.UserID == "" {
		return nil, fmt.Errorf("invalid claims")
	}

	return claims, nil
}

// ParseRSAPublicKey превращает []byte в объект для проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("public key data is empty")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	return key, nil
}
