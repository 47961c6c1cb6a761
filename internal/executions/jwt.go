package executions

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/shaiso/Forge/internal/domain"
)

// DefaultTokenTTL — срок жизни JWT, выдаваемого функции от имени пользователя.
const DefaultTokenTTL = 15 * time.Minute

// Claims — содержимое пользовательского JWT.
type Claims struct {
	TenantID   string `json:"tenant_id"`
	FunctionID string `json:"function_id,omitempty"`
	jwt.RegisteredClaims
}

// TokenSigner выпускает и проверяет HS256 токены пользователей.
type TokenSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenSigner создаёт TokenSigner. Пустой секрет недопустим.
func NewTokenSigner(secret string, ttl time.Duration) (*TokenSigner, error) {
	if secret == "" {
		return nil, errors.New("jwt secret cannot be empty")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Sign выпускает токен пользователя userID для вызова функции.
func (s *TokenSigner) Sign(tenantID, functionID, userID string) (string, error) {
	now := s.now()
	claims := Claims{
		TenantID:   tenantID,
		FunctionID: functionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return token, nil
}

// Parse проверяет подпись и срок токена.
func (s *TokenSigner) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: token has no subject", domain.ErrUnauthorized)
	}
	return claims, nil
}
