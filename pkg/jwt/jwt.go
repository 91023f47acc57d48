package jwt

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

const RoleSuperAdmin = "superadmin"

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// Claims identifies a paired device. Access and refresh tokens share the
// shape and are told apart by Type.
type Claims struct {
	DeviceID string    `json:"device_id"`
	Type     TokenType `json:"typ"`
	jwt.RegisteredClaims
}

// OperatorClaims are issued by the operator login system. This server only
// verifies them.
type OperatorClaims struct {
	UserID    string `json:"user_id"`
	CompanyID string `json:"company_id,omitempty"`
	Role      string `json:"role"`
	jwt.RegisteredClaims
}

func GenerateToken(deviceID string, expiration time.Duration, secret string) (string, error) {
	return generate(deviceID, TokenTypeAccess, expiration, secret)
}

func GenerateRefreshToken(deviceID string, expiration time.Duration, secret string) (string, error) {
	return generate(deviceID, TokenTypeRefresh, expiration, secret)
}

func generate(deviceID string, typ TokenType, expiration time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := Claims{
		DeviceID: deviceID,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   deviceID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken verifies an access token.
func ValidateToken(tokenString, secret string) (*Claims, error) {
	return validate(tokenString, secret, TokenTypeAccess)
}

// ValidateRefreshToken verifies a refresh token including its expiry.
func ValidateRefreshToken(tokenString, secret string) (*Claims, error) {
	return validate(tokenString, secret, TokenTypeRefresh)
}

// DecodeRefreshToken verifies the signature of a refresh token but ignores
// its time claims. It is used to recover the device id of a replayed token.
func DecodeRefreshToken(tokenString, secret string) (*Claims, error) {
	return validate(tokenString, secret, TokenTypeRefresh, jwt.WithoutClaimsValidation())
}

func validate(tokenString, secret string, want TokenType, opts ...jwt.ParserOption) (*Claims, error) {
	opts = append(opts, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	parser := jwt.NewParser(opts...)

	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.DeviceID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Type != want {
		return nil, ErrWrongTokenType
	}
	return claims, nil
}

func GenerateOperatorToken(userID, companyID, role string, expiration time.Duration, secret string) (string, error) {
	now := time.Now()
	claims := OperatorClaims{
		UserID:    userID,
		CompanyID: companyID,
		Role:      role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

func ValidateOperatorToken(tokenString, secret string) (*OperatorClaims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	claims := &OperatorClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	if claims.Role != RoleSuperAdmin && claims.CompanyID == "" {
		return nil, fmt.Errorf("%w: operator without company", ErrInvalidToken)
	}
	return claims, nil
}

// IsExpired reports whether err was caused by an expired token.
func IsExpired(err error) bool {
	return errors.Is(err, jwt.ErrTokenExpired)
}
