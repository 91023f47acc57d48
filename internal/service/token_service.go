package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/pkg/jwt"
)

// TokenService signs and verifies device tokens. It holds no state beyond
// its configuration.
type TokenService struct {
	secret            string
	accessExpiration  time.Duration
	refreshExpiration time.Duration
}

func NewTokenService(secret string, accessExp, refreshExp time.Duration) *TokenService {
	return &TokenService{
		secret:            secret,
		accessExpiration:  accessExp,
		refreshExpiration: refreshExp,
	}
}

func (s *TokenService) AccessExpiration() time.Duration  { return s.accessExpiration }
func (s *TokenService) RefreshExpiration() time.Duration { return s.refreshExpiration }

// IssuePair mints a token pair and the record that tracks it.
func (s *TokenService) IssuePair(deviceID string, now time.Time) (*domain.TokenPair, *domain.TokenRecord, error) {
	accessToken, err := jwt.GenerateToken(deviceID, s.accessExpiration, s.secret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	refreshToken, err := jwt.GenerateRefreshToken(deviceID, s.refreshExpiration, s.secret)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	pair := &domain.TokenPair{
		DeviceID:         deviceID,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		ExpiresIn:        int64(s.accessExpiration.Seconds()),
		RefreshExpiresIn: int64(s.refreshExpiration.Seconds()),
	}
	record := &domain.TokenRecord{
		ID:               uuid.NewString(),
		DeviceID:         deviceID,
		AccessTokenHash:  hashToken(accessToken),
		RefreshTokenHash: hashToken(refreshToken),
		ExpiresAt:        now.Add(s.refreshExpiration).UTC(),
		CreatedAt:        now.UTC(),
	}
	return pair, record, nil
}

func (s *TokenService) ParseAccess(token string) (*jwt.Claims, error) {
	return jwt.ValidateToken(token, s.secret)
}

// DecodeRefresh verifies a refresh token's signature only.
func (s *TokenService) DecodeRefresh(token string) (*jwt.Claims, error) {
	return jwt.DecodeRefreshToken(token, s.secret)
}

// generateSecureToken returns 32 random bytes, hex encoded.
func generateSecureToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// hashToken is the digest stored in place of a raw token.
func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
