package domain

import "time"

// TokenRecord is one issued access/refresh pair. Only digests are stored.
type TokenRecord struct {
	ID               string     `json:"id" gorm:"primaryKey;size:36"`
	DeviceID         string     `json:"device_id" gorm:"size:36;index;not null"`
	AccessTokenHash  string     `json:"-" gorm:"size:64;index;not null"`
	RefreshTokenHash string     `json:"-" gorm:"size:64;uniqueIndex;not null"`
	IsRevoked        bool       `json:"is_revoked" gorm:"index;not null"`
	RevokedAt        *time.Time `json:"revoked_at,omitempty"`
	ExpiresAt        time.Time  `json:"expires_at" gorm:"not null"`
	CreatedAt        time.Time  `json:"created_at"`
}

type TokenPair struct {
	DeviceID         string `json:"device_id"`
	AccessToken      string `json:"access_token"`
	RefreshToken     string `json:"refresh_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshExpiresIn int64  `json:"refresh_expires_in"`
}

type PairRequest struct {
	DeviceID  string `json:"device_id" validate:"required,uuid"`
	SecretKey string `json:"secret_key" validate:"required,min=16"`
}

type PairCodeRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type PairingCodeResponse struct {
	Code      string `json:"code"`
	ExpiresIn int64  `json:"expires_in"`
}

type MagicLinkResponse struct {
	URL       string `json:"url"`
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

type SocketTicketResponse struct {
	Ticket    string `json:"ticket"`
	ExpiresIn int64  `json:"expires_in"`
}

// DeviceSessionResponse is what a device sees about itself.
type DeviceSessionResponse struct {
	Device DeviceResponse `json:"device"`
}
