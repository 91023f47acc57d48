package domain

import "time"

type DeviceType string

const (
	DeviceTypeDisplayPlayer DeviceType = "display-player"
	DeviceTypePriceTerminal DeviceType = "price-terminal"
	DeviceTypeDigitalMenu   DeviceType = "digital-menu"
)

func (t DeviceType) Valid() bool {
	switch t {
	case DeviceTypeDisplayPlayer, DeviceTypePriceTerminal, DeviceTypeDigitalMenu:
		return true
	}
	return false
}

type Device struct {
	ID           string     `json:"id" gorm:"primaryKey;size:36"`
	CompanyID    string     `json:"company_id" gorm:"size:36;index;not null"`
	SectorID     *string    `json:"sector_id,omitempty" gorm:"size:36;index"`
	Name         string     `json:"name" gorm:"not null"`
	DeviceType   DeviceType `json:"device_type" gorm:"size:32;not null"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	SecretHash   string     `json:"-" gorm:"not null"`
	LastSeen     *time.Time `json:"last_seen,omitempty"`
	RegisteredAt time.Time  `json:"registered_at" gorm:"not null"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Identity is what targeting and playlist resolution need to know about a
// device.
func (d *Device) Identity() DeviceIdentity {
	return DeviceIdentity{
		ID:        d.ID,
		CompanyID: d.CompanyID,
		SectorID:  d.SectorID,
		Type:      d.DeviceType,
	}
}

func (d *Device) Snapshot(hasSession bool) DeviceSnapshot {
	return DeviceSnapshot{
		DeviceID:   d.ID,
		CompanyID:  d.CompanyID,
		SectorID:   d.SectorID,
		DeviceType: d.DeviceType,
		Name:       d.Name,
		IsActive:   d.IsActive,
		HasSession: hasSession,
	}
}

type DeviceIdentity struct {
	ID        string     `json:"id"`
	CompanyID string     `json:"company_id"`
	SectorID  *string    `json:"sector_id,omitempty"`
	Type      DeviceType `json:"device_type"`
}

type CreateDeviceRequest struct {
	Name       string     `json:"name" validate:"required,min=1,max=100"`
	DeviceType DeviceType `json:"device_type" validate:"required,oneof=display-player price-terminal digital-menu"`
	SectorID   *string    `json:"sector_id,omitempty" validate:"omitempty,uuid"`
	CompanyID  string     `json:"company_id,omitempty" validate:"omitempty,uuid"`
}

type UpdateDeviceRequest struct {
	Name       string     `json:"name" validate:"required,min=1,max=100"`
	DeviceType DeviceType `json:"device_type" validate:"required,oneof=display-player price-terminal digital-menu"`
	SectorID   *string    `json:"sector_id,omitempty" validate:"omitempty,uuid"`
}

type DeviceResponse struct {
	ID           string       `json:"id"`
	CompanyID    string       `json:"company_id"`
	SectorID     *string      `json:"sector_id,omitempty"`
	Name         string       `json:"name"`
	DeviceType   DeviceType   `json:"device_type"`
	IsActive     bool         `json:"is_active"`
	Status       DeviceStatus `json:"status"`
	LastSeen     *time.Time   `json:"last_seen,omitempty"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// CreateDeviceResponse carries the only copy of the secret key the server
// will ever return.
type CreateDeviceResponse struct {
	Device    DeviceResponse `json:"device"`
	SecretKey string         `json:"secret_key"`
}

func NewDeviceResponse(d *Device, status DeviceStatus) DeviceResponse {
	return DeviceResponse{
		ID:           d.ID,
		CompanyID:    d.CompanyID,
		SectorID:     d.SectorID,
		Name:         d.Name,
		DeviceType:   d.DeviceType,
		IsActive:     d.IsActive,
		Status:       status,
		LastSeen:     d.LastSeen,
		RegisteredAt: d.RegisteredAt,
	}
}
