package domain

type DeviceStatus string

const (
	StatusRevoked  DeviceStatus = "revoked"
	StatusOnline   DeviceStatus = "online"
	StatusOffline  DeviceStatus = "offline"
	StatusInactive DeviceStatus = "inactive"
)

// DeviceSnapshot is the persisted half of a device's status. Presence is
// supplied separately by whoever holds the socket registry.
type DeviceSnapshot struct {
	DeviceID   string     `json:"device_id"`
	CompanyID  string     `json:"company_id"`
	SectorID   *string    `json:"sector_id,omitempty"`
	DeviceType DeviceType `json:"device_type"`
	Name       string     `json:"name"`
	IsActive   bool       `json:"is_active"`
	HasSession bool       `json:"has_session"`
}

func (s DeviceSnapshot) Identity() DeviceIdentity {
	return DeviceIdentity{ID: s.DeviceID, CompanyID: s.CompanyID, SectorID: s.SectorID, Type: s.DeviceType}
}

// DeriveStatus is the single place device status is computed.
func DeriveStatus(s DeviceSnapshot, online bool) DeviceStatus {
	switch {
	case !s.IsActive:
		return StatusRevoked
	case online:
		return StatusOnline
	case s.HasSession:
		return StatusOffline
	default:
		return StatusInactive
	}
}
