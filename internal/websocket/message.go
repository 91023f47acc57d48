package websocket

import (
	"encoding/json"
	"time"

	"signage-fleet-server/internal/domain"
)

type MessageType string

// Device to server.
const (
	TypeRequestPlaylist MessageType = "REQUEST_PLAYLIST"
)

// Server to device.
const (
	TypeConnectionEstablished MessageType = "CONNECTION_ESTABLISHED"
	TypePlaylistUpdate        MessageType = "PLAYLIST_UPDATE"
	TypeForceRefresh          MessageType = "FORCE_REFRESH"
	TypeRevoked               MessageType = "REVOKED"
	TypeTypeChanged           MessageType = "TYPE_CHANGED"
	TypeNewCampaign           MessageType = "NEW_CAMPAIGN"
	TypeUpdateCampaign        MessageType = "UPDATE_CAMPAIGN"
	TypeDeleteCampaign        MessageType = "DELETE_CAMPAIGN"
)

// Server to admin.
const (
	TypeDeviceStatusUpdate   MessageType = "DEVICE_STATUS_UPDATE"
	TypeDeviceStatusSnapshot MessageType = "DEVICE_STATUS_SNAPSHOT"
	TypeCompanyCreated       MessageType = "COMPANY_CREATED"
	TypeCompanyUpdated       MessageType = "COMPANY_UPDATED"
	TypeCompanyDeleted       MessageType = "COMPANY_DELETED"
	TypeDeviceCreated        MessageType = "DEVICE_CREATED"
	TypeDeviceUpdated        MessageType = "DEVICE_UPDATED"
	TypeDeviceDeleted        MessageType = "DEVICE_DELETED"
	TypeCampaignCreated      MessageType = "CAMPAIGN_CREATED"
	TypeCampaignUpdated      MessageType = "CAMPAIGN_UPDATED"
	TypeCampaignDeleted      MessageType = "CAMPAIGN_DELETED"
	TypeProductUpdated       MessageType = "PRODUCT_UPDATED"
	TypeCampaignStatusUpdate MessageType = "CAMPAIGN_STATUS_UPDATE"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type ConnectionEstablishedPayload struct {
	DeviceID   string    `json:"device_id"`
	ServerTime time.Time `json:"server_time"`
}

type DeviceStatusPayload struct {
	DeviceID  string              `json:"device_id"`
	CompanyID string              `json:"company_id"`
	Name      string              `json:"name"`
	Status    domain.DeviceStatus `json:"status"`
	IsActive  bool                `json:"is_active"`
}

type DeviceStatusSnapshotPayload struct {
	Devices []DeviceStatusPayload `json:"devices"`
}

// PlaylistPayload carries a resolved playlist. A nil playlist tells the
// device nothing is live for it.
type PlaylistPayload struct {
	CampaignID string           `json:"campaign_id,omitempty"`
	Playlist   *domain.Playlist `json:"playlist"`
}

type CampaignStatusPayload struct {
	CampaignID string                `json:"campaign_id"`
	CompanyID  string                `json:"company_id"`
	Status     domain.CampaignStatus `json:"status"`
}

type RevokedPayload struct {
	Reason string `json:"reason"`
}

type TypeChangedPayload struct {
	DeviceType domain.DeviceType `json:"device_type"`
}

type ForceRefreshPayload struct {
	DeviceID  string `json:"device_id,omitempty"`
	CompanyID string `json:"company_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// EntityPayload is used for admin create/update/delete notifications.
type EntityPayload struct {
	ID        string      `json:"id"`
	CompanyID string      `json:"company_id,omitempty"`
	Data      interface{} `json:"data,omitempty"`
}

type ProductUpdatedPayload struct {
	ProductGroupID string `json:"product_group_id"`
	CompanyID      string `json:"company_id,omitempty"`
	Deleted        bool   `json:"deleted"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	var payloadBytes json.RawMessage
	if payload != nil {
		bytes, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		payloadBytes = bytes
	}

	return &Message{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Payload:   payloadBytes,
	}, nil
}

func (m *Message) UnmarshalPayload(v interface{}) error {
	if m.Payload == nil {
		return nil
	}
	return json.Unmarshal(m.Payload, v)
}
