package service

import (
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/websocket"
)

// Hub is the part of the connection manager services push through.
type Hub interface {
	SendToDevice(deviceID string, msg *websocket.Message) error
	BroadcastToAdmins(companyID string, msg *websocket.Message) error
	BroadcastToDevices(companyID string, msg *websocket.Message) error
	OnlineDevices(companyID string) []domain.DeviceIdentity
	IsOnline(deviceID string) bool
	UpdateDeviceStatus(snapshot domain.DeviceSnapshot)
	RemoveDevice(deviceID string)
	DisconnectDevice(deviceID string)
}

// Notifier builds socket messages and hands them to the hub. Delivery is
// best-effort.
type Notifier struct {
	hub Hub
	log *logrus.Entry
}

func NewNotifier(hub Hub) *Notifier {
	return &Notifier{
		hub: hub,
		log: logrus.WithField("component", "notifier"),
	}
}

func (n *Notifier) Hub() Hub {
	return n.hub
}

func (n *Notifier) ToAdmins(companyID string, msgType websocket.MessageType, payload interface{}) {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		n.log.WithError(err).WithField("type", msgType).Error("Failed to build message")
		return
	}
	if err := n.hub.BroadcastToAdmins(companyID, msg); err != nil {
		n.log.WithError(err).WithField("type", msgType).Warn("Admin broadcast failed")
	}
}

func (n *Notifier) ToDevice(deviceID string, msgType websocket.MessageType, payload interface{}) {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		n.log.WithError(err).WithField("type", msgType).Error("Failed to build message")
		return
	}
	if err := n.hub.SendToDevice(deviceID, msg); err != nil {
		n.log.WithError(err).WithField("device_id", deviceID).Warn("Device send failed")
	}
}

func (n *Notifier) ToDevices(companyID string, msgType websocket.MessageType, payload interface{}) {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		n.log.WithError(err).WithField("type", msgType).Error("Failed to build message")
		return
	}
	if err := n.hub.BroadcastToDevices(companyID, msg); err != nil {
		n.log.WithError(err).WithField("company_id", companyID).Warn("Device broadcast failed")
	}
}

// CampaignStatusChanged is called by the scheduler when a transition fires.
func (n *Notifier) CampaignStatusChanged(companyID, campaignID string, status domain.CampaignStatus) {
	n.ToAdmins(companyID, websocket.TypeCampaignStatusUpdate, websocket.CampaignStatusPayload{
		CampaignID: campaignID,
		CompanyID:  companyID,
		Status:     status,
	})
}
