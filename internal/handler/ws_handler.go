package handler

import (
	"net/http"

	ws "github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/service"
	"signage-fleet-server/internal/websocket"
	"signage-fleet-server/pkg/jwt"
)

type WebSocketHandler struct {
	manager        *websocket.Manager
	pairing        *service.PairingService
	operatorSecret string
	upgrader       ws.Upgrader
	log            *logrus.Entry
}

func NewWebSocketHandler(manager *websocket.Manager, pairing *service.PairingService, operatorSecret string, readBuffer, writeBuffer int) *WebSocketHandler {
	return &WebSocketHandler{
		manager:        manager,
		pairing:        pairing,
		operatorSecret: operatorSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuffer,
			WriteBufferSize: writeBuffer,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logrus.WithField("component", "ws-handler"),
	}
}

// HandleDevice admits a device socket by spending the single-use ticket
// obtained from the authenticated ticket endpoint.
func (h *WebSocketHandler) HandleDevice(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		http.Error(w, "missing ticket", http.StatusUnauthorized)
		return
	}

	snapshot, err := h.pairing.RedeemSocketTicket(r.Context(), ticket)
	if err != nil {
		writeDeviceError(w, r, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("device_id", snapshot.DeviceID).Warn("Failed to upgrade device connection")
		return
	}

	client := websocket.NewDeviceClient(conn, h.manager, snapshot)
	if err := client.Start(); err != nil {
		h.log.WithError(err).WithField("device_id", snapshot.DeviceID).Warn("Device connection rejected")
	}
}

// HandleAdmin admits an operator dashboard socket. Superadmins follow every
// company.
func (h *WebSocketHandler) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing authorization token", http.StatusUnauthorized)
		return
	}

	claims, err := jwt.ValidateOperatorToken(token, h.operatorSecret)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	companyID := claims.CompanyID
	if claims.Role == jwt.RoleSuperAdmin {
		companyID = ""
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.WithError(err).WithField("user_id", claims.UserID).Warn("Failed to upgrade admin connection")
		return
	}

	client := websocket.NewAdminClient(conn, h.manager, companyID)
	if err := client.Start(); err != nil {
		h.log.WithError(err).WithField("user_id", claims.UserID).Warn("Admin connection rejected")
	}
}
