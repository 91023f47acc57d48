package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/metrics"
)

var ErrManagerStopped = errors.New("connection manager stopped")

type ClientMessage struct {
	Client  *Client
	Message []byte
}

type MessageHandler interface {
	HandleWebSocketMessage(ctx context.Context, client *Client, msg *Message) error
}

// PresenceRecorder is told about device connects and disconnects. It is
// called off the manager loop.
type PresenceRecorder interface {
	RecordPresence(deviceID string, online bool, at time.Time)
}

type Options struct {
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
}

type statusEntry struct {
	snapshot domain.DeviceSnapshot
	status   domain.DeviceStatus
}

func (e *statusEntry) payload() DeviceStatusPayload {
	return DeviceStatusPayload{
		DeviceID:  e.snapshot.DeviceID,
		CompanyID: e.snapshot.CompanyID,
		Name:      e.snapshot.Name,
		Status:    e.status,
		IsActive:  e.snapshot.IsActive,
	}
}

type statusUpdate struct {
	snapshot domain.DeviceSnapshot
	remove   bool
}

// Manager owns the device and admin socket registries and the live status
// cache. Registries are only written from Run; other goroutines read under
// the read lock.
type Manager struct {
	devices  map[string]*Client
	admins   map[*Client]bool
	statuses map[string]*statusEntry
	mu       sync.RWMutex

	register   chan *Client
	unregister chan *Client
	inbound    chan *ClientMessage
	updates    chan statusUpdate
	kicks      chan string
	done       chan struct{}
	ctx        context.Context

	opts           Options
	messageHandler MessageHandler
	presence       PresenceRecorder
	log            *logrus.Entry
}

func NewManager(opts Options) *Manager {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 65536
	}
	return &Manager{
		devices:    make(map[string]*Client),
		admins:     make(map[*Client]bool),
		statuses:   make(map[string]*statusEntry),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan *ClientMessage),
		updates:    make(chan statusUpdate),
		kicks:      make(chan string),
		done:       make(chan struct{}),
		ctx:        context.Background(),
		opts:       opts,
		log:        logrus.WithField("component", "websocket"),
	}
}

func (m *Manager) SetMessageHandler(handler MessageHandler) {
	m.messageHandler = handler
}

func (m *Manager) SetPresenceRecorder(recorder PresenceRecorder) {
	m.presence = recorder
}

// Prime seeds the status cache so admin replays include offline devices.
// Call it before Run.
func (m *Manager) Prime(snapshots []domain.DeviceSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, s := range snapshots {
		m.setStatusLocked(s)
	}
	m.log.WithField("devices", len(snapshots)).Info("Status cache primed")
}

func (m *Manager) Run(ctx context.Context) {
	m.ctx = ctx
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case update := <-m.updates:
			m.applyUpdate(update)

		case deviceID := <-m.kicks:
			m.disconnect(deviceID)

		case clientMsg := <-m.inbound:
			m.processMessage(clientMsg)
		}
	}
}

func (m *Manager) Register(client *Client) error {
	select {
	case m.register <- client:
		return nil
	case <-m.done:
		return ErrManagerStopped
	}
}

func (m *Manager) Unregister(client *Client) {
	select {
	case m.unregister <- client:
	case <-m.done:
	}
}

// UpdateDeviceStatus replaces the cached snapshot of a device and broadcasts
// the recomputed status to admins.
func (m *Manager) UpdateDeviceStatus(snapshot domain.DeviceSnapshot) {
	select {
	case m.updates <- statusUpdate{snapshot: snapshot}:
	case <-m.done:
	}
}

// RemoveDevice drops a deleted device from the status cache.
func (m *Manager) RemoveDevice(deviceID string) {
	select {
	case m.updates <- statusUpdate{snapshot: domain.DeviceSnapshot{DeviceID: deviceID}, remove: true}:
	case <-m.done:
	}
}

// DisconnectDevice closes the device socket after flushing queued messages.
func (m *Manager) DisconnectDevice(deviceID string) {
	select {
	case m.kicks <- deviceID:
	case <-m.done:
	}
}

func (m *Manager) registerClient(client *Client) {
	if client.Kind == KindAdmin {
		m.mu.Lock()
		m.admins[client] = true
		snapshot := m.snapshotLocked(client.CompanyID)
		msg, _ := NewMessage(TypeDeviceStatusSnapshot, DeviceStatusSnapshotPayload{Devices: snapshot})
		m.sendLocked(client, msg)
		m.mu.Unlock()

		metrics.ConnectedSockets.WithLabelValues(string(KindAdmin)).Inc()
		m.log.WithFields(logrus.Fields{"client_id": client.ID, "company_id": client.CompanyID}).Info("Admin connected")
		return
	}

	m.mu.Lock()
	if old, ok := m.devices[client.DeviceID]; ok && old != client {
		close(old.send)
		m.log.WithField("device_id", client.DeviceID).Info("Replacing existing device socket")
	} else {
		metrics.ConnectedSockets.WithLabelValues(string(KindDevice)).Inc()
	}
	m.devices[client.DeviceID] = client
	entry := m.setStatusLocked(client.snapshot)

	established, _ := NewMessage(TypeConnectionEstablished, ConnectionEstablishedPayload{
		DeviceID:   client.DeviceID,
		ServerTime: time.Now().UTC(),
	})
	m.sendLocked(client, established)
	payload := entry.payload()
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"device_id": client.DeviceID, "status": payload.Status}).Info("Device connected")
	m.broadcastStatus(payload)
	m.recordPresence(client.DeviceID, true)
}

func (m *Manager) unregisterClient(client *Client) {
	if client.Kind == KindAdmin {
		m.mu.Lock()
		if m.admins[client] {
			delete(m.admins, client)
			close(client.send)
			metrics.ConnectedSockets.WithLabelValues(string(KindAdmin)).Dec()
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.devices[client.DeviceID] != client {
		// Replaced or already disconnected.
		m.mu.Unlock()
		return
	}
	payload := m.removeDeviceLocked(client)
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{"device_id": client.DeviceID, "status": payload.Status}).Info("Device disconnected")
	m.broadcastStatus(payload)
	m.recordPresence(client.DeviceID, false)
}

func (m *Manager) disconnect(deviceID string) {
	m.mu.Lock()
	client, ok := m.devices[deviceID]
	if !ok {
		m.mu.Unlock()
		return
	}
	payload := m.removeDeviceLocked(client)
	m.mu.Unlock()

	m.log.WithField("device_id", deviceID).Info("Device disconnected by server")
	m.broadcastStatus(payload)
	m.recordPresence(deviceID, false)
}

func (m *Manager) removeDeviceLocked(client *Client) DeviceStatusPayload {
	delete(m.devices, client.DeviceID)
	close(client.send)
	metrics.ConnectedSockets.WithLabelValues(string(KindDevice)).Dec()

	entry, ok := m.statuses[client.DeviceID]
	if !ok {
		entry = m.setStatusLocked(client.snapshot)
	} else {
		entry = m.setStatusLocked(entry.snapshot)
	}
	return entry.payload()
}

func (m *Manager) applyUpdate(update statusUpdate) {
	if update.remove {
		m.mu.Lock()
		delete(m.statuses, update.snapshot.DeviceID)
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	entry := m.setStatusLocked(update.snapshot)
	payload := entry.payload()
	m.mu.Unlock()

	m.broadcastStatus(payload)
}

// setStatusLocked stores the snapshot and recomputes status from presence.
func (m *Manager) setStatusLocked(snapshot domain.DeviceSnapshot) *statusEntry {
	_, online := m.devices[snapshot.DeviceID]
	entry := &statusEntry{
		snapshot: snapshot,
		status:   domain.DeriveStatus(snapshot, online),
	}
	m.statuses[snapshot.DeviceID] = entry
	return entry
}

func (m *Manager) snapshotLocked(companyID string) []DeviceStatusPayload {
	out := make([]DeviceStatusPayload, 0, len(m.statuses))
	for _, entry := range m.statuses {
		if companyID != "" && entry.snapshot.CompanyID != companyID {
			continue
		}
		out = append(out, entry.payload())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out
}

func (m *Manager) broadcastStatus(payload DeviceStatusPayload) {
	msg, err := NewMessage(TypeDeviceStatusUpdate, payload)
	if err != nil {
		return
	}
	m.BroadcastToAdmins(payload.CompanyID, msg)
}

func (m *Manager) recordPresence(deviceID string, online bool) {
	if m.presence == nil {
		return
	}
	at := time.Now().UTC()
	go m.presence.RecordPresence(deviceID, online, at)
}

func (m *Manager) processMessage(clientMsg *ClientMessage) {
	var msg Message
	if err := json.Unmarshal(clientMsg.Message, &msg); err != nil {
		m.log.WithError(err).WithField("client_id", clientMsg.Client.ID).Warn("Error unmarshaling message")
		return
	}

	if m.messageHandler == nil {
		return
	}
	client := clientMsg.Client
	if !client.handling.CompareAndSwap(false, true) {
		m.log.WithFields(logrus.Fields{"client_id": client.ID, "type": msg.Type}).Debug("Previous message still in flight, dropping")
		return
	}
	ctx := m.ctx
	go func() {
		defer client.handling.Store(false)
		if err := m.messageHandler.HandleWebSocketMessage(ctx, clientMsg.Client, &msg); err != nil {
			m.log.WithError(err).WithFields(logrus.Fields{
				"client_id": clientMsg.Client.ID,
				"type":      msg.Type,
			}).Warn("Error handling message")
		}
	}()
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, client := range m.devices {
		close(client.send)
		delete(m.devices, id)
	}
	for client := range m.admins {
		close(client.send)
		delete(m.admins, client)
	}
	metrics.ConnectedSockets.WithLabelValues(string(KindDevice)).Set(0)
	metrics.ConnectedSockets.WithLabelValues(string(KindAdmin)).Set(0)
	m.log.Info("Connection manager stopped")
}

// sendLocked queues data for one client. The caller holds m.mu.
func (m *Manager) sendLocked(client *Client, message *Message) {
	if message == nil {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		return
	}
	m.enqueueLocked(client, data)
}

func (m *Manager) enqueueLocked(client *Client, data []byte) {
	select {
	case client.send <- data:
	default:
		metrics.SocketMessagesDropped.WithLabelValues(string(client.Kind)).Inc()
		m.log.WithField("client_id", client.ID).Warn("Send buffer full, dropping message")
	}
}

// SendToDevice is a no-op when the device is offline.
func (m *Manager) SendToDevice(deviceID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if client, ok := m.devices[deviceID]; ok {
		m.enqueueLocked(client, data)
	}
	return nil
}

// BroadcastToAdmins delivers to every superadmin socket and to the sockets
// scoped to companyID. An empty companyID reaches every admin.
func (m *Manager) BroadcastToAdmins(companyID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for client := range m.admins {
		if companyID == "" || client.CompanyID == "" || client.CompanyID == companyID {
			m.enqueueLocked(client, data)
		}
	}
	return nil
}

// BroadcastToDevices delivers to every online device of a company, or to all
// online devices when companyID is empty.
func (m *Manager) BroadcastToDevices(companyID string, message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.devices {
		if companyID == "" || client.CompanyID == companyID {
			m.enqueueLocked(client, data)
		}
	}
	return nil
}

func (m *Manager) IsOnline(deviceID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.devices[deviceID]
	return ok
}

// OnlineDevices returns the identities of connected devices, current as of
// the last status update.
func (m *Manager) OnlineDevices(companyID string) []domain.DeviceIdentity {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.DeviceIdentity, 0, len(m.devices))
	for id, client := range m.devices {
		snapshot := client.snapshot
		if entry, ok := m.statuses[id]; ok {
			snapshot = entry.snapshot
		}
		if companyID != "" && snapshot.CompanyID != companyID {
			continue
		}
		out = append(out, snapshot.Identity())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *Manager) DeviceStatus(deviceID string) (domain.DeviceStatus, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.statuses[deviceID]
	if !ok {
		return "", false
	}
	return entry.status, true
}

// Statuses returns the cached statuses visible to companyID.
func (m *Manager) Statuses(companyID string) []DeviceStatusPayload {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.snapshotLocked(companyID)
}

func (m *Manager) Options() Options {
	return m.opts
}
