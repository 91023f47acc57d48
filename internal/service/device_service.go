package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/events"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/internal/websocket"
	"signage-fleet-server/pkg/hash"
)

type DeviceService struct {
	store     *repository.Store
	sessions  *SessionService
	playlists *PlaylistService
	notifier  *Notifier
	events    events.Publisher
	now       func() time.Time
	log       *logrus.Entry
}

func NewDeviceService(store *repository.Store, sessions *SessionService, playlists *PlaylistService, notifier *Notifier, publisher events.Publisher) *DeviceService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &DeviceService{
		store:     store,
		sessions:  sessions,
		playlists: playlists,
		notifier:  notifier,
		events:    publisher,
		now:       time.Now,
		log:       logrus.WithField("component", "devices"),
	}
}

// Create registers a device and returns its secret key. The key is not
// stored and cannot be recovered.
func (s *DeviceService) Create(ctx context.Context, op domain.Operator, req *domain.CreateDeviceRequest) (*domain.CreateDeviceResponse, error) {
	companyID, err := resolveCompany(op, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if _, err := requireCompany(ctx, s.store, companyID); err != nil {
		return nil, err
	}
	if req.SectorID != nil {
		if err := requireSector(ctx, s.store, companyID, *req.SectorID); err != nil {
			return nil, err
		}
	}

	secret, err := hash.GenerateSecret()
	if err != nil {
		return nil, err
	}
	hashed, err := hash.Hash(secret)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	device := &domain.Device{
		ID:           uuid.NewString(),
		CompanyID:    companyID,
		SectorID:     req.SectorID,
		Name:         req.Name,
		DeviceType:   req.DeviceType,
		IsActive:     true,
		SecretHash:   hashed,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	if err := s.store.Devices.Create(ctx, device); err != nil {
		return nil, err
	}

	snapshot := device.Snapshot(false)
	resp := domain.NewDeviceResponse(device, domain.DeriveStatus(snapshot, false))

	s.notifier.Hub().UpdateDeviceStatus(snapshot)
	s.notifier.ToAdmins(companyID, websocket.TypeDeviceCreated, websocket.EntityPayload{
		ID:        device.ID,
		CompanyID: companyID,
		Data:      resp,
	})
	s.log.WithFields(logrus.Fields{"device_id": device.ID, "company_id": companyID}).Info("Device created")

	return &domain.CreateDeviceResponse{Device: resp, SecretKey: secret}, nil
}

func (s *DeviceService) List(ctx context.Context, op domain.Operator) ([]domain.DeviceResponse, error) {
	devices, err := s.store.Devices.List(ctx, op.ScopeCompany())
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.Tokens.DevicesWithSession(ctx, s.now())
	if err != nil {
		return nil, err
	}

	hub := s.notifier.Hub()
	responses := make([]domain.DeviceResponse, 0, len(devices))
	for _, d := range devices {
		status := domain.DeriveStatus(d.Snapshot(sessions[d.ID]), hub.IsOnline(d.ID))
		responses = append(responses, domain.NewDeviceResponse(d, status))
	}
	return responses, nil
}

func (s *DeviceService) Get(ctx context.Context, op domain.Operator, deviceID string) (*domain.DeviceResponse, error) {
	device, err := scopedDevice(ctx, s.store, op, deviceID)
	if err != nil {
		return nil, err
	}
	resp, err := s.Describe(ctx, device)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Describe renders a device with its derived status.
func (s *DeviceService) Describe(ctx context.Context, device *domain.Device) (domain.DeviceResponse, error) {
	snapshot, err := s.sessions.Snapshot(ctx, device)
	if err != nil {
		return domain.DeviceResponse{}, err
	}
	status := domain.DeriveStatus(snapshot, s.notifier.Hub().IsOnline(device.ID))
	return domain.NewDeviceResponse(device, status), nil
}

func (s *DeviceService) Update(ctx context.Context, op domain.Operator, deviceID string, req *domain.UpdateDeviceRequest) (*domain.DeviceResponse, error) {
	device, err := scopedDevice(ctx, s.store, op, deviceID)
	if err != nil {
		return nil, err
	}
	if req.SectorID != nil {
		if err := requireSector(ctx, s.store, device.CompanyID, *req.SectorID); err != nil {
			return nil, err
		}
	}

	typeChanged := device.DeviceType != req.DeviceType
	sectorChanged := !sameSector(device.SectorID, req.SectorID)

	device.Name = req.Name
	device.DeviceType = req.DeviceType
	device.SectorID = req.SectorID
	if err := s.store.Devices.Update(ctx, device); err != nil {
		return nil, err
	}

	snapshot, err := s.sessions.Snapshot(ctx, device)
	if err != nil {
		return nil, err
	}
	hub := s.notifier.Hub()
	hub.UpdateDeviceStatus(snapshot)
	if typeChanged || sectorChanged {
		s.playlists.Invalidate()
	}

	switch {
	case typeChanged:
		s.notifier.ToDevice(device.ID, websocket.TypeTypeChanged, websocket.TypeChangedPayload{DeviceType: device.DeviceType})
	case sectorChanged && hub.IsOnline(device.ID):
		if err := s.playlists.Push(ctx, device.Identity(), websocket.TypePlaylistUpdate); err != nil {
			s.log.WithError(err).WithField("device_id", device.ID).Warn("Playlist push after sector change failed")
		}
	}

	resp := domain.NewDeviceResponse(device, domain.DeriveStatus(snapshot, hub.IsOnline(device.ID)))
	s.notifier.ToAdmins(device.CompanyID, websocket.TypeDeviceUpdated, websocket.EntityPayload{
		ID:        device.ID,
		CompanyID: device.CompanyID,
		Data:      resp,
	})
	return &resp, nil
}

func sameSector(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Revoke deactivates a device, kills its tokens and closes its socket.
func (s *DeviceService) Revoke(ctx context.Context, op domain.Operator, deviceID string) error {
	device, err := scopedDevice(ctx, s.store, op, deviceID)
	if err != nil {
		return err
	}

	err = s.store.WithTx(ctx, func(tx *repository.Store) error {
		if err := tx.Devices.SetActive(ctx, device.ID, false); err != nil {
			return err
		}
		_, err := tx.Tokens.RevokeAllForDevice(ctx, device.ID, s.now())
		return err
	})
	if err != nil {
		return fmt.Errorf("revoke device: %w", err)
	}
	device.IsActive = false

	hub := s.notifier.Hub()
	s.notifier.ToDevice(device.ID, websocket.TypeRevoked, websocket.RevokedPayload{Reason: "revoked by operator"})
	hub.UpdateDeviceStatus(device.Snapshot(false))
	hub.DisconnectDevice(device.ID)

	s.events.Publish(events.Event{Type: events.TypeDeviceRevoked, DeviceID: device.ID, CompanyID: device.CompanyID})
	s.notifier.ToAdmins(device.CompanyID, websocket.TypeDeviceUpdated, websocket.EntityPayload{
		ID:        device.ID,
		CompanyID: device.CompanyID,
		Data:      domain.NewDeviceResponse(device, domain.StatusRevoked),
	})
	s.log.WithField("device_id", device.ID).Info("Device revoked")
	return nil
}

// Reactivate allows the device to pair again. Old tokens stay revoked.
func (s *DeviceService) Reactivate(ctx context.Context, op domain.Operator, deviceID string) (*domain.DeviceResponse, error) {
	device, err := scopedDevice(ctx, s.store, op, deviceID)
	if err != nil {
		return nil, err
	}
	if err := s.store.Devices.SetActive(ctx, device.ID, true); err != nil {
		return nil, err
	}
	device.IsActive = true

	snapshot, err := s.sessions.Snapshot(ctx, device)
	if err != nil {
		return nil, err
	}
	hub := s.notifier.Hub()
	hub.UpdateDeviceStatus(snapshot)

	resp := domain.NewDeviceResponse(device, domain.DeriveStatus(snapshot, hub.IsOnline(device.ID)))
	s.events.Publish(events.Event{Type: events.TypeDeviceReactivated, DeviceID: device.ID, CompanyID: device.CompanyID})
	s.notifier.ToAdmins(device.CompanyID, websocket.TypeDeviceUpdated, websocket.EntityPayload{
		ID:        device.ID,
		CompanyID: device.CompanyID,
		Data:      resp,
	})
	return &resp, nil
}

// Delete removes a device that holds no live session.
func (s *DeviceService) Delete(ctx context.Context, op domain.Operator, deviceID string) error {
	device, err := scopedDevice(ctx, s.store, op, deviceID)
	if err != nil {
		return err
	}
	active, err := s.sessions.HasSession(ctx, device.ID)
	if err != nil {
		return err
	}
	if active {
		return fmt.Errorf("%w: device is paired, revoke it first", domain.ErrConflict)
	}
	if err := s.checkDeviceTargets(ctx, device); err != nil {
		return err
	}

	if err := s.store.Devices.Delete(ctx, device.ID); err != nil {
		return err
	}

	hub := s.notifier.Hub()
	hub.DisconnectDevice(device.ID)
	hub.RemoveDevice(device.ID)
	s.playlists.Invalidate()

	s.events.Publish(events.Event{Type: events.TypeDeviceDeleted, DeviceID: device.ID, CompanyID: device.CompanyID})
	s.notifier.ToAdmins(device.CompanyID, websocket.TypeDeviceDeleted, websocket.EntityPayload{
		ID:        device.ID,
		CompanyID: device.CompanyID,
	})
	return nil
}

// checkDeviceTargets refuses to drop a device that is the only target of a
// campaign, which would turn that campaign company-wide.
func (s *DeviceService) checkDeviceTargets(ctx context.Context, device *domain.Device) error {
	campaigns, err := s.store.Campaigns.List(ctx, device.CompanyID)
	if err != nil {
		return err
	}
	for _, c := range campaigns {
		if len(c.DeviceTargets)+len(c.SectorTargets) != 1 {
			continue
		}
		if len(c.DeviceTargets) == 1 && c.DeviceTargets[0].DeviceID == device.ID {
			return fmt.Errorf("%w: campaign %q targets only this device", domain.ErrConflict, c.Name)
		}
	}
	return nil
}

// ForceRefresh tells one device to reload. It reports whether the device was
// online to receive it.
func (s *DeviceService) ForceRefresh(ctx context.Context, op domain.Operator, deviceID string) (bool, error) {
	device, err := scopedDevice(ctx, s.store, op, deviceID)
	if err != nil {
		return false, err
	}

	payload := websocket.ForceRefreshPayload{DeviceID: device.ID, CompanyID: device.CompanyID, Reason: "operator"}
	online := s.notifier.Hub().IsOnline(device.ID)
	s.notifier.ToDevice(device.ID, websocket.TypeForceRefresh, payload)
	s.notifier.ToAdmins(device.CompanyID, websocket.TypeForceRefresh, payload)
	return online, nil
}

// ForceRefreshCompany tells every online device of a company to reload and
// returns how many were reached.
func (s *DeviceService) ForceRefreshCompany(ctx context.Context, op domain.Operator, companyID string) (int, error) {
	companyID, err := resolveCompany(op, companyID)
	if err != nil {
		return 0, err
	}
	if _, err := requireCompany(ctx, s.store, companyID); err != nil {
		return 0, err
	}

	hub := s.notifier.Hub()
	reached := len(hub.OnlineDevices(companyID))
	payload := websocket.ForceRefreshPayload{CompanyID: companyID, Reason: "operator"}
	s.notifier.ToDevices(companyID, websocket.TypeForceRefresh, payload)
	s.notifier.ToAdmins(companyID, websocket.TypeForceRefresh, payload)
	return reached, nil
}

// RecordPresence stamps last_seen on connect and disconnect.
func (s *DeviceService) RecordPresence(deviceID string, online bool, at time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.store.Devices.UpdateLastSeen(ctx, deviceID, at); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"device_id": deviceID, "online": online}).Warn("Failed to record presence")
	}
}

// Snapshots loads the status inputs of every device, for priming the
// connection manager at boot.
func (s *DeviceService) Snapshots(ctx context.Context) ([]domain.DeviceSnapshot, error) {
	devices, err := s.store.Devices.List(ctx, "")
	if err != nil {
		return nil, err
	}
	sessions, err := s.store.Tokens.DevicesWithSession(ctx, s.now())
	if err != nil {
		return nil, err
	}

	out := make([]domain.DeviceSnapshot, 0, len(devices))
	for _, d := range devices {
		out = append(out, d.Snapshot(sessions[d.ID]))
	}
	return out, nil
}
