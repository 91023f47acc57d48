package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/events"
	"signage-fleet-server/internal/metrics"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/internal/websocket"
)

// SessionService implements device authentication with rotating refresh
// tokens. A refresh token is valid exactly once; presenting a spent one
// revokes every session of the device.
type SessionService struct {
	store    *repository.Store
	tokens   *TokenService
	notifier *Notifier
	events   events.Publisher
	now      func() time.Time
	log      *logrus.Entry
}

func NewSessionService(store *repository.Store, tokens *TokenService, notifier *Notifier, publisher events.Publisher) *SessionService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &SessionService{
		store:    store,
		tokens:   tokens,
		notifier: notifier,
		events:   publisher,
		now:      time.Now,
		log:      logrus.WithField("component", "session"),
	}
}

// AuthResult is the outcome of a successful authentication. Rotated is set
// when a new pair was minted and must be handed back to the device.
type AuthResult struct {
	Device  *domain.Device
	Rotated *domain.TokenPair
}

// Authenticate accepts a valid access token for an active device, otherwise
// falls back to rotating the refresh token.
func (s *SessionService) Authenticate(ctx context.Context, accessToken, refreshToken string) (*AuthResult, error) {
	if accessToken != "" {
		if claims, err := s.tokens.ParseAccess(accessToken); err == nil {
			device, err := s.store.Devices.FindByID(ctx, claims.DeviceID)
			switch {
			case err == nil && device.IsActive:
				return &AuthResult{Device: device}, nil
			case err == nil, errors.Is(err, domain.ErrNotFound):
				return nil, domain.ErrSessionExpired
			default:
				return nil, fmt.Errorf("authenticate: %w", err)
			}
		}
	}

	if refreshToken == "" {
		return nil, domain.ErrSessionExpired
	}

	device, pair, err := s.Rotate(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	return &AuthResult{Device: device, Rotated: pair}, nil
}

// Rotate spends a refresh token and mints a new pair in one transaction.
func (s *SessionService) Rotate(ctx context.Context, refreshToken string) (*domain.Device, *domain.TokenPair, error) {
	now := s.now()
	var (
		device        *domain.Device
		pair          *domain.TokenPair
		compromisedID string
	)

	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		spent, err := tx.Tokens.ConsumeRefresh(ctx, hashToken(refreshToken), now)
		if errors.Is(err, domain.ErrNotFound) {
			claims, derr := s.tokens.DecodeRefresh(refreshToken)
			if derr != nil {
				return domain.ErrSessionExpired
			}
			if _, err := tx.Tokens.RevokeAllForDevice(ctx, claims.DeviceID, now); err != nil {
				return err
			}
			compromisedID = claims.DeviceID
			return nil
		}
		if err != nil {
			return err
		}

		if !now.Before(spent.ExpiresAt) {
			return domain.ErrSessionExpired
		}

		d, err := tx.Devices.FindByID(ctx, spent.DeviceID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrSessionExpired
		}
		if err != nil {
			return err
		}
		if !d.IsActive {
			return domain.ErrSessionExpired
		}

		p, record, err := s.tokens.IssuePair(d.ID, now)
		if err != nil {
			return err
		}
		if err := tx.Tokens.Create(ctx, record); err != nil {
			return err
		}

		device, pair = d, p
		return nil
	})

	switch {
	case errors.Is(err, domain.ErrSessionExpired):
		metrics.SessionRotationsTotal.WithLabelValues("expired").Inc()
		return nil, nil, err
	case err != nil:
		metrics.SessionRotationsTotal.WithLabelValues("error").Inc()
		return nil, nil, fmt.Errorf("rotate session: %w", err)
	case compromisedID != "":
		metrics.SessionRotationsTotal.WithLabelValues("compromised").Inc()
		s.onCompromised(ctx, compromisedID)
		return nil, nil, domain.ErrSessionCompromised
	}

	metrics.SessionRotationsTotal.WithLabelValues("rotated").Inc()
	s.log.WithField("device_id", device.ID).Debug("Session rotated")
	return device, pair, nil
}

func (s *SessionService) onCompromised(ctx context.Context, deviceID string) {
	s.log.WithField("device_id", deviceID).Warn("Refresh token replay detected, all device sessions revoked")

	device, err := s.store.Devices.FindByID(ctx, deviceID)
	if err != nil {
		s.events.Publish(events.Event{Type: events.TypeSessionCompromised, DeviceID: deviceID})
		return
	}
	s.events.Publish(events.Event{Type: events.TypeSessionCompromised, DeviceID: deviceID, CompanyID: device.CompanyID})
	if s.notifier != nil {
		hub := s.notifier.Hub()
		s.notifier.ToDevice(deviceID, websocket.TypeRevoked, websocket.RevokedPayload{Reason: "session compromised"})
		hub.UpdateDeviceStatus(device.Snapshot(false))
		hub.DisconnectDevice(deviceID)
	}
}

// StartSession revokes every record of the device and issues a fresh pair.
// Pass a transactional store to make it part of a larger unit of work.
func (s *SessionService) StartSession(ctx context.Context, tx *repository.Store, deviceID string) (*domain.TokenPair, error) {
	now := s.now()
	if _, err := tx.Tokens.RevokeAllForDevice(ctx, deviceID, now); err != nil {
		return nil, err
	}
	pair, record, err := s.tokens.IssuePair(deviceID, now)
	if err != nil {
		return nil, err
	}
	if err := tx.Tokens.Create(ctx, record); err != nil {
		return nil, err
	}
	return pair, nil
}

// HasSession reports whether the device holds a live token record.
func (s *SessionService) HasSession(ctx context.Context, deviceID string) (bool, error) {
	return s.store.Tokens.HasActiveSession(ctx, deviceID, s.now())
}

// Snapshot loads the persisted status inputs of a device.
func (s *SessionService) Snapshot(ctx context.Context, device *domain.Device) (domain.DeviceSnapshot, error) {
	has, err := s.HasSession(ctx, device.ID)
	if err != nil {
		return domain.DeviceSnapshot{}, err
	}
	return device.Snapshot(has), nil
}
