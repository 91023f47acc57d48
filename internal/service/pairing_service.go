package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/config"
	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/events"
	"signage-fleet-server/internal/metrics"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/pkg/hash"
)

const pairingCodeAttempts = 5

// PairingService exchanges a pairing credential for a fresh token pair.
// Every successful pairing revokes whatever the device held before.
type PairingService struct {
	store     *repository.Store
	tickets   repository.TicketRepository
	sessions  *SessionService
	notifier  *Notifier
	events    events.Publisher
	cfg       config.PairingConfig
	publicURL string
	log       *logrus.Entry
}

func NewPairingService(
	store *repository.Store,
	tickets repository.TicketRepository,
	sessions *SessionService,
	notifier *Notifier,
	publisher events.Publisher,
	cfg config.PairingConfig,
	publicURL string,
) *PairingService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &PairingService{
		store:     store,
		tickets:   tickets,
		sessions:  sessions,
		notifier:  notifier,
		events:    publisher,
		cfg:       cfg,
		publicURL: publicURL,
		log:       logrus.WithField("component", "pairing"),
	}
}

// PairWithSecret pairs using the secret key handed out at device creation.
func (s *PairingService) PairWithSecret(ctx context.Context, req *domain.PairRequest) (*domain.TokenPair, error) {
	device, err := s.store.Devices.FindByID(ctx, req.DeviceID)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.PairingsTotal.WithLabelValues("secret", "rejected").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := hash.Compare(device.SecretHash, req.SecretKey); err != nil {
		metrics.PairingsTotal.WithLabelValues("secret", "rejected").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	return s.pair(ctx, device.ID, "secret")
}

// PairWithCode redeems a one-time numeric code.
func (s *PairingService) PairWithCode(ctx context.Context, code string) (*domain.TokenPair, error) {
	deviceID, err := s.tickets.Consume(ctx, repository.TicketPairingCode, code)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.PairingsTotal.WithLabelValues("code", "rejected").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return s.pair(ctx, deviceID, "code")
}

// PairWithLink redeems a magic-link token.
func (s *PairingService) PairWithLink(ctx context.Context, token string) (*domain.TokenPair, error) {
	deviceID, err := s.tickets.Consume(ctx, repository.TicketMagicLink, token)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.PairingsTotal.WithLabelValues("link", "rejected").Inc()
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	return s.pair(ctx, deviceID, "link")
}

func (s *PairingService) pair(ctx context.Context, deviceID, method string) (*domain.TokenPair, error) {
	var (
		device *domain.Device
		pair   *domain.TokenPair
	)
	err := s.store.WithTx(ctx, func(tx *repository.Store) error {
		d, err := tx.Devices.FindByID(ctx, deviceID)
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrInvalidCredentials
		}
		if err != nil {
			return err
		}
		if !d.IsActive {
			return domain.ErrDeviceInactive
		}

		p, err := s.sessions.StartSession(ctx, tx, d.ID)
		if err != nil {
			return err
		}
		device, pair = d, p
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrDeviceInactive) {
			metrics.PairingsTotal.WithLabelValues(method, "rejected").Inc()
			return nil, err
		}
		metrics.PairingsTotal.WithLabelValues(method, "error").Inc()
		return nil, fmt.Errorf("pair device: %w", err)
	}

	metrics.PairingsTotal.WithLabelValues(method, "ok").Inc()
	s.log.WithFields(logrus.Fields{"device_id": device.ID, "method": method}).Info("Device paired")

	s.notifier.Hub().UpdateDeviceStatus(device.Snapshot(true))
	s.events.Publish(events.Event{
		Type:      events.TypeDevicePaired,
		DeviceID:  device.ID,
		CompanyID: device.CompanyID,
		Detail:    map[string]string{"method": method},
	})
	return pair, nil
}

// IssuePairingCode stores a six digit code for the device.
func (s *PairingService) IssuePairingCode(ctx context.Context, op domain.Operator, deviceID string) (*domain.PairingCodeResponse, error) {
	device, err := scopedDevice(ctx, s.store, op, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsActive {
		return nil, domain.ErrDeviceInactive
	}

	for i := 0; i < pairingCodeAttempts; i++ {
		code, err := generatePairingCode()
		if err != nil {
			return nil, err
		}
		err = s.tickets.Put(ctx, repository.TicketPairingCode, code, device.ID, s.cfg.CodeTTL)
		if errors.Is(err, domain.ErrConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return &domain.PairingCodeResponse{
			Code:      code,
			ExpiresIn: int64(s.cfg.CodeTTL.Seconds()),
		}, nil
	}
	return nil, fmt.Errorf("failed to allocate pairing code: %w", domain.ErrConflict)
}

// IssueMagicLink stores a single-use link token for the device.
func (s *PairingService) IssueMagicLink(ctx context.Context, op domain.Operator, deviceID string) (*domain.MagicLinkResponse, error) {
	device, err := scopedDevice(ctx, s.store, op, deviceID)
	if err != nil {
		return nil, err
	}
	if !device.IsActive {
		return nil, domain.ErrDeviceInactive
	}

	token, err := generateSecureToken()
	if err != nil {
		return nil, err
	}
	if err := s.tickets.Put(ctx, repository.TicketMagicLink, token, device.ID, s.cfg.MagicLinkTTL); err != nil {
		return nil, err
	}
	return &domain.MagicLinkResponse{
		URL:       s.publicURL + "/api/v1/pair/link/" + token,
		Token:     token,
		ExpiresIn: int64(s.cfg.MagicLinkTTL.Seconds()),
	}, nil
}

// IssueSocketTicket admits an authenticated device to the socket endpoint.
func (s *PairingService) IssueSocketTicket(ctx context.Context, deviceID string) (*domain.SocketTicketResponse, error) {
	ticket, err := generateSecureToken()
	if err != nil {
		return nil, err
	}
	if err := s.tickets.Put(ctx, repository.TicketSocket, ticket, deviceID, s.cfg.SocketTicketTTL); err != nil {
		return nil, err
	}
	return &domain.SocketTicketResponse{
		Ticket:    ticket,
		ExpiresIn: int64(s.cfg.SocketTicketTTL.Seconds()),
	}, nil
}

// RedeemSocketTicket spends a ticket and returns the device's status inputs.
func (s *PairingService) RedeemSocketTicket(ctx context.Context, ticket string) (domain.DeviceSnapshot, error) {
	deviceID, err := s.tickets.Consume(ctx, repository.TicketSocket, ticket)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DeviceSnapshot{}, domain.ErrSessionExpired
	}
	if err != nil {
		return domain.DeviceSnapshot{}, err
	}

	device, err := s.store.Devices.FindByID(ctx, deviceID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.DeviceSnapshot{}, domain.ErrSessionExpired
	}
	if err != nil {
		return domain.DeviceSnapshot{}, err
	}
	if !device.IsActive {
		return domain.DeviceSnapshot{}, domain.ErrDeviceInactive
	}
	return s.sessions.Snapshot(ctx, device)
}

func generatePairingCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", fmt.Errorf("failed to generate pairing code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
