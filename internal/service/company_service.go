package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/internal/websocket"
)

type CompanyService struct {
	store     *repository.Store
	sessions  *SessionService
	playlists *PlaylistService
	notifier  *Notifier
	now       func() time.Time
	log       *logrus.Entry
}

func NewCompanyService(store *repository.Store, sessions *SessionService, playlists *PlaylistService, notifier *Notifier) *CompanyService {
	return &CompanyService{
		store:     store,
		sessions:  sessions,
		playlists: playlists,
		notifier:  notifier,
		now:       time.Now,
		log:       logrus.WithField("component", "companies"),
	}
}

func (s *CompanyService) Create(ctx context.Context, op domain.Operator, req *domain.CompanyRequest) (*domain.Company, error) {
	if !op.IsSuperAdmin() {
		return nil, domain.ErrForbidden
	}
	if err := checkLocation(req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	company := &domain.Company{
		ID:        uuid.NewString(),
		Name:      req.Name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		CreatedAt: now,
		UpdatedAt: now,
		Sectors:   []domain.Sector{},
	}
	if err := s.store.Companies.Create(ctx, company); err != nil {
		return nil, err
	}

	s.notifier.ToAdmins(company.ID, websocket.TypeCompanyCreated, websocket.EntityPayload{
		ID:        company.ID,
		CompanyID: company.ID,
		Data:      company,
	})
	s.log.WithField("company_id", company.ID).Info("Company created")
	return company, nil
}

func checkLocation(req *domain.CompanyRequest) error {
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return fmt.Errorf("%w: latitude and longitude must be set together", domain.ErrValidation)
	}
	return nil
}

func (s *CompanyService) List(ctx context.Context, op domain.Operator) ([]*domain.Company, error) {
	return s.store.Companies.List(ctx, op.ScopeCompany())
}

func (s *CompanyService) Get(ctx context.Context, op domain.Operator, companyID string) (*domain.Company, error) {
	if !op.CanAccess(companyID) {
		return nil, fmt.Errorf("company: %w", domain.ErrNotFound)
	}
	return s.store.Companies.FindByID(ctx, companyID)
}

func (s *CompanyService) Update(ctx context.Context, op domain.Operator, companyID string, req *domain.CompanyRequest) (*domain.Company, error) {
	company, err := s.Get(ctx, op, companyID)
	if err != nil {
		return nil, err
	}
	if err := checkLocation(req); err != nil {
		return nil, err
	}

	company.Name = req.Name
	company.Latitude = req.Latitude
	company.Longitude = req.Longitude
	if err := s.store.Companies.Update(ctx, company); err != nil {
		return nil, err
	}
	s.playlists.Invalidate()

	s.notifier.ToAdmins(company.ID, websocket.TypeCompanyUpdated, websocket.EntityPayload{
		ID:        company.ID,
		CompanyID: company.ID,
		Data:      company,
	})
	return company, nil
}

// Delete removes an empty company. Devices and campaigns must be deleted
// first.
func (s *CompanyService) Delete(ctx context.Context, op domain.Operator, companyID string) error {
	if !op.IsSuperAdmin() {
		return domain.ErrForbidden
	}
	if _, err := s.store.Companies.FindByID(ctx, companyID); err != nil {
		return err
	}

	devices, err := s.store.Devices.CountByCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if devices > 0 {
		return fmt.Errorf("%w: company still has %d devices", domain.ErrConflict, devices)
	}
	campaigns, err := s.store.Campaigns.List(ctx, companyID)
	if err != nil {
		return err
	}
	if len(campaigns) > 0 {
		return fmt.Errorf("%w: company still has %d campaigns", domain.ErrConflict, len(campaigns))
	}

	if err := s.store.Companies.Delete(ctx, companyID); err != nil {
		return err
	}
	s.notifier.ToAdmins(companyID, websocket.TypeCompanyDeleted, websocket.EntityPayload{ID: companyID, CompanyID: companyID})
	s.log.WithField("company_id", companyID).Info("Company deleted")
	return nil
}

func (s *CompanyService) CreateSector(ctx context.Context, op domain.Operator, companyID string, req *domain.SectorRequest) (*domain.Sector, error) {
	if _, err := s.Get(ctx, op, companyID); err != nil {
		return nil, err
	}

	sector := &domain.Sector{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		Name:      req.Name,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.Companies.CreateSector(ctx, sector); err != nil {
		return nil, err
	}

	s.notifyCompanyChanged(ctx, companyID)
	return sector, nil
}

// DeleteSector detaches the sector's devices and campaign targets before
// removing it. Affected online devices get a fresh playlist.
func (s *CompanyService) DeleteSector(ctx context.Context, op domain.Operator, companyID, sectorID string) error {
	if _, err := s.Get(ctx, op, companyID); err != nil {
		return err
	}
	sector, err := s.store.Companies.FindSector(ctx, sectorID)
	if err != nil {
		return err
	}
	if sector.CompanyID != companyID {
		return fmt.Errorf("sector: %w", domain.ErrNotFound)
	}

	if err := s.checkSectorTargets(ctx, companyID, sectorID); err != nil {
		return err
	}

	devices, err := s.store.Devices.List(ctx, companyID)
	if err != nil {
		return err
	}
	var affected []*domain.Device
	for _, d := range devices {
		if d.SectorID != nil && *d.SectorID == sectorID {
			affected = append(affected, d)
		}
	}

	err = s.store.WithTx(ctx, func(tx *repository.Store) error {
		if err := tx.Devices.ClearSector(ctx, sectorID); err != nil {
			return err
		}
		if err := tx.Campaigns.DeleteSectorTargets(ctx, sectorID); err != nil {
			return err
		}
		return tx.Companies.DeleteSector(ctx, sectorID)
	})
	if err != nil {
		return fmt.Errorf("delete sector: %w", err)
	}
	s.playlists.Invalidate()

	hub := s.notifier.Hub()
	for _, d := range affected {
		d.SectorID = nil
		snapshot, err := s.sessions.Snapshot(ctx, d)
		if err != nil {
			s.log.WithError(err).WithField("device_id", d.ID).Warn("Failed to refresh device status")
			continue
		}
		hub.UpdateDeviceStatus(snapshot)
		if hub.IsOnline(d.ID) {
			if err := s.playlists.Push(ctx, d.Identity(), websocket.TypePlaylistUpdate); err != nil {
				s.log.WithError(err).WithField("device_id", d.ID).Warn("Playlist push after sector removal failed")
			}
		}
	}

	s.notifyCompanyChanged(ctx, companyID)
	return nil
}

// checkSectorTargets refuses to drop a sector that is the only target of a
// campaign, which would turn that campaign company-wide.
func (s *CompanyService) checkSectorTargets(ctx context.Context, companyID, sectorID string) error {
	campaigns, err := s.store.Campaigns.List(ctx, companyID)
	if err != nil {
		return err
	}
	for _, c := range campaigns {
		if len(c.DeviceTargets)+len(c.SectorTargets) != 1 {
			continue
		}
		if len(c.SectorTargets) == 1 && c.SectorTargets[0].SectorID == sectorID {
			return fmt.Errorf("%w: campaign %q targets only this sector", domain.ErrConflict, c.Name)
		}
	}
	return nil
}

func (s *CompanyService) notifyCompanyChanged(ctx context.Context, companyID string) {
	company, err := s.store.Companies.FindByID(ctx, companyID)
	if err != nil {
		s.log.WithError(err).WithField("company_id", companyID).Warn("Failed to reload company")
		return
	}
	s.notifier.ToAdmins(companyID, websocket.TypeCompanyUpdated, websocket.EntityPayload{
		ID:        companyID,
		CompanyID: companyID,
		Data:      company,
	})
}
