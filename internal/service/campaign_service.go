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
)

// CampaignScheduler arms status transition timers.
type CampaignScheduler interface {
	Schedule(campaign *domain.Campaign)
	Cancel(campaignID string)
}

type CampaignService struct {
	store     *repository.Store
	scheduler CampaignScheduler
	playlists *PlaylistService
	notifier  *Notifier
	now       func() time.Time
	log       *logrus.Entry
}

func NewCampaignService(store *repository.Store, scheduler CampaignScheduler, playlists *PlaylistService, notifier *Notifier) *CampaignService {
	return &CampaignService{
		store:     store,
		scheduler: scheduler,
		playlists: playlists,
		notifier:  notifier,
		now:       time.Now,
		log:       logrus.WithField("component", "campaigns"),
	}
}

func (s *CampaignService) Create(ctx context.Context, op domain.Operator, req *domain.CampaignRequest) (*domain.CampaignResponse, error) {
	companyID, err := resolveCompany(op, req.CompanyID)
	if err != nil {
		return nil, err
	}
	if _, err := requireCompany(ctx, s.store, companyID); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	campaign := &domain.Campaign{
		ID:        uuid.NewString(),
		CompanyID: companyID,
		CreatedAt: now,
	}
	if err := s.apply(ctx, campaign, req, now); err != nil {
		return nil, err
	}
	if err := s.store.Campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}

	s.scheduler.Schedule(campaign)
	s.playlists.Invalidate()

	if campaign.StatusAt(now) != domain.CampaignFinished {
		for _, device := range s.onlineTargets(campaign) {
			s.push(ctx, device, websocket.TypeNewCampaign, campaign.ID)
		}
	}

	resp := domain.NewCampaignResponse(campaign, now)
	s.notifier.ToAdmins(companyID, websocket.TypeCampaignCreated, websocket.EntityPayload{
		ID:        campaign.ID,
		CompanyID: companyID,
		Data:      resp,
	})
	s.log.WithFields(logrus.Fields{"campaign_id": campaign.ID, "company_id": companyID}).Info("Campaign created")
	return &resp, nil
}

// apply validates req against the campaign's company and copies it onto
// the campaign, replacing targets and media.
func (s *CampaignService) apply(ctx context.Context, campaign *domain.Campaign, req *domain.CampaignRequest, now time.Time) error {
	if !req.EndDate.After(req.StartDate) {
		return fmt.Errorf("%w: end_date must be after start_date", domain.ErrValidation)
	}
	if !req.LayoutType.Valid() {
		return fmt.Errorf("%w: unknown layout_type %q", domain.ErrValidation, req.LayoutType)
	}

	for _, id := range req.DeviceIDs {
		device, err := s.store.Devices.FindByID(ctx, id)
		if err != nil || device.CompanyID != campaign.CompanyID {
			return fmt.Errorf("%w: device %s is not part of the company", domain.ErrValidation, id)
		}
	}
	for _, id := range req.SectorIDs {
		if err := requireSector(ctx, s.store, campaign.CompanyID, id); err != nil {
			return err
		}
	}

	media := make([]domain.MediaUpload, 0, len(req.Media))
	for i, m := range req.Media {
		duration := m.Duration
		switch m.FileType {
		case "image":
			if duration == nil {
				return fmt.Errorf("%w: media %d: images require a duration", domain.ErrValidation, i)
			}
		case "video":
			duration = nil
		}
		media = append(media, domain.MediaUpload{
			ID:             uuid.NewString(),
			CampaignID:     campaign.ID,
			FileURL:        m.FileURL,
			FileType:       m.FileType,
			Zone:           m.Zone,
			ExecutionOrder: m.ExecutionOrder,
			Duration:       duration,
		})
	}

	campaign.Name = req.Name
	campaign.StartDate = req.StartDate.UTC()
	campaign.EndDate = req.EndDate.UTC()
	campaign.LayoutType = req.LayoutType
	campaign.UpdatedAt = now
	campaign.Media = media
	campaign.DeviceTargets = make([]domain.CampaignDevice, 0, len(req.DeviceIDs))
	for _, id := range uniq(req.DeviceIDs) {
		campaign.DeviceTargets = append(campaign.DeviceTargets, domain.CampaignDevice{CampaignID: campaign.ID, DeviceID: id})
	}
	campaign.SectorTargets = make([]domain.CampaignSector, 0, len(req.SectorIDs))
	for _, id := range uniq(req.SectorIDs) {
		campaign.SectorTargets = append(campaign.SectorTargets, domain.CampaignSector{CampaignID: campaign.ID, SectorID: id})
	}
	return nil
}

func uniq(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func (s *CampaignService) List(ctx context.Context, op domain.Operator) ([]domain.CampaignResponse, error) {
	campaigns, err := s.store.Campaigns.List(ctx, op.ScopeCompany())
	if err != nil {
		return nil, err
	}
	now := s.now()
	out := make([]domain.CampaignResponse, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, domain.NewCampaignResponse(c, now))
	}
	return out, nil
}

func (s *CampaignService) Get(ctx context.Context, op domain.Operator, campaignID string) (*domain.CampaignResponse, error) {
	campaign, err := s.scoped(ctx, op, campaignID)
	if err != nil {
		return nil, err
	}
	resp := domain.NewCampaignResponse(campaign, s.now())
	return &resp, nil
}

func (s *CampaignService) scoped(ctx context.Context, op domain.Operator, campaignID string) (*domain.Campaign, error) {
	campaign, err := s.store.Campaigns.FindByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if !op.CanAccess(campaign.CompanyID) {
		return nil, fmt.Errorf("campaign: %w", domain.ErrNotFound)
	}
	return campaign, nil
}

// Update rewrites a campaign and re-arms its timers. Online devices that were
// or now are targeted get UPDATE_CAMPAIGN while the campaign still applies to
// them and DELETE_CAMPAIGN once it no longer does.
func (s *CampaignService) Update(ctx context.Context, op domain.Operator, campaignID string, req *domain.CampaignRequest) (*domain.CampaignResponse, error) {
	existing, err := s.scoped(ctx, op, campaignID)
	if err != nil {
		return nil, err
	}
	if req.CompanyID != "" && req.CompanyID != existing.CompanyID {
		return nil, fmt.Errorf("%w: a campaign cannot move between companies", domain.ErrValidation)
	}

	now := s.now().UTC()
	updated := &domain.Campaign{
		ID:        existing.ID,
		CompanyID: existing.CompanyID,
		CreatedAt: existing.CreatedAt,
	}
	if err := s.apply(ctx, updated, req, now); err != nil {
		return nil, err
	}
	if err := s.store.Campaigns.Update(ctx, updated); err != nil {
		return nil, err
	}

	s.scheduler.Schedule(updated)
	s.playlists.Invalidate()

	applies := updated.StatusAt(now) != domain.CampaignFinished
	for _, device := range s.notifier.Hub().OnlineDevices(updated.CompanyID) {
		was, is := existing.Targets(device), updated.Targets(device)
		switch {
		case is && applies:
			s.push(ctx, device, websocket.TypeUpdateCampaign, updated.ID)
		case was || is:
			s.push(ctx, device, websocket.TypeDeleteCampaign, updated.ID)
		}
	}

	resp := domain.NewCampaignResponse(updated, now)
	s.notifier.ToAdmins(updated.CompanyID, websocket.TypeCampaignUpdated, websocket.EntityPayload{
		ID:        updated.ID,
		CompanyID: updated.CompanyID,
		Data:      resp,
	})
	return &resp, nil
}

func (s *CampaignService) Delete(ctx context.Context, op domain.Operator, campaignID string) error {
	campaign, err := s.scoped(ctx, op, campaignID)
	if err != nil {
		return err
	}
	targets := s.onlineTargets(campaign)

	if err := s.store.Campaigns.Delete(ctx, campaign.ID); err != nil {
		return err
	}
	s.scheduler.Cancel(campaign.ID)
	s.playlists.Invalidate()

	for _, device := range targets {
		s.push(ctx, device, websocket.TypeDeleteCampaign, campaign.ID)
	}

	s.notifier.ToAdmins(campaign.CompanyID, websocket.TypeCampaignDeleted, websocket.EntityPayload{
		ID:        campaign.ID,
		CompanyID: campaign.CompanyID,
	})
	s.log.WithField("campaign_id", campaign.ID).Info("Campaign deleted")
	return nil
}

func (s *CampaignService) onlineTargets(campaign *domain.Campaign) []domain.DeviceIdentity {
	var out []domain.DeviceIdentity
	for _, device := range s.notifier.Hub().OnlineDevices(campaign.CompanyID) {
		if campaign.Targets(device) {
			out = append(out, device)
		}
	}
	return out
}

func (s *CampaignService) push(ctx context.Context, device domain.DeviceIdentity, msgType websocket.MessageType, campaignID string) {
	if err := s.playlists.PushCampaign(ctx, device, msgType, campaignID); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"device_id":   device.ID,
			"campaign_id": campaignID,
			"type":        msgType,
		}).Warn("Campaign push failed")
	}
}

// CampaignTransitions receives scheduler fires. Admins are told; devices
// are not.
type CampaignTransitions struct {
	notifier  *Notifier
	playlists *PlaylistService
	events    events.Publisher
}

func NewCampaignTransitions(notifier *Notifier, playlists *PlaylistService, publisher events.Publisher) *CampaignTransitions {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &CampaignTransitions{notifier: notifier, playlists: playlists, events: publisher}
}

func (t *CampaignTransitions) CampaignStatusChanged(companyID, campaignID string, status domain.CampaignStatus) {
	t.playlists.Invalidate()
	t.notifier.CampaignStatusChanged(companyID, campaignID, status)
	t.events.Publish(events.Event{
		Type:      events.TypeCampaignStatusTransition,
		CompanyID: companyID,
		Detail:    map[string]string{"campaign_id": campaignID, "status": string(status)},
	})
}
