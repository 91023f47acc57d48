package service

import (
	"context"
	"fmt"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/metrics"
	"signage-fleet-server/internal/playlist"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/internal/websocket"
)

type CatalogSource interface {
	ProductGroups(ctx context.Context, companyID string) ([]domain.ProductGroup, error)
}

type WeatherSource interface {
	Current(ctx context.Context, lat, lon float64) (*domain.WeatherSnapshot, error)
}

// Resolution is a resolved playlist with its entity tag. Playlist is nil
// when nothing is live for the device.
type Resolution struct {
	Playlist *domain.Playlist
	ETag     string
}

// PlaylistService resolves what a device should be playing right now.
// Catalog and weather are optional; their failures degrade the playlist
// instead of failing it.
type PlaylistService struct {
	store    *repository.Store
	catalog  CatalogSource
	weather  WeatherSource
	notifier *Notifier
	cache    *ttlcache.Cache[string, *Resolution]
	now      func() time.Time
	log      *logrus.Entry
}

func NewPlaylistService(store *repository.Store, catalog CatalogSource, weather WeatherSource, notifier *Notifier, cacheTTL time.Duration) *PlaylistService {
	return &PlaylistService{
		store:    store,
		catalog:  catalog,
		weather:  weather,
		notifier: notifier,
		cache: ttlcache.New[string, *Resolution](
			ttlcache.WithTTL[string, *Resolution](cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, *Resolution](),
		),
		now: time.Now,
		log: logrus.WithField("component", "playlist"),
	}
}

// Resolve always reads fresh state.
func (s *PlaylistService) Resolve(ctx context.Context, device domain.DeviceIdentity) (*domain.Playlist, error) {
	now := s.now()

	campaigns, err := s.store.Campaigns.ListLive(ctx, device.CompanyID, now)
	if err != nil {
		metrics.PlaylistResolutionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resolve playlist: %w", err)
	}

	winner := playlist.SelectCampaign(campaigns, device, now)
	if winner == nil {
		metrics.PlaylistResolutionsTotal.WithLabelValues("empty").Inc()
		return nil, nil
	}

	media, err := s.store.Campaigns.Media(ctx, winner.ID)
	if err != nil {
		metrics.PlaylistResolutionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("resolve playlist media: %w", err)
	}

	in := playlist.Inputs{
		Campaign:   winner,
		Media:      media,
		DeviceType: device.Type,
	}
	if device.Type == domain.DeviceTypeDigitalMenu {
		in.Groups = s.productGroups(ctx, device.CompanyID)
	}
	if winner.LayoutType == domain.LayoutSplit8020Weather {
		in.Weather = s.currentWeather(ctx, device.CompanyID)
	}

	metrics.PlaylistResolutionsTotal.WithLabelValues("resolved").Inc()
	return playlist.Build(in), nil
}

func (s *PlaylistService) productGroups(ctx context.Context, companyID string) []domain.ProductGroup {
	if s.catalog == nil {
		return nil
	}
	groups, err := s.catalog.ProductGroups(ctx, companyID)
	if err != nil {
		metrics.CollaboratorFailuresTotal.WithLabelValues("catalog").Inc()
		s.log.WithError(err).WithField("company_id", companyID).Warn("Catalog unavailable, serving plain media")
		return nil
	}
	return groups
}

func (s *PlaylistService) currentWeather(ctx context.Context, companyID string) *domain.WeatherSnapshot {
	if s.weather == nil {
		return nil
	}
	company, err := s.store.Companies.FindByID(ctx, companyID)
	if err != nil {
		s.log.WithError(err).WithField("company_id", companyID).Warn("Company lookup for weather failed")
		return nil
	}
	if !company.HasLocation() {
		return nil
	}
	snapshot, err := s.weather.Current(ctx, *company.Latitude, *company.Longitude)
	if err != nil {
		metrics.CollaboratorFailuresTotal.WithLabelValues("weather").Inc()
		s.log.WithError(err).WithField("company_id", companyID).Warn("Weather unavailable")
		return nil
	}
	return snapshot
}

// ResolveCached serves the HTTP path from a short-lived cache.
func (s *PlaylistService) ResolveCached(ctx context.Context, device domain.DeviceIdentity) (*Resolution, error) {
	key := cacheKey(device)
	if item := s.cache.Get(key); item != nil {
		metrics.PlaylistResolutionsTotal.WithLabelValues("cached").Inc()
		return item.Value(), nil
	}

	p, err := s.Resolve(ctx, device)
	if err != nil {
		return nil, err
	}
	tag, err := playlist.ETag(p)
	if err != nil {
		return nil, fmt.Errorf("playlist etag: %w", err)
	}

	res := &Resolution{Playlist: p, ETag: tag}
	s.cache.Set(key, res, ttlcache.DefaultTTL)
	return res, nil
}

func cacheKey(device domain.DeviceIdentity) string {
	sector := ""
	if device.SectorID != nil {
		sector = *device.SectorID
	}
	return device.ID + "|" + string(device.Type) + "|" + sector
}

// ResolveForDevice loads the device and resolves its playlist.
func (s *PlaylistService) ResolveForDevice(ctx context.Context, deviceID string) (*domain.Device, *domain.Playlist, error) {
	device, err := s.store.Devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, nil, err
	}
	p, err := s.Resolve(ctx, device.Identity())
	if err != nil {
		return nil, nil, err
	}
	return device, p, nil
}

// Push resolves fresh and sends the result to one device.
func (s *PlaylistService) Push(ctx context.Context, device domain.DeviceIdentity, msgType websocket.MessageType) error {
	return s.PushCampaign(ctx, device, msgType, "")
}

// PushCampaign is Push for a message about a specific campaign. The payload
// names that campaign while the playlist holds whatever is now live.
func (s *PlaylistService) PushCampaign(ctx context.Context, device domain.DeviceIdentity, msgType websocket.MessageType, campaignID string) error {
	p, err := s.Resolve(ctx, device)
	if err != nil {
		return err
	}
	payload := websocket.PlaylistPayload{CampaignID: campaignID, Playlist: p}
	if payload.CampaignID == "" && p != nil {
		payload.CampaignID = p.CampaignID
	}
	s.notifier.ToDevice(device.ID, msgType, payload)
	return nil
}

// Invalidate drops every cached resolution.
func (s *PlaylistService) Invalidate() {
	s.cache.DeleteAll()
}

// HandleWebSocketMessage answers REQUEST_PLAYLIST from a device socket.
func (s *PlaylistService) HandleWebSocketMessage(ctx context.Context, client *websocket.Client, msg *websocket.Message) error {
	switch msg.Type {
	case websocket.TypeRequestPlaylist:
		device, err := s.store.Devices.FindByID(ctx, client.DeviceID)
		if err != nil {
			return err
		}
		if !device.IsActive {
			return domain.ErrDeviceInactive
		}
		return s.Push(ctx, device.Identity(), websocket.TypePlaylistUpdate)
	default:
		s.log.WithFields(logrus.Fields{"type": msg.Type, "device_id": client.DeviceID}).Debug("Ignoring unknown message")
		return nil
	}
}
