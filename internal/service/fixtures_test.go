package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signage-fleet-server/internal/config"
	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/internal/scheduler"
	"signage-fleet-server/internal/websocket"
)

const testSecret = "test-secret-key"

func newTestStore(t *testing.T) *repository.Store {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	store := repository.NewStore(db)
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// mockHub records everything services push.
type mockHub struct {
	mu           sync.Mutex
	online       map[string]domain.DeviceIdentity
	deviceMsgs   map[string][]*websocket.Message
	adminMsgs    []*websocket.Message
	statuses     map[string]domain.DeviceSnapshot
	disconnected []string
	removed      []string
}

func newMockHub() *mockHub {
	return &mockHub{
		online:     make(map[string]domain.DeviceIdentity),
		deviceMsgs: make(map[string][]*websocket.Message),
		statuses:   make(map[string]domain.DeviceSnapshot),
	}
}

func (h *mockHub) connect(id domain.DeviceIdentity) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.online[id.ID] = id
}

func (h *mockHub) SendToDevice(deviceID string, msg *websocket.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.online[deviceID]; ok {
		h.deviceMsgs[deviceID] = append(h.deviceMsgs[deviceID], msg)
	}
	return nil
}

func (h *mockHub) BroadcastToAdmins(companyID string, msg *websocket.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.adminMsgs = append(h.adminMsgs, msg)
	return nil
}

func (h *mockHub) BroadcastToDevices(companyID string, msg *websocket.Message) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, identity := range h.online {
		if companyID == "" || identity.CompanyID == companyID {
			h.deviceMsgs[id] = append(h.deviceMsgs[id], msg)
		}
	}
	return nil
}

func (h *mockHub) OnlineDevices(companyID string) []domain.DeviceIdentity {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []domain.DeviceIdentity
	for _, identity := range h.online {
		if companyID == "" || identity.CompanyID == companyID {
			out = append(out, identity)
		}
	}
	return out
}

func (h *mockHub) IsOnline(deviceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.online[deviceID]
	return ok
}

func (h *mockHub) UpdateDeviceStatus(snapshot domain.DeviceSnapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statuses[snapshot.DeviceID] = snapshot
}

func (h *mockHub) RemoveDevice(deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.statuses, deviceID)
	h.removed = append(h.removed, deviceID)
}

func (h *mockHub) DisconnectDevice(deviceID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.online, deviceID)
	h.disconnected = append(h.disconnected, deviceID)
}

func (h *mockHub) messagesFor(deviceID string) []websocket.MessageType {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []websocket.MessageType
	for _, m := range h.deviceMsgs[deviceID] {
		out = append(out, m.Type)
	}
	return out
}

func (h *mockHub) lastFor(deviceID string) *websocket.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.deviceMsgs[deviceID]
	if len(msgs) == 0 {
		return nil
	}
	return msgs[len(msgs)-1]
}

func (h *mockHub) adminTypes() []websocket.MessageType {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []websocket.MessageType
	for _, m := range h.adminMsgs {
		out = append(out, m.Type)
	}
	return out
}

func (h *mockHub) status(deviceID string) (domain.DeviceSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.statuses[deviceID]
	return s, ok
}

func containsType(types []websocket.MessageType, want websocket.MessageType) bool {
	for _, t := range types {
		if t == want {
			return true
		}
	}
	return false
}

type mockCatalog struct {
	groups []domain.ProductGroup
	err    error
}

func (m *mockCatalog) ProductGroups(ctx context.Context, companyID string) ([]domain.ProductGroup, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.groups, nil
}

type mockWeather struct {
	snapshot *domain.WeatherSnapshot
	err      error
	calls    int
}

func (m *mockWeather) Current(ctx context.Context, lat, lon float64) (*domain.WeatherSnapshot, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.snapshot, nil
}

var errUpstream = errors.New("upstream unavailable")

type testEnv struct {
	store     *repository.Store
	hub       *mockHub
	notifier  *Notifier
	tokens    *TokenService
	sessions  *SessionService
	playlists *PlaylistService
	pairing   *PairingService
	devices   *DeviceService
	companies *CompanyService
	campaigns *CampaignService
	scheduler *scheduler.Scheduler
	catalog   *mockCatalog
	weather   *mockWeather
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:   newTestStore(t),
		hub:     newMockHub(),
		catalog: &mockCatalog{},
		weather: &mockWeather{snapshot: &domain.WeatherSnapshot{Temperature: 21.5, WeatherCode: 1, IsDay: true}},
	}
	env.notifier = NewNotifier(env.hub)
	env.tokens = NewTokenService(testSecret, 15*time.Minute, 24*time.Hour)
	env.sessions = NewSessionService(env.store, env.tokens, env.notifier, nil)
	env.playlists = NewPlaylistService(env.store, env.catalog, env.weather, env.notifier, time.Minute)
	tickets := repository.NewMemoryTicketRepository()
	t.Cleanup(func() { tickets.Close() })
	env.pairing = NewPairingService(env.store, tickets, env.sessions, env.notifier, nil, config.PairingConfig{
		CodeTTL:         10 * time.Minute,
		MagicLinkTTL:    24 * time.Hour,
		SocketTicketTTL: 30 * time.Second,
	}, "https://fleet.example.com")
	env.devices = NewDeviceService(env.store, env.sessions, env.playlists, env.notifier, nil)
	env.companies = NewCompanyService(env.store, env.sessions, env.playlists, env.notifier)
	env.scheduler = scheduler.New(NewCampaignTransitions(env.notifier, env.playlists, nil))
	env.campaigns = NewCampaignService(env.store, env.scheduler, env.playlists, env.notifier)
	t.Cleanup(env.scheduler.Stop)
	return env
}

var superAdmin = domain.Operator{UserID: "root", Role: domain.RoleSuperAdmin}

func operatorOf(companyID string) domain.Operator {
	return domain.Operator{UserID: "op-" + companyID, CompanyID: companyID, Role: "admin"}
}

func (e *testEnv) seedCompany(t *testing.T) *domain.Company {
	t.Helper()
	now := time.Now().UTC()
	c := &domain.Company{ID: uuid.NewString(), Name: "Acme", CreatedAt: now, UpdatedAt: now}
	if err := e.store.Companies.Create(context.Background(), c); err != nil {
		t.Fatalf("failed to create company: %v", err)
	}
	return c
}

func (e *testEnv) seedSector(t *testing.T, companyID string) *domain.Sector {
	t.Helper()
	s := &domain.Sector{ID: uuid.NewString(), CompanyID: companyID, Name: "Bakery", CreatedAt: time.Now().UTC()}
	if err := e.store.Companies.CreateSector(context.Background(), s); err != nil {
		t.Fatalf("failed to create sector: %v", err)
	}
	return s
}

func (e *testEnv) seedDevice(t *testing.T, companyID string, sectorID *string, deviceType domain.DeviceType) *domain.Device {
	t.Helper()
	d := &domain.Device{
		ID:           uuid.NewString(),
		CompanyID:    companyID,
		SectorID:     sectorID,
		Name:         "Screen",
		DeviceType:   deviceType,
		IsActive:     true,
		SecretHash:   "unused",
		RegisteredAt: time.Now().UTC(),
	}
	if err := e.store.Devices.Create(context.Background(), d); err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	return d
}

// startSession pairs a device directly and returns its tokens.
func (e *testEnv) startSession(t *testing.T, deviceID string) *domain.TokenPair {
	t.Helper()
	var pair *domain.TokenPair
	err := e.store.WithTx(context.Background(), func(tx *repository.Store) error {
		p, err := e.sessions.StartSession(context.Background(), tx, deviceID)
		pair = p
		return err
	})
	if err != nil {
		t.Fatalf("StartSession() error = %v", err)
	}
	return pair
}

func intPtr(v int) *int { return &v }

func liveCampaignRequest(name string) *domain.CampaignRequest {
	now := time.Now().UTC()
	return &domain.CampaignRequest{
		Name:       name,
		StartDate:  now.Add(-time.Hour),
		EndDate:    now.Add(time.Hour),
		LayoutType: domain.LayoutFullscreen,
		Media: []domain.MediaRequest{
			{FileURL: "https://cdn.example.com/a.png", FileType: "image", Zone: domain.ZoneMain, Duration: intPtr(10)},
		},
	}
}
