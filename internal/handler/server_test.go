package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"signage-fleet-server/internal/config"
	"signage-fleet-server/internal/repository"
	"signage-fleet-server/internal/scheduler"
	"signage-fleet-server/internal/service"
	"signage-fleet-server/internal/websocket"
	"signage-fleet-server/pkg/jwt"
)

const (
	deviceSecret   = "device-test-secret"
	operatorSecret = "operator-test-secret"
)

type testServer struct {
	*httptest.Server
	store   *repository.Store
	manager *websocket.Manager
}

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

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Env: "test", PublicURL: "http://fleet.test"},
		JWT: config.JWTConfig{
			Secret:                 deviceSecret,
			OperatorSecret:         operatorSecret,
			Expiration:             15 * time.Minute,
			RefreshTokenExpiration: 24 * time.Hour,
		},
		WebSocket: config.WebSocketConfig{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			MaxMessageSize:  65536,
			WriteWait:       time.Second,
			PongWait:        5 * time.Second,
			PingPeriod:      4 * time.Second,
			SendBuffer:      64,
		},
		Pairing: config.PairingConfig{
			CodeTTL:         10 * time.Minute,
			MagicLinkTTL:    time.Hour,
			SocketTicketTTL: 30 * time.Second,
		},
		RateLimit: config.RateLimitConfig{Enabled: true, PairRequestsPerMinute: 100},
		CORS: config.CORSConfig{
			AllowedOrigins: "*",
			AllowedMethods: "GET,POST,PUT,DELETE,OPTIONS",
			AllowedHeaders: "Content-Type,Authorization,If-None-Match",
		},
	}
}

// newTestServer wires the full API over an in-memory store and a live
// connection manager.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testConfig()
	store := newTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	manager := websocket.NewManager(websocket.Options{
		WriteWait:      cfg.WebSocket.WriteWait,
		PongWait:       cfg.WebSocket.PongWait,
		PingPeriod:     cfg.WebSocket.PingPeriod,
		MaxMessageSize: cfg.WebSocket.MaxMessageSize,
		SendBuffer:     cfg.WebSocket.SendBuffer,
	})

	notifier := service.NewNotifier(manager)
	tokens := service.NewTokenService(cfg.JWT.Secret, cfg.JWT.Expiration, cfg.JWT.RefreshTokenExpiration)
	sessions := service.NewSessionService(store, tokens, notifier, nil)
	playlists := service.NewPlaylistService(store, nil, nil, notifier, time.Minute)
	tickets := repository.NewMemoryTicketRepository()
	pairing := service.NewPairingService(store, tickets, sessions, notifier, nil, cfg.Pairing, cfg.Server.PublicURL)
	devices := service.NewDeviceService(store, sessions, playlists, notifier, nil)
	companies := service.NewCompanyService(store, sessions, playlists, notifier)
	sched := scheduler.New(service.NewCampaignTransitions(notifier, playlists, nil))
	campaigns := service.NewCampaignService(store, sched, playlists, notifier)

	manager.SetMessageHandler(playlists)
	manager.SetPresenceRecorder(devices)
	go manager.Run(ctx)

	router := NewRouter(cfg, Handlers{
		Pairing:       NewPairingHandler(pairing, false),
		DeviceSession: NewDeviceSessionHandler(devices, pairing, playlists),
		Devices:       NewDeviceHandler(devices),
		Companies:     NewCompanyHandler(companies),
		Campaigns:     NewCampaignHandler(campaigns),
		WebSocket:     NewWebSocketHandler(manager, pairing, cfg.JWT.OperatorSecret, 1024, 1024),
	}, sessions, store)

	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		cancel()
		sched.Stop()
		tickets.Close()
	})
	return &testServer{Server: srv, store: store, manager: manager}
}

func superAdminToken(t *testing.T) string {
	t.Helper()
	token, err := jwt.GenerateOperatorToken("root", "", jwt.RoleSuperAdmin, time.Hour, operatorSecret)
	if err != nil {
		t.Fatalf("GenerateOperatorToken() error = %v", err)
	}
	return token
}

func companyToken(t *testing.T, companyID string) string {
	t.Helper()
	token, err := jwt.GenerateOperatorToken("op-"+companyID, companyID, "admin", time.Hour, operatorSecret)
	if err != nil {
		t.Fatalf("GenerateOperatorToken() error = %v", err)
	}
	return token
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
	Action  string          `json:"action"`
}

func decodeEnvelope(t *testing.T, resp *http.Response) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("bad envelope: %v", err)
	}
	return env
}

// call performs a request and decodes the envelope. out may be nil.
func (s *testServer) call(t *testing.T, client *http.Client, method, path, bearer string, body interface{}, out interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	if err != nil {
		t.Fatalf("NewRequest() error = %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	if client == nil {
		client = s.Client()
	}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if out != nil && len(raw) > 0 {
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("%s %s: bad envelope %q: %v", method, path, raw, err)
		}
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, out); err != nil {
				t.Fatalf("%s %s: bad data %q: %v", method, path, env.Data, err)
			}
		}
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	return resp
}

func (s *testServer) deviceClient(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatalf("cookiejar.New() error = %v", err)
	}
	return &http.Client{Transport: s.Client().Transport, Jar: jar}
}

func (s *testServer) wsURL(path string) string {
	return "ws" + strings.TrimPrefix(s.URL, "http") + path
}

func readMessage(t *testing.T, conn *ws.Conn) *websocket.Message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg websocket.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return &msg
}

// readUntil skips unrelated frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *ws.Conn, want websocket.MessageType) *websocket.Message {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readMessage(t, conn)
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message received", want)
	return nil
}
