package handler

import (
	"net/http"
	"net/url"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/middleware"
	"signage-fleet-server/internal/websocket"
)

type fleet struct {
	company domain.Company
	device  domain.CreateDeviceResponse
}

// seedFleet creates a company, one display player and a live company-wide
// image campaign through the operator API.
func seedFleet(t *testing.T, s *testServer) fleet {
	t.Helper()
	admin := superAdminToken(t)

	var f fleet
	resp := s.call(t, nil, http.MethodPost, "/api/v1/companies", admin, domain.CompanyRequest{Name: "Acme"}, &f.company)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create company status = %d", resp.StatusCode)
	}

	resp = s.call(t, nil, http.MethodPost, "/api/v1/devices", admin, domain.CreateDeviceRequest{
		Name:       "Entrance",
		DeviceType: domain.DeviceTypeDisplayPlayer,
		CompanyID:  f.company.ID,
	}, &f.device)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create device status = %d", resp.StatusCode)
	}
	if f.device.SecretKey == "" {
		t.Fatal("secret key not returned on create")
	}

	ten := 10
	now := time.Now().UTC()
	resp = s.call(t, nil, http.MethodPost, "/api/v1/campaigns", admin, domain.CampaignRequest{
		Name:       "Spring",
		CompanyID:  f.company.ID,
		StartDate:  now.Add(-time.Hour),
		EndDate:    now.Add(time.Hour),
		LayoutType: domain.LayoutFullscreen,
		Media: []domain.MediaRequest{
			{FileURL: "https://cdn.example.com/spring.png", FileType: "image", Zone: domain.ZoneMain, Duration: &ten},
		},
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create campaign status = %d", resp.StatusCode)
	}
	return f
}

func TestPairingCodeToPlaylistOverSocket(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	var code domain.PairingCodeResponse
	resp := s.call(t, nil, http.MethodPost, "/api/v1/devices/"+f.device.Device.ID+"/pairing-code", superAdminToken(t), nil, &code)
	if resp.StatusCode != http.StatusCreated || len(code.Code) != 6 {
		t.Fatalf("pairing code status = %d, code = %q", resp.StatusCode, code.Code)
	}

	device := s.deviceClient(t)
	var pair domain.TokenPair
	resp = s.call(t, device, http.MethodPost, "/api/v1/pair/code", "", domain.PairCodeRequest{Code: code.Code}, &pair)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pair status = %d", resp.StatusCode)
	}
	if pair.DeviceID != f.device.Device.ID {
		t.Fatalf("paired device = %q, want %q", pair.DeviceID, f.device.Device.ID)
	}

	var ticket domain.SocketTicketResponse
	resp = s.call(t, device, http.MethodGet, "/api/v1/device/socket-ticket", "", nil, &ticket)
	if resp.StatusCode != http.StatusOK || ticket.Ticket == "" {
		t.Fatalf("socket ticket status = %d", resp.StatusCode)
	}

	conn, _, err := ws.DefaultDialer.Dial(s.wsURL("/ws/device?ticket="+url.QueryEscape(ticket.Ticket)), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.Type != websocket.TypeConnectionEstablished {
		t.Fatalf("first message = %s, want %s", msg.Type, websocket.TypeConnectionEstablished)
	}

	if err := conn.WriteJSON(map[string]string{"type": string(websocket.TypeRequestPlaylist)}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	msg := readUntil(t, conn, websocket.TypePlaylistUpdate)
	var payload websocket.PlaylistPayload
	if err := msg.UnmarshalPayload(&payload); err != nil {
		t.Fatalf("UnmarshalPayload() error = %v", err)
	}
	if payload.Playlist == nil || len(payload.Playlist.Main) != 1 {
		t.Fatalf("playlist = %+v", payload.Playlist)
	}
	item := payload.Playlist.Main[0]
	if item.FileType != "image" || item.Duration == nil || *item.Duration != 10 {
		t.Errorf("item = %+v, want a 10s image", item)
	}

	if !s.manager.IsOnline(f.device.Device.ID) {
		t.Error("device should be online")
	}
}

func TestSocketTicketIsSingleUse(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	device := s.deviceClient(t)
	s.call(t, device, http.MethodPost, "/api/v1/pair", "", domain.PairRequest{DeviceID: f.device.Device.ID, SecretKey: f.device.SecretKey}, nil)

	var ticket domain.SocketTicketResponse
	s.call(t, device, http.MethodGet, "/api/v1/device/socket-ticket", "", nil, &ticket)

	conn, _, err := ws.DefaultDialer.Dial(s.wsURL("/ws/device?ticket="+url.QueryEscape(ticket.Ticket)), nil)
	if err != nil {
		t.Fatalf("first Dial() error = %v", err)
	}
	conn.Close()

	_, resp, err := ws.DefaultDialer.Dial(s.wsURL("/ws/device?ticket="+url.QueryEscape(ticket.Ticket)), nil)
	if err == nil {
		t.Fatal("second dial with the same ticket should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("second dial response = %v", resp)
	}
}

func TestDevicePlaylistETag(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	device := s.deviceClient(t)
	resp := s.call(t, device, http.MethodPost, "/api/v1/pair", "", domain.PairRequest{DeviceID: f.device.Device.ID, SecretKey: f.device.SecretKey}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pair status = %d", resp.StatusCode)
	}

	var p domain.Playlist
	resp = s.call(t, device, http.MethodGet, "/api/v1/device/playlist", "", nil, &p)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("playlist status = %d", resp.StatusCode)
	}
	etag := resp.Header.Get("ETag")
	if etag == "" {
		t.Fatal("missing ETag")
	}
	if got := resp.Header.Get("Cache-Control"); got != "no-store" {
		t.Errorf("Cache-Control = %q", got)
	}
	if p.CampaignName != "Spring" {
		t.Errorf("campaign = %q", p.CampaignName)
	}

	req, _ := http.NewRequest(http.MethodGet, s.URL+"/api/v1/device/playlist", nil)
	req.Header.Set("If-None-Match", etag)
	resp, err := device.Do(req)
	if err != nil {
		t.Fatalf("conditional GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotModified {
		t.Errorf("conditional status = %d, want 304", resp.StatusCode)
	}
}

func TestRefreshReplayCompromisesSession(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	var pair domain.TokenPair
	s.call(t, nil, http.MethodPost, "/api/v1/pair", "", domain.PairRequest{DeviceID: f.device.Device.ID, SecretKey: f.device.SecretKey}, &pair)

	meWithRefresh := func(refresh string) *http.Response {
		req, _ := http.NewRequest(http.MethodGet, s.URL+"/api/v1/device/me", nil)
		req.AddCookie(&http.Cookie{Name: middleware.RefreshTokenCookie, Value: refresh})
		resp, err := s.Client().Do(req)
		if err != nil {
			t.Fatalf("GET /device/me error = %v", err)
		}
		return resp
	}

	first := meWithRefresh(pair.RefreshToken)
	defer first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("first refresh status = %d", first.StatusCode)
	}
	var rotated string
	for _, c := range first.Cookies() {
		if c.Name == middleware.RefreshTokenCookie {
			rotated = c.Value
		}
	}
	if rotated == "" || rotated == pair.RefreshToken {
		t.Fatal("refresh cookie not rotated")
	}

	replay := meWithRefresh(pair.RefreshToken)
	defer replay.Body.Close()
	env := decodeEnvelope(t, replay)
	if replay.StatusCode != http.StatusUnauthorized || env.Code != "SESSION_COMPROMISED" || env.Action != "re-pair" {
		t.Fatalf("replay = %d %+v", replay.StatusCode, env)
	}

	after := meWithRefresh(rotated)
	defer after.Body.Close()
	if after.StatusCode != http.StatusUnauthorized {
		t.Errorf("rotated refresh after compromise status = %d, want 401", after.StatusCode)
	}
}

func TestDeviceRoutesRequireSession(t *testing.T) {
	s := newTestServer(t)

	resp := s.call(t, nil, http.MethodGet, "/api/v1/device/me", "", nil, nil)
	env := decodeEnvelope(t, resp)
	if resp.StatusCode != http.StatusUnauthorized || env.Code != "SESSION_EXPIRED" {
		t.Errorf("status = %d, envelope = %+v", resp.StatusCode, env)
	}
}

func TestPairingFailures(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	tests := []struct {
		name       string
		path       string
		body       interface{}
		method     string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong secret",
			method:     http.MethodPost,
			path:       "/api/v1/pair",
			body:       domain.PairRequest{DeviceID: f.device.Device.ID, SecretKey: "not-the-right-secret-key"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_CREDENTIALS",
		},
		{
			name:       "malformed request",
			method:     http.MethodPost,
			path:       "/api/v1/pair",
			body:       map[string]string{"device_id": "nope"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "unknown code",
			method:     http.MethodPost,
			path:       "/api/v1/pair/code",
			body:       domain.PairCodeRequest{Code: "000000"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_CREDENTIALS",
		},
		{
			name:       "unknown magic link",
			method:     http.MethodGet,
			path:       "/api/v1/pair/link/does-not-exist",
			wantStatus: http.StatusUnauthorized,
			wantCode:   "INVALID_CREDENTIALS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := s.call(t, nil, tt.method, tt.path, "", tt.body, nil)
			env := decodeEnvelope(t, resp)
			if resp.StatusCode != tt.wantStatus || env.Code != tt.wantCode {
				t.Errorf("got %d %q, want %d %q", resp.StatusCode, env.Code, tt.wantStatus, tt.wantCode)
			}
			if len(resp.Cookies()) != 0 {
				t.Error("failed pairing must not set cookies")
			}
		})
	}
}

func TestMagicLinkPairs(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	var link domain.MagicLinkResponse
	resp := s.call(t, nil, http.MethodPost, "/api/v1/devices/"+f.device.Device.ID+"/magic-link", superAdminToken(t), nil, &link)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("magic link status = %d", resp.StatusCode)
	}

	device := s.deviceClient(t)
	resp = s.call(t, device, http.MethodGet, "/api/v1/pair/link/"+link.Token, "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pair via link status = %d", resp.StatusCode)
	}

	var me domain.DeviceResponse
	resp = s.call(t, device, http.MethodGet, "/api/v1/device/me", "", nil, &me)
	if resp.StatusCode != http.StatusOK || me.ID != f.device.Device.ID {
		t.Fatalf("me = %d %+v", resp.StatusCode, me)
	}

	resp = s.call(t, s.deviceClient(t), http.MethodGet, "/api/v1/pair/link/"+link.Token, "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("reused link status = %d, want 401", resp.StatusCode)
	}
}

func TestOperatorScoping(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	var other domain.Company
	s.call(t, nil, http.MethodPost, "/api/v1/companies", superAdminToken(t), domain.CompanyRequest{Name: "Other"}, &other)

	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		wantStatus int
	}{
		{"no token", http.MethodGet, "/api/v1/devices", "", http.StatusUnauthorized},
		{"own device", http.MethodGet, "/api/v1/devices/" + f.device.Device.ID, companyToken(t, f.company.ID), http.StatusOK},
		{"foreign device", http.MethodGet, "/api/v1/devices/" + f.device.Device.ID, companyToken(t, other.ID), http.StatusNotFound},
		{"company create needs superadmin", http.MethodPost, "/api/v1/companies", companyToken(t, f.company.ID), http.StatusForbidden},
		{"company with devices cannot be deleted", http.MethodDelete, "/api/v1/companies/" + f.company.ID, superAdminToken(t), http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body interface{}
			if tt.method == http.MethodPost {
				body = domain.CompanyRequest{Name: "Sneaky"}
			}
			resp := s.call(t, nil, tt.method, tt.path, tt.token, body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

func TestCampaignValidationIsVerbatim(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	now := time.Now().UTC()
	resp := s.call(t, nil, http.MethodPost, "/api/v1/campaigns", companyToken(t, f.company.ID), domain.CampaignRequest{
		Name:       "No duration",
		StartDate:  now,
		EndDate:    now.Add(time.Hour),
		LayoutType: domain.LayoutFullscreen,
		Media: []domain.MediaRequest{
			{FileURL: "https://cdn.example.com/x.png", FileType: "image", Zone: domain.ZoneMain},
		},
	}, nil)
	env := decodeEnvelope(t, resp)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if env.Error == "" || env.Error == "Internal server error" {
		t.Errorf("error = %q, want the validation message", env.Error)
	}
}

func TestRevokeClosesDeviceSocket(t *testing.T) {
	s := newTestServer(t)
	f := seedFleet(t, s)

	device := s.deviceClient(t)
	s.call(t, device, http.MethodPost, "/api/v1/pair", "", domain.PairRequest{DeviceID: f.device.Device.ID, SecretKey: f.device.SecretKey}, nil)
	var ticket domain.SocketTicketResponse
	s.call(t, device, http.MethodGet, "/api/v1/device/socket-ticket", "", nil, &ticket)

	conn, _, err := ws.DefaultDialer.Dial(s.wsURL("/ws/device?ticket="+url.QueryEscape(ticket.Ticket)), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	readUntil(t, conn, websocket.TypeConnectionEstablished)

	resp := s.call(t, nil, http.MethodPost, "/api/v1/devices/"+f.device.Device.ID+"/revoke", superAdminToken(t), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("revoke status = %d", resp.StatusCode)
	}

	readUntil(t, conn, websocket.TypeRevoked)

	resp = s.call(t, device, http.MethodGet, "/api/v1/device/me", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("revoked device status = %d, want 401", resp.StatusCode)
	}
}

func TestAdminSocketReceivesSnapshot(t *testing.T) {
	s := newTestServer(t)
	seedFleet(t, s)

	conn, _, err := ws.DefaultDialer.Dial(s.wsURL("/ws/admin?token="+url.QueryEscape(superAdminToken(t))), nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	msg := readMessage(t, conn)
	if msg.Type != websocket.TypeDeviceStatusSnapshot {
		t.Fatalf("first admin message = %s", msg.Type)
	}

	_, resp, err := ws.DefaultDialer.Dial(s.wsURL("/ws/admin?token=garbage"), nil)
	if err == nil {
		t.Fatal("dial with a bad token should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token response = %v", resp)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/health", "/metrics", "/"} {
		resp := s.call(t, nil, http.MethodGet, path, "", nil, nil)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s status = %d", path, resp.StatusCode)
		}
	}
}

func TestETagMatches(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{"", false},
		{`"abc"`, true},
		{`"xyz", "abc"`, true},
		{`W/"abc"`, true},
		{"*", true},
		{`"xyz"`, false},
	}
	for _, tt := range tests {
		if got := etagMatches(tt.header, `"abc"`); got != tt.want {
			t.Errorf("etagMatches(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
