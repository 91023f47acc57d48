package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/service"
	"signage-fleet-server/pkg/jwt"
)

type fakeAuthenticator struct {
	result *service.AuthResult
	err    error

	gotAccess  string
	gotRefresh string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, access, refresh string) (*service.AuthResult, error) {
	f.gotAccess = access
	f.gotRefresh = refresh
	return f.result, f.err
}

func cookieByName(cookies []*http.Cookie, name string) *http.Cookie {
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestDeviceAuth_AcceptsAndStoresDevice(t *testing.T) {
	device := &domain.Device{ID: "dev-1", IsActive: true}
	auth := &fakeAuthenticator{result: &service.AuthResult{Device: device}}

	var seen *domain.Device
	h := DeviceAuth(auth, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = DeviceFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/device/me", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "access"})
	req.AddCookie(&http.Cookie{Name: RefreshTokenCookie, Value: "refresh"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen == nil || seen.ID != "dev-1" {
		t.Fatalf("device in context = %+v", seen)
	}
	if auth.gotAccess != "access" || auth.gotRefresh != "refresh" {
		t.Errorf("cookies not forwarded: %q %q", auth.gotAccess, auth.gotRefresh)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("no cookies should be set without rotation")
	}
}

func TestDeviceAuth_SetsRotatedCookies(t *testing.T) {
	pair := &domain.TokenPair{
		DeviceID:         "dev-1",
		AccessToken:      "new-access",
		RefreshToken:     "new-refresh",
		ExpiresIn:        900,
		RefreshExpiresIn: 7776000,
	}
	auth := &fakeAuthenticator{result: &service.AuthResult{Device: &domain.Device{ID: "dev-1"}, Rotated: pair}}
	h := DeviceAuth(auth, true)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	cookies := rec.Result().Cookies()
	access := cookieByName(cookies, AccessTokenCookie)
	refresh := cookieByName(cookies, RefreshTokenCookie)
	if access == nil || refresh == nil {
		t.Fatalf("missing cookies: %v", cookies)
	}
	if access.Value != "new-access" || access.MaxAge != 900 {
		t.Errorf("access cookie = %+v", access)
	}
	if refresh.Value != "new-refresh" || refresh.MaxAge != 7776000 {
		t.Errorf("refresh cookie = %+v", refresh)
	}
	if !access.HttpOnly || !access.Secure || access.SameSite != http.SameSiteLaxMode {
		t.Errorf("access cookie flags = %+v", access)
	}
}

func TestDeviceAuth_Failures(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantAction string
		wantClear  bool
	}{
		{"expired", domain.ErrSessionExpired, http.StatusUnauthorized, "SESSION_EXPIRED", "re-pair", true},
		{"compromised", domain.ErrSessionCompromised, http.StatusUnauthorized, "SESSION_COMPROMISED", "re-pair", true},
		{"storage", errors.New("db down"), http.StatusInternalServerError, "SESSION_ERROR", "retry", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			h := DeviceAuth(&fakeAuthenticator{err: tt.err}, false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			if called {
				t.Fatal("next handler must not run")
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			body := rec.Body.String()
			if !strings.Contains(body, `"code":"`+tt.wantCode+`"`) || !strings.Contains(body, `"action":"`+tt.wantAction+`"`) {
				t.Errorf("body = %s", body)
			}
			if strings.Contains(body, "db down") {
				t.Error("storage detail leaked to the device")
			}
			cleared := cookieByName(rec.Result().Cookies(), AccessTokenCookie) != nil
			if cleared != tt.wantClear {
				t.Errorf("cookies cleared = %v, want %v", cleared, tt.wantClear)
			}
		})
	}
}

func TestAuthMiddleware(t *testing.T) {
	secret := "operator-secret"
	companyToken, _ := jwt.GenerateOperatorToken("user-1", "company-1", "admin", time.Hour, secret)
	expired, _ := jwt.GenerateOperatorToken("user-1", "company-1", "admin", -time.Hour, secret)

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", "Bearer " + companyToken, http.StatusOK},
		{"lowercase scheme", "bearer " + companyToken, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"malformed", companyToken, http.StatusUnauthorized},
		{"expired", "Bearer " + expired, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + mustOperatorToken(t, "other"), http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var op domain.Operator
			h := AuthMiddleware(secret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				op, _ = GetOperator(r)
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && (op.UserID != "user-1" || op.CompanyID != "company-1") {
				t.Errorf("operator = %+v", op)
			}
		})
	}
}

func mustOperatorToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.GenerateOperatorToken("user-1", "", jwt.RoleSuperAdmin, time.Hour, secret)
	if err != nil {
		t.Fatalf("GenerateOperatorToken() error = %v", err)
	}
	return token
}

func TestCORSMiddleware(t *testing.T) {
	h := CORSMiddleware("https://admin.example.com, https://ops.example.com", "GET,POST", "Content-Type")(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://ops.example.com" {
		t.Errorf("allow origin = %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "ETag" {
		t.Errorf("expose headers = %q", got)
	}
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("preflight status = %d", rec.Code)
	}
}
