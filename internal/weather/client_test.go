package weather

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"signage-fleet-server/internal/config"
)

func TestCurrent(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.URL.Path != "/v1/forecast" {
			t.Errorf("path = %s, want /v1/forecast", r.URL.Path)
		}
		if r.URL.Query().Get("latitude") != "-23.5505" {
			t.Errorf("latitude = %s", r.URL.Query().Get("latitude"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"current":{"temperature_2m":24.3,"weather_code":2,"wind_speed_10m":7.1,"is_day":1}}`))
	}))
	defer srv.Close()

	c := NewClient(config.WeatherConfig{BaseURL: srv.URL, Timeout: time.Second, CacheTTL: time.Minute})

	got, err := c.Current(context.Background(), -23.5505, -46.6333)
	if err != nil {
		t.Fatalf("Current() error = %v", err)
	}
	if got.Temperature != 24.3 || got.WeatherCode != 2 || !got.IsDay {
		t.Errorf("Current() = %+v", got)
	}

	if _, err := c.Current(context.Background(), -23.5505, -46.6333); err != nil {
		t.Fatalf("Current() cached error = %v", err)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("upstream calls = %d, want 1 (second call cached)", n)
	}
}

func TestCurrentUpstreamFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(config.WeatherConfig{BaseURL: srv.URL, Timeout: time.Second})
	if _, err := c.Current(context.Background(), 1, 2); err == nil {
		t.Error("Current() expected error on 502")
	}
}
