// Package weather fetches current conditions from an Open-Meteo compatible
// HTTP API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"signage-fleet-server/internal/config"
	"signage-fleet-server/internal/domain"
)

type Client struct {
	baseURL string
	http    *http.Client
	cache   *ttlcache.Cache[string, *domain.WeatherSnapshot]
}

func NewClient(cfg config.WeatherConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		cache: ttlcache.New[string, *domain.WeatherSnapshot](
			ttlcache.WithTTL[string, *domain.WeatherSnapshot](ttl),
			ttlcache.WithDisableTouchOnHit[string, *domain.WeatherSnapshot](),
		),
	}
}

type forecastResponse struct {
	Current struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		IsDay       int     `json:"is_day"`
	} `json:"current"`
}

// Current returns the conditions at a coordinate. Results are cached per
// coordinate rounded to two decimals.
func (c *Client) Current(ctx context.Context, lat, lon float64) (*domain.WeatherSnapshot, error) {
	key := fmt.Sprintf("%.2f,%.2f", lat, lon)
	if item := c.cache.Get(key); item != nil && !item.IsExpired() {
		return item.Value(), nil
	}

	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', 4, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', 4, 64))
	q.Set("current", "temperature_2m,weather_code,wind_speed_10m,is_day")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/forecast?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build weather request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("weather api returned %d", resp.StatusCode)
	}

	var body forecastResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode weather response: %w", err)
	}

	snapshot := &domain.WeatherSnapshot{
		Temperature: body.Current.Temperature,
		WeatherCode: body.Current.WeatherCode,
		WindSpeed:   body.Current.WindSpeed,
		IsDay:       body.Current.IsDay == 1,
	}
	c.cache.Set(key, snapshot, ttlcache.DefaultTTL)
	return snapshot, nil
}
