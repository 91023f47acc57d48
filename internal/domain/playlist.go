package domain

import "time"

type PlaylistItemKind string

const (
	ItemMedia        PlaylistItemKind = "media"
	ItemProductGroup PlaylistItemKind = "product_group"
)

// Playlist is the resolved content for one device at one instant.
type Playlist struct {
	CampaignID   string           `json:"campaign_id"`
	CampaignName string           `json:"campaign_name"`
	Layout       LayoutType       `json:"layout"`
	DeviceType   DeviceType       `json:"device_type"`
	EndsAt       time.Time        `json:"ends_at"`
	Main         []PlaylistItem   `json:"main"`
	Secondary    []PlaylistItem   `json:"secondary,omitempty"`
	Weather      *WeatherSnapshot `json:"weather,omitempty"`
}

type PlaylistItem struct {
	Kind         PlaylistItemKind `json:"kind"`
	MediaID      string           `json:"media_id,omitempty"`
	FileURL      string           `json:"file_url,omitempty"`
	FileType     string           `json:"file_type,omitempty"`
	Duration     *int             `json:"duration,omitempty"`
	ProductGroup *ProductGroup    `json:"product_group,omitempty"`
}

func MediaItem(m MediaUpload) PlaylistItem {
	return PlaylistItem{
		Kind:     ItemMedia,
		MediaID:  m.ID,
		FileURL:  m.FileURL,
		FileType: m.FileType,
		Duration: m.Duration,
	}
}

type ProductGroup struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Position  int       `json:"position"`
	Products  []Product `json:"products"`
}

type Product struct {
	SKU      string  `json:"sku"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Currency string  `json:"currency,omitempty"`
	ImageURL string  `json:"image_url,omitempty"`
}

type WeatherSnapshot struct {
	Temperature float64 `json:"temperature"`
	WeatherCode int     `json:"weather_code"`
	WindSpeed   float64 `json:"wind_speed"`
	IsDay       bool    `json:"is_day"`
}
