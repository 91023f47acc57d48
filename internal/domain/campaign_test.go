package domain

import (
	"testing"
	"time"
)

func TestCampaignStatusAt(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(48 * time.Hour)
	c := &Campaign{StartDate: start, EndDate: end}

	tests := []struct {
		name string
		now  time.Time
		want CampaignStatus
	}{
		{name: "before start", now: start.Add(-time.Second), want: CampaignScheduled},
		{name: "at start", now: start, want: CampaignActive},
		{name: "inside window", now: start.Add(time.Hour), want: CampaignActive},
		{name: "at end", now: end, want: CampaignActive},
		{name: "after end", now: end.Add(time.Second), want: CampaignFinished},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.StatusAt(tt.now); got != tt.want {
				t.Errorf("StatusAt() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCampaignTargets(t *testing.T) {
	sectorA := "sector-a"
	sectorB := "sector-b"

	tests := []struct {
		name     string
		campaign Campaign
		device   DeviceIdentity
		want     bool
	}{
		{
			name:     "company wide",
			campaign: Campaign{},
			device:   DeviceIdentity{ID: "d1"},
			want:     true,
		},
		{
			name:     "device edge",
			campaign: Campaign{DeviceTargets: []CampaignDevice{{DeviceID: "d1"}}},
			device:   DeviceIdentity{ID: "d1"},
			want:     true,
		},
		{
			name:     "other device edge",
			campaign: Campaign{DeviceTargets: []CampaignDevice{{DeviceID: "d2"}}},
			device:   DeviceIdentity{ID: "d1", SectorID: &sectorA},
			want:     false,
		},
		{
			name:     "sector edge",
			campaign: Campaign{SectorTargets: []CampaignSector{{SectorID: sectorA}}},
			device:   DeviceIdentity{ID: "d1", SectorID: &sectorA},
			want:     true,
		},
		{
			name:     "other sector",
			campaign: Campaign{SectorTargets: []CampaignSector{{SectorID: sectorB}}},
			device:   DeviceIdentity{ID: "d1", SectorID: &sectorA},
			want:     false,
		},
		{
			name:     "sector edge, device without sector",
			campaign: Campaign{SectorTargets: []CampaignSector{{SectorID: sectorA}}},
			device:   DeviceIdentity{ID: "d1"},
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.campaign.Targets(tt.device); got != tt.want {
				t.Errorf("Targets() = %v, want %v", got, tt.want)
			}
		})
	}
}
