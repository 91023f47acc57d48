package playlist

import (
	"reflect"
	"testing"
	"time"

	"signage-fleet-server/internal/domain"
)

var now = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func campaign(id string, created time.Time, opts ...func(*domain.Campaign)) *domain.Campaign {
	c := &domain.Campaign{
		ID:         id,
		CompanyID:  "company-1",
		Name:       id,
		StartDate:  now.Add(-time.Hour),
		EndDate:    now.Add(time.Hour),
		LayoutType: domain.LayoutFullscreen,
		CreatedAt:  created,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func withWindow(start, end time.Time) func(*domain.Campaign) {
	return func(c *domain.Campaign) { c.StartDate, c.EndDate = start, end }
}

func withDevices(ids ...string) func(*domain.Campaign) {
	return func(c *domain.Campaign) {
		for _, id := range ids {
			c.DeviceTargets = append(c.DeviceTargets, domain.CampaignDevice{CampaignID: c.ID, DeviceID: id})
		}
	}
}

func withSectors(ids ...string) func(*domain.Campaign) {
	return func(c *domain.Campaign) {
		for _, id := range ids {
			c.SectorTargets = append(c.SectorTargets, domain.CampaignSector{CampaignID: c.ID, SectorID: id})
		}
	}
}

func TestSelectCampaign(t *testing.T) {
	sector := "sector-1"
	device := domain.DeviceIdentity{ID: "device-1", CompanyID: "company-1", SectorID: &sector, Type: domain.DeviceTypeDisplayPlayer}
	t0 := now.Add(-24 * time.Hour)

	tests := []struct {
		name      string
		campaigns []*domain.Campaign
		want      string
	}{
		{
			name:      "nothing live",
			campaigns: []*domain.Campaign{campaign("future", t0, withWindow(now.Add(time.Minute), now.Add(time.Hour)))},
			want:      "",
		},
		{
			name:      "finished campaign ignored",
			campaigns: []*domain.Campaign{campaign("past", t0, withWindow(now.Add(-2*time.Hour), now.Add(-time.Minute)))},
			want:      "",
		},
		{
			name:      "company wide",
			campaigns: []*domain.Campaign{campaign("wide", t0)},
			want:      "wide",
		},
		{
			name: "other company ignored",
			campaigns: []*domain.Campaign{campaign("foreign", t0, func(c *domain.Campaign) {
				c.CompanyID = "company-2"
			})},
			want: "",
		},
		{
			name:      "targets another device only",
			campaigns: []*domain.Campaign{campaign("other", t0, withDevices("device-2"))},
			want:      "",
		},
		{
			name:      "targets the sector",
			campaigns: []*domain.Campaign{campaign("sector", t0, withSectors("sector-1"))},
			want:      "sector",
		},
		{
			name: "latest created wins over targeting specificity",
			campaigns: []*domain.Campaign{
				campaign("direct-old", t0, withDevices("device-1")),
				campaign("wide-new", t0.Add(time.Hour)),
			},
			want: "wide-new",
		},
		{
			name: "ties broken by id",
			campaigns: []*domain.Campaign{
				campaign("aaa", t0),
				campaign("bbb", t0),
			},
			want: "bbb",
		},
		{
			name: "newest ineligible does not shadow older eligible",
			campaigns: []*domain.Campaign{
				campaign("eligible", t0),
				campaign("newer-other-sector", t0.Add(time.Hour), withSectors("sector-9")),
			},
			want: "eligible",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectCampaign(tt.campaigns, device, now)
			gotID := ""
			if got != nil {
				gotID = got.ID
			}
			if gotID != tt.want {
				t.Errorf("SelectCampaign() = %q, want %q", gotID, tt.want)
			}
		})
	}
}

func mediaItems(ids ...string) []domain.PlaylistItem {
	out := make([]domain.PlaylistItem, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.PlaylistItem{Kind: domain.ItemMedia, MediaID: id})
	}
	return out
}

func groups(ids ...string) []domain.ProductGroup {
	out := make([]domain.ProductGroup, 0, len(ids))
	for i, id := range ids {
		out = append(out, domain.ProductGroup{ID: id, Position: i})
	}
	return out
}

func sequence(items []domain.PlaylistItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it.Kind == domain.ItemProductGroup {
			out = append(out, "g:"+it.ProductGroup.ID)
		} else {
			out = append(out, "m:"+it.MediaID)
		}
	}
	return out
}

func TestInterleave(t *testing.T) {
	tests := []struct {
		name   string
		groups []domain.ProductGroup
		media  []domain.PlaylistItem
		want   []string
	}{
		{
			name:   "cursor wraps",
			groups: groups("g1", "g2", "g3"),
			media:  mediaItems("m1", "m2"),
			want:   []string{"g:g1", "m:m1", "g:g2", "m:m2", "g:g3", "m:m1"},
		},
		{
			name:   "more media than groups",
			groups: groups("g1"),
			media:  mediaItems("m1", "m2", "m3"),
			want:   []string{"g:g1", "m:m1"},
		},
		{
			name:   "no media",
			groups: groups("g1", "g2"),
			media:  nil,
			want:   []string{"g:g1", "g:g2"},
		},
		{
			name:   "no groups falls back to media",
			groups: nil,
			media:  mediaItems("m1", "m2"),
			want:   []string{"m:m1", "m:m2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sequence(Interleave(tt.groups, tt.media))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Interleave() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestInterleaveIsDeterministic(t *testing.T) {
	g := groups("g1", "g2", "g3", "g4", "g5")
	m := mediaItems("m1", "m2", "m3")

	first := sequence(Interleave(g, m))
	for i := 0; i < 20; i++ {
		if got := sequence(Interleave(g, m)); !reflect.DeepEqual(got, first) {
			t.Fatalf("Interleave() run %d = %v, want %v", i, got, first)
		}
	}
}

func TestSplitZones(t *testing.T) {
	media := []domain.MediaUpload{
		{ID: "m3", Zone: domain.ZoneMain, ExecutionOrder: 3},
		{ID: "s1", Zone: domain.ZoneSecondary, ExecutionOrder: 1},
		{ID: "m1", Zone: domain.ZoneMain, ExecutionOrder: 1},
		{ID: "s0", Zone: domain.ZoneSecondary, ExecutionOrder: 0},
		{ID: "m2", Zone: domain.ZoneMain, ExecutionOrder: 2},
	}

	main, secondary := SplitZones(media)
	ids := func(ms []domain.MediaUpload) []string {
		var out []string
		for _, m := range ms {
			out = append(out, m.ID)
		}
		return out
	}

	if got := ids(main); !reflect.DeepEqual(got, []string{"m1", "m2", "m3"}) {
		t.Errorf("SplitZones() main = %v", got)
	}
	if got := ids(secondary); !reflect.DeepEqual(got, []string{"s0", "s1"}) {
		t.Errorf("SplitZones() secondary = %v", got)
	}
}
