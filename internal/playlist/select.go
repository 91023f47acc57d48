// Package playlist holds the pure parts of playlist resolution: campaign
// selection, zone ordering, product interleaving and ETag computation.
package playlist

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"signage-fleet-server/internal/domain"
)

// SelectCampaign picks the campaign a device should show at now. Candidates
// must belong to the device's company, contain now in their window and
// either be company-wide or target the device or its sector. The latest
// created wins, ties broken by the greater id.
func SelectCampaign(campaigns []*domain.Campaign, device domain.DeviceIdentity, now time.Time) *domain.Campaign {
	var winner *domain.Campaign
	for _, c := range campaigns {
		if c == nil || c.CompanyID != device.CompanyID || !c.LiveAt(now) || !c.Targets(device) {
			continue
		}
		if winner == nil || newer(c, winner) {
			winner = c
		}
	}
	return winner
}

func newer(a, b *domain.Campaign) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// SplitZones groups media by zone, each ordered by execution order.
func SplitZones(media []domain.MediaUpload) (main, secondary []domain.MediaUpload) {
	for _, m := range media {
		switch m.Zone {
		case domain.ZoneSecondary:
			secondary = append(secondary, m)
		default:
			main = append(main, m)
		}
	}
	byOrder := func(s []domain.MediaUpload) {
		sort.SliceStable(s, func(i, j int) bool { return s[i].ExecutionOrder < s[j].ExecutionOrder })
	}
	byOrder(main)
	byOrder(secondary)
	return main, secondary
}

func Items(media []domain.MediaUpload) []domain.PlaylistItem {
	items := make([]domain.PlaylistItem, 0, len(media))
	for _, m := range media {
		items = append(items, domain.MediaItem(m))
	}
	return items
}

// Interleave emits each product group followed by one main-zone media item.
// The media cursor wraps. With no media only the groups are emitted; with no
// groups the media is returned unchanged.
func Interleave(groups []domain.ProductGroup, media []domain.PlaylistItem) []domain.PlaylistItem {
	if len(groups) == 0 {
		return media
	}

	out := make([]domain.PlaylistItem, 0, len(groups)*2)
	cursor := 0
	for i := range groups {
		g := groups[i]
		out = append(out, domain.PlaylistItem{Kind: domain.ItemProductGroup, ProductGroup: &g})
		if len(media) == 0 {
			continue
		}
		out = append(out, media[cursor%len(media)])
		cursor++
	}
	return out
}

// ETag is the hex sha256 of the playlist's JSON encoding. A nil playlist has
// a stable tag too.
func ETag(p *domain.Playlist) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return `"` + hex.EncodeToString(sum[:]) + `"`, nil
}
