package playlist

import "signage-fleet-server/internal/domain"

// Inputs is everything Build needs. Groups and Weather are optional and only
// used by digital menus and the weather layout respectively.
type Inputs struct {
	Campaign   *domain.Campaign
	Media      []domain.MediaUpload
	DeviceType domain.DeviceType
	Groups     []domain.ProductGroup
	Weather    *domain.WeatherSnapshot
}

// Build assembles the playlist for a selected campaign.
func Build(in Inputs) *domain.Playlist {
	mainMedia, secondaryMedia := SplitZones(in.Media)

	p := &domain.Playlist{
		CampaignID:   in.Campaign.ID,
		CampaignName: in.Campaign.Name,
		Layout:       in.Campaign.LayoutType,
		DeviceType:   in.DeviceType,
		EndsAt:       in.Campaign.EndDate.UTC(),
		Main:         Items(mainMedia),
	}

	switch in.Campaign.LayoutType {
	case domain.LayoutSplit8020:
		p.Secondary = Items(secondaryMedia)
	case domain.LayoutSplit8020Weather:
		p.Weather = in.Weather
	}

	if in.DeviceType == domain.DeviceTypeDigitalMenu {
		p.Main = Interleave(in.Groups, p.Main)
	}
	return p
}
