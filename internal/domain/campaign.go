package domain

import "time"

type LayoutType string

const (
	LayoutFullscreen       LayoutType = "fullscreen"
	LayoutSplit8020        LayoutType = "split-80-20"
	LayoutSplit8020Weather LayoutType = "split-80-20-weather"
)

func (l LayoutType) Valid() bool {
	switch l {
	case LayoutFullscreen, LayoutSplit8020, LayoutSplit8020Weather:
		return true
	}
	return false
}

type CampaignStatus string

const (
	CampaignScheduled CampaignStatus = "Scheduled"
	CampaignActive    CampaignStatus = "Active"
	CampaignFinished  CampaignStatus = "Finished"
)

type Campaign struct {
	ID            string           `json:"id" gorm:"primaryKey;size:36"`
	CompanyID     string           `json:"company_id" gorm:"size:36;index;not null"`
	Name          string           `json:"name" gorm:"not null"`
	StartDate     time.Time        `json:"start_date" gorm:"index;not null"`
	EndDate       time.Time        `json:"end_date" gorm:"index;not null"`
	LayoutType    LayoutType       `json:"layout_type" gorm:"size:32;not null"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
	DeviceTargets []CampaignDevice `json:"-" gorm:"foreignKey:CampaignID"`
	SectorTargets []CampaignSector `json:"-" gorm:"foreignKey:CampaignID"`
	Media         []MediaUpload    `json:"-" gorm:"foreignKey:CampaignID"`
}

type CampaignDevice struct {
	CampaignID string `gorm:"primaryKey;size:36"`
	DeviceID   string `gorm:"primaryKey;size:36;index"`
}

type CampaignSector struct {
	CampaignID string `gorm:"primaryKey;size:36"`
	SectorID   string `gorm:"primaryKey;size:36;index"`
}

type MediaZone string

const (
	ZoneMain      MediaZone = "main"
	ZoneSecondary MediaZone = "secondary"
)

type MediaUpload struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	CampaignID     string    `json:"campaign_id" gorm:"size:36;index;not null"`
	FileURL        string    `json:"file_url" gorm:"not null"`
	FileType       string    `json:"file_type" gorm:"size:16;not null"`
	Zone           MediaZone `json:"zone" gorm:"size:16;not null"`
	ExecutionOrder int       `json:"execution_order" gorm:"not null"`
	Duration       *int      `json:"duration,omitempty"`
}

// StatusAt derives the campaign status from its window.
func (c *Campaign) StatusAt(now time.Time) CampaignStatus {
	switch {
	case now.Before(c.StartDate):
		return CampaignScheduled
	case now.After(c.EndDate):
		return CampaignFinished
	default:
		return CampaignActive
	}
}

func (c *Campaign) LiveAt(now time.Time) bool {
	return c.StatusAt(now) == CampaignActive
}

func (c *Campaign) IsCompanyWide() bool {
	return len(c.DeviceTargets) == 0 && len(c.SectorTargets) == 0
}

// Targets reports whether the campaign's targeting edges include the device.
// Time and company are not checked.
func (c *Campaign) Targets(id DeviceIdentity) bool {
	if c.IsCompanyWide() {
		return true
	}
	for _, t := range c.DeviceTargets {
		if t.DeviceID == id.ID {
			return true
		}
	}
	if id.SectorID != nil {
		for _, t := range c.SectorTargets {
			if t.SectorID == *id.SectorID {
				return true
			}
		}
	}
	return false
}

type MediaRequest struct {
	FileURL        string    `json:"file_url" validate:"required,url"`
	FileType       string    `json:"file_type" validate:"required,oneof=image video"`
	Zone           MediaZone `json:"zone" validate:"required,oneof=main secondary"`
	ExecutionOrder int       `json:"execution_order" validate:"min=0"`
	Duration       *int      `json:"duration,omitempty" validate:"omitempty,min=1"`
}

type CampaignRequest struct {
	Name       string         `json:"name" validate:"required,min=1,max=200"`
	CompanyID  string         `json:"company_id,omitempty" validate:"omitempty,uuid"`
	StartDate  time.Time      `json:"start_date" validate:"required"`
	EndDate    time.Time      `json:"end_date" validate:"required,gtfield=StartDate"`
	LayoutType LayoutType     `json:"layout_type" validate:"required,oneof=fullscreen split-80-20 split-80-20-weather"`
	DeviceIDs  []string       `json:"device_ids,omitempty" validate:"omitempty,dive,uuid"`
	SectorIDs  []string       `json:"sector_ids,omitempty" validate:"omitempty,dive,uuid"`
	Media      []MediaRequest `json:"media" validate:"dive"`
}

type CampaignResponse struct {
	ID         string         `json:"id"`
	CompanyID  string         `json:"company_id"`
	Name       string         `json:"name"`
	StartDate  time.Time      `json:"start_date"`
	EndDate    time.Time      `json:"end_date"`
	LayoutType LayoutType     `json:"layout_type"`
	Status     CampaignStatus `json:"status"`
	DeviceIDs  []string       `json:"device_ids"`
	SectorIDs  []string       `json:"sector_ids"`
	Media      []MediaUpload  `json:"media"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

func NewCampaignResponse(c *Campaign, now time.Time) CampaignResponse {
	resp := CampaignResponse{
		ID:         c.ID,
		CompanyID:  c.CompanyID,
		Name:       c.Name,
		StartDate:  c.StartDate,
		EndDate:    c.EndDate,
		LayoutType: c.LayoutType,
		Status:     c.StatusAt(now),
		DeviceIDs:  make([]string, 0, len(c.DeviceTargets)),
		SectorIDs:  make([]string, 0, len(c.SectorTargets)),
		Media:      c.Media,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
	for _, t := range c.DeviceTargets {
		resp.DeviceIDs = append(resp.DeviceIDs, t.DeviceID)
	}
	for _, t := range c.SectorTargets {
		resp.SectorIDs = append(resp.SectorIDs, t.SectorID)
	}
	if resp.Media == nil {
		resp.Media = []MediaUpload{}
	}
	return resp
}
