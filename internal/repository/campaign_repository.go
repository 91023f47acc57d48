package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"signage-fleet-server/internal/domain"
)

type CampaignRepository interface {
	// Create inserts the campaign together with its targeting edges and media.
	Create(ctx context.Context, campaign *domain.Campaign) error
	FindByID(ctx context.Context, campaignID string) (*domain.Campaign, error)
	List(ctx context.Context, companyID string) ([]*domain.Campaign, error)
	// ListLive returns the company's campaigns whose window contains now,
	// with targeting edges loaded but not media.
	ListLive(ctx context.Context, companyID string, now time.Time) ([]*domain.Campaign, error)
	// ListUnfinished returns campaigns whose end is still ahead of now.
	ListUnfinished(ctx context.Context, now time.Time) ([]*domain.Campaign, error)
	Media(ctx context.Context, campaignID string) ([]domain.MediaUpload, error)
	// Update replaces the scalar fields, edges and media of a campaign.
	Update(ctx context.Context, campaign *domain.Campaign) error
	DeleteSectorTargets(ctx context.Context, sectorID string) error
	Delete(ctx context.Context, campaignID string) error
}

type campaignRepository struct {
	db *gorm.DB
}

func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &campaignRepository{db: db}
}

func orderedMedia(db *gorm.DB) *gorm.DB {
	return db.Order("execution_order asc, id asc")
}

func (r *campaignRepository) Create(ctx context.Context, campaign *domain.Campaign) error {
	if err := r.db.WithContext(ctx).Create(campaign).Error; err != nil {
		return fmt.Errorf("failed to create campaign: %w", err)
	}
	return nil
}

func (r *campaignRepository) FindByID(ctx context.Context, campaignID string) (*domain.Campaign, error) {
	var campaign domain.Campaign
	err := r.db.WithContext(ctx).
		Preload("DeviceTargets").
		Preload("SectorTargets").
		Preload("Media", orderedMedia).
		Where("id = ?", campaignID).
		First(&campaign).Error
	if err != nil {
		return nil, notFound(err, "campaign")
	}
	return &campaign, nil
}

func (r *campaignRepository) List(ctx context.Context, companyID string) ([]*domain.Campaign, error) {
	q := r.db.WithContext(ctx).
		Preload("DeviceTargets").
		Preload("SectorTargets").
		Preload("Media", orderedMedia).
		Order("created_at desc, id desc")
	if companyID != "" {
		q = q.Where("company_id = ?", companyID)
	}

	var campaigns []*domain.Campaign
	if err := q.Find(&campaigns).Error; err != nil {
		return nil, fmt.Errorf("failed to list campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *campaignRepository) ListLive(ctx context.Context, companyID string, now time.Time) ([]*domain.Campaign, error) {
	at := now.UTC()
	var campaigns []*domain.Campaign
	err := r.db.WithContext(ctx).
		Preload("DeviceTargets").
		Preload("SectorTargets").
		Where("company_id = ? AND start_date <= ? AND end_date >= ?", companyID, at, at).
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list live campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *campaignRepository) ListUnfinished(ctx context.Context, now time.Time) ([]*domain.Campaign, error) {
	var campaigns []*domain.Campaign
	err := r.db.WithContext(ctx).
		Where("end_date > ?", now.UTC()).
		Find(&campaigns).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unfinished campaigns: %w", err)
	}
	return campaigns, nil
}

func (r *campaignRepository) Media(ctx context.Context, campaignID string) ([]domain.MediaUpload, error) {
	var media []domain.MediaUpload
	err := orderedMedia(r.db.WithContext(ctx)).
		Where("campaign_id = ?", campaignID).
		Find(&media).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load media: %w", err)
	}
	return media, nil
}

func (r *campaignRepository) Update(ctx context.Context, campaign *domain.Campaign) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Campaign{}).
			Where("id = ?", campaign.ID).
			Updates(map[string]interface{}{
				"name":        campaign.Name,
				"start_date":  campaign.StartDate.UTC(),
				"end_date":    campaign.EndDate.UTC(),
				"layout_type": campaign.LayoutType,
				"updated_at":  campaign.UpdatedAt.UTC(),
			})
		if res.Error != nil {
			return fmt.Errorf("failed to update campaign: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("campaign: %w", domain.ErrNotFound)
		}

		if err := deleteChildren(tx, campaign.ID); err != nil {
			return err
		}
		if len(campaign.DeviceTargets) > 0 {
			if err := tx.Create(&campaign.DeviceTargets).Error; err != nil {
				return fmt.Errorf("failed to save device targets: %w", err)
			}
		}
		if len(campaign.SectorTargets) > 0 {
			if err := tx.Create(&campaign.SectorTargets).Error; err != nil {
				return fmt.Errorf("failed to save sector targets: %w", err)
			}
		}
		if len(campaign.Media) > 0 {
			if err := tx.Create(&campaign.Media).Error; err != nil {
				return fmt.Errorf("failed to save media: %w", err)
			}
		}
		return nil
	})
}

func (r *campaignRepository) DeleteSectorTargets(ctx context.Context, sectorID string) error {
	if err := r.db.WithContext(ctx).Where("sector_id = ?", sectorID).Delete(&domain.CampaignSector{}).Error; err != nil {
		return fmt.Errorf("failed to delete sector targets: %w", err)
	}
	return nil
}

func (r *campaignRepository) Delete(ctx context.Context, campaignID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := deleteChildren(tx, campaignID); err != nil {
			return err
		}
		res := tx.Where("id = ?", campaignID).Delete(&domain.Campaign{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete campaign: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("campaign: %w", domain.ErrNotFound)
		}
		return nil
	})
}

func deleteChildren(tx *gorm.DB, campaignID string) error {
	for _, model := range []interface{}{&domain.CampaignDevice{}, &domain.CampaignSector{}, &domain.MediaUpload{}} {
		if err := tx.Where("campaign_id = ?", campaignID).Delete(model).Error; err != nil {
			return fmt.Errorf("failed to delete campaign children: %w", err)
		}
	}
	return nil
}
