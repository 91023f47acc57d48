package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"signage-fleet-server/internal/domain"
)

type DeviceRepository interface {
	Create(ctx context.Context, device *domain.Device) error
	FindByID(ctx context.Context, deviceID string) (*domain.Device, error)
	// List returns every device of a company, or all devices when companyID
	// is empty.
	List(ctx context.Context, companyID string) ([]*domain.Device, error)
	Update(ctx context.Context, device *domain.Device) error
	SetActive(ctx context.Context, deviceID string, active bool) error
	UpdateLastSeen(ctx context.Context, deviceID string, at time.Time) error
	ClearSector(ctx context.Context, sectorID string) error
	CountByCompany(ctx context.Context, companyID string) (int64, error)
	Delete(ctx context.Context, deviceID string) error
}

type deviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) DeviceRepository {
	return &deviceRepository{db: db}
}

func (r *deviceRepository) Create(ctx context.Context, device *domain.Device) error {
	if err := r.db.WithContext(ctx).Create(device).Error; err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

func (r *deviceRepository) FindByID(ctx context.Context, deviceID string) (*domain.Device, error) {
	var device domain.Device
	if err := r.db.WithContext(ctx).Where("id = ?", deviceID).First(&device).Error; err != nil {
		return nil, notFound(err, "device")
	}
	return &device, nil
}

func (r *deviceRepository) List(ctx context.Context, companyID string) ([]*domain.Device, error) {
	q := r.db.WithContext(ctx).Order("registered_at asc")
	if companyID != "" {
		q = q.Where("company_id = ?", companyID)
	}

	var devices []*domain.Device
	if err := q.Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (r *deviceRepository) Update(ctx context.Context, device *domain.Device) error {
	res := r.db.WithContext(ctx).Model(&domain.Device{}).
		Where("id = ?", device.ID).
		Updates(map[string]interface{}{
			"name":        device.Name,
			"device_type": device.DeviceType,
			"sector_id":   device.SectorID,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *deviceRepository) SetActive(ctx context.Context, deviceID string, active bool) error {
	res := r.db.WithContext(ctx).Model(&domain.Device{}).
		Where("id = ?", deviceID).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("failed to update device: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("device: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *deviceRepository) UpdateLastSeen(ctx context.Context, deviceID string, at time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.Device{}).
		Where("id = ?", deviceID).
		UpdateColumn("last_seen", at.UTC()).Error
	if err != nil {
		return fmt.Errorf("failed to update last seen: %w", err)
	}
	return nil
}

func (r *deviceRepository) ClearSector(ctx context.Context, sectorID string) error {
	err := r.db.WithContext(ctx).Model(&domain.Device{}).
		Where("sector_id = ?", sectorID).
		Update("sector_id", nil).Error
	if err != nil {
		return fmt.Errorf("failed to clear sector: %w", err)
	}
	return nil
}

func (r *deviceRepository) CountByCompany(ctx context.Context, companyID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&domain.Device{}).Where("company_id = ?", companyID).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return n, nil
}

// Delete removes the device with its token records and targeting edges.
func (r *deviceRepository) Delete(ctx context.Context, deviceID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("device_id = ?", deviceID).Delete(&domain.TokenRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete device tokens: %w", err)
		}
		if err := tx.Where("device_id = ?", deviceID).Delete(&domain.CampaignDevice{}).Error; err != nil {
			return fmt.Errorf("failed to delete device targets: %w", err)
		}
		res := tx.Where("id = ?", deviceID).Delete(&domain.Device{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete device: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("device: %w", domain.ErrNotFound)
		}
		return nil
	})
}
