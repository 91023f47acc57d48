package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"signage-fleet-server/internal/domain"
)

type CompanyRepository interface {
	Create(ctx context.Context, company *domain.Company) error
	FindByID(ctx context.Context, companyID string) (*domain.Company, error)
	List(ctx context.Context, companyID string) ([]*domain.Company, error)
	Update(ctx context.Context, company *domain.Company) error
	Delete(ctx context.Context, companyID string) error
	CreateSector(ctx context.Context, sector *domain.Sector) error
	FindSector(ctx context.Context, sectorID string) (*domain.Sector, error)
	DeleteSector(ctx context.Context, sectorID string) error
}

type companyRepository struct {
	db *gorm.DB
}

func NewCompanyRepository(db *gorm.DB) CompanyRepository {
	return &companyRepository{db: db}
}

func (r *companyRepository) Create(ctx context.Context, company *domain.Company) error {
	if err := r.db.WithContext(ctx).Omit("Sectors").Create(company).Error; err != nil {
		return fmt.Errorf("failed to create company: %w", err)
	}
	return nil
}

func (r *companyRepository) FindByID(ctx context.Context, companyID string) (*domain.Company, error) {
	var company domain.Company
	err := r.db.WithContext(ctx).
		Preload("Sectors", func(db *gorm.DB) *gorm.DB { return db.Order("name asc") }).
		Where("id = ?", companyID).
		First(&company).Error
	if err != nil {
		return nil, notFound(err, "company")
	}
	return &company, nil
}

// List returns one company when companyID is set, all companies otherwise.
func (r *companyRepository) List(ctx context.Context, companyID string) ([]*domain.Company, error) {
	q := r.db.WithContext(ctx).
		Preload("Sectors", func(db *gorm.DB) *gorm.DB { return db.Order("name asc") }).
		Order("name asc")
	if companyID != "" {
		q = q.Where("id = ?", companyID)
	}

	var companies []*domain.Company
	if err := q.Find(&companies).Error; err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	return companies, nil
}

func (r *companyRepository) Update(ctx context.Context, company *domain.Company) error {
	res := r.db.WithContext(ctx).Model(&domain.Company{}).
		Where("id = ?", company.ID).
		Updates(map[string]interface{}{
			"name":      company.Name,
			"latitude":  company.Latitude,
			"longitude": company.Longitude,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update company: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("company: %w", domain.ErrNotFound)
	}
	return nil
}

func (r *companyRepository) Delete(ctx context.Context, companyID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("company_id = ?", companyID).Delete(&domain.Sector{}).Error; err != nil {
			return fmt.Errorf("failed to delete sectors: %w", err)
		}
		res := tx.Where("id = ?", companyID).Delete(&domain.Company{})
		if res.Error != nil {
			return fmt.Errorf("failed to delete company: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("company: %w", domain.ErrNotFound)
		}
		return nil
	})
}

func (r *companyRepository) CreateSector(ctx context.Context, sector *domain.Sector) error {
	if err := r.db.WithContext(ctx).Create(sector).Error; err != nil {
		return fmt.Errorf("failed to create sector: %w", err)
	}
	return nil
}

func (r *companyRepository) FindSector(ctx context.Context, sectorID string) (*domain.Sector, error) {
	var sector domain.Sector
	if err := r.db.WithContext(ctx).Where("id = ?", sectorID).First(&sector).Error; err != nil {
		return nil, notFound(err, "sector")
	}
	return &sector, nil
}

func (r *companyRepository) DeleteSector(ctx context.Context, sectorID string) error {
	res := r.db.WithContext(ctx).Where("id = ?", sectorID).Delete(&domain.Sector{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete sector: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("sector: %w", domain.ErrNotFound)
	}
	return nil
}
