package service

import (
	"context"
	"errors"
	"fmt"

	"signage-fleet-server/internal/domain"
	"signage-fleet-server/internal/repository"
)

// resolveCompany picks the company an operator write applies to. Company
// operators are pinned to their own company; superadmins must name one.
func resolveCompany(op domain.Operator, requested string) (string, error) {
	if op.IsSuperAdmin() {
		if requested == "" {
			return "", fmt.Errorf("%w: company_id is required", domain.ErrValidation)
		}
		return requested, nil
	}
	if requested != "" && requested != op.CompanyID {
		return "", domain.ErrForbidden
	}
	return op.CompanyID, nil
}

// scopedDevice loads a device the operator is allowed to see. Devices of
// other companies are reported as missing.
func scopedDevice(ctx context.Context, store *repository.Store, op domain.Operator, deviceID string) (*domain.Device, error) {
	device, err := store.Devices.FindByID(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !op.CanAccess(device.CompanyID) {
		return nil, fmt.Errorf("device: %w", domain.ErrNotFound)
	}
	return device, nil
}

func requireCompany(ctx context.Context, store *repository.Store, companyID string) (*domain.Company, error) {
	company, err := store.Companies.FindByID(ctx, companyID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: company %s does not exist", domain.ErrValidation, companyID)
	}
	return company, err
}

func requireSector(ctx context.Context, store *repository.Store, companyID, sectorID string) error {
	sector, err := store.Companies.FindSector(ctx, sectorID)
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("%w: sector %s does not exist", domain.ErrValidation, sectorID)
	}
	if err != nil {
		return err
	}
	if sector.CompanyID != companyID {
		return fmt.Errorf("%w: sector %s belongs to another company", domain.ErrValidation, sectorID)
	}
	return nil
}
