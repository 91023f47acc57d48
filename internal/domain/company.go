package domain

import "time"

type Company struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	Name      string    `json:"name" gorm:"not null"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Sectors   []Sector  `json:"sectors" gorm:"foreignKey:CompanyID"`
}

// HasLocation reports whether weather can be fetched for the company.
func (c *Company) HasLocation() bool {
	return c.Latitude != nil && c.Longitude != nil
}

type Sector struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	CompanyID string    `json:"company_id" gorm:"size:36;index;not null"`
	Name      string    `json:"name" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

type CompanyRequest struct {
	Name      string   `json:"name" validate:"required,min=1,max=100"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
}

type SectorRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}
