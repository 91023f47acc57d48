package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-kivik/kivik/v4"

	"signage-fleet-server/internal/domain"
)

const productGroupDocType = "product_group"

// CatalogRepository reads product groups owned by the external catalog.
type CatalogRepository interface {
	ProductGroups(ctx context.Context, companyID string) ([]domain.ProductGroup, error)
}

// ProductGroupDoc is the CouchDB shape of a product group.
type ProductGroupDoc struct {
	ID        string           `json:"_id"`
	Rev       string           `json:"_rev,omitempty"`
	Type      string           `json:"type"`
	CompanyID string           `json:"company_id"`
	Name      string           `json:"name"`
	Position  int              `json:"position"`
	Products  []domain.Product `json:"products"`
}

func (d *ProductGroupDoc) IsProductGroup() bool {
	return d.Type == productGroupDocType
}

func (d *ProductGroupDoc) ToDomain() domain.ProductGroup {
	products := d.Products
	if products == nil {
		products = []domain.Product{}
	}
	return domain.ProductGroup{
		ID:        ProductGroupID(d.ID),
		CompanyID: d.CompanyID,
		Name:      d.Name,
		Position:  d.Position,
		Products:  products,
	}
}

// ProductGroupID strips the document id prefix.
func ProductGroupID(docID string) string {
	return strings.TrimPrefix(docID, productGroupDocType+":")
}

type catalogRepository struct {
	client *kivik.Client
	dbName string
}

func NewCatalogRepository(client *kivik.Client, dbName string) CatalogRepository {
	return &catalogRepository{
		client: client,
		dbName: dbName,
	}
}

func (r *catalogRepository) ProductGroups(ctx context.Context, companyID string) ([]domain.ProductGroup, error) {
	db := r.client.DB(r.dbName)

	query := map[string]interface{}{
		"selector": map[string]interface{}{
			"type":       productGroupDocType,
			"company_id": companyID,
		},
	}

	rows := db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query product groups: %w", err)
	}
	defer rows.Close()

	var groups []domain.ProductGroup
	for rows.Next() {
		var doc ProductGroupDoc
		if err := rows.ScanDoc(&doc); err != nil {
			continue // Skip malformed docs
		}
		groups = append(groups, doc.ToDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read product groups: %w", err)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].Position != groups[j].Position {
			return groups[i].Position < groups[j].Position
		}
		return groups[i].ID < groups[j].ID
	})
	return groups, nil
}
