package productctrl

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"packsight/src/core/rebrand"
)

type Product struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	AnalysisID int64     `gorm:"not null;index;column:analysis_id" json:"analysis_id"`
	Name       string    `gorm:"not null" json:"name"`
	ImageURL   string    `gorm:"column:image_url" json:"image_url"`
	DetailURL  string    `gorm:"column:detail_url" json:"detail_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type ProductService struct {
	db        *gorm.DB
	snowflake *snowflake.Node
}

func NewProductService(db *gorm.DB) (*ProductService, error) {
	// Initialize snowflake node
	node, err := snowflake.NewNode(3) // Node number 3 for products
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node: %v", err)
	}

	return &ProductService{
		db:        db,
		snowflake: node,
	}, nil
}

// SaveBatch records the products discovered by an analysis job. Called
// once per analysis; reruns replace the previous catalogue.
func (s *ProductService) SaveBatch(ctx context.Context, analysisID int64, products []rebrand.Product) error {
	if len(products) == 0 {
		return nil
	}

	rows := make([]Product, 0, len(products))
	for _, p := range products {
		rows = append(rows, Product{
			ID:         s.snowflake.Generate().Int64(),
			AnalysisID: analysisID,
			Name:       p.Name,
			ImageURL:   p.ImageURL,
			DetailURL:  p.DetailURL,
		})
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if result := tx.Where("analysis_id = ?", analysisID).Delete(&Product{}); result.Error != nil {
			return result.Error
		}
		if result := tx.Create(&rows); result.Error != nil {
			return result.Error
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save products: %v", err)
	}
	return nil
}

// EligibleTargets returns the analysis' products that carry a usable
// reference image, in discovery order.
func (s *ProductService) EligibleTargets(ctx context.Context, analysisID int64) ([]rebrand.Product, error) {
	var rows []Product
	result := s.db.WithContext(ctx).
		Where("analysis_id = ? AND image_url <> ''", analysisID).
		Order("id ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list products: %v", result.Error)
	}

	products := make([]rebrand.Product, 0, len(rows))
	for _, row := range rows {
		products = append(products, rebrand.Product{
			Name:      row.Name,
			ImageURL:  row.ImageURL,
			DetailURL: row.DetailURL,
		})
	}
	return products, nil
}

// ListByAnalysis returns every product recorded for the analysis.
func (s *ProductService) ListByAnalysis(ctx context.Context, analysisID int64) ([]Product, error) {
	var rows []Product
	result := s.db.WithContext(ctx).
		Where("analysis_id = ?", analysisID).
		Order("id ASC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list products: %v", result.Error)
	}
	return rows, nil
}
