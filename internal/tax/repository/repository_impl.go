package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxdomain "github.com/dojohq/dojobill/internal/tax/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxdomain.Repository {
	return &repository{db: db}
}

func (r *repository) ListActive(ctx context.Context, orgID snowflake.ID) ([]taxdomain.TaxRate, error) {
	var rates []taxdomain.TaxRate
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND is_active = ?", orgID, true).
		Order("id ASC").
		Find(&rates).Error
	if err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repository) Create(ctx context.Context, rate *taxdomain.TaxRate) error {
	return r.db.WithContext(ctx).Create(rate).Error
}

func (r *repository) FindByID(ctx context.Context, orgID, id snowflake.ID) (*taxdomain.TaxRate, error) {
	var rate taxdomain.TaxRate
	err := r.db.WithContext(ctx).
		Where("org_id = ? AND id = ?", orgID, id).
		Limit(1).
		Find(&rate).Error
	if err != nil {
		return nil, err
	}
	if rate.ID == 0 {
		return nil, nil
	}
	return &rate, nil
}

func (r *repository) List(ctx context.Context, orgID snowflake.ID, filter taxdomain.ListRequest) ([]taxdomain.TaxRate, error) {
	stmt := r.db.WithContext(ctx).
		Model(&taxdomain.TaxRate{}).
		Where("org_id = ?", orgID)

	if filter.Name != "" {
		stmt = stmt.Where("name = ?", filter.Name)
	}
	if filter.IsActive != nil {
		stmt = stmt.Where("is_active = ?", *filter.IsActive)
	}

	var rates []taxdomain.TaxRate
	if err := stmt.Order("created_at ASC").Find(&rates).Error; err != nil {
		return nil, err
	}
	return rates, nil
}

func (r *repository) Update(ctx context.Context, rate *taxdomain.TaxRate) error {
	return r.db.WithContext(ctx).Exec(
		`UPDATE tax_rates
		 SET name = ?, rate = ?, description = ?, is_active = ?, updated_at = ?
		 WHERE org_id = ? AND id = ?`,
		rate.Name,
		rate.Rate,
		rate.Description,
		rate.IsActive,
		rate.UpdatedAt,
		rate.OrgID,
		rate.ID,
	).Error
}
