package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type serviceRow struct {
	ID                    snowflake.ID                                 `gorm:"primaryKey;autoIncrement:false"`
	Name                  string                                       `gorm:"type:text;not null"`
	Slug                  string                                       `gorm:"type:varchar(191);not null;uniqueIndex:ux_services_slug"`
	Category              string                                       `gorm:"type:varchar(32);not null;index:ix_services_category"`
	Description           string                                       `gorm:"type:text"`
	PriceAmount           int64                                        `gorm:"not null"`
	PriceCurrency         string                                       `gorm:"type:varchar(3);not null"`
	BillingCycle          string                                       `gorm:"type:varchar(16);not null"`
	IsActive              bool                                         `gorm:"not null"`
	MaxSubscriptions      *int64                                       `gorm:""`
	CurrentSubscriptions  int64                                        `gorm:"not null;default:0"`
	MaxQuantityPerUser    int64                                        `gorm:"not null"`
	MinSubscriptionPeriod int                                          `gorm:"not null;default:0"`
	MaxOnlineOrderValue   *int64                                       `gorm:""`
	RequiresQuote         bool                                         `gorm:"not null"`
	Specifications        datatypes.JSONType[catalogdomain.Attributes] `gorm:""`
	Features              datatypes.JSONSlice[string]                  `gorm:""`
	Tags                  datatypes.JSONSlice[string]                  `gorm:""`
	CreatedAt             time.Time                                    `gorm:"not null"`
	UpdatedAt             time.Time                                    `gorm:"not null"`
}

func (serviceRow) TableName() string { return "services" }

// Models lists the gorm models owned by this package, for AutoMigrate.
func Models() []any {
	return []any{&serviceRow{}}
}

type gormRepo struct {
	db *gorm.DB
}

func NewGorm(conn *gorm.DB) catalogdomain.Repository {
	return &gormRepo{db: conn}
}

func (r *gormRepo) Insert(ctx context.Context, service *catalogdomain.Service) error {
	row := toRow(service)
	if err := db.Conn(ctx, r.db).Create(&row).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return catalogdomain.ErrSlugConflict
		}
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

func (r *gormRepo) Update(ctx context.Context, service *catalogdomain.Service) error {
	row := toRow(service)
	res := db.Conn(ctx, r.db).
		Model(&serviceRow{ID: row.ID}).
		Select("*").
		Omit("id", "current_subscriptions", "created_at").
		Updates(&row)
	if res.Error != nil {
		if db.IsDuplicateKeyErr(res.Error) {
			return catalogdomain.ErrSlugConflict
		}
		return fmt.Errorf("update service: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return catalogdomain.ErrServiceNotFound
	}
	return nil
}

func (r *gormRepo) FindByID(ctx context.Context, id snowflake.ID) (*catalogdomain.Service, error) {
	var row serviceRow
	err := db.Conn(ctx, r.db).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogdomain.ErrServiceNotFound
		}
		return nil, fmt.Errorf("find service: %w", err)
	}
	return fromRow(&row), nil
}

func (r *gormRepo) FindBySlug(ctx context.Context, slug string) (*catalogdomain.Service, error) {
	var row serviceRow
	err := db.Conn(ctx, r.db).Where("slug = ?", slug).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, catalogdomain.ErrServiceNotFound
		}
		return nil, fmt.Errorf("find service by slug: %w", err)
	}
	return fromRow(&row), nil
}

func (r *gormRepo) FindByIDs(ctx context.Context, ids []snowflake.ID) ([]*catalogdomain.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []serviceRow
	if err := db.Conn(ctx, r.db).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find services: %w", err)
	}
	out := make([]*catalogdomain.Service, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

func (r *gormRepo) List(ctx context.Context, filter catalogdomain.ListFilter) ([]*catalogdomain.Service, error) {
	stmt := db.Conn(ctx, r.db).Model(&serviceRow{})
	if filter.Category != nil {
		stmt = stmt.Where("category = ?", string(*filter.Category))
	}
	if filter.Active != nil {
		stmt = stmt.Where("is_active = ?", *filter.Active)
	}
	if q := strings.ToLower(strings.TrimSpace(filter.Query)); q != "" {
		stmt = stmt.Where("LOWER(name) LIKE ?", "%"+q+"%")
	}
	if filter.AfterID != 0 {
		stmt = stmt.Where("id > ?", filter.AfterID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var rows []serviceRow
	if err := stmt.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	out := make([]*catalogdomain.Service, 0, len(rows))
	for i := range rows {
		out = append(out, fromRow(&rows[i]))
	}
	return out, nil
}

func (r *gormRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	if err := db.Conn(ctx, r.db).Model(&serviceRow{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return count > 0, nil
}

func (r *gormRepo) Reserve(ctx context.Context, id snowflake.ID) error {
	res := db.Conn(ctx, r.db).
		Model(&serviceRow{}).
		Where("id = ? AND is_active = ? AND (max_subscriptions IS NULL OR current_subscriptions < max_subscriptions)", id, true).
		Updates(map[string]any{
			"current_subscriptions": gorm.Expr("current_subscriptions + 1"),
			"updated_at":            time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("reserve capacity: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	current, err := r.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, catalogdomain.ErrServiceNotFound) {
			return catalogdomain.ErrServiceUnavailable
		}
		return err
	}
	if !current.Availability.IsActive {
		return catalogdomain.ErrServiceUnavailable
	}
	return catalogdomain.ErrCapacityExceeded
}

func (r *gormRepo) Release(ctx context.Context, id snowflake.ID) error {
	err := db.Conn(ctx, r.db).
		Model(&serviceRow{}).
		Where("id = ? AND current_subscriptions > 0", id).
		Updates(map[string]any{
			"current_subscriptions": gorm.Expr("current_subscriptions - 1"),
			"updated_at":            time.Now().UTC(),
		}).Error
	if err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	return nil
}

func toRow(s *catalogdomain.Service) serviceRow {
	return serviceRow{
		ID:                    s.ID,
		Name:                  s.Name,
		Slug:                  s.Slug,
		Category:              string(s.Category),
		Description:           s.Description,
		PriceAmount:           s.Price.Amount,
		PriceCurrency:         s.Price.Currency,
		BillingCycle:          string(s.Price.BillingCycle),
		IsActive:              s.Availability.IsActive,
		MaxSubscriptions:      s.Availability.MaxSubscriptions,
		CurrentSubscriptions:  s.Availability.CurrentSubscriptions,
		MaxQuantityPerUser:    s.Constraints.MaxQuantityPerUser,
		MinSubscriptionPeriod: s.Constraints.MinSubscriptionPeriod,
		MaxOnlineOrderValue:   s.Constraints.MaxOnlineOrderValue,
		RequiresQuote:         s.Constraints.RequiresQuote,
		Specifications:        datatypes.NewJSONType(s.Specifications),
		Features:              datatypes.NewJSONSlice(s.Features),
		Tags:                  datatypes.NewJSONSlice(s.Tags),
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
}

func fromRow(row *serviceRow) *catalogdomain.Service {
	return &catalogdomain.Service{
		ID:          row.ID,
		Name:        row.Name,
		Slug:        row.Slug,
		Category:    catalogdomain.Category(row.Category),
		Description: row.Description,
		Price: catalogdomain.Price{
			Amount:       row.PriceAmount,
			Currency:     row.PriceCurrency,
			BillingCycle: billingcycle.Cycle(row.BillingCycle),
		},
		Availability: catalogdomain.Availability{
			IsActive:             row.IsActive,
			MaxSubscriptions:     row.MaxSubscriptions,
			CurrentSubscriptions: row.CurrentSubscriptions,
		},
		Constraints: catalogdomain.Constraints{
			MaxQuantityPerUser:    row.MaxQuantityPerUser,
			MinSubscriptionPeriod: row.MinSubscriptionPeriod,
			MaxOnlineOrderValue:   row.MaxOnlineOrderValue,
			RequiresQuote:         row.RequiresQuote,
		},
		Specifications: row.Specifications.Data(),
		Features:       []string(row.Features),
		Tags:           []string(row.Tags),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
}
