package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	subscriptiondomain "github.com/smallbiznis/servicehub/internal/subscription/domain"
	"github.com/smallbiznis/servicehub/pkg/db"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type subscriptionRow struct {
	ID               snowflake.ID                                          `gorm:"primaryKey;autoIncrement:false"`
	UserID           snowflake.ID                                          `gorm:"not null;index:ix_subscriptions_user_status,priority:1"`
	Status           string                                                `gorm:"type:varchar(16);not null;index:ix_subscriptions_user_status,priority:2"`
	PaymentStatus    string                                                `gorm:"type:varchar(16);not null"`
	BillingCycle     string                                                `gorm:"type:varchar(16);not null"`
	Subtotal         int64                                                 `gorm:"not null"`
	Taxes            int64                                                 `gorm:"not null"`
	Discounts        int64                                                 `gorm:"not null"`
	Total            int64                                                 `gorm:"not null"`
	Currency         string                                                `gorm:"type:varchar(3);not null"`
	StartDate        time.Time                                             `gorm:"not null"`
	EndDate          *time.Time                                            `gorm:"index:ix_subscriptions_end_date"`
	NextBillingDate  *time.Time                                            `gorm:"index:ix_subscriptions_next_billing_date"`
	LastPaymentDate  *time.Time                                            `gorm:""`
	CancelledDate    *time.Time                                            `gorm:""`
	PausedDate       *time.Time                                            `gorm:""`
	Installation     datatypes.JSONType[subscriptiondomain.Installation]   `gorm:""`
	Address          datatypes.JSONType[subscriptiondomain.Address]        `gorm:""`
	PaymentHistory   datatypes.JSONSlice[subscriptiondomain.PaymentRecord] `gorm:""`
	Metadata         datatypes.JSONType[subscriptiondomain.Metadata]       `gorm:""`
	Notes            datatypes.JSONSlice[subscriptiondomain.Note]          `gorm:""`
	CapacityReleased bool                                                  `gorm:"not null;default:false"`
	Version          int64                                                 `gorm:"not null;default:0"`
	CreatedAt        time.Time                                             `gorm:"not null"`
	UpdatedAt        time.Time                                             `gorm:"not null"`
}

func (subscriptionRow) TableName() string { return "subscriptions" }

// itemRow is written once at creation; line items never change afterwards.
type itemRow struct {
	SubscriptionID    snowflake.ID                                 `gorm:"primaryKey;autoIncrement:false"`
	Position          int                                          `gorm:"primaryKey;autoIncrement:false"`
	ServiceID         snowflake.ID                                 `gorm:"not null;index:ix_subscription_items_service"`
	Quantity          int64                                        `gorm:"not null"`
	Customizations    datatypes.JSONType[catalogdomain.Attributes] `gorm:""`
	PriceAmount       int64                                        `gorm:"not null"`
	PriceCurrency     string                                       `gorm:"type:varchar(3);not null"`
	PriceBillingCycle string                                       `gorm:"type:varchar(16);not null"`
}

func (itemRow) TableName() string { return "subscription_items" }

// Models lists the gorm models owned by this package, for AutoMigrate.
func Models() []any {
	return []any{&subscriptionRow{}, &itemRow{}}
}

type gormRepo struct {
	db *gorm.DB
}

func NewGorm(conn *gorm.DB) subscriptiondomain.Repository {
	return &gormRepo{db: conn}
}

// Insert writes the subscription and its line items. Callers run it inside a
// transaction together with the capacity reservations.
func (r *gormRepo) Insert(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	conn := db.Conn(ctx, r.db)

	row := toRow(sub)
	if err := conn.Create(&row).Error; err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	if items := toItemRows(sub); len(items) > 0 {
		if err := conn.Create(&items).Error; err != nil {
			return fmt.Errorf("insert subscription items: %w", err)
		}
	}
	return nil
}

func (r *gormRepo) Update(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	conn := db.Conn(ctx, r.db)

	row := toRow(sub)
	row.Version = sub.Version + 1
	res := conn.
		Model(&subscriptionRow{}).
		Where("id = ? AND version = ?", sub.ID, sub.Version).
		Select("*").
		Omit("id", "user_id", "created_at").
		Updates(&row)
	if res.Error != nil {
		return fmt.Errorf("update subscription: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := conn.Model(&subscriptionRow{}).Where("id = ?", sub.ID).Count(&count).Error; err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		if count == 0 {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		return subscriptiondomain.ErrConcurrentUpdate
	}

	sub.Version = row.Version
	return nil
}

func (r *gormRepo) FindByID(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var row subscriptionRow
	err := db.Conn(ctx, r.db).Where("id = ?", id).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}

	out, err := r.withItems(ctx, []subscriptionRow{row})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *gormRepo) List(ctx context.Context, filter subscriptiondomain.ListFilter) ([]*subscriptiondomain.Subscription, error) {
	stmt := db.Conn(ctx, r.db).Model(&subscriptionRow{})
	if filter.UserID != 0 {
		stmt = stmt.Where("user_id = ?", filter.UserID)
	}
	if len(filter.Statuses) > 0 {
		stmt = stmt.Where("status IN ?", statusStrings(filter.Statuses))
	}
	if filter.BeforeID != 0 {
		stmt = stmt.Where("id < ?", filter.BeforeID)
	}
	if filter.Limit > 0 {
		stmt = stmt.Limit(filter.Limit)
	}

	var rows []subscriptionRow
	if err := stmt.Order("id DESC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return r.withItems(ctx, rows)
}

func (r *gormRepo) CountActiveByUser(ctx context.Context, userID snowflake.ID) (int64, error) {
	var count int64
	err := db.Conn(ctx, r.db).
		Model(&subscriptionRow{}).
		Where("user_id = ? AND status IN ?", userID, statusStrings(subscriptiondomain.CountedStatuses)).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return count, nil
}

func (r *gormRepo) ListDueForBilling(ctx context.Context, at time.Time, limit int) ([]*subscriptiondomain.Subscription, error) {
	stmt := db.Conn(ctx, r.db).
		Where("status = ? AND next_billing_date IS NOT NULL AND next_billing_date <= ?", string(subscriptiondomain.StatusActive), at.UTC()).
		Order("next_billing_date ASC, id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var rows []subscriptionRow
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list due subscriptions: %w", err)
	}
	return r.withItems(ctx, rows)
}

func (r *gormRepo) ListExpiring(ctx context.Context, at time.Time, limit int) ([]*subscriptiondomain.Subscription, error) {
	statuses := []string{string(subscriptiondomain.StatusActive), string(subscriptiondomain.StatusPaused)}
	stmt := db.Conn(ctx, r.db).
		Where("status IN ? AND end_date IS NOT NULL AND end_date <= ?", statuses, at.UTC()).
		Order("end_date ASC, id ASC")
	if limit > 0 {
		stmt = stmt.Limit(limit)
	}

	var rows []subscriptionRow
	if err := stmt.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list expiring subscriptions: %w", err)
	}
	return r.withItems(ctx, rows)
}

func (r *gormRepo) withItems(ctx context.Context, rows []subscriptionRow) ([]*subscriptiondomain.Subscription, error) {
	out := make([]*subscriptiondomain.Subscription, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}

	ids := make([]snowflake.ID, 0, len(rows))
	for i := range rows {
		ids = append(ids, rows[i].ID)
	}
	var items []itemRow
	err := db.Conn(ctx, r.db).
		Where("subscription_id IN ?", ids).
		Order("subscription_id ASC, position ASC").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("load subscription items: %w", err)
	}

	grouped := make(map[snowflake.ID][]subscriptiondomain.LineItem, len(rows))
	for _, item := range items {
		grouped[item.SubscriptionID] = append(grouped[item.SubscriptionID], subscriptiondomain.LineItem{
			ServiceID:      item.ServiceID,
			Quantity:       item.Quantity,
			Customizations: item.Customizations.Data(),
			PriceAtSubscription: subscriptiondomain.PriceSnapshot{
				Amount:       item.PriceAmount,
				Currency:     item.PriceCurrency,
				BillingCycle: billingcycle.Cycle(item.PriceBillingCycle),
			},
		})
	}

	for i := range rows {
		sub := fromRow(&rows[i])
		sub.Items = grouped[rows[i].ID]
		if sub.Items == nil {
			sub.Items = []subscriptiondomain.LineItem{}
		}
		out = append(out, sub)
	}
	return out, nil
}

func statusStrings(statuses []subscriptiondomain.Status) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func toRow(s *subscriptiondomain.Subscription) subscriptionRow {
	return subscriptionRow{
		ID:               s.ID,
		UserID:           s.UserID,
		Status:           string(s.Status),
		PaymentStatus:    string(s.PaymentStatus),
		BillingCycle:     string(s.BillingCycle),
		Subtotal:         s.Pricing.Subtotal,
		Taxes:            s.Pricing.Taxes,
		Discounts:        s.Pricing.Discounts,
		Total:            s.Pricing.Total,
		Currency:         s.Pricing.Currency,
		StartDate:        s.Dates.StartDate.UTC(),
		EndDate:          utc(s.Dates.EndDate),
		NextBillingDate:  utc(s.Dates.NextBillingDate),
		LastPaymentDate:  utc(s.Dates.LastPaymentDate),
		CancelledDate:    utc(s.Dates.CancelledDate),
		PausedDate:       utc(s.Dates.PausedDate),
		Installation:     datatypes.NewJSONType(s.Installation),
		Address:          datatypes.NewJSONType(s.Address),
		PaymentHistory:   datatypes.NewJSONSlice(s.PaymentHistory),
		Metadata:         datatypes.NewJSONType(s.Metadata),
		Notes:            datatypes.NewJSONSlice(s.Notes),
		CapacityReleased: s.CapacityReleased,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
}

func toItemRows(s *subscriptiondomain.Subscription) []itemRow {
	rows := make([]itemRow, 0, len(s.Items))
	for i, item := range s.Items {
		rows = append(rows, itemRow{
			SubscriptionID:    s.ID,
			Position:          i,
			ServiceID:         item.ServiceID,
			Quantity:          item.Quantity,
			Customizations:    datatypes.NewJSONType(item.Customizations),
			PriceAmount:       item.PriceAtSubscription.Amount,
			PriceCurrency:     item.PriceAtSubscription.Currency,
			PriceBillingCycle: string(item.PriceAtSubscription.BillingCycle),
		})
	}
	return rows
}

func fromRow(row *subscriptionRow) *subscriptiondomain.Subscription {
	return &subscriptiondomain.Subscription{
		ID:            row.ID,
		UserID:        row.UserID,
		Status:        subscriptiondomain.Status(row.Status),
		PaymentStatus: subscriptiondomain.PaymentStatus(row.PaymentStatus),
		BillingCycle:  billingcycle.Cycle(row.BillingCycle),
		Pricing: subscriptiondomain.Pricing{
			Subtotal:  row.Subtotal,
			Taxes:     row.Taxes,
			Discounts: row.Discounts,
			Total:     row.Total,
			Currency:  row.Currency,
		},
		Dates: subscriptiondomain.Dates{
			StartDate:       row.StartDate.UTC(),
			EndDate:         utc(row.EndDate),
			NextBillingDate: utc(row.NextBillingDate),
			LastPaymentDate: utc(row.LastPaymentDate),
			CancelledDate:   utc(row.CancelledDate),
			PausedDate:      utc(row.PausedDate),
		},
		Installation:     row.Installation.Data(),
		Address:          row.Address.Data(),
		PaymentHistory:   []subscriptiondomain.PaymentRecord(row.PaymentHistory),
		Metadata:         row.Metadata.Data(),
		Notes:            []subscriptiondomain.Note(row.Notes),
		CapacityReleased: row.CapacityReleased,
		Version:          row.Version,
		CreatedAt:        row.CreatedAt.UTC(),
		UpdatedAt:        row.UpdatedAt.UTC(),
	}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
