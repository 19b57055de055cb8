package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	subscriptiondomain "github.com/smallbiznis/servicehub/internal/subscription/domain"
	"github.com/smallbiznis/servicehub/pkg/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const colSubscriptions = "subscriptions"

type subscriptionDoc struct {
	ID               int64           `bson:"_id"`
	UserID           int64           `bson:"user_id"`
	Items            []itemDoc       `bson:"services"`
	Pricing          pricingDoc      `bson:"pricing"`
	BillingCycle     string          `bson:"billing_cycle"`
	Status           string          `bson:"status"`
	PaymentStatus    string          `bson:"payment_status"`
	Dates            datesDoc        `bson:"dates"`
	Installation     installationDoc `bson:"installation"`
	Address          addressDoc      `bson:"address"`
	PaymentHistory   []paymentDoc    `bson:"payment_history"`
	Metadata         metadataDoc     `bson:"metadata"`
	Notes            []noteDoc       `bson:"notes"`
	CapacityReleased bool            `bson:"capacity_released"`
	Version          int64           `bson:"version"`
	CreatedAt        time.Time       `bson:"created_at"`
	UpdatedAt        time.Time       `bson:"updated_at"`
}

type itemDoc struct {
	ServiceID      int64             `bson:"service_id"`
	Quantity       int64             `bson:"quantity"`
	Customizations map[string]string `bson:"customizations,omitempty"`
	Amount         int64             `bson:"price_amount"`
	Currency       string            `bson:"price_currency"`
	BillingCycle   string            `bson:"price_billing_cycle"`
}

type pricingDoc struct {
	Subtotal  int64  `bson:"subtotal"`
	Taxes     int64  `bson:"taxes"`
	Discounts int64  `bson:"discounts"`
	Total     int64  `bson:"total"`
	Currency  string `bson:"currency"`
}

type datesDoc struct {
	StartDate       time.Time  `bson:"start_date"`
	EndDate         *time.Time `bson:"end_date"`
	NextBillingDate *time.Time `bson:"next_billing_date"`
	LastPaymentDate *time.Time `bson:"last_payment_date,omitempty"`
	CancelledDate   *time.Time `bson:"cancelled_date,omitempty"`
	PausedDate      *time.Time `bson:"paused_date,omitempty"`
}

type installationDoc struct {
	IsRequired      bool       `bson:"is_required"`
	ScheduledDate   *time.Time `bson:"scheduled_date,omitempty"`
	Status          string     `bson:"status"`
	TechnicianName  string     `bson:"technician_name,omitempty"`
	TechnicianPhone string     `bson:"technician_phone,omitempty"`
	Notes           string     `bson:"notes,omitempty"`
}

type addressDoc struct {
	Street   string `bson:"street"`
	City     string `bson:"city"`
	State    string `bson:"state"`
	Pincode  string `bson:"pincode"`
	Country  string `bson:"country"`
	Landmark string `bson:"landmark,omitempty"`
}

type paymentDoc struct {
	Amount        int64      `bson:"amount"`
	Currency      string     `bson:"currency"`
	Method        string     `bson:"method"`
	TransactionID string     `bson:"transaction_id,omitempty"`
	Status        string     `bson:"status"`
	PaidAt        *time.Time `bson:"paid_at,omitempty"`
	Notes         string     `bson:"notes,omitempty"`
}

type metadataDoc struct {
	Source       string   `bson:"source,omitempty"`
	ReferralCode string   `bson:"referral_code,omitempty"`
	PromoCode    string   `bson:"promo_code,omitempty"`
	Tags         []string `bson:"tags,omitempty"`
}

type noteDoc struct {
	At      time.Time `bson:"at"`
	Author  string    `bson:"author"`
	Message string    `bson:"message"`
}

type mongoRepo struct {
	col *mongo.Collection
}

func NewMongo(database *mongo.Database) subscriptiondomain.Repository {
	return &mongoRepo{col: database.Collection(colSubscriptions)}
}

// MongoIndexes returns the index definitions for the subscriptions collection.
func MongoIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colSubscriptions: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "_id", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "dates.next_billing_date", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "dates.end_date", Value: 1}}},
		},
	}
}

func (r *mongoRepo) Insert(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	if _, err := r.col.InsertOne(ctx, toDoc(sub)); err != nil {
		return fmt.Errorf("insert subscription: %w", err)
	}
	return nil
}

func (r *mongoRepo) Update(ctx context.Context, sub *subscriptiondomain.Subscription) error {
	d := toDoc(sub)
	d.Version = sub.Version + 1

	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": d.ID, "version": sub.Version}, d)
	if err != nil {
		return fmt.Errorf("update subscription: %w", err)
	}
	if res.MatchedCount == 0 {
		n, err := r.col.CountDocuments(ctx, bson.M{"_id": d.ID}, options.Count().SetLimit(1))
		if err != nil {
			return fmt.Errorf("update subscription: %w", err)
		}
		if n == 0 {
			return subscriptiondomain.ErrSubscriptionNotFound
		}
		return subscriptiondomain.ErrConcurrentUpdate
	}

	sub.Version = d.Version
	return nil
}

func (r *mongoRepo) FindByID(ctx context.Context, id snowflake.ID) (*subscriptiondomain.Subscription, error) {
	var d subscriptionDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id.Int64()}).Decode(&d); err != nil {
		if docstore.IsNoDocuments(err) {
			return nil, subscriptiondomain.ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("find subscription: %w", err)
	}
	return fromDoc(&d), nil
}

func (r *mongoRepo) List(ctx context.Context, filter subscriptiondomain.ListFilter) ([]*subscriptiondomain.Subscription, error) {
	query := bson.M{}
	if filter.UserID != 0 {
		query["user_id"] = filter.UserID.Int64()
	}
	if len(filter.Statuses) > 0 {
		query["status"] = bson.M{"$in": statusStrings(filter.Statuses)}
	}
	if filter.BeforeID != 0 {
		query["_id"] = bson.M{"$lt": filter.BeforeID.Int64()}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, query, opts)
}

func (r *mongoRepo) CountActiveByUser(ctx context.Context, userID snowflake.ID) (int64, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{
		"user_id": userID.Int64(),
		"status":  bson.M{"$in": statusStrings(subscriptiondomain.CountedStatuses)},
	})
	if err != nil {
		return 0, fmt.Errorf("count subscriptions: %w", err)
	}
	return n, nil
}

func (r *mongoRepo) ListDueForBilling(ctx context.Context, at time.Time, limit int) ([]*subscriptiondomain.Subscription, error) {
	query := bson.M{
		"status":                  string(subscriptiondomain.StatusActive),
		"dates.next_billing_date": bson.M{"$ne": nil, "$lte": at.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "dates.next_billing_date", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	return r.find(ctx, query, opts)
}

func (r *mongoRepo) ListExpiring(ctx context.Context, at time.Time, limit int) ([]*subscriptiondomain.Subscription, error) {
	query := bson.M{
		"status": bson.M{"$in": bson.A{
			string(subscriptiondomain.StatusActive),
			string(subscriptiondomain.StatusPaused),
		}},
		"dates.end_date": bson.M{"$ne": nil, "$lte": at.UTC()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "dates.end_date", Value: 1}, {Key: "_id", Value: 1}})
	if limit > 0 {
		opts = opts.SetLimit(int64(limit))
	}
	return r.find(ctx, query, opts)
}

func (r *mongoRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*subscriptiondomain.Subscription, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	var docs []subscriptionDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode subscriptions: %w", err)
	}
	out := make([]*subscriptiondomain.Subscription, 0, len(docs))
	for i := range docs {
		out = append(out, fromDoc(&docs[i]))
	}
	return out, nil
}

func toDoc(s *subscriptiondomain.Subscription) subscriptionDoc {
	d := subscriptionDoc{
		ID:           s.ID.Int64(),
		UserID:       s.UserID.Int64(),
		Items:        make([]itemDoc, 0, len(s.Items)),
		BillingCycle: string(s.BillingCycle),
		Pricing: pricingDoc{
			Subtotal:  s.Pricing.Subtotal,
			Taxes:     s.Pricing.Taxes,
			Discounts: s.Pricing.Discounts,
			Total:     s.Pricing.Total,
			Currency:  s.Pricing.Currency,
		},
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		Dates: datesDoc{
			StartDate:       s.Dates.StartDate.UTC(),
			EndDate:         utc(s.Dates.EndDate),
			NextBillingDate: utc(s.Dates.NextBillingDate),
			LastPaymentDate: utc(s.Dates.LastPaymentDate),
			CancelledDate:   utc(s.Dates.CancelledDate),
			PausedDate:      utc(s.Dates.PausedDate),
		},
		Installation: installationDoc{
			IsRequired:    s.Installation.IsRequired,
			ScheduledDate: utc(s.Installation.ScheduledDate),
			Status:        string(s.Installation.Status),
			Notes:         s.Installation.Notes,
		},
		Address: addressDoc(s.Address),
		Metadata: metadataDoc{
			Source:       s.Metadata.Source,
			ReferralCode: s.Metadata.ReferralCode,
			PromoCode:    s.Metadata.PromoCode,
			Tags:         s.Metadata.Tags,
		},
		PaymentHistory:   make([]paymentDoc, 0, len(s.PaymentHistory)),
		Notes:            make([]noteDoc, 0, len(s.Notes)),
		CapacityReleased: s.CapacityReleased,
		Version:          s.Version,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
	if tech := s.Installation.Technician; tech != nil {
		d.Installation.TechnicianName = tech.Name
		d.Installation.TechnicianPhone = tech.Phone
	}
	for _, item := range s.Items {
		d.Items = append(d.Items, itemDoc{
			ServiceID:      item.ServiceID.Int64(),
			Quantity:       item.Quantity,
			Customizations: item.Customizations,
			Amount:         item.PriceAtSubscription.Amount,
			Currency:       item.PriceAtSubscription.Currency,
			BillingCycle:   string(item.PriceAtSubscription.BillingCycle),
		})
	}
	for _, p := range s.PaymentHistory {
		d.PaymentHistory = append(d.PaymentHistory, paymentDoc{
			Amount:        p.Amount,
			Currency:      p.Currency,
			Method:        string(p.Method),
			TransactionID: p.TransactionID,
			Status:        string(p.Status),
			PaidAt:        utc(p.PaidAt),
			Notes:         p.Notes,
		})
	}
	for _, n := range s.Notes {
		d.Notes = append(d.Notes, noteDoc{At: n.At.UTC(), Author: n.Author, Message: n.Message})
	}
	return d
}

func fromDoc(d *subscriptionDoc) *subscriptiondomain.Subscription {
	s := &subscriptiondomain.Subscription{
		ID:           snowflake.ID(d.ID),
		UserID:       snowflake.ID(d.UserID),
		Items:        make([]subscriptiondomain.LineItem, 0, len(d.Items)),
		BillingCycle: billingcycle.Cycle(d.BillingCycle),
		Pricing: subscriptiondomain.Pricing{
			Subtotal:  d.Pricing.Subtotal,
			Taxes:     d.Pricing.Taxes,
			Discounts: d.Pricing.Discounts,
			Total:     d.Pricing.Total,
			Currency:  d.Pricing.Currency,
		},
		Status:        subscriptiondomain.Status(d.Status),
		PaymentStatus: subscriptiondomain.PaymentStatus(d.PaymentStatus),
		Dates: subscriptiondomain.Dates{
			StartDate:       d.Dates.StartDate.UTC(),
			EndDate:         utc(d.Dates.EndDate),
			NextBillingDate: utc(d.Dates.NextBillingDate),
			LastPaymentDate: utc(d.Dates.LastPaymentDate),
			CancelledDate:   utc(d.Dates.CancelledDate),
			PausedDate:      utc(d.Dates.PausedDate),
		},
		Installation: subscriptiondomain.Installation{
			IsRequired:    d.Installation.IsRequired,
			ScheduledDate: utc(d.Installation.ScheduledDate),
			Status:        subscriptiondomain.InstallationStatus(d.Installation.Status),
			Notes:         d.Installation.Notes,
		},
		Address: subscriptiondomain.Address(d.Address),
		Metadata: subscriptiondomain.Metadata{
			Source:       d.Metadata.Source,
			ReferralCode: d.Metadata.ReferralCode,
			PromoCode:    d.Metadata.PromoCode,
			Tags:         d.Metadata.Tags,
		},
		PaymentHistory:   make([]subscriptiondomain.PaymentRecord, 0, len(d.PaymentHistory)),
		Notes:            make([]subscriptiondomain.Note, 0, len(d.Notes)),
		CapacityReleased: d.CapacityReleased,
		Version:          d.Version,
		CreatedAt:        d.CreatedAt.UTC(),
		UpdatedAt:        d.UpdatedAt.UTC(),
	}
	if d.Installation.TechnicianName != "" || d.Installation.TechnicianPhone != "" {
		s.Installation.Technician = &subscriptiondomain.Technician{
			Name:  d.Installation.TechnicianName,
			Phone: d.Installation.TechnicianPhone,
		}
	}
	for _, item := range d.Items {
		s.Items = append(s.Items, subscriptiondomain.LineItem{
			ServiceID:      snowflake.ID(item.ServiceID),
			Quantity:       item.Quantity,
			Customizations: catalogdomain.Attributes(item.Customizations),
			PriceAtSubscription: subscriptiondomain.PriceSnapshot{
				Amount:       item.Amount,
				Currency:     item.Currency,
				BillingCycle: billingcycle.Cycle(item.BillingCycle),
			},
		})
	}
	for _, p := range d.PaymentHistory {
		s.PaymentHistory = append(s.PaymentHistory, subscriptiondomain.PaymentRecord{
			Amount:        p.Amount,
			Currency:      p.Currency,
			Method:        subscriptiondomain.PaymentMethod(p.Method),
			TransactionID: p.TransactionID,
			Status:        subscriptiondomain.PaymentRecordStatus(p.Status),
			PaidAt:        utc(p.PaidAt),
			Notes:         p.Notes,
		})
	}
	for _, n := range d.Notes {
		s.Notes = append(s.Notes, subscriptiondomain.Note{At: n.At.UTC(), Author: n.Author, Message: n.Message})
	}
	return s
}
