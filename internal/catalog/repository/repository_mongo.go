package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/pkg/docstore"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const colServices = "services"

type serviceDoc struct {
	ID             int64             `bson:"_id"`
	Name           string            `bson:"name"`
	Slug           string            `bson:"slug"`
	Category       string            `bson:"category"`
	Description    string            `bson:"description,omitempty"`
	Price          priceDoc          `bson:"price"`
	Availability   availabilityDoc   `bson:"availability"`
	Constraints    constraintsDoc    `bson:"constraints"`
	Specifications map[string]string `bson:"specifications,omitempty"`
	Features       []string          `bson:"features,omitempty"`
	Tags           []string          `bson:"tags,omitempty"`
	CreatedAt      time.Time         `bson:"created_at"`
	UpdatedAt      time.Time         `bson:"updated_at"`
}

type priceDoc struct {
	Amount       int64  `bson:"amount"`
	Currency     string `bson:"currency"`
	BillingCycle string `bson:"billing_cycle"`
}

type availabilityDoc struct {
	IsActive             bool   `bson:"is_active"`
	MaxSubscriptions     *int64 `bson:"max_subscriptions"`
	CurrentSubscriptions int64  `bson:"current_subscriptions"`
}

type constraintsDoc struct {
	MaxQuantityPerUser    int64  `bson:"max_quantity_per_user"`
	MinSubscriptionPeriod int    `bson:"min_subscription_period"`
	MaxOnlineOrderValue   *int64 `bson:"max_online_order_value"`
	RequiresQuote         bool   `bson:"requires_quote"`
}

type mongoRepo struct {
	col *mongo.Collection
}

func NewMongo(database *mongo.Database) catalogdomain.Repository {
	return &mongoRepo{col: database.Collection(colServices)}
}

// MongoIndexes returns the index definitions for the services collection.
func MongoIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colServices: {
			{
				Keys:    bson.D{{Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "availability.is_active", Value: 1}}},
		},
	}
}

func (r *mongoRepo) Insert(ctx context.Context, service *catalogdomain.Service) error {
	if _, err := r.col.InsertOne(ctx, toDoc(service)); err != nil {
		if docstore.IsDuplicateKey(err) {
			return catalogdomain.ErrSlugConflict
		}
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

func (r *mongoRepo) Update(ctx context.Context, service *catalogdomain.Service) error {
	d := toDoc(service)
	res, err := r.col.UpdateOne(ctx, bson.M{"_id": d.ID}, bson.M{"$set": bson.M{
		"name":                           d.Name,
		"slug":                           d.Slug,
		"category":                       d.Category,
		"description":                    d.Description,
		"price":                          d.Price,
		"availability.is_active":         d.Availability.IsActive,
		"availability.max_subscriptions": d.Availability.MaxSubscriptions,
		"constraints":                    d.Constraints,
		"specifications":                 d.Specifications,
		"features":                       d.Features,
		"tags":                           d.Tags,
		"updated_at":                     d.UpdatedAt,
	}})
	if err != nil {
		if docstore.IsDuplicateKey(err) {
			return catalogdomain.ErrSlugConflict
		}
		return fmt.Errorf("update service: %w", err)
	}
	if res.MatchedCount == 0 {
		return catalogdomain.ErrServiceNotFound
	}
	return nil
}

func (r *mongoRepo) FindByID(ctx context.Context, id snowflake.ID) (*catalogdomain.Service, error) {
	return r.findOne(ctx, bson.M{"_id": id.Int64()})
}

func (r *mongoRepo) FindBySlug(ctx context.Context, slug string) (*catalogdomain.Service, error) {
	return r.findOne(ctx, bson.M{"slug": slug})
}

func (r *mongoRepo) findOne(ctx context.Context, filter bson.M) (*catalogdomain.Service, error) {
	var d serviceDoc
	if err := r.col.FindOne(ctx, filter).Decode(&d); err != nil {
		if docstore.IsNoDocuments(err) {
			return nil, catalogdomain.ErrServiceNotFound
		}
		return nil, fmt.Errorf("find service: %w", err)
	}
	return fromDoc(&d), nil
}

func (r *mongoRepo) FindByIDs(ctx context.Context, ids []snowflake.ID) ([]*catalogdomain.Service, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make(bson.A, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, id.Int64())
	}
	return r.find(ctx, bson.M{"_id": bson.M{"$in": raw}}, options.Find())
}

func (r *mongoRepo) List(ctx context.Context, filter catalogdomain.ListFilter) ([]*catalogdomain.Service, error) {
	query := bson.M{}
	if filter.Category != nil {
		query["category"] = string(*filter.Category)
	}
	if filter.Active != nil {
		query["availability.is_active"] = *filter.Active
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		query["name"] = bson.Regex{Pattern: regexp.QuoteMeta(q), Options: "i"}
	}
	if filter.AfterID != 0 {
		query["_id"] = bson.M{"$gt": filter.AfterID.Int64()}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if filter.Limit > 0 {
		opts = opts.SetLimit(int64(filter.Limit))
	}
	return r.find(ctx, query, opts)
}

func (r *mongoRepo) find(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]*catalogdomain.Service, error) {
	cursor, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("list services: %w", err)
	}
	var docs []serviceDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode services: %w", err)
	}
	out := make([]*catalogdomain.Service, 0, len(docs))
	for i := range docs {
		out = append(out, fromDoc(&docs[i]))
	}
	return out, nil
}

func (r *mongoRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	n, err := r.col.CountDocuments(ctx, bson.M{"slug": slug}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check slug: %w", err)
	}
	return n > 0, nil
}

func (r *mongoRepo) Reserve(ctx context.Context, id snowflake.ID) error {
	filter := bson.M{
		"_id":                    id.Int64(),
		"availability.is_active": true,
		"$or": bson.A{
			bson.M{"availability.max_subscriptions": nil},
			bson.M{"$expr": bson.M{"$lt": bson.A{
				"$availability.current_subscriptions",
				"$availability.max_subscriptions",
			}}},
		},
	}
	update := bson.M{
		"$inc": bson.M{"availability.current_subscriptions": 1},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("reserve capacity: %w", err)
	}
	if res.MatchedCount == 1 {
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

func (r *mongoRepo) Release(ctx context.Context, id snowflake.ID) error {
	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id.Int64(), "availability.current_subscriptions": bson.M{"$gt": 0}},
		bson.M{
			"$inc": bson.M{"availability.current_subscriptions": -1},
			"$set": bson.M{"updated_at": time.Now().UTC()},
		},
	)
	if err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	return nil
}

func toDoc(s *catalogdomain.Service) serviceDoc {
	return serviceDoc{
		ID:          s.ID.Int64(),
		Name:        s.Name,
		Slug:        s.Slug,
		Category:    string(s.Category),
		Description: s.Description,
		Price: priceDoc{
			Amount:       s.Price.Amount,
			Currency:     s.Price.Currency,
			BillingCycle: string(s.Price.BillingCycle),
		},
		Availability: availabilityDoc{
			IsActive:             s.Availability.IsActive,
			MaxSubscriptions:     s.Availability.MaxSubscriptions,
			CurrentSubscriptions: s.Availability.CurrentSubscriptions,
		},
		Constraints: constraintsDoc{
			MaxQuantityPerUser:    s.Constraints.MaxQuantityPerUser,
			MinSubscriptionPeriod: s.Constraints.MinSubscriptionPeriod,
			MaxOnlineOrderValue:   s.Constraints.MaxOnlineOrderValue,
			RequiresQuote:         s.Constraints.RequiresQuote,
		},
		Specifications: s.Specifications,
		Features:       s.Features,
		Tags:           s.Tags,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
	}
}

func fromDoc(d *serviceDoc) *catalogdomain.Service {
	return &catalogdomain.Service{
		ID:          snowflake.ID(d.ID),
		Name:        d.Name,
		Slug:        d.Slug,
		Category:    catalogdomain.Category(d.Category),
		Description: d.Description,
		Price: catalogdomain.Price{
			Amount:       d.Price.Amount,
			Currency:     d.Price.Currency,
			BillingCycle: billingcycle.Cycle(d.Price.BillingCycle),
		},
		Availability: catalogdomain.Availability{
			IsActive:             d.Availability.IsActive,
			MaxSubscriptions:     d.Availability.MaxSubscriptions,
			CurrentSubscriptions: d.Availability.CurrentSubscriptions,
		},
		Constraints: catalogdomain.Constraints{
			MaxQuantityPerUser:    d.Constraints.MaxQuantityPerUser,
			MinSubscriptionPeriod: d.Constraints.MinSubscriptionPeriod,
			MaxOnlineOrderValue:   d.Constraints.MaxOnlineOrderValue,
			RequiresQuote:         d.Constraints.RequiresQuote,
		},
		Specifications: catalogdomain.Attributes(d.Specifications),
		Features:       d.Features,
		Tags:           d.Tags,
		CreatedAt:      d.CreatedAt.UTC(),
		UpdatedAt:      d.UpdatedAt.UTC(),
	}
}
