package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/internal/clock"
	"github.com/smallbiznis/servicehub/internal/config"
	"github.com/smallbiznis/servicehub/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	maxNameLength    = 200
	maxSlugAttempts  = 50
	maxListEntryRune = 64
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

type Params struct {
	fx.In

	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     catalogdomain.Repository
	Commerce *config.CommerceHolder
	Clock    clock.Clock
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	repo     catalogdomain.Repository
	commerce *config.CommerceHolder
	clock    clock.Clock
}

func NewService(p Params) catalogdomain.CatalogService {
	return &Service{
		log:      p.Log.Named("catalog.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		commerce: p.Commerce,
		clock:    p.Clock,
	}
}

func (s *Service) Create(ctx context.Context, req catalogdomain.CreateRequest) (*catalogdomain.Service, error) {
	name, err := normalizeName(req.Name)
	if err != nil {
		return nil, err
	}
	category, err := catalogdomain.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	price, err := s.parsePrice(req.Price)
	if err != nil {
		return nil, err
	}

	availability := catalogdomain.Availability{IsActive: true, MaxSubscriptions: req.MaxSubscriptions}
	if req.IsActive != nil {
		availability.IsActive = *req.IsActive
	}
	if req.MaxSubscriptions != nil && *req.MaxSubscriptions < 0 {
		return nil, catalogdomain.ErrInvalidCapacity
	}

	constraints := catalogdomain.Constraints{
		MaxQuantityPerUser:    1,
		MinSubscriptionPeriod: req.MinSubscriptionPeriod,
		MaxOnlineOrderValue:   req.MaxOnlineOrderValue,
		RequiresQuote:         req.RequiresQuote,
	}
	if req.MaxQuantityPerUser != nil {
		constraints.MaxQuantityPerUser = *req.MaxQuantityPerUser
	}
	if err := validateConstraints(constraints); err != nil {
		return nil, err
	}

	specs := catalogdomain.Attributes(req.Specifications)
	if err := specs.Validate(); err != nil {
		return nil, err
	}

	serviceSlug, err := s.uniqueSlug(ctx, name)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	entity := &catalogdomain.Service{
		ID:             s.genID.Generate(),
		Name:           name,
		Slug:           serviceSlug,
		Category:       category,
		Description:    strings.TrimSpace(req.Description),
		Price:          price,
		Availability:   availability,
		Constraints:    constraints,
		Specifications: specs.Clone(),
		Features:       normalizeList(req.Features),
		Tags:           normalizeList(req.Tags),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := s.repo.Insert(ctx, entity); err != nil {
		return nil, err
	}

	s.log.Info("service created",
		zap.String("service_id", entity.ID.String()),
		zap.String("slug", entity.Slug),
		zap.String("category", string(entity.Category)),
	)
	return entity, nil
}

func (s *Service) Update(ctx context.Context, id string, req catalogdomain.UpdateRequest) (*catalogdomain.Service, error) {
	serviceID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	entity, err := s.repo.FindByID(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		name, err := normalizeName(*req.Name)
		if err != nil {
			return nil, err
		}
		entity.Name = name
	}
	if req.Category != nil {
		category, err := catalogdomain.ParseCategory(*req.Category)
		if err != nil {
			return nil, err
		}
		entity.Category = category
	}
	if req.Description != nil {
		entity.Description = strings.TrimSpace(*req.Description)
	}
	if req.Price != nil {
		price, err := s.parsePrice(*req.Price)
		if err != nil {
			return nil, err
		}
		entity.Price = price
	}
	if req.IsActive != nil {
		entity.Availability.IsActive = *req.IsActive
	}
	if req.ClearMaxSubscriptions {
		entity.Availability.MaxSubscriptions = nil
	} else if req.MaxSubscriptions != nil {
		if *req.MaxSubscriptions < entity.Availability.CurrentSubscriptions {
			return nil, catalogdomain.ErrInvalidCapacity
		}
		capacity := *req.MaxSubscriptions
		entity.Availability.MaxSubscriptions = &capacity
	}
	if req.MaxQuantityPerUser != nil {
		entity.Constraints.MaxQuantityPerUser = *req.MaxQuantityPerUser
	}
	if req.MinSubscriptionPeriod != nil {
		entity.Constraints.MinSubscriptionPeriod = *req.MinSubscriptionPeriod
	}
	if req.MaxOnlineOrderValue != nil {
		value := *req.MaxOnlineOrderValue
		entity.Constraints.MaxOnlineOrderValue = &value
	}
	if req.RequiresQuote != nil {
		entity.Constraints.RequiresQuote = *req.RequiresQuote
	}
	if err := validateConstraints(entity.Constraints); err != nil {
		return nil, err
	}
	if req.Specifications != nil {
		specs := catalogdomain.Attributes(req.Specifications)
		if err := specs.Validate(); err != nil {
			return nil, err
		}
		entity.Specifications = specs.Clone()
	}
	if req.Features != nil {
		entity.Features = normalizeList(req.Features)
	}
	if req.Tags != nil {
		entity.Tags = normalizeList(req.Tags)
	}

	entity.UpdatedAt = s.clock.Now()
	if err := s.repo.Update(ctx, entity); err != nil {
		return nil, err
	}

	s.log.Info("service updated",
		zap.String("service_id", entity.ID.String()),
		zap.Bool("is_active", entity.Availability.IsActive),
	)
	return entity, nil
}

// Get resolves a service by snowflake id or by slug.
func (s *Service) Get(ctx context.Context, idOrSlug string) (*catalogdomain.Service, error) {
	key := strings.TrimSpace(idOrSlug)
	if key == "" {
		return nil, catalogdomain.ErrInvalidID
	}

	if id, err := parseID(key); err == nil {
		entity, err := s.repo.FindByID(ctx, id)
		if err == nil || !errors.Is(err, catalogdomain.ErrServiceNotFound) {
			return entity, err
		}
	}
	return s.repo.FindBySlug(ctx, strings.ToLower(key))
}

func (s *Service) List(ctx context.Context, req catalogdomain.ListRequest) (*catalogdomain.ListResponse, error) {
	filter := catalogdomain.ListFilter{Query: req.Query, Active: req.Active}
	if req.ActiveOnly {
		active := true
		filter.Active = &active
	}
	if strings.TrimSpace(req.Category) != "" {
		category, err := catalogdomain.ParseCategory(req.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = &category
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, catalogdomain.ErrInvalidPageToken
		}
		afterID, err := parseID(cursor.ID)
		if err != nil {
			return nil, catalogdomain.ErrInvalidPageToken
		}
		filter.AfterID = afterID
	}

	limit := req.Limit()
	filter.Limit = limit + 1

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	page, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *catalogdomain.Service) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String()})
		return token
	})
	return &catalogdomain.ListResponse{Services: page, PageInfo: pageInfo}, nil
}

func (s *Service) parsePrice(in catalogdomain.PriceInput) (catalogdomain.Price, error) {
	if in.Amount < 0 || in.Amount > catalogdomain.MaxPriceAmount {
		return catalogdomain.Price{}, catalogdomain.ErrInvalidPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.commerce.Get().DefaultCurrency
	}
	if !currencyPattern.MatchString(currency) {
		return catalogdomain.Price{}, catalogdomain.ErrInvalidCurrency
	}
	cycle, err := billingcycle.Parse(in.BillingCycle)
	if err != nil {
		return catalogdomain.Price{}, err
	}
	return catalogdomain.Price{Amount: in.Amount, Currency: currency, BillingCycle: cycle}, nil
}

func (s *Service) uniqueSlug(ctx context.Context, name string) (string, error) {
	base := slug.Make(name)
	if base == "" {
		return "", catalogdomain.ErrInvalidName
	}

	candidate := base
	for attempt := 2; attempt <= maxSlugAttempts; attempt++ {
		exists, err := s.repo.SlugExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, attempt)
	}
	return "", catalogdomain.ErrSlugConflict
}

func validateConstraints(c catalogdomain.Constraints) error {
	if c.MaxQuantityPerUser < 1 || c.MaxQuantityPerUser > catalogdomain.MaxQuantityPerUserLimit {
		return catalogdomain.ErrInvalidConstraints
	}
	if c.MinSubscriptionPeriod < 0 {
		return catalogdomain.ErrInvalidConstraints
	}
	if c.MaxOnlineOrderValue != nil && *c.MaxOnlineOrderValue < 0 {
		return catalogdomain.ErrInvalidConstraints
	}
	return nil
}

func normalizeName(raw string) (string, error) {
	name := strings.TrimSpace(raw)
	if name == "" || len([]rune(name)) > maxNameLength {
		return "", catalogdomain.ErrInvalidName
	}
	return name, nil
}

func normalizeList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || len([]rune(v)) > maxListEntryRune {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func parseID(value string) (snowflake.ID, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, catalogdomain.ErrInvalidID
	}
	return snowflake.ID(parsed), nil
}
