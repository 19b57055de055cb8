package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/servicehub/internal/billingcycle"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/internal/clock"
	"github.com/smallbiznis/servicehub/internal/config"
	"github.com/smallbiznis/servicehub/internal/observability/logger"
	"github.com/smallbiznis/servicehub/internal/observability/metrics"
	"github.com/smallbiznis/servicehub/internal/pricing"
	"github.com/smallbiznis/servicehub/internal/subscription/domain"
	"github.com/smallbiznis/servicehub/internal/subscription/guard"
	"github.com/smallbiznis/servicehub/internal/usercontext"
	"github.com/smallbiznis/servicehub/pkg/db/pagination"
	"github.com/smallbiznis/servicehub/pkg/tx"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	CatalogRepo catalogdomain.Repository
	Tx          tx.Manager
	Commerce    *config.CommerceHolder
	Clock       clock.Clock
	Metrics     *metrics.Metrics `optional:"true"`
}

type Service struct {
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	catalog  catalogdomain.Repository
	tx       tx.Manager
	commerce *config.CommerceHolder
	clock    clock.Clock
	metrics  *metrics.Metrics
}

func NewService(p Params) domain.Service {
	return &Service{
		log:      p.Log.Named("subscription.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		catalog:  p.CatalogRepo,
		tx:       p.Tx,
		commerce: p.Commerce,
		clock:    p.Clock,
		metrics:  p.Metrics,
	}
}

// rejectionReasons are the order failures counted by reason.
var rejectionReasons = []error{
	domain.ErrEmptyOrder,
	domain.ErrDuplicateService,
	domain.ErrInvalidQuantity,
	domain.ErrInvalidCustomization,
	domain.ErrInvalidAddress,
	domain.ErrInvalidPincode,
	domain.ErrUserLimitReached,
	domain.ErrQuantityExceeded,
	domain.ErrRequiresQuote,
	domain.ErrServiceUnavailable,
	domain.ErrCapacityExceeded,
	domain.ErrMixedCurrency,
	domain.ErrAmountOverflow,
}

func (s *Service) Create(ctx context.Context, req domain.CreateRequest) (*domain.Subscription, error) {
	sub, err := s.create(ctx, req)
	if err != nil {
		for _, reason := range rejectionReasons {
			if errors.Is(err, reason) {
				s.metrics.RecordOrderRejected(ctx, reason.Error())
				break
			}
		}
		return nil, err
	}

	s.metrics.RecordSubscriptionCreated(ctx, string(sub.BillingCycle))
	logger.WithContext(ctx, s.log).Info("subscription created",
		zap.String("subscription_id", sub.ID.String()),
		zap.String("user_id", sub.UserID.String()),
		zap.Int("services", len(sub.Items)),
		zap.Int64("total", sub.Pricing.Total),
		zap.String("currency", sub.Pricing.Currency),
	)
	return sub, nil
}

func (s *Service) create(ctx context.Context, req domain.CreateRequest) (*domain.Subscription, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	userID, err := s.orderingUser(actor, req.UserID)
	if err != nil {
		return nil, err
	}
	lines, err := parseLines(req.Services)
	if err != nil {
		return nil, err
	}
	address, err := req.Address.Normalize()
	if err != nil {
		return nil, err
	}

	var requestedCycle *billingcycle.Cycle
	if strings.TrimSpace(req.BillingCycle) != "" {
		cycle, err := billingcycle.Parse(req.BillingCycle)
		if err != nil {
			return nil, err
		}
		requestedCycle = &cycle
	}

	policy := s.commerce.Get()
	now := s.clock.Now()
	startDate := now
	if req.StartDate != nil {
		startDate = req.StartDate.UTC()
	}

	var created domain.Subscription
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		active, err := s.repo.CountActiveByUser(ctx, userID)
		if err != nil {
			return err
		}

		ids := make([]snowflake.ID, 0, len(lines))
		for _, line := range lines {
			ids = append(ids, line.ServiceID)
		}
		found, err := s.catalog.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		services := make(map[snowflake.ID]*catalogdomain.Service, len(found))
		for _, svc := range found {
			services[svc.ID] = svc
		}

		guardLines := make([]guard.Line, 0, len(lines))
		for _, line := range lines {
			guardLines = append(guardLines, guard.Line{ServiceID: line.ServiceID, Quantity: line.Quantity})
		}
		err = guard.Validate(guard.Policy{
			MaxActivePerUser: policy.MaxActiveSubscriptionsPerUser,
			QuoteCategories:  policy.QuoteCategories,
		}, active, guardLines, services)
		if err != nil {
			return err
		}

		items := make([]domain.LineItem, 0, len(lines))
		priced := make([]pricing.Line, 0, len(lines))
		for _, line := range lines {
			svc := services[line.ServiceID]
			items = append(items, domain.LineItem{
				ServiceID:      line.ServiceID,
				Quantity:       line.Quantity,
				Customizations: line.Customizations,
				PriceAtSubscription: domain.PriceSnapshot{
					Amount:       svc.Price.Amount,
					Currency:     svc.Price.Currency,
					BillingCycle: svc.Price.BillingCycle,
				},
			})
			priced = append(priced, pricing.Line{
				UnitPrice: svc.Price.Amount,
				Quantity:  line.Quantity,
				Currency:  svc.Price.Currency,
			})
		}
		breakdown, err := pricing.Calculate(priced, policy.TaxRateBasisPoints)
		if err != nil {
			return err
		}

		cycle := services[lines[0].ServiceID].Price.BillingCycle
		if requestedCycle != nil {
			cycle = *requestedCycle
		}

		sub, err := domain.New(domain.NewParams{
			ID:     s.genID.Generate(),
			UserID: userID,
			Items:  items,
			Pricing: domain.Pricing{
				Subtotal:  breakdown.Subtotal,
				Taxes:     breakdown.Taxes,
				Discounts: breakdown.Discounts,
				Total:     breakdown.Total,
				Currency:  breakdown.Currency,
			},
			BillingCycle: cycle,
			StartDate:    startDate,
			EndDate:      utcPtr(req.EndDate),
			Installation: req.InstallationRequired,
			InstallAt:    utcPtr(req.InstallationDate),
			Address:      address,
			Metadata: domain.Metadata{
				Source:       strings.TrimSpace(req.Metadata.Source),
				ReferralCode: strings.TrimSpace(req.Metadata.ReferralCode),
				PromoCode:    strings.TrimSpace(req.Metadata.PromoCode),
				Tags:         normalizeTags(req.Metadata.Tags),
			},
			Note:   req.Notes,
			Author: author(actor),
			Now:    now,
		})
		if err != nil {
			return err
		}

		for _, id := range sub.ServiceIDs() {
			if err := s.catalog.Reserve(ctx, id); err != nil {
				return err
			}
		}
		if err := s.repo.Insert(ctx, &sub); err != nil {
			return err
		}
		created = sub
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	subID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	sub, err := s.repo.FindByID(ctx, subID)
	if err != nil {
		return nil, err
	}
	if !actor.CanAccess(sub.UserID) {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// List returns the caller's subscriptions newest first. Administrators may
// list every user or filter by user_id.
func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}

	filter := domain.ListFilter{UserID: actor.UserID}
	if actor.IsAdmin() {
		filter.UserID = 0
		if strings.TrimSpace(req.UserID) != "" {
			userID, err := parseID(req.UserID)
			if err != nil {
				return nil, domain.ErrInvalidUser
			}
			filter.UserID = userID
		}
	}
	if raw := strings.TrimSpace(req.Status); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			status := domain.Status(strings.ToLower(strings.TrimSpace(part)))
			if !status.Valid() {
				return nil, domain.ErrInvalidStatus
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if req.PageToken != "" {
		cursor, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		beforeID, err := parseID(cursor.ID)
		if err != nil {
			return nil, domain.ErrInvalidPageToken
		}
		filter.BeforeID = beforeID
	}

	limit := req.Limit()
	filter.Limit = limit + 1

	items, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	page, pageInfo := pagination.BuildCursorPageInfo(items, limit, func(item *domain.Subscription) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: item.ID.String(), CreatedAt: item.CreatedAt.Format(time.RFC3339)})
		return token
	})
	return &domain.ListResponse{Subscriptions: page, PageInfo: pageInfo}, nil
}

func (s *Service) Cancel(ctx context.Context, id string, req domain.ReasonRequest) (*domain.Subscription, error) {
	return s.transition(ctx, id, false, func(sub domain.Subscription, author string, now time.Time) (domain.Subscription, error) {
		return domain.Cancel(sub, req.Reason, author, now)
	})
}

func (s *Service) Pause(ctx context.Context, id string, req domain.ReasonRequest) (*domain.Subscription, error) {
	return s.transition(ctx, id, false, func(sub domain.Subscription, author string, now time.Time) (domain.Subscription, error) {
		return domain.Pause(sub, req.Reason, author, now)
	})
}

func (s *Service) Resume(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.transition(ctx, id, false, func(sub domain.Subscription, author string, now time.Time) (domain.Subscription, error) {
		return domain.Resume(sub, author, now)
	})
}

func (s *Service) AddPayment(ctx context.Context, id string, req domain.PaymentRequest) (*domain.Subscription, error) {
	record := domain.PaymentRecord{
		Amount:        req.Amount,
		Currency:      req.Currency,
		Method:        domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.Method))),
		TransactionID: req.TransactionID,
		Status:        domain.PaymentRecordStatus(strings.ToLower(strings.TrimSpace(req.Status))),
		PaidAt:        utcPtr(req.PaidAt),
		Notes:         req.Notes,
	}

	sub, err := s.transition(ctx, id, false, func(sub domain.Subscription, _ string, now time.Time) (domain.Subscription, error) {
		return domain.AddPayment(sub, record, now)
	})
	if err != nil {
		return nil, err
	}

	last := sub.PaymentHistory[len(sub.PaymentHistory)-1]
	s.metrics.RecordPayment(ctx, string(last.Method), string(last.Status))
	return sub, nil
}

func (s *Service) OverrideStatus(ctx context.Context, id string, req domain.StatusRequest) (*domain.Subscription, error) {
	target := domain.Status(strings.ToLower(strings.TrimSpace(req.Status)))
	if !target.Valid() {
		return nil, domain.ErrInvalidStatus
	}
	return s.transition(ctx, id, true, func(sub domain.Subscription, author string, now time.Time) (domain.Subscription, error) {
		return domain.Override(sub, target, req.Reason, author, now)
	})
}

func (s *Service) Reschedule(ctx context.Context, id string, req domain.ScheduleRequest) (*domain.Subscription, error) {
	change := domain.ScheduleChange{
		StartDate:    utcPtr(req.StartDate),
		EndDate:      utcPtr(req.EndDate),
		ClearEndDate: req.ClearEndDate,
	}
	if req.BillingCycle != nil {
		cycle, err := billingcycle.Parse(*req.BillingCycle)
		if err != nil {
			return nil, err
		}
		change.BillingCycle = &cycle
	}
	return s.transition(ctx, id, true, func(sub domain.Subscription, author string, now time.Time) (domain.Subscription, error) {
		return domain.Reschedule(sub, change, author, now)
	})
}

func (s *Service) UpdateInstallation(ctx context.Context, id string, req domain.InstallationRequest) (*domain.Subscription, error) {
	change := domain.InstallationChange{
		ScheduledDate: utcPtr(req.ScheduledDate),
		Technician:    req.Technician,
		Notes:         req.Notes,
	}
	if req.Status != nil {
		status := domain.InstallationStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		change.Status = &status
	}
	return s.transition(ctx, id, true, func(sub domain.Subscription, author string, now time.Time) (domain.Subscription, error) {
		return domain.UpdateInstallation(sub, change, author, now)
	})
}

func (s *Service) ListDueForBilling(ctx context.Context, req domain.DueRequest) ([]*domain.Subscription, error) {
	at, limit, err := s.dueWindow(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.repo.ListDueForBilling(ctx, at, limit)
}

func (s *Service) ListExpiring(ctx context.Context, req domain.DueRequest) ([]*domain.Subscription, error) {
	at, limit, err := s.dueWindow(ctx, req)
	if err != nil {
		return nil, err
	}
	return s.repo.ListExpiring(ctx, at, limit)
}

type transitionFunc func(sub domain.Subscription, author string, now time.Time) (domain.Subscription, error)

// transition loads the subscription, applies fn and persists the result in
// one transaction. Entering a terminal status releases the held capacity
// once; leaving it again reserves the capacity back.
func (s *Service) transition(ctx context.Context, id string, adminOnly bool, fn transitionFunc) (*domain.Subscription, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return nil, err
	}
	if adminOnly && !actor.IsAdmin() {
		return nil, domain.ErrForbidden
	}
	subID, err := parseID(id)
	if err != nil {
		return nil, err
	}

	var (
		from     domain.Status
		next     domain.Subscription
		released bool
	)
	err = s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.FindByID(ctx, subID)
		if err != nil {
			return err
		}
		if !actor.CanAccess(current.UserID) {
			return domain.ErrSubscriptionNotFound
		}

		next, err = fn(*current, author(actor), s.clock.Now())
		if err != nil {
			return err
		}
		from = current.Status

		switch {
		case next.Status.Terminal() && !next.CapacityReleased:
			next.CapacityReleased = true
			released = true
		case !next.Status.Terminal() && next.CapacityReleased:
			for _, serviceID := range next.ServiceIDs() {
				if err := s.catalog.Reserve(ctx, serviceID); err != nil {
					return err
				}
			}
			next.CapacityReleased = false
		}

		if err := s.repo.Update(ctx, &next); err != nil {
			return err
		}
		if released {
			for _, serviceID := range next.ServiceIDs() {
				if err := s.catalog.Release(ctx, serviceID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordTransition(ctx, string(from), string(next.Status))
	if released {
		s.metrics.RecordCapacityRelease(ctx, len(next.Items))
	}
	logger.WithContext(ctx, s.log).Info("subscription updated",
		zap.String("subscription_id", next.ID.String()),
		zap.String("from", string(from)),
		zap.String("to", string(next.Status)),
		zap.Bool("capacity_released", released),
	)
	return &next, nil
}

func (s *Service) dueWindow(ctx context.Context, req domain.DueRequest) (time.Time, int, error) {
	actor, err := s.actor(ctx)
	if err != nil {
		return time.Time{}, 0, err
	}
	if !actor.IsAdmin() {
		return time.Time{}, 0, domain.ErrForbidden
	}

	at := s.clock.Now()
	if req.At != nil {
		at = req.At.UTC()
	}
	limit := req.Limit
	if limit <= 0 || limit > pagination.MaxPageSize {
		limit = pagination.MaxPageSize
	}
	return at, limit, nil
}

func (s *Service) actor(ctx context.Context) (usercontext.Actor, error) {
	actor, ok := usercontext.ActorFromContext(ctx)
	if !ok {
		return usercontext.Actor{}, domain.ErrInvalidUser
	}
	return actor, nil
}

// orderingUser resolves whose subscription is being created. Only
// administrators may order on behalf of someone else.
func (s *Service) orderingUser(actor usercontext.Actor, requested string) (snowflake.ID, error) {
	if strings.TrimSpace(requested) == "" {
		if actor.UserID == 0 {
			return 0, domain.ErrInvalidUser
		}
		return actor.UserID, nil
	}

	userID, err := parseID(requested)
	if err != nil {
		return 0, domain.ErrInvalidUser
	}
	if userID != actor.UserID && !actor.IsAdmin() {
		return 0, domain.ErrForbidden
	}
	return userID, nil
}

type orderLine struct {
	ServiceID      snowflake.ID
	Quantity       int64
	Customizations catalogdomain.Attributes
}

func parseLines(in []domain.LineItemRequest) ([]orderLine, error) {
	if len(in) == 0 {
		return nil, domain.ErrEmptyOrder
	}

	seen := make(map[snowflake.ID]struct{}, len(in))
	out := make([]orderLine, 0, len(in))
	for _, item := range in {
		serviceID, err := parseID(item.ServiceID)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[serviceID]; ok {
			return nil, fmt.Errorf("%w: %s", domain.ErrDuplicateService, serviceID)
		}
		seen[serviceID] = struct{}{}

		quantity := item.Quantity
		if quantity == 0 {
			quantity = 1
		}
		if quantity < 0 {
			return nil, domain.ErrInvalidQuantity
		}

		customizations := catalogdomain.Attributes(item.Customizations)
		if err := customizations.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCustomization, err)
		}

		out = append(out, orderLine{
			ServiceID:      serviceID,
			Quantity:       quantity,
			Customizations: customizations.Clone(),
		})
	}
	return out, nil
}

func author(actor usercontext.Actor) string {
	if actor.UserID == 0 {
		return string(actor.Role)
	}
	return string(actor.Role) + ":" + actor.UserID.String()
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}

func parseID(value string) (snowflake.ID, error) {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || parsed <= 0 {
		return 0, domain.ErrInvalidID
	}
	return snowflake.ID(parsed), nil
}
