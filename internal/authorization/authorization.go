package authorization

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/smallbiznis/servicehub/internal/usercontext"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

const (
	ObjectService      = "service"
	ObjectSubscription = "subscription"
)

const (
	ActionServiceView   = "service.view"
	ActionServiceCreate = "service.create"
	ActionServiceUpdate = "service.update"

	ActionSubscriptionView     = "subscription.view"
	ActionSubscriptionCreate   = "subscription.create"
	ActionSubscriptionCancel   = "subscription.cancel"
	ActionSubscriptionPause    = "subscription.pause"
	ActionSubscriptionResume   = "subscription.resume"
	ActionSubscriptionPay      = "subscription.pay"
	ActionSubscriptionOverride = "subscription.override"
	ActionSubscriptionSchedule = "subscription.schedule"
	ActionSubscriptionInstall  = "subscription.install"
	ActionSubscriptionReport   = "subscription.report"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

// Service decides whether an actor may perform an action on an object.
// Ownership of individual records is checked by the owning service.
type Service interface {
	Authorize(ctx context.Context, actor usercontext.Actor, object, action string) error
}

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an in-memory enforcer seeded with the role policies.
func NewEnforcer() (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor usercontext.Actor, object, action string) error {
	if actor.UserID == 0 {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(subject(actor), object, action)
	if err != nil {
		return fmt.Errorf("enforce policy: %w", err)
	}
	if !allowed {
		s.log.Debug("authorization denied",
			zap.String("user_id", actor.UserID.String()),
			zap.String("role", string(actor.Role)),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func subject(actor usercontext.Actor) string {
	return "role:" + string(actor.Role)
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", ObjectService, "*"},
		{"role:admin", ObjectSubscription, "*"},

		{"role:user", ObjectService, ActionServiceView},
		{"role:user", ObjectSubscription, ActionSubscriptionView},
		{"role:user", ObjectSubscription, ActionSubscriptionCreate},
		{"role:user", ObjectSubscription, ActionSubscriptionCancel},
		{"role:user", ObjectSubscription, ActionSubscriptionPause},
		{"role:user", ObjectSubscription, ActionSubscriptionResume},
		{"role:user", ObjectSubscription, ActionSubscriptionPay},
	}
	if _, err := enforcer.AddPolicies(policies); err != nil {
		return err
	}
	return nil
}
