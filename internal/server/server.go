package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/servicehub/internal/authorization"
	catalogdomain "github.com/smallbiznis/servicehub/internal/catalog/domain"
	"github.com/smallbiznis/servicehub/internal/config"
	"github.com/smallbiznis/servicehub/internal/observability"
	obsmiddleware "github.com/smallbiznis/servicehub/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/servicehub/internal/observability/metrics"
	obstracing "github.com/smallbiznis/servicehub/internal/observability/tracing"
	"github.com/smallbiznis/servicehub/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/servicehub/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	authorization.Module,
	fx.Provide(registerGin),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.Metrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.Metrics) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	authzSvc        authorization.Service
	catalogSvc      catalogdomain.CatalogService
	subscriptionSvc subscriptiondomain.Service
	createLimiter   *ratelimit.SubscriptionLimiter
	obsMetrics      *obsmetrics.Metrics
	limiterMetrics  *obsmetrics.LimiterMetrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	AuthzSvc        authorization.Service
	CatalogSvc      catalogdomain.CatalogService
	SubscriptionSvc subscriptiondomain.Service
	CreateLimiter   *ratelimit.SubscriptionLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics            `optional:"true"`
	LimiterMetrics  *obsmetrics.LimiterMetrics     `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		authzSvc:        p.AuthzSvc,
		catalogSvc:      p.CatalogSvc,
		subscriptionSvc: p.SubscriptionSvc,
		createLimiter:   p.CreateLimiter,
		obsMetrics:      p.ObsMetrics,
		limiterMetrics:  p.LimiterMetrics,
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()
	svc.registerFallback()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1", Identity())

	api.GET("/services", s.authorize(authorization.ObjectService, authorization.ActionServiceView), s.ListActiveServices)
	api.GET("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionServiceView), s.GetActiveService)

	api.POST("/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.SubscriptionCreateRateLimit(), s.CreateSubscription)
	api.GET("/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
	api.GET("/subscriptions/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
	api.POST("/subscriptions/:id/cancel", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCancel), s.CancelSubscription)
	api.POST("/subscriptions/:id/pause", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionPause), s.PauseSubscription)
	api.POST("/subscriptions/:id/resume", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionResume), s.ResumeSubscription)
	api.POST("/subscriptions/:id/payments", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionPay), s.AddSubscriptionPayment)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin/v1", Identity(), RequireAdmin())

	admin.POST("/services", s.authorize(authorization.ObjectService, authorization.ActionServiceCreate), s.CreateService)
	admin.GET("/services", s.authorize(authorization.ObjectService, authorization.ActionServiceView), s.ListServices)
	admin.GET("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionServiceView), s.GetService)
	admin.PATCH("/services/:id", s.authorize(authorization.ObjectService, authorization.ActionServiceUpdate), s.UpdateService)

	admin.POST("/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionCreate), s.CreateSubscription)
	admin.GET("/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.ListSubscriptions)
	admin.GET("/subscriptions/due", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionReport), s.ListDueSubscriptions)
	admin.GET("/subscriptions/expiring", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionReport), s.ListExpiringSubscriptions)
	admin.GET("/subscriptions/:id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
	admin.PATCH("/subscriptions/:id/status", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionOverride), s.OverrideSubscriptionStatus)
	admin.PATCH("/subscriptions/:id/schedule", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionSchedule), s.RescheduleSubscription)
	admin.PATCH("/subscriptions/:id/installation", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionInstall), s.UpdateSubscriptionInstallation)
	admin.POST("/subscriptions/:id/payments", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionPay), s.AddSubscriptionPayment)
}

func (s *Server) registerFallback() {
	s.engine.NoRoute(func(c *gin.Context) {
		AbortWithError(c, ErrNotFound)
	})
}
