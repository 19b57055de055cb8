package server

import (
	"context"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/smallbiznis/servicehub/internal/observability/logger"
	"github.com/smallbiznis/servicehub/internal/usercontext"
	"go.uber.org/zap"
)

const (
	rateLimitReasonUserRate      = "user-rate"
	rateLimitReasonOrderInFlight = "order-in-flight"
)

// SubscriptionCreateRateLimit throttles order placement per caller and keeps a
// single order in flight per ordering user.
func (s *Server) SubscriptionCreateRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.createLimiter.Enabled() {
			c.Next()
			return
		}

		actor, ok := usercontext.ActorFromContext(c.Request.Context())
		if !ok {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		callerID := actor.UserID.String()
		endpoint := normalizeRateLimitEndpoint(c)
		ctx := c.Request.Context()

		result, err := s.createLimiter.AllowCreate(ctx, callerID)
		if err != nil {
			logger.FromContext(ctx).Warn("subscription create rate limit check failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		setRateLimitHeaders(c, result.Limit, result.Remaining, result.ResetTime)
		if !result.Allowed {
			s.denyRateLimit(c, endpoint, rateLimitReasonUserRate, result.RetryAfter)
			return
		}

		orderUserID := orderingUserID(c, actor)
		token, locked, err := s.createLimiter.LockOrder(ctx, orderUserID)
		if err != nil {
			logger.FromContext(ctx).Warn("subscription order lock failed", zap.Error(err))
			AbortWithError(c, ErrServiceUnavailable)
			return
		}
		if !locked {
			s.denyRateLimit(c, endpoint, rateLimitReasonOrderInFlight, time.Second)
			return
		}
		defer func() {
			if err := s.createLimiter.ReleaseOrder(context.WithoutCancel(ctx), orderUserID, token); err != nil {
				logger.FromContext(ctx).Warn("subscription order unlock failed", zap.Error(err))
			}
		}()

		s.limiterMetrics.RecordAllowed(ctx, endpoint)
		c.Next()
	}
}

// orderingUserID returns the user an order is placed for. Administrators may
// name another user through user_id; the body stays readable for the handler.
func orderingUserID(c *gin.Context, actor usercontext.Actor) string {
	if !actor.IsAdmin() {
		return actor.UserID.String()
	}
	var body struct {
		UserID string `json:"user_id"`
	}
	if err := c.ShouldBindBodyWith(&body, binding.JSON); err != nil {
		return actor.UserID.String()
	}
	id, err := snowflake.ParseString(strings.TrimSpace(body.UserID))
	if err != nil || id <= 0 {
		return actor.UserID.String()
	}
	return id.String()
}

func (s *Server) denyRateLimit(c *gin.Context, endpoint, reason string, retryAfter time.Duration) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("subscription create rate limit exceeded",
		zap.String("reason", reason),
		zap.String("endpoint", endpoint),
	)
	s.limiterMetrics.RecordDenied(ctx, endpoint, reason)
	s.obsMetrics.RecordRateLimited(ctx, endpoint)

	seconds := int(math.Ceil(retryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.Header("X-Rate-Limited-Reason", reason)
	if reason == rateLimitReasonOrderInFlight {
		AbortWithError(c, ErrOrderInFlight)
		return
	}
	AbortWithError(c, ErrRateLimited)
}

func setRateLimitHeaders(c *gin.Context, limit, remaining int, reset time.Time) {
	if limit <= 0 {
		return
	}
	c.Header("X-RateLimit-Limit", strconv.Itoa(limit))
	c.Header("X-RateLimit-Remaining", strconv.Itoa(max(remaining, 0)))
	if !reset.IsZero() {
		c.Header("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
	}
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	if c == nil {
		return "unknown"
	}
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
