// Package server exposes the HTTP surface: the registration API, the
// order state endpoints, the reconciliation controls, and the webhook
// the event channel forwards into.
package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/channel"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/config"
	orderdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/logger"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/metrics"
	optoutdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/reconcile"
	regdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/domain"
)

const webhookRateLimit = 120 // events per client per minute

type ServerParams struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	RegSvc  regdomain.Service
	OptSvc  optoutdomain.Service
	Orders  orderdomain.Service
	Engine  *reconcile.Engine
	Journal *events.Journal
	Metrics *metrics.HTTPMetrics
	Channel *channel.Supervisor
	Clock   clock.Clock
}

type Server struct {
	cfg         config.Config
	log         *zap.Logger
	regSvc      regdomain.Service
	optSvc      optoutdomain.Service
	orderSvc    orderdomain.Service
	engine      *reconcile.Engine
	journal     *events.Journal
	httpMetrics *metrics.HTTPMetrics
	channel     *channel.Supervisor
	clock       clock.Clock
	limiter     *rateLimiter
}

func NewServer(p ServerParams) *Server {
	return &Server{
		cfg:         p.Config,
		log:         p.Log.Named("server"),
		regSvc:      p.RegSvc,
		optSvc:      p.OptSvc,
		orderSvc:    p.Orders,
		engine:      p.Engine,
		journal:     p.Journal,
		httpMetrics: p.Metrics,
		channel:     p.Channel,
		clock:       p.Clock,
		limiter:     newRateLimiter(webhookRateLimit, time.Minute),
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(metrics.GinMiddleware(s.httpMetrics))

	r.GET("/healthz", s.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.POST("/registrations", s.CreateRegistration)
		api.POST("/registrations/no-eat", s.CreateNoEatRegistration)
		api.GET("/registrations", s.ListRegistrations)

		api.GET("/optouts", s.ListOptOuts)
		api.GET("/optouts/check", s.CheckOptOut)

		api.GET("/orders/:date/:meal", s.GetOrder)
		api.POST("/orders/:date/:meal/open", s.OpenOrder)
		api.POST("/orders/:date/:meal/close", s.CloseOrder)
		api.POST("/orders/:date/:meal/toggle", s.ToggleOrder)
		api.PUT("/orders/:date/:meal/headcount", s.SetHeadcount)

		api.POST("/reconcile", s.RunReconcile)
		api.GET("/reconcile/status", s.ReconcileStatus)
	}

	r.POST("/webhook/event", s.RateLimited(), s.WebhookEvent)
	return r
}

func (s *Server) Healthz(c *gin.Context) {
	channelUp := false
	if s.channel != nil {
		if _, err := s.channel.ActiveHandle(); err == nil {
			channelUp = true
		}
	}
	c.JSON(200, gin.H{"status": "ok", "channelConnected": channelUp})
}

// RateLimited throttles by client address. The webhook is reachable from
// localhost forwarding and from the platform directly, so it is the one
// route worth guarding.
func (s *Server) RateLimited() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow(c.ClientIP()) {
			AbortWithError(c, ErrTooManyRequests)
			return
		}
		c.Next()
	}
}

func logFromContext(c *gin.Context) *zap.Logger {
	return logger.FromContext(c.Request.Context())
}
