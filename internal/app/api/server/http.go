package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/adboard/adboard/internal/app/api/handlers"
	mw "github.com/adboard/adboard/internal/app/api/middleware"
	cfgpkg "github.com/adboard/adboard/pkg/config"
	metrics "github.com/adboard/adboard/pkg/metrics"
)

func newEngine() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	// Request logger & access log are attached per group in registerRoutes
	r.Use(mw.TraceMiddleware())
	return r
}

func registerRoutes(
	r *gin.Engine,
	log *zap.SugaredLogger,
	cfg *cfgpkg.Config,
	slotAds *handlers.SlotAdsHandler,
	credits *handlers.CreditsHandler,
	callback *handlers.CallbackHandler,
	admin *handlers.AdminHandler,
) {
	// Prometheus metrics
	if cfg != nil && cfg.MetricsAddr != "" {
		p := metrics.NewPrometheus(metrics.NewPrometheusOptions{
			ReqCntURLLabelMappingFn: func(c *gin.Context) string {
				if fp := c.FullPath(); fp != "" {
					return fp
				}
				return c.Request.URL.Path
			},
			Logger: log,
		})
		p.SetListenAddress(cfg.MetricsAddr)
		p.Use(r)

		log.Infow("metrics started", "addr", cfg.MetricsAddr)
	}

	// Public group: request logger + access log
	pub := r.Group("/")
	pub.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())
	handlers.RegisterHealthRoutes(pub)
	handlers.RegisterCallbackRoutes(pub, callback, cfg.Upay.NotifyPath, cfg.Upay.RedirectPath)

	apiV1 := r.Group("/api/v1")
	apiV1.Use(mw.RequestLoggerMiddleware(log), mw.AccessLogMiddleware())

	user := apiV1.Group("/")
	user.Use(mw.RequireUser())

	handlers.RegisterSlotAdRoutes(apiV1, user, slotAds)
	handlers.RegisterCreditRoutes(apiV1, user, credits)

	adminGroup := apiV1.Group("/admin")
	adminGroup.Use(mw.RequireAdmin(cfg))
	handlers.RegisterAdminRoutes(adminGroup, admin)
}

func runServer(lc fx.Lifecycle, log *zap.SugaredLogger, cfg *cfgpkg.Config, r *gin.Engine) {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("starting HTTP server", "addr", addr)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Errorf("server error: %v", err)
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("stopping HTTP server")
			shutdownCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(
		newEngine,
		handlers.NewSlotAdsHandler,
		handlers.NewCreditsHandler,
		handlers.NewCallbackHandler,
		handlers.NewAdminHandler,
	),
	fx.Invoke(registerRoutes),
	fx.Invoke(runServer),
)
