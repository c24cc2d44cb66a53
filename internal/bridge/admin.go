package bridge

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/rconbridge/internal/auth"
	"github.com/danmuck/rconbridge/internal/catalog"
	"github.com/danmuck/rconbridge/internal/config"
	"github.com/danmuck/rconbridge/internal/console"
	"github.com/danmuck/rconbridge/internal/dispatch"
	"github.com/danmuck/rconbridge/internal/observability"
	"github.com/danmuck/rconbridge/internal/snapshot"
)

// Readiness is the /ready verdict.
type Readiness string

const (
	Ready    Readiness = "ready"
	Degraded Readiness = "degraded"
	NotReady Readiness = "not_ready"
)

// adminSource is what the admin routes read from.
type adminSource interface {
	Readiness() Readiness
	Catalog() *catalog.Catalog
	SessionStatus() console.Status
	DispatchStats() dispatch.Stats
	SnapshotStats() (snapshot.Stats, bool)
	RenderConfig() ([]byte, error)
}

func newAdminRouter(src adminSource, cfg config.AdminConfig) *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(cfg.CorsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})
	if cfg.Token != "" {
		r.Use(auth.Middleware(auth.StaticToken{Token: cfg.Token}, "/health"))
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		state := src.Readiness()
		code := http.StatusOK
		if state == NotReady {
			code = http.StatusServiceUnavailable
		}
		body := gin.H{"status": state}
		if state == Degraded {
			body["console"] = src.SessionStatus()
		}
		c.JSON(code, body)
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/session", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.SessionStatus())
	})
	r.GET("/dispatch", func(c *gin.Context) {
		c.JSON(http.StatusOK, src.DispatchStats())
	})
	r.GET("/snapshot", func(c *gin.Context) {
		stats, ok := src.SnapshotStats()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "snapshot publisher disabled"})
			return
		}
		c.JSON(http.StatusOK, stats)
	})
	catalogRoutes := r.Group("/catalog")
	catalogRoutes.GET("/recipes", func(c *gin.Context) {
		cat, ok := catalogOf(c, src)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, cat.RecipeNames())
	})
	catalogRoutes.GET("/recipes/:item", func(c *gin.Context) {
		cat, ok := catalogOf(c, src)
		if !ok {
			return
		}
		recipe, found := cat.RecipeFor(c.Param("item"))
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "no recipe produces " + c.Param("item")})
			return
		}
		c.JSON(http.StatusOK, recipe)
	})
	catalogRoutes.GET("/groups/:name", func(c *gin.Context) {
		cat, ok := catalogOf(c, src)
		if !ok {
			return
		}
		types := cat.Group(c.Param("name"))
		if len(types) == 0 {
			c.JSON(http.StatusNotFound, gin.H{"error": "unknown group " + c.Param("name")})
			return
		}
		entities := make(map[string][]string, len(types))
		for _, t := range types {
			entities[t] = cat.EntitiesOfType(t)
		}
		c.JSON(http.StatusOK, gin.H{"group": c.Param("name"), "types": types, "entities": entities})
	})
	r.GET("/config", func(c *gin.Context) {
		out, err := src.RenderConfig()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Data(http.StatusOK, "application/toml; charset=utf-8", out)
	})
	return r
}

func serveAdmin(ctx context.Context, cfg config.AdminConfig, src adminSource) error {
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           newAdminRouter(src, cfg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("component", "admin").
			Str("addr", cfg.Listen).
			Bool("token_required", cfg.Token != "").
			Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func catalogOf(c *gin.Context, src adminSource) (*catalog.Catalog, bool) {
	cat := src.Catalog()
	if cat == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "catalog not loaded"})
		return nil, false
	}
	return cat, true
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, o := range in {
		o = strings.TrimSpace(o)
		if o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"http://localhost:3000"}
	}
	return out
}

// Readiness reports not_ready until bootstrap completes or while the bus is
// down. A dropped console only degrades it: the next send redials.
func (s *Service) Readiness() Readiness {
	if s.session == nil || s.bus == nil || !s.bus.IsConnected() {
		return NotReady
	}
	if !s.session.Status().Connected {
		return Degraded
	}
	return Ready
}

func (s *Service) Catalog() *catalog.Catalog {
	return s.catalog
}

func (s *Service) SessionStatus() console.Status {
	if s.session == nil {
		return console.Status{}
	}
	return s.session.Status()
}

func (s *Service) DispatchStats() dispatch.Stats {
	if s.dispatcher == nil {
		return dispatch.Stats{}
	}
	return s.dispatcher.Stats()
}

func (s *Service) SnapshotStats() (snapshot.Stats, bool) {
	if s.publisher == nil {
		return snapshot.Stats{}, false
	}
	return s.publisher.Stats(), true
}

func (s *Service) RenderConfig() ([]byte, error) {
	return config.Render(s.cfg, true)
}
