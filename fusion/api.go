package fusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const apiDefaultSearchLimit = 10

// API is the read-only HTTP surface: health, status, and quote
// lookups. It never mutates the store.
type API struct {
	f          *Fusion
	config     *APIConfig
	logger     *slog.Logger
	engine     *gin.Engine
	httpServer *http.Server
	listener   net.Listener
}

func newAPI(f *Fusion, config *APIConfig) (*API, error) {
	if config == nil {
		return nil, errors.New("nil api config")
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	a := &API{
		f:      f,
		config: config,
		engine: engine,
	}
	if f != nil && f.logger != nil {
		a.logger = f.logger.With(loggerNameKey, "api")
	} else {
		a.logger = slog.Default().With(loggerNameKey, "api")
	}

	engine.Use(gin.Recovery())
	engine.Use(a.requestLogger())
	if len(config.CORS.AllowOrigins) > 0 {
		corsConfig := config.CORS.GINConfig()
		if err := corsConfig.Validate(); err != nil {
			return nil, fmt.Errorf("invalid cors config: %w", err)
		}
		engine.Use(cors.New(corsConfig))
	}

	a.registerRoutes()

	a.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}
	return a, nil
}

func (a *API) registerRoutes() {
	a.engine.GET("/healthz", a.getHealth)

	api := a.engine.Group("/api")
	api.GET("/status", a.getStatus)
	api.GET("/quotes", a.searchQuotes)
	api.GET("/quotes/:shortid", a.getQuote)
	api.GET("/people/:key", a.getQuotesByPerson)
}

func (a *API) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		)
	}
}

// Serve listens and serves HTTP until the context is canceled, then
// shuts down gracefully within the configured shutdown timeout.
func (a *API) Serve(ctx context.Context) error {
	network := a.config.ListenNetwork
	if network == "" {
		network = defaultListenNetwork
	}
	listener, err := net.Listen(network, a.config.Listen)
	if err != nil {
		return fmt.Errorf("error listening on %s: %w", a.config.Listen, err)
	}
	a.listener = listener
	a.logger.Info("api listening", "address", listener.Addr().String())

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- a.httpServer.Serve(listener)
	}()

	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownTimeout := DefaultShutdownTimeout
	if a.f != nil && a.f.config != nil && a.f.config.ShutdownTimeout > 0 {
		shutdownTimeout = a.f.config.ShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		shutdownTimeout,
	)
	defer cancel()
	if err = a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("error shutting down api server", tint.Err(err))
		return err
	}
	return nil
}

// getHealth reports 503 until startup has finished, so the listener
// coming up before the gateway connects doesn't look healthy early.
func (a *API) getHealth(c *gin.Context) {
	if a.f == nil || !a.f.ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "starting"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *API) getStatus(c *gin.Context) {
	status := gin.H{
		"version": Version,
		"uptime":  time.Since(a.f.startedAt).Round(time.Second).String(),
	}
	if a.f.discord != nil {
		status["discord_connected"] = a.f.discord.connected.Load()
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) getQuote(c *gin.Context) {
	shortID := c.Param("shortid")
	quote, err := a.f.store.GetByShortID(c.Request.Context(), shortID)
	if err != nil {
		a.logger.Error("error getting quote", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "internal server error"},
		)
		return
	}
	if quote == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "quote not found"})
		return
	}
	c.JSON(http.StatusOK, quote)
}

func (a *API) searchQuotes(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query parameter 'q'"})
		return
	}
	limit := apiDefaultSearchLimit
	if rawLimit := c.Query("limit"); rawLimit != "" {
		parsed, err := strconv.Atoi(rawLimit)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = parsed
	}

	quotes, err := a.f.store.Search(c.Request.Context(), query, limit)
	if err != nil {
		a.logger.Error("error searching quotes", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "internal server error"},
		)
		return
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	c.JSON(http.StatusOK, gin.H{"quotes": quotes, "count": len(quotes)})
}

func (a *API) getQuotesByPerson(c *gin.Context) {
	key := c.Param("key")
	quotes, err := a.f.store.FindByPersonKey(c.Request.Context(), key)
	if err != nil {
		a.logger.Error("error getting quotes by person", tint.Err(err))
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "internal server error"},
		)
		return
	}
	if quotes == nil {
		quotes = []Quote{}
	}
	c.JSON(
		http.StatusOK,
		gin.H{
			"person_key": NormalizePersonKey(key),
			"quotes":     quotes,
			"count":      len(quotes),
		},
	)
}
