package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mchmarny/expctl/pkg/archive"
	"github.com/mchmarny/expctl/pkg/ledger"
	"github.com/mchmarny/expctl/pkg/logging"
	"github.com/urfave/cli/v2"
)

const (
	serverShutdownWaitSeconds = 5
	serverTimeoutSeconds      = 300
	serverMaxHeaderBytes      = 20
	serverPortDefault         = 8080
	saveCooldown              = 5 * time.Second
)

var (
	portFlag = &cli.IntFlag{
		Name:     "port",
		Usage:    "Port on which the server will listen",
		Value:    serverPortDefault,
		Required: false,
	}

	serverCmd = &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start local HTTP API",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			portFlag,
		},
	}
)

func cmdStartServer(c *cli.Context) error {
	cfg := getConfig(c)
	port := c.Int(portFlag.Name)
	address := fmt.Sprintf("127.0.0.1:%d", port)

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	slog.SetDefault(logging.NewServerLogger(os.Stdout, level))

	store, err := cfg.getStore(c.Context)
	if err != nil {
		return err
	}
	arc, err := cfg.getArchive(c.Context)
	if err != nil {
		return err
	}

	api := newAPI(store, arc, cfg)
	s := &http.Server{
		Addr:           address,
		Handler:        api.router(cfg.Debug),
		ReadTimeout:    serverTimeoutSeconds * time.Second,
		WriteTimeout:   serverTimeoutSeconds * time.Second,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("error starting server", "error", err)
		}
	}()

	slog.Info("server started", "address", "http://"+address, "store", cfg.Config.Store)

	<-done

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownWaitSeconds*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	return nil
}

func (a *api) router(debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/healthz", a.healthHandler)

	g := r.Group("/api")
	g.GET("/rules", a.rulesHandler)
	g.PUT("/rules", a.replaceRulesHandler)
	g.POST("/classify", a.classifyHandler)
	g.POST("/transactions", a.saveHandler)
	g.GET("/transactions", a.transactionsHandler)
	g.GET("/batches", a.batchesHandler)
	g.GET("/report", a.reportHandler)
	g.GET("/report/chart", a.chartHandler)

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}

// api serves the store over HTTP.
type api struct {
	store   ledger.Store
	archive *archive.Archive
	cfg     *appConfig

	mu       sync.Mutex
	lastSave time.Time
	cooldown time.Duration
	now      func() time.Time
}

func newAPI(store ledger.Store, arc *archive.Archive, cfg *appConfig) *api {
	return &api{
		store:    store,
		archive:  arc,
		cfg:      cfg,
		cooldown: saveCooldown,
		now:      time.Now,
	}
}
