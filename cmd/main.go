package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/nikhil/discuss/internal/bus"
	"github.com/nikhil/discuss/internal/cache"
	"github.com/nikhil/discuss/internal/config"
	databasego "github.com/nikhil/discuss/internal/database.go"
	"github.com/nikhil/discuss/internal/handlers"
	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/middleware"
	"github.com/nikhil/discuss/internal/models"
	"github.com/nikhil/discuss/internal/routes"
	"github.com/nikhil/discuss/internal/rpc"
	services "github.com/nikhil/discuss/internal/service/auth"
	channelService "github.com/nikhil/discuss/internal/service/channels"
	cronService "github.com/nikhil/discuss/internal/service/cron"
	messageService "github.com/nikhil/discuss/internal/service/messages"
	"github.com/nikhil/discuss/internal/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	log := logger.NewLogger("discuss-service")
	defer log.Sync()
	if err != nil {
		log.Fatal("Failed to load configuration", "error", err)
	}

	// "token" issues a user token for local testing; users normally get theirs from the identity service
	if len(os.Args) > 1 && os.Args[1] == "token" {
		if err := issueToken(cfg, os.Args[2:]); err != nil {
			log.Fatal("Failed to issue token", "error", err)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal("Server stopped with error", "error", err)
	}
	log.Info("Server stopped")
}

func issueToken(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	userID := fs.Int64("user", 0, "user id")
	partnerID := fs.Int64("partner", 0, "partner id of the user")
	ttl := fs.Duration("ttl", 24*time.Hour, "token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *userID <= 0 || *partnerID <= 0 {
		return errors.New("-user and -partner are required")
	}
	token, err := services.NewAuthService(nil, cfg.JWTSecret, logger.NewNop()).GenerateJWT(*userID, *partnerID, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func run(ctx context.Context, cfg *config.Config, log *logger.Logger) (err error) {
	db, err := databasego.Open(ctx, cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, db.Close()) }()
	if err := databasego.Migrate(ctx, db, cfg.DBDriver); err != nil {
		return err
	}
	log.Info("Database ready", "driver", cfg.DBDriver)

	st := store.NewSQLStore(db)
	hub := models.NewHub()

	// without Redis this instance is alone: notifications go straight to its hub
	var (
		b           bus.Bus = bus.NewLocal(hub)
		redisClient *cache.Redis
	)
	if cfg.RedisURL != "" {
		redisClient, err = cache.New(cfg.RedisURL)
		if err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, redisClient.Close()) }()
		if err := redisClient.Ping(ctx); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		b = bus.NewRedis(redisClient)
		log.Info("Redis bus enabled")
	}

	rpc.SetLogger(logger.NewLogger("rpc"))
	authService := services.NewAuthService(st, cfg.JWTSecret, logger.NewLogger("auth-service"))
	authService.SecureCookie = cfg.IsProduction()
	messages := messageService.NewMessageService(st, b, logger.NewLogger("message-service"), cfg.MessageFetchLimit)
	unmuter := cronService.NewUnmuter(st, b, redisClient, cfg.UnmutePollInterval, logger.NewLogger("cron-service"))
	channels := channelService.NewChannelService(st, b, unmuter, messages, logger.NewLogger("channel-service"))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router := routes.RegisterAllRoutes(&routes.Services{
		Auth:      middleware.NewAuthenticator(cfg.JWTSecret, authService, logger.NewLogger("auth-middleware")),
		Guests:    authService,
		Channels:  channels,
		WebSocket: handlers.NewWebSocketHandler(hub, st, logger.NewLogger("websocket-handler")),
		Metrics:   middleware.NewMetrics(reg),
		Gatherer:  reg,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		log.Info("Server is running", "port", cfg.ServerPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return unmuter.Run(gctx)
	})
	if redisClient != nil {
		g.Go(func() error {
			return bus.Relay(gctx, redisClient, hub, log)
		})
	}
	return g.Wait()
}
