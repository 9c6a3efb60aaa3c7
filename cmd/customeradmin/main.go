package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/totegamma/customeradmin/client"
	"github.com/totegamma/customeradmin/internal/config"
	"github.com/totegamma/customeradmin/internal/infra/database"
	"github.com/totegamma/customeradmin/internal/infra/gateway"
	"github.com/totegamma/customeradmin/internal/infra/repository"
	"github.com/totegamma/customeradmin/internal/infra/tracing"
	"github.com/totegamma/customeradmin/internal/present/rest"
	authmw "github.com/totegamma/customeradmin/internal/present/rest/middleware"
	"github.com/totegamma/customeradmin/internal/service"
	"github.com/totegamma/customeradmin/internal/usecase"
)

var version = "dev"

func main() {
	configPath := os.Getenv("CUSTOMERADMIN_CONFIG")
	if configPath == "" {
		configPath = "/etc/customeradmin/config.yaml"
	}

	conf, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := tracing.Setup(ctx, conf.Server, version)
	if err != nil {
		slog.Error("failed to setup tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracer(sctx); err != nil {
			slog.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	db, err := database.Open(conf.Server)
	if err != nil {
		panic("failed to connect database")
	}

	err = database.Migrate(db, conf.Store)
	if err != nil {
		panic("failed to migrate database")
	}

	var (
		rdb           *redis.Client
		signalService *service.SignalService
		events        usecase.EventPublisher
	)
	if conf.Server.RedisAddr != "" {
		rdb = database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisPassword, conf.Server.RedisDB)
		defer rdb.Close()
		signalService = service.NewSignalService(rdb)
		events = signalService
	}

	mc := database.NewMemcached(conf.Server.MemcachedAddr)

	accountClient := client.New(conf.Account.Endpoint, conf.Account.ServiceToken, conf.Account.TokenCacheTTL)
	accounts := gateway.NewAccountGateway(accountClient, events)

	customerRepo := repository.NewCustomerRepository(db, conf.Store)
	metaRepo := repository.NewMetaRepository(db, conf.Store)

	customerUsecase := usecase.NewCustomerUsecase(customerRepo, metaRepo, accounts, events, conf.Account.GuestKeySecret)
	metaUsecase := usecase.NewMetaUsecase(customerRepo, metaRepo, events)

	authService := service.NewAuthService(mc, accountClient, conf.Account.TokenCacheTTL)
	authMiddleware := authmw.NewAuthMiddleware(authService)

	handler := rest.NewHandler(conf.Admin, customerUsecase, metaUsecase, signalService)

	e := echo.New()
	e.HideBanner = true
	e.Use(otelecho.Middleware("customeradmin"))
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(authMiddleware.IdentifyIdentity)

	handler.RegisterRoutes(e)

	go func() {
		slog.Info("starting customeradmin", slog.String("addr", conf.Server.ListenAddr), slog.String("version", version))
		if err := e.Start(conf.Server.ListenAddr); err != nil {
			slog.Info("server stopped", slog.String("reason", err.Error()))
		}
	}()

	<-ctx.Done()

	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(sctx); err != nil {
		slog.Error("failed to shutdown server", slog.String("error", err.Error()))
	}
}
