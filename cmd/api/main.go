package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"pictoria-server/internal/auth"
	"pictoria-server/internal/billing"
	"pictoria-server/internal/http/handlers"
	httpapi "pictoria-server/internal/http/httpapi"
	"pictoria-server/internal/infra"
	"pictoria-server/internal/infra/geoip"
	"pictoria-server/internal/mail"
	mw "pictoria-server/internal/middleware"
	"pictoria-server/internal/providers/replicate"
	"pictoria-server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()
	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	authGateway, err := auth.NewGateway(auth.Options{
		ProjectRef: cfg.ProjectRef(),
		AnonKey:    cfg.SupabaseAnonKey,
		ServiceKey: cfg.SupabaseServiceKey,
		BaseURL:    cfg.SupabaseURL,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build auth gateway")
	}

	store, err := storage.NewObjectStore(storage.Options{
		BaseURL:    cfg.SupabaseURL,
		ServiceKey: cfg.SupabaseServiceKey,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build object store")
	}

	provider := replicate.NewClient(replicate.Options{
		BaseURL:  cfg.ReplicateBaseURL,
		APIToken: cfg.ReplicateAPIToken,
		Owner:    cfg.ReplicateOwner,
	})

	mailer := mail.NewNotifier(mail.Options{APIKey: cfg.ResendAPIKey, From: cfg.MailFrom})
	billingGateway := billing.NewGateway(billing.Options{SecretKey: cfg.StripeSecretKey, SiteURL: cfg.SiteURL})
	reconciler := &billing.Reconciler{SQL: runner, Logger: logger}

	// GeoIP is optional: no database path means requests go untagged.
	var country mw.CountryLookup
	resolver, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip disabled")
	} else if resolver != nil {
		country = resolver.CountryCode
	}

	app := &handlers.App{
		SQL:        runner,
		Logger:     logger,
		Config:     cfg,
		Auth:       authGateway,
		Store:      store,
		Replicate:  provider,
		Mailer:     mailer,
		Billing:    billingGateway,
		Reconciler: reconciler,
	}

	router := httpapi.NewRouter(app, country)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
