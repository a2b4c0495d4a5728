package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"

	"github.com/brickfolio/platform/pkg/channel"
	"github.com/brickfolio/platform/pkg/common/config"
	"github.com/brickfolio/platform/pkg/common/database"
	"github.com/brickfolio/platform/pkg/common/kafka"
	"github.com/brickfolio/platform/pkg/common/logger"
	"github.com/brickfolio/platform/pkg/common/middleware"
	"github.com/brickfolio/platform/pkg/common/models"
	"github.com/brickfolio/platform/pkg/content"
	"github.com/brickfolio/platform/pkg/events"
	"github.com/brickfolio/platform/pkg/observability/metrics"
	"github.com/brickfolio/platform/pkg/post"
	"github.com/brickfolio/platform/pkg/publish"
	"github.com/brickfolio/platform/pkg/vault"
)

func main() {
	logger.Init()
	cfg := config.Load()

	db, err := database.GetPostgres()
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to connect to postgres")
	}
	redisClient := database.GetRedis()

	// Channel rules drive both content generation and readiness checks.
	rules := channel.DefaultRules()
	if cfg.ChannelRulesPath != "" {
		rules, err = channel.LoadRules(cfg.ChannelRulesPath)
		if err != nil {
			logger.Log.WithError(err).Fatal("failed to load channel rules")
		}
	}
	validator := channel.NewValidator(rules)

	postRepo := post.NewRepository(db)
	if err := postRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate post tables")
	}
	postService := post.NewService(postRepo, validator)

	vaultRepo := vault.NewRepository(db)
	if err := vaultRepo.AutoMigrate(); err != nil {
		logger.Log.WithError(err).Fatal("failed to migrate credential tables")
	}
	cipher, err := vault.NewCipher(cfg.VaultMasterKey)
	if err != nil {
		logger.Log.WithError(err).Fatal("invalid vault master key")
	}
	vaultService := vault.NewService(
		vaultRepo,
		cipher,
		vault.NewRedisNonceStore(redisClient),
		oauthConfigs(cfg),
		cfg.TokenRefreshSkew,
		cfg.OAuthStateTTL,
	)

	analytics := kafka.NewProducer(cfg.KafkaAnalyticsTopic)
	defer analytics.Close()

	aiClient := content.NewAIClient(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModelName, cfg.AITimeout)
	orchestrator := content.NewOrchestrator(aiClient, postService, validator, analytics)

	publishers := channel.NewRegistry(
		channel.NewFacebookPublisher(cfg.FacebookAPIBaseURL, cfg.PublishTimeout),
		channel.NewWebsitePublisher(cfg.WebsiteAPIBaseURL, cfg.PublishTimeout),
		channel.NewMailerPublisher(cfg.MailerAPIBaseURL, cfg.PublishTimeout),
	)

	coordinator := publish.NewCoordinator(
		postService,
		vaultService,
		publishers,
		publish.NewRedisInFlight(redisClient, cfg.PublishInFlightTTL),
		publish.NewRedisRateLimiter(redisClient, cfg.ChannelRateLimit, cfg.ChannelRatePeriod),
		analytics,
		publish.Options{
			MaxAttempts:    cfg.PublishMaxAttempts,
			BackoffBase:    cfg.PublishBackoffBase,
			PublishTimeout: cfg.PublishTimeout,
		},
	)

	scheduler := publish.NewScheduler(coordinator, postService, cfg.ScheduleScanSpec, cfg.ScheduleScanTimeout)
	if err := scheduler.Start(); err != nil {
		logger.Log.WithError(err).Fatal("failed to start schedule scanner")
	}

	consumer := kafka.NewConsumer(cfg.KafkaCommandTopic, cfg.KafkaGroupID)
	dispatcher := events.NewDispatcher(consumer, orchestrator, coordinator)
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	go func() {
		if err := dispatcher.Run(consumerCtx); err != nil && consumerCtx.Err() == nil {
			logger.Log.WithError(err).Error("command consumer stopped")
		}
	}()

	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)
	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1/marketing").Subrouter()
	api.Use(middleware.Recovery)
	api.Use(middleware.Logging)
	api.Use(middleware.CORS)
	api.Use(middleware.RateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst))
	api.Use(middleware.BodyLimit(cfg.MaxRequestBody))

	post.NewHTTPHandler(postService).Register(api)
	content.NewHTTPHandler(orchestrator).Register(api)
	publish.NewHTTPHandler(coordinator, postService).Register(api)
	vault.NewHTTPHandler(vaultService).Register(api)

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		logger.Log.WithField("addr", address).Info("Marketing service listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start marketing service")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down marketing service...")
	scheduler.Stop()
	stopConsumer()
	if err := dispatcher.Close(); err != nil {
		logger.Log.WithError(err).Error("failed to close command consumer")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.WithError(err).Error("Marketing service forced to shutdown")
	}
	logger.Log.Info("Marketing service stopped")
}

// oauthConfigs builds the per-channel authorization app configs. A channel
// with no client id stays unconfigured and connect attempts for it fail.
func oauthConfigs(cfg *config.Config) map[models.Channel]*oauth2.Config {
	configs := make(map[models.Channel]*oauth2.Config)
	if cfg.FacebookClientID != "" {
		configs[models.ChannelFacebook] = &oauth2.Config{
			ClientID:     cfg.FacebookClientID,
			ClientSecret: cfg.FacebookClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Endpoint:     facebook.Endpoint,
			Scopes:       []string{"pages_manage_posts", "pages_read_engagement"},
		}
	}
	if cfg.MailerClientID != "" {
		configs[models.ChannelMailer] = &oauth2.Config{
			ClientID:     cfg.MailerClientID,
			ClientSecret: cfg.MailerClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.MailerAPIBaseURL + "/oauth/authorize",
				TokenURL: cfg.MailerAPIBaseURL + "/oauth/token",
			},
			Scopes: []string{"campaigns:write"},
		}
	}
	return configs
}
