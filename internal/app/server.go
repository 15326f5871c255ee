// internal/app/server.go
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bloom-payments/internal/config"
	"bloom-payments/internal/db"
	"bloom-payments/internal/domain/payment"
	wstypes "bloom-payments/internal/domain/websocket"
	"bloom-payments/internal/events"
	customerHandler "bloom-payments/internal/handlers/customer"
	giftCardHandler "bloom-payments/internal/handlers/giftcard"
	orderHandler "bloom-payments/internal/handlers/order"
	reportHandler "bloom-payments/internal/handlers/report"
	settingsHandler "bloom-payments/internal/handlers/settings"
	transactionHandler "bloom-payments/internal/handlers/transaction"
	webhookHandler "bloom-payments/internal/handlers/webhook"
	wsHandler "bloom-payments/internal/handlers/websocket"
	"bloom-payments/internal/middleware"
	"bloom-payments/internal/pkg/jwt"
	"bloom-payments/internal/pkg/secrets"
	"bloom-payments/internal/provider"
	"bloom-payments/internal/repository/postgres"
	"bloom-payments/internal/service/customerlink"
	"bloom-payments/internal/service/email"
	giftcardsvc "bloom-payments/internal/service/giftcard"
	"bloom-payments/internal/service/maintenance"
	"bloom-payments/internal/service/orderpayment"
	paymentsvc "bloom-payments/internal/service/payment"
	"bloom-payments/internal/service/payment/adapter"
	"bloom-payments/internal/service/report"
	settingssvc "bloom-payments/internal/service/settings"
	webhooksvc "bloom-payments/internal/service/webhook"
	"bloom-payments/internal/websocket"
	wsHandlers "bloom-payments/internal/websocket/handler"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	httpServer *http.Server
	hub        *websocket.Hub
	pool       *pgxpool.Pool
	redis      redis.UniversalClient
	cancel     context.CancelFunc
}

func NewServer() (*Server, error) {
	cfg := config.Load()

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	return &Server{cfg: cfg, engine: gin.New(), logger: logger}, nil
}

func newLogger(cfg config.AppConfig) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// Start wires every component and serves HTTP until Shutdown is called.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	logger := s.logger

	// ----- PostgreSQL -----
	pool, err := db.NewPostgresPool(ctx, db.PostgresConfig{
		URL:      s.cfg.DatabaseURL,
		MaxConns: s.cfg.DBMaxConns,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	s.pool = pool
	logger.Info("connected to PostgreSQL")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		ClusterMode: s.cfg.RedisCluster,
		Addresses:   s.cfg.RedisAddrs,
		Password:    s.cfg.RedisPass,
		DB:          s.cfg.RedisDB,
		PoolSize:    10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	s.redis = redisClient
	logger.Info("connected to Redis", zap.Strings("addrs", s.cfg.RedisAddrs))

	// ----- JWT -----
	verifier, err := jwt.LoadVerifier(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT verifier: %w", err)
	}

	// ----- Credential box -----
	box, err := secrets.NewBox(s.cfg.SettingsEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to init settings encryption: %w", err)
	}

	location, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		logger.Warn("unknown shop timezone, using local time", zap.String("timezone", s.cfg.Timezone), zap.Error(err))
		location = time.Local
	}

	// ----- Repositories -----
	txnRepo := postgres.NewPaymentTransactionRepository(pool)
	customerRepo := postgres.NewCustomerRepository(pool)
	linkRepo := postgres.NewProviderCustomerRepository(pool)
	giftCardRepo := postgres.NewGiftCardRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)
	settingsRepo := postgres.NewPaymentSettingsRepository(pool)

	// ----- Provider clients -----
	factory := provider.NewFactory(settingsRepo, box, logger,
		provider.WithTTL(s.cfg.ClientCacheTTL),
		provider.WithSquareEndpoints(s.cfg.SquareAPIBase, s.cfg.SquareSandboxAPIBase, s.cfg.ProviderCallTimeout),
	)
	linker := customerlink.NewLinker(linkRepo, factory, customerRepo, logger)

	// ----- Events -----
	hub := websocket.NewHub(verifier, logger)
	s.hub = hub
	publishers := events.Multi{hub}
	if s.cfg.EventsQueueURL != "" {
		sqsPublisher, err := events.NewSQSPublisherFromEnv(ctx, s.cfg.AWSRegion, s.cfg.EventsQueueURL)
		if err != nil {
			return fmt.Errorf("failed to init SQS publisher: %w", err)
		}
		publishers = append(publishers, sqsPublisher)
		logger.Info("publishing transaction events to SQS", zap.String("queue_url", s.cfg.EventsQueueURL))
	}

	// ----- Services -----
	var mailer giftcardsvc.Mailer
	if s.cfg.SMTPHost != "" {
		mailer = email.NewEmailSender(
			s.cfg.SMTPHost,
			s.cfg.SMTPPort,
			s.cfg.SMTPUser,
			s.cfg.SMTPPass,
			s.cfg.SMTPFromName,
			s.cfg.SMTPSecure,
		)
	} else {
		logger.Warn("SMTP_HOST not set, gift card emails will not be delivered")
	}

	giftCardService := giftcardsvc.NewService(giftCardRepo, mailer, logger)
	orderService := orderpayment.NewService(orderRepo, txnRepo, logger)
	settingsService := settingssvc.NewService(settingsRepo, box, factory, logger)

	dispatcher := adapter.NewDispatcher(logger, s.adapters(factory, linker, giftCardService)...)

	transactionService := paymentsvc.NewTransactionService(
		txnRepo,
		customerRepo,
		dispatcher,
		giftCardService,
		orderService,
		publishers,
		logger,
	)
	transactionService.SetProviderCallTimeout(s.cfg.ProviderCallTimeout)
	transactionService.SetDefaultCardProvider(s.cfg.DefaultCardProvider)

	reconciler := webhooksvc.NewReconciler(
		webhooksvc.Config{
			StripeSecret:          s.cfg.StripeWebhookSecret,
			SquareSignatureKey:    s.cfg.SquareSignatureKey,
			SquareNotificationURL: s.cfg.SquareNotificationURL,
		},
		txnRepo,
		orderService,
		webhooksvc.NewRedisDeduper(redisClient),
		publishers,
		logger,
	)

	reportService := report.NewService(txnRepo, s.cfg.Currency, location, logger)

	if s.cfg.MaintenanceInterval > 0 {
		maintenanceService := maintenance.NewService(txnRepo, maintenance.Retention{
			Failed:    s.cfg.FailedRetention,
			Completed: s.cfg.CompletedRetention,
		}, logger)
		go maintenanceService.Run(ctx, s.cfg.MaintenanceInterval)
	}

	// ----- WebSocket Hub -----
	if err := hub.RegisterHandler(wsHandlers.NewTransactionHandler(transactionService)); err != nil {
		return fmt.Errorf("failed to register socket handlers: %w", err)
	}
	go hub.Run(ctx)

	// ----- Middlewares -----
	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
	)

	// ----- Router -----
	SetupRouter(s.engine, logger, &Handlers{
		TransactionHandler: transactionHandler.NewTransactionHandler(transactionService),
		ReportHandler:      reportHandler.NewReportHandler(reportService, location),
		CustomerHandler:    customerHandler.NewCustomerHandler(linker),
		GiftCardHandler:    giftCardHandler.NewGiftCardHandler(giftCardService),
		SettingsHandler:    settingsHandler.NewSettingsHandler(settingsService),
		OrderHandler:       orderHandler.NewOrderHandler(orderService),
		WebhookHandler:     webhookHandler.NewWebhookHandler(reconciler, logger),
		WSHandler:          wsHandler.NewWebSocketHandler(hub, s.cfg.WSAllowedOrigins, logger),
		AuthMiddleware:     middleware.NewAuthMiddleware(verifier),
	})

	// ----- Start HTTP -----
	s.httpServer = &http.Server{
		Addr:              s.cfg.HTTPAddr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("server running",
		zap.String("addr", s.cfg.HTTPAddr),
		zap.String("env", s.cfg.AppEnv),
		zap.String("default_card_provider", string(s.cfg.DefaultCardProvider)),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server failed: %w", err)
	}
	return nil
}

// adapters lists the payment adapters in routing order. The configured
// default card processor claims unhinted card payments first.
func (s *Server) adapters(factory *provider.Factory, linker *customerlink.Linker, giftCards *giftcardsvc.Service) []adapter.Adapter {
	stripe := adapter.NewStripeAdapter(factory, linker, s.logger)
	square := adapter.NewSquareAdapter(factory, linker, s.logger)

	cards := []adapter.Adapter{stripe, square}
	if s.cfg.DefaultCardProvider == payment.ProviderSquare {
		cards = []adapter.Adapter{square, stripe}
	}

	list := []adapter.Adapter{
		adapter.NewOfflineAdapter(),
		adapter.NewGiftCardAdapter(giftCards, s.logger),
	}
	list = append(list, cards...)
	return append(list, adapter.NewPayPalAdapter(factory, s.logger))
}

// Shutdown drains HTTP traffic, stops background workers and closes storage.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.hub != nil {
		s.hub.BroadcastSystemAlert(&wstypes.SystemAlertData{
			Severity: "warning",
			Title:    "Payments service restarting",
			Message:  "Terminals reconnect automatically once the service is back",
		})
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if s.cancel != nil {
		s.cancel()
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if s.pool != nil {
		s.pool.Close()
	}
	_ = s.logger.Sync()
	return errors.Join(errs...)
}

func (s *Server) Logger() *zap.Logger {
	return s.logger
}
