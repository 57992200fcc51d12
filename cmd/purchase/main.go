// ==============================================================================
// PURCHASE SETTLEMENT SERVICE MAIN - cmd/purchase/main.go
// ==============================================================================
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
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"coursemart/internal/enrollment"
	"coursemart/internal/gateway"
	"coursemart/internal/handler"
	"coursemart/internal/metrics"
	"coursemart/internal/middleware"
	"coursemart/internal/purchase"
	"coursemart/internal/repository"
	"coursemart/internal/repository/memory"
	"coursemart/internal/repository/mongo"
	"coursemart/internal/repository/postgres"
	"coursemart/internal/settlement"
	"coursemart/pkg/cache"
	"coursemart/pkg/config"
	"coursemart/pkg/logger"
	"coursemart/pkg/validator"
)

func main() {
	cfg := config.Load()
	log := logger.New("purchase-service")

	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	log.Info("Starting Purchase Service", map[string]interface{}{
		"port":         cfg.Server.Port,
		"store_driver": cfg.Store.Driver,
	})

	startCtx, startCancel := context.WithTimeout(context.Background(), 15*time.Second)
	store, err := openStore(startCtx, cfg)
	startCancel()
	if err != nil {
		log.Fatal("Failed to open ledger store", map[string]interface{}{
			"driver": cfg.Store.Driver,
			"error":  err.Error(),
		})
	}
	defer store.Close()

	log.Info("Ledger store connected", map[string]interface{}{"driver": cfg.Store.Driver})

	// Redis is optional; without it there are no receipts, rate limits or idempotency keys.
	var redisClient *redis.Client
	var receipts settlement.Receipts
	if cfg.Redis.URL != "" {
		redisClient, err = cache.NewRedisClient(context.Background(), cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Fatal("Failed to connect to Redis", map[string]interface{}{"error": err.Error()})
		}
		defer redisClient.Close()
		receipts = cache.NewEventReceipts(redisClient, cfg.Redis.EventReceiptTTL)
		log.Info("Redis connected", nil)
	} else {
		log.Warn("REDIS_URL not set, running without event receipts or rate limiting", nil)
	}

	metrics.Register()

	// Initialize services
	stripeClient := gateway.NewStripeClient(cfg.Stripe, log)
	projector := enrollment.NewProjector(store, log)
	reconciler := settlement.NewReconciler(stripeClient, store, projector, receipts, log)
	purchaseService := purchase.NewService(store, stripeClient, cfg.Stripe, log)

	// Initialize handlers
	val := validator.New()
	purchaseHandler := handler.NewPurchaseHandler(purchaseService, val, cfg.Server.AllowedOrigins, log)
	usersHandler := handler.NewUsersHandler(purchaseService, val, log)
	progressHandler := handler.NewProgressHandler(purchaseService, val, log)
	webhookHandler := handler.NewWebhookHandler(reconciler, log)
	systemHandler := handler.NewSystemHandler(store, redisClient, log)

	r := mux.NewRouter()

	r.Use(middleware.Recovery(log))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.NewLoggingMiddleware(log).Log)
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)

	r.HandleFunc("/health", systemHandler.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", systemHandler.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Gateway deliveries: raw body, authenticated by signature only.
	r.HandleFunc("/api/stripe/webhook", webhookHandler.Stripe).Methods(http.MethodPost)

	authMW := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	api := r.PathPrefix("/api/user").Subrouter()
	api.Use(authMW.Authenticate)
	if redisClient != nil {
		api.Use(middleware.NewRateLimiter(redisClient, cfg.RateLimit.UserPerMinute, time.Minute).Limit)
	}

	api.HandleFunc("/create-update", usersHandler.CreateOrUpdate).Methods(http.MethodPost)
	api.HandleFunc("/data", usersHandler.Me).Methods(http.MethodGet)
	api.HandleFunc("/purchases", purchaseHandler.ListPurchases).Methods(http.MethodGet)
	api.HandleFunc("/purchases/{id}", purchaseHandler.GetPurchase).Methods(http.MethodGet)
	api.HandleFunc("/enrolled-courses", purchaseHandler.EnrolledCourses).Methods(http.MethodGet)
	api.HandleFunc("/update-course-progress", progressHandler.UpdateCourseProgress).Methods(http.MethodPost)
	api.HandleFunc("/get-course-progress", progressHandler.CourseProgress).Methods(http.MethodPost)
	api.HandleFunc("/add-rating", progressHandler.AddRating).Methods(http.MethodPost)

	purchaseRoute := http.Handler(http.HandlerFunc(purchaseHandler.Purchase))
	if redisClient != nil {
		purchaseRoute = middleware.NewIdempotencyMiddleware(redisClient, cfg.Redis.IdempotencyTTL).Handle(purchaseRoute)
	}
	api.Handle("/purchase", purchaseRoute).Methods(http.MethodPost)

	// Start server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Purchase service started", map[string]interface{}{
			"address": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down purchase service...", nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Purchase service forced to shutdown", map[string]interface{}{
			"error": err.Error(),
		})
	}

	log.Info("Purchase service stopped gracefully", nil)
}

func openStore(ctx context.Context, cfg *config.Config) (repository.Store, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverPostgres:
		db, err := postgres.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return postgres.NewStore(db), nil
	case config.StoreDriverMongo:
		s, err := mongo.NewStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.StoreDriverMemory:
		return memory.NewStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
