package main

import (
	"context"
	"log"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	fbapp "firebase.google.com/go/v4"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"vendora/internal/adapter/api"
	"vendora/internal/adapter/api/handler"
	apimiddleware "vendora/internal/adapter/api/middleware"
	"vendora/internal/adapter/api/router"
	"vendora/internal/adapter/repository"
	"vendora/internal/domain/service"
	"vendora/internal/infrastructure/actorqueue"
	"vendora/internal/infrastructure/chatwire"
	"vendora/internal/infrastructure/gemini"
	"vendora/internal/infrastructure/inventory"
	"vendora/internal/infrastructure/schedule"
	"vendora/internal/infrastructure/velocity"
	"vendora/internal/usecase"
	"vendora/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx := context.Background()

	var opts []option.ClientOption
	if serviceAccountJSON := os.Getenv("FIREBASE_SERVICE_ACCOUNT_JSON"); serviceAccountJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(serviceAccountJSON)))
	} else if serviceAccountPath := os.Getenv("FIREBASE_SERVICE_ACCOUNT_PATH"); serviceAccountPath != "" {
		opts = append(opts, option.WithCredentialsFile(serviceAccountPath))
	}

	firebaseApp, err := fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase: %v", err)
	}

	authClient, err := firebaseApp.Auth(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize Firebase Auth: %v", err)
	}

	firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
	if err != nil {
		log.Fatalf("Failed to create Firestore client: %v", err)
	}
	defer firestoreClient.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	defer redisClient.Close()

	sessionRepo := repository.NewFirestoreSessionRepository(firestoreClient)
	transactionRepo := repository.NewFirestoreTransactionRepository(firestoreClient)
	trustRepo := repository.NewFirestoreTrustRepository(firestoreClient)
	vendorRepo := repository.NewFirestoreVendorRepository(firestoreClient)
	catalogRepo := repository.NewFirestoreCatalogRepository(firestoreClient)

	catalog := inventory.NewCache(catalogRepo, 5*time.Minute)
	catalog.StartSweepRoutine(ctx)

	limiter := velocity.NewLimiter(redisClient, cfg.DailyVolumeCapBase)
	scheduler := schedule.NewScheduler()
	defer scheduler.Stop()

	queue := actorqueue.NewQueue(ctx, 30*time.Minute)
	queue.StartCleanupRoutine(ctx)

	wireManager := chatwire.NewManager()
	wireManager.Start(ctx)

	classifier := gemini.NewClassifier(cfg.GeminiModel)
	paymentService := service.NewPaystackPaymentService(cfg.PaystackSecretKey)

	trustUseCase := usecase.NewTrustEscrowUseCase(trustRepo, vendorRepo, usecase.HoldConfig{
		NewVendorHoldHours:      cfg.NewVendorHoldHours,
		EstablishedHoldHours:    cfg.EstablishedHoldHours,
		EstablishedVendorOrders: cfg.EstablishedVendorOrders,
		MutualTrustHoldHours:    cfg.MutualTrustHoldHours,
	})
	purchaseUseCase := usecase.NewPurchaseUseCase(
		sessionRepo, transactionRepo, vendorRepo, trustUseCase,
		catalog, paymentService, wireManager, limiter, scheduler,
		usecase.DefaultPurchaseConfig(),
	)
	conversationUseCase := usecase.NewConversationUseCase(
		queue, sessionRepo, vendorRepo, catalog, classifier, wireManager, purchaseUseCase,
	)

	trustUseCase.StartPromotionJob(ctx, time.Hour)
	startSweepJobs(ctx, purchaseUseCase, conversationUseCase)

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Validator = api.NewValidator()

	authMiddleware := apimiddleware.NewAuthMiddleware(authClient)

	handlers := router.Handlers{
		Health:  handler.NewHealthHandler(),
		Webhook: handler.NewWebhookHandler(paymentService, conversationUseCase),
		Message: handler.NewMessageHandler(conversationUseCase, wireManager),
		Admin:   handler.NewAdminHandler(purchaseUseCase, trustUseCase, transactionRepo, vendorRepo),
	}
	router.Setup(e, handlers, authMiddleware, cfg.TransportSecret)

	log.Printf("Starting server on port %s...", cfg.ServerPort)
	if err := e.Start(":" + cfg.ServerPort); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}

// startSweepJobs runs the escrow release, pending-expiry, and settlement
// retry tickers.
func startSweepJobs(ctx context.Context, purchaseUC *usecase.PurchaseUseCase, conversationUC *usecase.ConversationUseCase) {
	go func() {
		releaseTicker := time.NewTicker(5 * time.Minute)
		expiryTicker := time.NewTicker(10 * time.Minute)
		settlementTicker := time.NewTicker(2 * time.Minute)
		defer releaseTicker.Stop()
		defer expiryTicker.Stop()
		defer settlementTicker.Stop()

		for {
			select {
			case <-releaseTicker.C:
				if err := purchaseUC.ReleaseDueEscrows(ctx); err != nil {
					log.Printf("Escrow release sweep failed: %v", err)
				}
			case <-expiryTicker.C:
				if err := purchaseUC.ExpirePendingPayments(ctx); err != nil {
					log.Printf("Pending payment sweep failed: %v", err)
				}
			case <-settlementTicker.C:
				if err := conversationUC.RetrySettlements(ctx); err != nil {
					log.Printf("Settlement retry sweep failed: %v", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
