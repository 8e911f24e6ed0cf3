package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/spf13/viper"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/talenthub/backend/docs"
	"github.com/talenthub/backend/internal/config"
	"github.com/talenthub/backend/internal/database"
	"github.com/talenthub/backend/internal/handlers"
	mW "github.com/talenthub/backend/internal/middleware"
	"github.com/talenthub/backend/internal/services"
)

// @title TalentHub Ledger API
// @version 1.0
// @description Internal value ledger for the TalentHub recruiting platform
// @host localhost:8080
// @BasePath /api/v1
// @schemes http https

func main() {
	// Initialize config
	viper.SetConfigFile(".env") // explicitly point to .env file
	viper.AutomaticEnv()        // allow environment variables to override .env
	viper.ReadInConfig()        // read .env file

	viper.SetEnvPrefix("")

	viper.BindEnv("database.host", "DATABASE_HOST")
	viper.BindEnv("database.port", "DATABASE_PORT")
	viper.BindEnv("database.user", "DATABASE_USER")
	viper.BindEnv("database.password", "DATABASE_PASSWORD")
	viper.BindEnv("database.name", "DATABASE_NAME")
	viper.BindEnv("database.ssl_mode", "DATABASE_SSL_MODE")

	viper.BindEnv("redis.host", "REDIS_HOST")
	viper.BindEnv("redis.port", "REDIS_PORT")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	viper.BindEnv("jwt.secret_key", "JWT_SECRET_KEY")
	viper.BindEnv("jwt.expiry_hours", "JWT_EXPIRY_HOURS")
	viper.BindEnv("argon2.time", "ARGON2_TIME")
	viper.BindEnv("argon2.memory", "ARGON2_MEMORY")
	viper.BindEnv("argon2.threads", "ARGON2_THREADS")
	viper.BindEnv("argon2.key_length", "ARGON2_KEY_LENGTH")
	viper.BindEnv("argon2.salt_length", "ARGON2_SALT_LENGTH")

	viper.BindEnv("smtp.host", "SMTP_HOST")
	viper.BindEnv("smtp.port", "SMTP_PORT")
	viper.BindEnv("smtp.user", "SMTP_USER")
	viper.BindEnv("smtp.password", "SMTP_PASSWORD")
	viper.BindEnv("smtp.from", "SMTP_FROM")

	viper.BindEnv("provider.base_url", "PROVIDER_BASE_URL")
	viper.BindEnv("provider.api_key", "PROVIDER_API_KEY")
	viper.BindEnv("provider.webhook_url", "PROVIDER_WEBHOOK_URL")
	viper.BindEnv("provider.webhook_secret", "PROVIDER_WEBHOOK_SECRET")

	viper.BindEnv("commission.assignment_pct", "COMMISSION_ASSIGNMENT_PCT")
	viper.BindEnv("commission.sales_pct", "COMMISSION_SALES_PCT")
	viper.BindEnv("commission.subscription_pct", "COMMISSION_SUBSCRIPTION_PCT")

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Config file not found, using defaults: %v", err)
	}

	ledgerConfig := config.LoadLedgerConfig()

	// Initialize Swagger docs
	docs.SwaggerInfo.Title = "TalentHub Ledger API"
	docs.SwaggerInfo.Description = "Internal value ledger for the TalentHub recruiting platform"
	docs.SwaggerInfo.Version = "1.0"
	docs.SwaggerInfo.Host = "localhost:8080"
	docs.SwaggerInfo.BasePath = "/api/v1"
	docs.SwaggerInfo.Schemes = []string{"http", "https"}

	// Initialize services
	db := database.InitDatabase()
	defer db.Close()

	redisClient := database.InitRedis()
	if redisClient != nil {
		defer redisClient.Close()
	}

	batchLoc, err := time.LoadLocation(ledgerConfig.BatchTimezone)
	if err != nil {
		log.Printf("Unknown batch timezone %q, falling back to UTC: %v", ledgerConfig.BatchTimezone, err)
		batchLoc = time.UTC
	}

	ledgerService := services.NewLedgerService(db)
	notificationService := services.NewNotificationService(db, redisClient)
	attributionService := services.NewAttributionService(db)
	commissionService := services.NewCommissionService(db, ledgerService, notificationService, ledgerConfig.MinWithdrawalAmount)
	exporter := services.NewSettlementExporter(ledgerConfig.SettlementCurrency, ledgerConfig.SettlementBIC)
	revenueService := services.NewRevenueService(db, exporter, batchLoc)
	refundService := services.NewRefundService(db, ledgerService, notificationService)
	checkoutService := services.NewCheckoutService(db)
	reconciliationService := services.NewReconciliationService(db, ledgerService, commissionService, attributionService)
	authService := services.NewAuthService(db, redisClient)

	webhookHandler := handlers.NewWebhookHandler(reconciliationService)
	walletHandler := handlers.NewWalletHandler(ledgerService, reconciliationService)
	attributionHandler := handlers.NewAttributionHandler(attributionService)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(mW.SecurityHeaders)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Access-Control-Allow-Origin"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("http://localhost:8080/swagger/doc.json"),
	))

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (no auth required)
		r.Post("/auth/login", authService.Login)
		r.Post("/auth/logout", authService.Logout)

		// Provider callbacks, authenticated by webhook signature
		r.Post("/webhooks/payment-confirmed", webhookHandler.PaymentConfirmed)
		r.Post("/webhooks/payment-failed", webhookHandler.PaymentFailed)

		// Protected endpoints (auth required)
		r.Group(func(r chi.Router) {
			r.Use(mW.AuthMiddleware(redisClient))

			r.Get("/auth/me", authService.Me)

			// Wallet
			r.Get("/wallet/balance", walletHandler.GetBalance)
			r.Get("/wallet/{accountId}/transactions", walletHandler.ListTransactions)
			r.Post("/wallet/transfer", walletHandler.Transfer)
			r.Post("/wallet/purchase", walletHandler.WalletPurchase)

			// Checkout
			r.Post("/checkout/sessions", checkoutService.CreateSessionHandler)
			r.Get("/checkout/sessions/{sessionId}/verify", checkoutService.VerifySessionHandler)
			r.Get("/checkout/sessions/{sessionId}/qr", checkoutService.QRCodeHandler)

			// Commission withdrawals
			r.Post("/withdrawals", commissionService.RequestWithdrawalHandler)

			// Refunds
			r.Post("/refunds", refundService.CreateRefundRequestHandler)
			r.Post("/refunds/{refundId}/withdraw", refundService.WithdrawRefundHandler)

			// Admin-only surface
			r.Group(func(r chi.Router) {
				r.Use(mW.RequireRole("ADMIN"))

				r.Get("/wallet/{accountId}/integrity", walletHandler.VerifyIntegrity)

				r.Post("/withdrawals/{withdrawalId}/approve", commissionService.ApproveWithdrawalHandler)
				r.Post("/withdrawals/{withdrawalId}/reject", commissionService.RejectWithdrawalHandler)

				r.Post("/refunds/{refundId}/decision", refundService.DecideRefundHandler)

				r.Get("/attribution/{companyId}", attributionHandler.GetAttribution)
				r.Post("/attribution/{companyId}/lock", attributionHandler.LockAttribution)
				r.Post("/attribution/{companyId}/override", attributionHandler.OverrideAttribution)
				r.Get("/attribution/{companyId}/audit", attributionHandler.GetAuditTrail)

				r.Post("/revenue/run", revenueService.RunMonthlyRevenueHandler)
				r.Post("/settlements/generate", revenueService.GenerateSettlementsHandler)
				r.Post("/settlements/{settlementId}/paid", revenueService.MarkSettlementPaidHandler)
			})
		})
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	// Start server
	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Periodic ledger integrity sweep
	sweepDone := make(chan struct{})
	go func() {
		ticker := time.NewTicker(ledgerConfig.IntegrityCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, err := ledgerService.RunIntegritySweep(); err != nil {
					log.Printf("Integrity sweep failed: %v", err)
				}
			case <-sweepDone:
				return
			}
		}
	}()

	// Graceful shutdown
	go func() {
		log.Printf("Server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Server shutting down...")
	close(sweepDone)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server stopped")
}
