package main

import (
	"log"
	"net/http"
	"os"

	_ "eventpay/docs" // swagger docs

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"eventpay/internal/auth"
	"eventpay/internal/cache"
	"eventpay/internal/config"
	"eventpay/internal/db"
	"eventpay/internal/gateway"
	"eventpay/internal/handler"
	"eventpay/internal/model"
	"eventpay/internal/repository"
	"eventpay/internal/router"
	"eventpay/internal/service"
)

// @title EventPay API
// @version 1.0
// @description Event registration payments over mobile money with payment-state reconciliation.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	e := echo.New()
	e.Use(middleware.RequestID())

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	// Drop tables if RESET_DB environment variable is set
	if os.Getenv("RESET_DB") == "true" {
		log.Println("RESET_DB=true detected, dropping all tables...")
		tables := []interface{}{
			&model.PaymentAuditLog{},
			&model.PaymentRecord{},
			&model.Registration{},
			&model.Event{},
			&model.Admin{},
		}
		for _, table := range tables {
			if err := gormDB.Migrator().DropTable(table); err != nil {
				log.Printf("Warning: Failed to drop table (may not exist): %v", err)
			}
		}
		log.Println("Tables dropped")
	}

	// Run migrations for all models
	if err := gormDB.AutoMigrate(
		&model.Admin{},
		&model.Event{},
		&model.Registration{},
		&model.PaymentRecord{},
		&model.PaymentAuditLog{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	// Initialize repositories
	eventRepo := repository.NewEventRepository(gormDB)
	registrationRepo := repository.NewRegistrationRepository(gormDB)
	recordRepo := repository.NewPaymentRecordRepository(gormDB)
	auditRepo := repository.NewPaymentAuditLogRepository(gormDB)
	adminRepo := repository.NewAdminRepository(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	tokenStore := auth.NewTokenStore(cacheClient)

	// Initialize gateway client
	gatewayClient := gateway.NewHTTPClient(gateway.Config{
		BaseURL:     cfg.GatewayBaseURL,
		APIKey:      cfg.GatewayAPIKey,
		PartnerCode: cfg.GatewayPartnerCode,
		CallbackURL: cfg.CallbackBaseURL,
		Timeout:     cfg.GatewayTimeout,
	})

	// Initialize services
	authService := service.NewAuthService(adminRepo, jwtService, tokenStore)
	eventService := service.NewEventService(eventRepo, cacheClient)
	registrationService := service.NewRegistrationService(registrationRepo, eventRepo, cacheClient)
	paymentService := service.NewPaymentService(registrationRepo, recordRepo, auditRepo, gatewayClient, cacheClient)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(authService)
	eventHandler := handler.NewEventHandler(eventService)
	registrationHandler := handler.NewRegistrationHandler(registrationService)
	paymentHandler := handler.NewPaymentHandler(paymentService)
	seedHandler := handler.NewSeedHandler(eventService)

	// Register routes
	router.Register(
		e,
		cfg,
		authHandler,
		eventHandler,
		registrationHandler,
		paymentHandler,
		seedHandler,
	)

	if cfg.SwaggerHost != "" {
		log.Printf("Swagger documentation available at: %s/swagger/index.html", cfg.SwaggerHost)
	} else {
		log.Printf("Swagger documentation available at: http://localhost:%s/swagger/index.html", cfg.ServerPort)
	}

	addr := ":" + cfg.ServerPort
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server start: %v", err)
	}
}
