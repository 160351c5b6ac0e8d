// Command seed provisions demo events and the initial admin account.
package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"eventpay/internal/config"
	"eventpay/internal/db"
	"eventpay/internal/model"
	"eventpay/internal/repository"
	"eventpay/internal/service"
)

func main() {
	cfg := config.Load()

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	if err := gormDB.AutoMigrate(
		&model.Admin{},
		&model.Event{},
		&model.Registration{},
		&model.PaymentRecord{},
		&model.PaymentAuditLog{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	ctx := context.Background()

	if err := seedAdmin(ctx, gormDB); err != nil {
		log.Fatalf("seed admin: %v", err)
	}
	if err := seedEvents(ctx, gormDB); err != nil {
		log.Fatalf("seed events: %v", err)
	}

	log.Println("seed complete")
}

func seedAdmin(ctx context.Context, gormDB *gorm.DB) error {
	email := getEnv("ADMIN_EMAIL", "admin@eventpay.local")
	password := getEnv("ADMIN_PASSWORD", "change-me-now")

	adminRepo := repository.NewAdminRepository(gormDB)
	if existing, err := adminRepo.FindByEmail(ctx, email); err == nil && existing != nil {
		log.Printf("admin %s already exists, skipping", email)
		return nil
	}

	hash, err := service.HashPassword(password)
	if err != nil {
		return err
	}
	admin := &model.Admin{
		Name:         "Administrator",
		Email:        email,
		PasswordHash: hash,
		Active:       true,
	}
	if err := adminRepo.Create(ctx, admin); err != nil {
		return err
	}
	log.Printf("created admin %s", email)
	return nil
}

func seedEvents(ctx context.Context, gormDB *gorm.DB) error {
	eventRepo := repository.NewEventRepository(gormDB)

	existing, err := eventRepo.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		log.Printf("%d events already present, skipping", len(existing))
		return nil
	}

	nextMonth := time.Now().AddDate(0, 1, 0)
	events := []model.Event{
		{
			Title:       "Tech Summit",
			Description: "Annual developer conference",
			Venue:       "Accra International Conference Centre",
			StartsAt:    nextMonth,
			Price:       decimal.NewFromInt(350),
			Active:      true,
		},
		{
			Title:       "Startup Pitch Night",
			Description: "Monthly founders meetup",
			Venue:       "Impact Hub",
			StartsAt:    nextMonth.AddDate(0, 0, 7),
			Price:       decimal.NewFromInt(80),
			Active:      true,
		},
		{
			Title:       "Design Workshop",
			Description: "Hands-on product design day",
			Venue:       "Kofi Annan ICT Centre",
			StartsAt:    nextMonth.AddDate(0, 0, 14),
			Price:       decimal.NewFromInt(150),
			Active:      true,
		},
	}
	for i := range events {
		if err := eventRepo.Create(ctx, &events[i]); err != nil {
			return err
		}
		log.Printf("created event %q (%s)", events[i].Title, events[i].ID)
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
