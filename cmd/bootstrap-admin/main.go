// Command bootstrap-admin creates the first administrator account. Every later
// account is created through the staff API by an administrator.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/college-portal-api/internal/models"
	"github.com/noah-isme/college-portal-api/internal/repository"
	"github.com/noah-isme/college-portal-api/internal/service"
	"github.com/noah-isme/college-portal-api/pkg/config"
	"github.com/noah-isme/college-portal-api/pkg/credential"
	"github.com/noah-isme/college-portal-api/pkg/database"
	"github.com/noah-isme/college-portal-api/pkg/logger"
)

const passwordEnv = "BOOTSTRAP_ADMIN_PASSWORD"

func main() {
	var (
		email  string
		mobile string
		name   string
	)

	flag.StringVar(&email, "email", "", "Administrator email")
	flag.StringVar(&mobile, "mobile", "", "Administrator mobile number (10 digits)")
	flag.StringVar(&name, "name", "Administrator", "Administrator display name")
	flag.Parse()

	password := os.Getenv(passwordEnv)
	if email == "" || mobile == "" || password == "" {
		log.Fatalf("usage: %s=<password> bootstrap-admin -email <email> -mobile <mobile> [-name <name>]", passwordEnv)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	users := repository.NewUserRepository(db)
	lifecycle := service.NewRecordLifecycle(
		credential.NewManager(cfg.Password.HashCost),
		service.NewIdentifierAllocator(users, cfg.Allocator.MaxAttempts, nil, logr),
	)
	staff := service.NewStaffService(users, lifecycle, nil, logr)

	admin, err := staff.Create(ctx, service.CreateStaffRequest{
		Name:         name,
		Email:        email,
		MobileNumber: mobile,
		Password:     password,
		Role:         models.RoleAdmin,
	}, "", models.RequestMeta{UserAgent: "bootstrap-admin"})
	if err != nil {
		logr.Fatal("failed to create administrator", zap.Error(err))
	}

	logr.Info("administrator created", zap.String("id", admin.ID), zap.String("email", admin.Email))
}
