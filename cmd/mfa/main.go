package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/cors"
	dbutils "github.com/tendant/db-utils/db"
	"github.com/vaultshare/mfa/pkg/attempt"
	"github.com/vaultshare/mfa/pkg/backupcode"
	"github.com/vaultshare/mfa/pkg/config"
	"github.com/vaultshare/mfa/pkg/devicetrust"
	"github.com/vaultshare/mfa/pkg/duo"
	"github.com/vaultshare/mfa/pkg/enrollment"
	"github.com/vaultshare/mfa/pkg/enrollment/api"
	"github.com/vaultshare/mfa/pkg/notice"
	"github.com/vaultshare/mfa/pkg/notification"
	"github.com/vaultshare/mfa/pkg/totp"
)

type JwtConfig struct {
	JwtSecret string `env:"JWT_SECRET" env-default:"very-secure-jwt-secret"`
}

type ServiceConfig struct {
	// PersistenceType selects the storage backend: postgres or memory
	PersistenceType string `env:"MFA_PERSISTENCE_TYPE" env-default:"postgres"`

	// Port the HTTP server listens on
	Port int `env:"MFA_PORT" env-default:"4000"`

	// BaseURL is the public base URL used in enrollment invite links
	BaseURL string `env:"MFA_BASE_URL" env-default:"http://localhost:4000"`

	// NotificationsEnabled controls whether change notices are emailed
	NotificationsEnabled bool `env:"MFA_NOTIFICATIONS_ENABLED" env-default:"false"`
}

type Config struct {
	DbConfig      config.DatabaseConfig
	AppConfig     app.AppConfig
	JwtConfig     JwtConfig
	ServiceConfig ServiceConfig
	DuoConfig     config.DuoConfig
}

func main() {
	loadEnvFile()

	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	twofaConfig := config.NewTwoFactorConfigFromEnv()

	server := app.NewApp(
		app.WithPort(cfg.ServiceConfig.Port),
		app.WithCORS(&cors.Options{
			AllowedOrigins:   config.GetEnvSlice("MFA_CORS_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type", "Authorization", "X-Device-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
	)
	app.RegisterHealthzRoutes(server.R)

	var db enrollment.DBTX
	if cfg.ServiceConfig.PersistenceType != "memory" {
		dbConfig := cfg.DbConfig.ToDbConfig()
		pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
		if err != nil {
			slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
			os.Exit(-1)
		}
		db = pool
	}

	orchestrator, err := buildOrchestrator(cfg, twofaConfig, db)
	if err != nil {
		slog.Error("Failed building orchestrator", "error", err)
		os.Exit(-1)
	}

	handler := api.NewHandler(orchestrator)
	tokenAuth := jwtauth.New("HS256", []byte(cfg.JwtConfig.JwtSecret), nil)

	server.R.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Route("/api/2fa", handler.Routes)
		r.Route("/api/admin/2fa", handler.AdminRoutes)
	})

	server.Run()
}

func buildOrchestrator(cfg Config, twofaConfig config.TwoFactorConfig, db enrollment.DBTX) (*enrollment.Orchestrator, error) {
	persistence := cfg.ServiceConfig.PersistenceType
	repoConfig := enrollment.RepositoryConfig{DB: db}

	configs, err := enrollment.NewConfigRepository(persistence, repoConfig)
	if err != nil {
		return nil, err
	}
	directives, err := enrollment.NewDirectiveRepository(persistence, repoConfig)
	if err != nil {
		return nil, err
	}
	directory, err := enrollment.NewUserDirectory(persistence, repoConfig)
	if err != nil {
		return nil, err
	}

	var codeRepo backupcode.Repository
	var attemptRepo attempt.Repository
	var deviceRepo devicetrust.Repository
	if persistence == "memory" {
		codeRepo = backupcode.NewInMemoryRepository()
		attemptRepo = attempt.NewInMemoryRepository()
		deviceRepo = devicetrust.NewInMemoryRepository()
	} else {
		codeRepo = backupcode.NewPostgresRepository(db)
		attemptRepo = attempt.NewPostgresRepository(db)
		deviceRepo = devicetrust.NewPostgresRepository(db)
	}

	lockoutWindow, err := twofaConfig.ParseLockoutWindow()
	if err != nil {
		return nil, err
	}
	lockoutDuration, err := twofaConfig.ParseLockoutDuration()
	if err != nil {
		return nil, err
	}
	trustDuration, err := twofaConfig.ParseDeviceTrust()
	if err != nil {
		return nil, err
	}

	opts := []enrollment.Option{
		enrollment.WithGracePeriod(twofaConfig.GracePeriod()),
		enrollment.WithBackupCodeCount(twofaConfig.BackupCodeCount),
		enrollment.WithBaseURL(cfg.ServiceConfig.BaseURL),
	}

	if cfg.DuoConfig.IsConfigured() {
		opts = append(opts, enrollment.WithDuoBridge(duo.NewBridge(cfg.DuoConfig)))
		slog.Info("Duo method enabled", "hostname", cfg.DuoConfig.APIHostname)
	}

	if cfg.ServiceConfig.NotificationsEnabled {
		notifier, err := buildNotifier()
		if err != nil {
			return nil, err
		}
		opts = append(opts, enrollment.WithNotifier(notifier))
	}

	return enrollment.NewOrchestrator(
		configs,
		directives,
		directory,
		totp.NewEngine(twofaConfig.Issuer),
		backupcode.NewVault(codeRepo, backupcode.WithCodeCount(twofaConfig.BackupCodeCount)),
		attempt.NewLedger(attemptRepo),
		attempt.NewLockoutPolicy(attemptRepo,
			attempt.WithMaxAttempts(twofaConfig.MaxFailedAttempts),
			attempt.WithWindow(lockoutWindow),
			attempt.WithLockoutDuration(lockoutDuration),
		),
		devicetrust.NewService(deviceRepo, devicetrust.WithTrustDuration(trustDuration)),
		opts...,
	), nil
}

func buildNotifier() (*notification.NotificationManager, error) {
	noticeConfig, err := notice.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return notice.NewNotificationManager(noticeConfig.ToSMTPConfig())
}

// loadEnvFile loads a .env file from the working directory when present
func loadEnvFile() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	envFile := filepath.Join(cwd, ".env")
	if _, err := os.Stat(envFile); os.IsNotExist(err) {
		return
	}

	if err := godotenv.Load(envFile); err != nil {
		slog.Error("Failed to load .env file", "error", err, "path", envFile)
		return
	}
	slog.Info("Loaded configuration from .env file", "path", envFile)
}
