// Package main runs the auth server without a database, backed by JSON
// file repositories. This is useful for:
// - Quick development and testing
// - Demo/prototype environments
// - Learning the API without database setup
//
// For production, use cmd/authd with PostgreSQL.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/tendant/chi-demo/app"

	"github.com/taskhub/taskhub/pkg/config"
	"github.com/taskhub/taskhub/pkg/login"
	"github.com/taskhub/taskhub/pkg/loginflow"
	loginflowapi "github.com/taskhub/taskhub/pkg/loginflow/api"
	"github.com/taskhub/taskhub/pkg/notification"
	"github.com/taskhub/taskhub/pkg/sessiontrust"
	tg "github.com/taskhub/taskhub/pkg/tokengenerator"
	"github.com/taskhub/taskhub/pkg/twofa"
	twofaapi "github.com/taskhub/taskhub/pkg/twofa/api"
)

type Config struct {
	AppConfig   app.AppConfig
	JwtConfig   config.JwtConfig
	TwofaConfig config.TwofaConfig

	DataDir      string `env:"DATA_DIR" env-default:"./data"`
	DemoUsername string `env:"DEMO_USERNAME" env-default:"demo"`
	DemoEmail    string `env:"DEMO_EMAIL" env-default:"demo@taskhub.example"`
	DemoPassword string `env:"DEMO_PASSWORD" env-default:"demo-pass"`
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	slog.Info("Starting file-backed auth server (no database required)", "dataDir", cfg.DataDir)

	userRepo, err := login.NewFileUserRepository(cfg.DataDir)
	if err != nil {
		slog.Error("Failed creating user repository", "err", err)
		os.Exit(-1)
	}
	loginService := login.NewLoginService(userRepo)
	seedDemoUser(loginService, cfg)

	twoFaRepo, err := twofa.NewTwoFactorRepository(twofa.RepositoryConfig{Type: "file", DataDir: cfg.DataDir})
	if err != nil {
		slog.Error("Failed creating two-factor repository", "err", err)
		os.Exit(-1)
	}

	// Emails are printed to the log instead of delivered.
	notificationManager, err := notification.NewNotificationManagerWithOptions(
		notification.WithNotifier(notification.EmailSystem, &logNotifier{}),
		notification.WithDefaultTemplates(),
	)
	if err != nil {
		slog.Error("Failed creating notification manager", "err", err)
		os.Exit(-1)
	}

	trustStore := sessiontrust.NewInMemoryStore()
	twoFaService := twofa.NewTwoFaService(
		twoFaRepo,
		notificationManager,
		trustStore,
		loginService,
		twofa.WithCodeExpiry(cfg.TwofaConfig.CodeExpiry()),
		twofa.WithMaxAttempts(cfg.TwofaConfig.MaxAttempts),
		twofa.WithRateLimitWindow(cfg.TwofaConfig.RateLimitWindow()),
		twofa.WithRateLimitMax(cfg.TwofaConfig.RateLimitMax),
		twofa.WithTrustDuration(cfg.TwofaConfig.TrustDuration()),
		twofa.WithBackupCodeCount(cfg.TwofaConfig.BackupCodeCount),
	)

	jwtService := tg.NewJwtService(
		tg.WithDefaultTokenGenerator(tg.NewJwtTokenGenerator(cfg.JwtConfig.JwtSecret, cfg.JwtConfig.Issuer, cfg.JwtConfig.Audience)),
		tg.WithTokenGenerator(tg.TEMP_TOKEN_NAME, tg.NewTempTokenGenerator(cfg.JwtConfig.TempSecret, cfg.JwtConfig.Issuer, cfg.JwtConfig.Audience)),
		tg.WithCookieSetter(tg.NewCookieSetter(cfg.JwtConfig.CookieHttpOnly, cfg.JwtConfig.CookieSecure)),
	)

	flowService := loginflow.NewLoginFlowService(loginService, twoFaService, jwtService, trustStore)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)

	server.R.Mount("/api/auth", loginflowapi.Routes(loginflowapi.NewHandle(flowService, jwtService)))

	tokenAuth := jwtauth.New("HS256", []byte(cfg.JwtConfig.JwtSecret), nil)
	server.R.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Mount("/api/2fa", twofaapi.Routes(twofaapi.NewHandle(twoFaService)))
	})

	server.Run()
}

func seedDemoUser(loginService *login.LoginService, cfg Config) {
	user, err := loginService.Register(context.Background(), cfg.DemoUsername, cfg.DemoEmail, cfg.DemoPassword)
	if err != nil {
		// Already seeded on a previous run
		slog.Info("Demo user not created", "username", cfg.DemoUsername, "err", err)
		return
	}
	slog.Info("Seeded demo user", "username", cfg.DemoUsername, "userID", user.ID)
}

// logNotifier writes notices to the log instead of sending email.
type logNotifier struct{}

func (n *logNotifier) Send(noticeType notification.NoticeType, data notification.NotificationData, template notification.NoticeTemplate) error {
	slog.Info("Notice (not delivered)", "notice", noticeType, "to", data.To, "data", data.Data)
	return nil
}
