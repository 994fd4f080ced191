package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/jinzhu/copier"
	"github.com/tendant/chi-demo/app"
	dbutils "github.com/tendant/db-utils/db"

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
	DbConfig    config.DbConfig
	AppConfig   app.AppConfig
	EmailConfig config.EmailConfig
	JwtConfig   config.JwtConfig
	TwofaConfig config.TwofaConfig
}

func main() {
	cfg := Config{}
	cleanenv.ReadEnv(&cfg)

	server := app.DefaultApp()
	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	dbConfig := cfg.DbConfig.ToDbConfig()
	pool, err := dbutils.NewDbPool(context.Background(), dbConfig)
	if err != nil {
		slog.Error("Failed creating dbpool", "db", dbConfig.Database, "host", dbConfig.Host, "port", dbConfig.Port, "user", dbConfig.User)
		os.Exit(-1)
	}

	var smtpConfig notification.SMTPConfig
	copier.Copy(&smtpConfig, &cfg.EmailConfig)
	notificationManager, err := notification.NewNotificationManagerWithOptions(
		notification.WithSMTP(smtpConfig),
		notification.WithDefaultTemplates(),
	)
	if err != nil {
		slog.Error("Failed creating notification manager", "err", err)
		os.Exit(-1)
	}

	userRepo := login.NewPostgresUserRepository(pool)
	loginService := login.NewLoginService(userRepo)

	twoFaRepo, err := twofa.NewTwoFactorRepository(twofa.RepositoryConfig{Type: "postgres", Pool: pool})
	if err != nil {
		slog.Error("Failed creating two-factor repository", "err", err)
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

	server.R.Mount("/api/auth", loginflowapi.Routes(loginflowapi.NewHandle(flowService, jwtService)))

	tokenAuth := jwtauth.New("HS256", []byte(cfg.JwtConfig.JwtSecret), nil)
	server.R.Group(func(r chi.Router) {
		r.Use(jwtauth.Verifier(tokenAuth))
		r.Use(jwtauth.Authenticator(tokenAuth))
		r.Mount("/api/2fa", twofaapi.Routes(twofaapi.NewHandle(twoFaService)))
	})

	server.Run()
}
