package main

import (
	"context"
	"database/sql"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	auth "github.com/goliatone/go-blog-auth"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-router"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// Config is the full process configuration, parsed from the environment
// once at boot.
type Config struct {
	Addr  string `env:"HTTP_ADDR" envDefault:":9876"`
	DSN   string `env:"DATABASE_DSN" envDefault:"file:blog_auth.db?cache=shared"`
	Debug bool   `env:"DEBUG"`

	Auth auth.Config
}

type persistenceConfig struct {
	dsn   string
	debug bool
}

func (p persistenceConfig) GetDSN() string            { return p.dsn }
func (p persistenceConfig) GetServer() string         { return p.dsn }
func (p persistenceConfig) GetOtelIdentifier() string { return "" }
func (p persistenceConfig) GetDebug() bool            { return p.debug }
func (p persistenceConfig) GetDriver() string         { return sqliteshim.ShimName }
func (p persistenceConfig) GetPingTimeout() time.Duration {
	return 5 * time.Second
}

func main() {
	lgr := glog.NewLogger(
		glog.WithLoggerTypePretty(),
		glog.WithLevel(glog.Debug),
		glog.WithName("blog-auth"),
		glog.WithAddSource(false),
		glog.WithRichErrorHandler(errors.ToSlogAttributes),
	)

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("unable to parse configuration: %v", err)
	}

	if err := cfg.Auth.Validate(); err != nil {
		log.Fatalf("invalid auth configuration: %v", err)
	}

	ctx := context.Background()

	db, err := sql.Open(sqliteshim.ShimName, cfg.DSN)
	if err != nil {
		log.Fatalf("unable to open database: %v", err)
	}

	persistence.RegisterModel((*auth.User)(nil))
	persistence.RegisterModel((*auth.RefreshSession)(nil))
	persistence.RegisterModel((*auth.Invite)(nil))

	client, err := persistence.New(persistenceConfig{dsn: cfg.DSN, debug: cfg.Debug}, db, sqlitedialect.New())
	if err != nil {
		log.Fatalf("unable to initialize persistence: %v", err)
	}
	client.SetLogger(lgr.GetLogger("persistence"))

	migrations, err := fs.Sub(auth.GetMigrationsFS(), "data/sql/migrations")
	if err != nil {
		log.Fatalf("unable to load migrations: %v", err)
	}
	client.RegisterDialectMigrations(
		migrations,
		persistence.WithDialectSourceLabel("data/sql/migrations"),
		persistence.WithValidationTargets("postgres", "sqlite"),
	)

	if err := client.Migrate(ctx); err != nil {
		log.Fatalf("unable to run migrations: %v", err)
	}

	repo := auth.NewRepositoryManager(client.DB())
	if err := repo.Validate(); err != nil {
		log.Fatalf("invalid repository manager: %v", err)
	}

	provider := auth.NewUserProvider(repo.Users()).
		WithLogger(lgr.GetLogger("auth:prv"))

	tokens := auth.NewTokenService(
		cfg.Auth.GetSigningKey(),
		cfg.Auth.AccessTokenExpiration,
		cfg.Auth.Issuer,
		jwt.ClaimStrings(cfg.Auth.Audience),
		lgr.GetLogger("auth:tokens"),
	)

	sessions := auth.NewSessionManager(repo, cfg.Auth.RefreshTTL(), lgr.GetLogger("auth:sessions"))

	authenticator := auth.NewAuthenticator(provider, sessions, tokens).
		WithLogger(lgr.GetLogger("auth:authn"))

	httpAuth, err := auth.NewHTTPAuthenticator(authenticator, &cfg.Auth)
	if err != nil {
		log.Fatalf("unable to initialize http authenticator: %v", err)
	}
	httpAuth.Logger = lgr.GetLogger("auth:http")

	srv := router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		return router.DefaultFiberOptions(fiber.New(fiber.Config{
			UnescapePath:  true,
			StrictRouting: false,
		}))
	})
	srv.Router().WithLogger(lgr.GetLogger("router"))

	srv.Router().Get("/healthz", func(ctx router.Context) error {
		return ctx.JSON(router.StatusOK, map[string]any{"status": "ok"})
	})

	controller := auth.NewAuthController(
		auth.WithControllerRepo(repo),
		auth.WithControllerAuther(httpAuth),
		auth.WithControllerNotifier(auth.StdoutNotifier{}),
		auth.WithControllerLogger(lgr.GetLogger("auth:ctrl")),
		auth.WithControllerDebug(cfg.Debug),
	)
	auth.RegisterAuthRoutes(srv.Router().Group("/"), controller)

	lgr.GetLogger("app").Info("server listening", "addr", cfg.Addr)

	srv.Serve(cfg.Addr)

	waitExitSignal()
}

func waitExitSignal() os.Signal {
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return <-ch
}
