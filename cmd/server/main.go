package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Aeroer-Live/Note.Lab/internal/activity"
	"github.com/Aeroer-Live/Note.Lab/internal/auth"
	"github.com/Aeroer-Live/Note.Lab/internal/config"
	"github.com/Aeroer-Live/Note.Lab/internal/database"
	"github.com/Aeroer-Live/Note.Lab/internal/handler"
	"github.com/Aeroer-Live/Note.Lab/internal/kv"
	"github.com/Aeroer-Live/Note.Lab/internal/logging"
	"github.com/Aeroer-Live/Note.Lab/internal/middleware"
	"github.com/Aeroer-Live/Note.Lab/internal/queue"
	"github.com/Aeroer-Live/Note.Lab/internal/ratelimit"
	"github.com/Aeroer-Live/Note.Lab/internal/repository"
	"github.com/Aeroer-Live/Note.Lab/internal/router"
	"github.com/Aeroer-Live/Note.Lab/internal/service"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.JWTSecretGenerated {
		logger.Warn("JWT_SECRET not set; using a random per-process secret, tokens will not survive a restart")
	}

	db, err := database.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		return err
	}

	rdb, err := config.NewRedisClient(cfg.Redis)
	if err != nil {
		if !cfg.IsDevelopment() {
			return err
		}
		logger.Warn("redis unavailable; using in-process reset store, response cache disabled", zap.Error(err))
	} else {
		defer rdb.Close()
	}

	var store kv.Store = kv.NewMemory()
	var cache *middleware.ResponseCache
	if rdb != nil {
		store = kv.NewRedisStore(rdb)
		cache = middleware.NewResponseCache(cfg.Cache, rdb, logger)
	}

	limiter, err := newLimiter(cfg, db, rdb)
	if err != nil {
		return err
	}

	hasher, err := auth.NewHasher(cfg.PasswordHasher, cfg.BcryptCost)
	if err != nil {
		return err
	}
	tokens, err := auth.NewTokenService(cfg.JWTSecret, cfg.TokenTTL)
	if err != nil {
		return err
	}

	users := repository.NewUserRepo(db)
	sessions := repository.NewSessionRepo(db)
	notes := repository.NewNoteRepo(db)
	categories := repository.NewCategoryRepo(db)
	rec := activity.NewRecorder(repository.NewActivityRepo(db), logger)
	mail := queue.NewPublisher(cfg.Mail.AMQPURL, cfg.Mail.Queue, logger)

	authSvc, err := service.NewAuthService(users, sessions, hasher, tokens, mail, rec, logger, cfg.SessionTTL)
	if err != nil {
		return err
	}
	resetSvc := service.NewPasswordResetService(users, sessions, store, hasher, mail, rec, logger, cfg.AppBaseURL, cfg.ResetTokenTTL)

	e := router.New(router.Handlers{
		Auth:       handler.NewAuthHandler(authSvc, resetSvc),
		Notes:      handler.NewNotesHandler(notes, rec, cache, logger),
		Categories: handler.NewCategoriesHandler(categories, notes, rec, cache, logger),
	}, router.Guard{
		Tokens:  tokens,
		Users:   users,
		Limiter: limiter,
		Limits:  cfg.RateLimit,
		Cache:   cache,
		Log:     logger,
	}, cfg.IsDevelopment())

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env),
			zap.String("rate_limit_backend", cfg.RateLimit.Backend), zap.Bool("cache", cache != nil))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}

// newLimiter picks the rate limit backend.  A nil limiter disables limiting.
func newLimiter(cfg config.Config, db *sql.DB, rdb *redis.Client) (ratelimit.Limiter, error) {
	if !cfg.RateLimit.Enabled {
		return nil, nil
	}
	switch cfg.RateLimit.Backend {
	case "redis":
		if rdb == nil {
			if !cfg.IsDevelopment() {
				return nil, errors.New("RATE_LIMIT_BACKEND=redis requires a reachable redis")
			}
			return ratelimit.NewMemory(), nil
		}
		return ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.Prefix), nil
	case "memory":
		return ratelimit.NewMemory(), nil
	}
	return ratelimit.NewMySQLLimiter(db), nil
}
