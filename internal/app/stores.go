package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/fileauth/internal/config"
	"github.com/hitoshi/fileauth/internal/database"
	"github.com/hitoshi/fileauth/internal/handler"
	"github.com/hitoshi/fileauth/internal/repository"
)

// stores は設定に応じて選択されたリポジトリと、その接続を保持する。
type stores struct {
	users    repository.UserRepository
	refresh  repository.RefreshTokenRepository
	checkers []handler.HealthChecker
	closers  []func() error
}

// redisPinger はredis.ClientをHealthCheckerとして扱うアダプタ。
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) PingContext(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// openStores はSTORE_DRIVERとREFRESH_STOREに従って接続を開き、リポジトリを構築する。
// 失敗した場合は途中までに開いた接続を閉じる。
func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	st.closers = append(st.closers, db.Close)
	st.checkers = append(st.checkers, db)

	switch cfg.StoreDriver {
	case config.StoreDriverSQLite:
		st.users = repository.NewSQLiteUserRepo(db)
		st.refresh = repository.NewSQLiteRefreshTokenRepo(db)
	default:
		st.users = repository.NewPostgresUserRepo(db)
		st.refresh = repository.NewPostgresRefreshTokenRepo(db)
	}

	if cfg.RefreshStore == config.RefreshStoreRedis {
		client, err := openRedis(ctx, cfg.RedisURL)
		if err != nil {
			st.Close()
			return nil, err
		}
		st.closers = append(st.closers, client.Close)
		st.checkers = append(st.checkers, redisPinger{client: client})
		st.refresh = repository.NewRedisRefreshTokenRepo(client)
	}

	slog.Info("stores initialized",
		slog.String("store_driver", cfg.StoreDriver),
		slog.String("refresh_store", cfg.RefreshStore),
	)
	return st, nil
}

func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	if cfg.StoreDriver == config.StoreDriverSQLite {
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		slog.Info("sqlite database opened", slog.String("path", cfg.SQLitePath))
		return db, nil
	}

	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)
	return db, nil
}

func openRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	slog.Info("redis connection established", slog.String("addr", opts.Addr))
	return client, nil
}

// Close は開いた接続を逆順に閉じる。
func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
