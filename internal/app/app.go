package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/hitoshi/fileauth/internal/auth"
	"github.com/hitoshi/fileauth/internal/config"
	"github.com/hitoshi/fileauth/internal/database"
	"github.com/hitoshi/fileauth/internal/handler"
	"github.com/hitoshi/fileauth/internal/logger"
	"github.com/hitoshi/fileauth/internal/metrics"
	"github.com/hitoshi/fileauth/internal/middleware"
	"github.com/hitoshi/fileauth/internal/password"
	"github.com/hitoshi/fileauth/internal/token"
	"github.com/hitoshi/fileauth/internal/worker/cleanup"
)

const defaultServerPort = "5000"

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd, err := ParseCommand(args)
	if err != nil {
		return err
	}

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = defaultServerPort
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("store_driver", cfg.StoreDriver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// server はAPIサーバーの構成要素をまとめる。
type server struct {
	handler     http.Handler
	rateLimiter *middleware.RateLimiter
	collector   *metrics.Collector
}

// newServer はストアを受け取り、認証サービスとルーターをワイヤリングする。
func newServer(cfg *config.Config, st *stores) (*server, error) {
	accessSigner, err := token.NewSigner(token.SignerConfig{
		Secret: []byte(cfg.AccessTokenSecret),
		TTL:    cfg.AccessTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create access token signer: %w", err)
	}
	refreshSigner, err := token.NewSigner(token.SignerConfig{
		Secret: []byte(cfg.RefreshTokenSecret),
		TTL:    cfg.RefreshTokenTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh token signer: %w", err)
	}

	hasher, err := password.NewHasher(cfg.BcryptCost, cfg.PasswordHashConcurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create password hasher: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	service := auth.NewService(st.users, st.refresh, hasher, accessSigner, refreshSigner, collector)

	// configのレート制限はreq/min単位なのでreq/secに変換する
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
	rlCfg.AuthBurst = cfg.RateLimitAuth
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiter := middleware.NewRateLimiter(rlCfg)

	router := handler.NewRouter(&handler.RouterDeps{
		Authenticator:     service,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		StatusRecorder:    collector,
		AuthService:       service,
		HealthCheckers:    st.checkers,
		MetricsHandler:    metrics.Handler(registry),
	})

	return &server{
		handler:     router,
		rateLimiter: rateLimiter,
		collector:   collector,
	}, nil
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
// SQLiteストアは単一プロセスで扱うため、期限切れトークンの削除もこのプロセスで実行する。
func runServe(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	srv, err := newServer(cfg, st)
	if err != nil {
		return err
	}
	defer srv.rateLimiter.Stop()

	if cfg.StoreDriver == config.StoreDriverSQLite {
		sweeper := cleanup.NewRefreshTokenSweeper(st.refresh, srv.collector, slog.Default())
		sweeper.Retention = cfg.RefreshSweepRetention
		go sweeper.Start(ctx, cfg.RefreshSweepInterval)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server starting", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// リフレッシュトークンストアを開き、期限切れ記録の定期削除をctxがキャンセルされるまで実行する。
func runWorker(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sweeper := cleanup.NewRefreshTokenSweeper(st.refresh, nil, slog.Default())
	sweeper.Retention = cfg.RefreshSweepRetention

	slog.Info("worker starting",
		slog.Duration("sweep_interval", cfg.RefreshSweepInterval),
		slog.Duration("sweep_retention", cfg.RefreshSweepRetention),
		slog.String("refresh_store", cfg.RefreshStore),
	)

	// メインgoroutineで実行（ブロッキング）
	sweeper.Start(ctx, cfg.RefreshSweepInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
// SQLiteは接続時にスキーマを作成するため、スキーマの作成のみ行う。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreDriver == config.StoreDriverSQLite {
		db, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("sqlite schema is up to date", slog.String("path", cfg.SQLitePath))
		return db.Close()
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	endpoint := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(endpoint)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
