// Package cleanup は期限切れリフレッシュトークン記録の定期削除ジョブを提供する。
// 期限切れの記録が残っていてもリフレッシュは拒否されるため、削除はストレージの整理のみを目的とする。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ExpiredDeleter は期限切れ記録の削除を抽象化するインターフェース。
// repository.RefreshTokenRepositoryの部分集合として定義する。
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

// SweepRecorder は削除件数を集計するインターフェース。
type SweepRecorder interface {
	RecordRefreshTokensSwept(count int64)
}

// RefreshTokenSweeper は期限切れリフレッシュトークン記録の定期削除ジョブ。
// 冪等な削除処理を保証する。
type RefreshTokenSweeper struct {
	store    ExpiredDeleter
	recorder SweepRecorder
	logger   *slog.Logger
	now      func() time.Time

	Retention time.Duration // 期限切れ後の保持期間（デフォルト: 24時間）
}

// NewRefreshTokenSweeper は新しいRefreshTokenSweeperを生成する。
// recorderはnilでもよい。
func NewRefreshTokenSweeper(store ExpiredDeleter, recorder SweepRecorder, logger *slog.Logger) *RefreshTokenSweeper {
	return &RefreshTokenSweeper{
		store:     store,
		recorder:  recorder,
		logger:    logger,
		now:       time.Now,
		Retention: 24 * time.Hour,
	}
}

// RunOnce はexpires_atが現在時刻からRetentionを引いた時刻より古い記録を削除する。
// 削除対象がない場合でもエラーにならない。
func (s *RefreshTokenSweeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	cutoff := s.now().Add(-s.Retention)

	deleted, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("refresh token sweep failed",
			slog.String("error", err.Error()),
			slog.Time("cutoff", cutoff),
		)
		return 0, fmt.Errorf("failed to sweep expired refresh tokens: %w", err)
	}

	if s.recorder != nil {
		s.recorder.RecordRefreshTokensSwept(deleted)
	}

	s.logger.Info("refresh token sweep completed",
		slog.Int64("deleted_count", deleted),
		slog.Duration("retention", s.Retention),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return deleted, nil
}

// Start はintervalごとにRunOnceを実行する。起動直後に1回実行する。
// ctxがキャンセルされるまでブロックする。
func (s *RefreshTokenSweeper) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("refresh token sweeper started",
		slog.Duration("interval", interval),
		slog.Duration("retention", s.Retention),
	)

	// エラーはRunOnce内でログ出力済み
	s.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("refresh token sweeper stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
