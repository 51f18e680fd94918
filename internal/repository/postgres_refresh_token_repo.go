package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/fileauth/internal/model"
)

// PostgresRefreshTokenRepo はPostgreSQLを使用したリフレッシュトークンリポジトリ。
type PostgresRefreshTokenRepo struct {
	db *sql.DB
}

// NewPostgresRefreshTokenRepo はPostgresRefreshTokenRepoを生成する。
func NewPostgresRefreshTokenRepo(db *sql.DB) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: db}
}

// Insert は記録を追加する。tokenは主キーのため、重複はErrDuplicateとなる。
func (r *PostgresRefreshTokenRepo) Insert(ctx context.Context, token *model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (token, user_id, issued_at, expires_at)
		 VALUES ($1, $2, $3, $4)`,
		token.Token, token.UserID, token.IssuedAt, token.ExpiresAt,
	)
	if err != nil {
		if isPQUniqueViolation(err) {
			return fmt.Errorf("failed to insert refresh token: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	return nil
}

// FindByToken はトークン文字列で記録を取得する。見つからない場合はnilを返す。
func (r *PostgresRefreshTokenRepo) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	rt := &model.RefreshToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT token, user_id, issued_at, expires_at FROM refresh_tokens WHERE token = $1`,
		token,
	).Scan(&rt.Token, &rt.UserID, &rt.IssuedAt, &rt.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	return rt, nil
}

// DeleteByToken は記録を削除する。
// 単一のDELETE文の影響行数で判定するため、同時ログアウトでも成功は1件のみとなる。
func (r *PostgresRefreshTokenRepo) DeleteByToken(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE token = $1`,
		token,
	)
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("refresh token: %w", ErrNotFound)
	}
	return nil
}

// DeleteExpired はexpires_atがbeforeより前の記録を削除する。
func (r *PostgresRefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM refresh_tokens WHERE expires_at < $1`,
		before,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
