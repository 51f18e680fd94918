package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hitoshi/fileauth/internal/model"
)

// isSQLiteUniqueViolation はerrがSQLiteのUNIQUEまたはPRIMARY KEY制約違反かを判定する。
func isSQLiteUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	return false
}

// SQLiteUserRepo はSQLiteを使用したユーザーリポジトリ。
// 時刻はUNIX秒のINTEGERとして保存する。
type SQLiteUserRepo struct {
	db *sql.DB
}

// NewSQLiteUserRepo はSQLiteUserRepoを生成する。
func NewSQLiteUserRepo(db *sql.DB) *SQLiteUserRepo {
	return &SQLiteUserRepo{db: db}
}

// Create はユーザーを作成する。email・phoneの重複はErrDuplicateとなる。
func (r *SQLiteUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (id, email, phone, password_hash, created_at)
		VALUES (?1, ?2, ?3, ?4, ?5);`,
		user.ID, user.Email, user.Phone, user.Password, user.CreatedAt.Unix(),
	)
	if err != nil {
		if isSQLiteUniqueViolation(err) {
			return fmt.Errorf("failed to insert user: %w", ErrDuplicate)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLiteUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, phone, password_hash, created_at
		FROM users
		WHERE id = ?1;`,
		id,
	)
	user, err := scanSQLiteUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// FindByIdentifier はemailまたはphoneが一致するユーザーを取得する。見つからない場合はnilを返す。
func (r *SQLiteUserRepo) FindByIdentifier(ctx context.Context, identifier string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, email, phone, password_hash, created_at
		FROM users
		WHERE email = ?1 OR phone = ?1
		LIMIT 1;`,
		identifier,
	)
	user, err := scanSQLiteUser(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find user by identifier: %w", err)
	}
	return user, nil
}

// ExistsByEmailOrPhone はemailまたはphoneのいずれかが登録済みかを返す。
func (r *SQLiteUserRepo) ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM users WHERE email = ?1 OR phone = ?2);`,
		email, phone,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check user existence: %w", err)
	}
	return exists, nil
}

// DeleteByID は指定IDのユーザーを削除する。関連するrefresh_tokensはCASCADE削除される。
func (r *SQLiteUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = ?1;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return nil
}

func scanSQLiteUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var createdAt int64
	err := row.Scan(&user.ID, &user.Email, &user.Phone, &user.Password, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(createdAt, 0).UTC()
	return user, nil
}

// compile-time interface check
var _ UserRepository = (*SQLiteUserRepo)(nil)
