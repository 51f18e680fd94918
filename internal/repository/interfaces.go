// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/fileauth/internal/model"
)

var (
	// ErrDuplicate は一意制約に違反する挿入で返る。
	ErrDuplicate = errors.New("duplicate record")
	// ErrNotFound は削除対象のレコードが存在しない場合に返る。
	ErrNotFound = errors.New("record not found")
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。emailまたはphoneが既存の場合はErrDuplicateを返す。
	Create(ctx context.Context, user *model.User) error

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByIdentifier はemailまたはphoneが一致するユーザーを取得する。見つからない場合はnilを返す。
	FindByIdentifier(ctx context.Context, identifier string) (*model.User, error)

	// ExistsByEmailOrPhone はemailまたはphoneのいずれかが登録済みかを返す。
	ExistsByEmailOrPhone(ctx context.Context, email, phone string) (bool, error)

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するrefresh_tokensはCASCADE削除される。存在しない場合はErrNotFoundを返す。
	DeleteByID(ctx context.Context, id string) error
}

// RefreshTokenRepository はリフレッシュトークン記録の永続化インターフェース。
// トークン文字列を識別キーとし、1ユーザーにつき複数の記録を保持できる。
type RefreshTokenRepository interface {
	// Insert は記録を追加する。同一トークンが既に存在する場合はErrDuplicateを返し、上書きしない。
	Insert(ctx context.Context, token *model.RefreshToken) error

	// FindByToken はトークン文字列で記録を取得する。見つからない場合はnilを返す。
	// 有効期限切れの記録もそのまま返す。
	FindByToken(ctx context.Context, token string) (*model.RefreshToken, error)

	// DeleteByToken はトークン文字列に一致する記録を削除する。
	// 該当する記録がない場合はErrNotFoundを返す。同一トークンへの同時削除は1件のみ成功する。
	DeleteByToken(ctx context.Context, token string) error

	// DeleteExpired はexpires_atがbeforeより前の記録を削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}
