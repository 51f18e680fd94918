package repository

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/fileauth/internal/model"
)

const (
	redisRefreshKeyPrefix = "fileauth:rt:"
	redisScanCount        = 200
)

// redisRefreshRecord はRedisに保存する値の形式。
type redisRefreshRecord struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	IssuedAt  int64  `json:"issued_at"`
	ExpiresAt int64  `json:"expires_at"`
}

// RedisRefreshTokenRepo はRedisを使用したリフレッシュトークンリポジトリ。
// キーはトークン文字列のSHA-256で、値にはトークンを含む記録をJSONで保持する。
// キーにTTLは設定せず、期限切れ記録の削除はDeleteExpiredで行う。
type RedisRefreshTokenRepo struct {
	client *redis.Client
	prefix string
}

// NewRedisRefreshTokenRepo はRedisRefreshTokenRepoを生成する。
func NewRedisRefreshTokenRepo(client *redis.Client) *RedisRefreshTokenRepo {
	return &RedisRefreshTokenRepo{client: client, prefix: redisRefreshKeyPrefix}
}

func (r *RedisRefreshTokenRepo) key(token string) string {
	sum := sha256.Sum256([]byte(token))
	return r.prefix + hex.EncodeToString(sum[:])
}

// Insert はSETNXで記録を追加する。キーが既に存在する場合はErrDuplicateを返す。
func (r *RedisRefreshTokenRepo) Insert(ctx context.Context, token *model.RefreshToken) error {
	encoded, err := json.Marshal(redisRefreshRecord{
		Token:     token.Token,
		UserID:    token.UserID,
		IssuedAt:  token.IssuedAt.Unix(),
		ExpiresAt: token.ExpiresAt.Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode refresh token: %w", err)
	}

	ok, err := r.client.SetNX(ctx, r.key(token.Token), encoded, 0).Result()
	if err != nil {
		return fmt.Errorf("failed to insert refresh token: %w", err)
	}
	if !ok {
		return fmt.Errorf("failed to insert refresh token: %w", ErrDuplicate)
	}
	return nil
}

// FindByToken は記録を取得する。見つからない場合はnilを返す。
func (r *RedisRefreshTokenRepo) FindByToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	data, err := r.client.Get(ctx, r.key(token)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find refresh token: %w", err)
	}

	rec, err := decodeRedisRefreshRecord(data)
	if err != nil {
		return nil, err
	}
	// 保存値のトークンと一致しない記録は存在しないものとして扱う
	if rec.Token != token {
		return nil, nil
	}
	return rec.toModel(), nil
}

// DeleteByToken はDELの削除件数で判定する。0件の場合はErrNotFoundを返す。
func (r *RedisRefreshTokenRepo) DeleteByToken(ctx context.Context, token string) error {
	n, err := r.client.Del(ctx, r.key(token)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete refresh token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("refresh token: %w", ErrNotFound)
	}
	return nil
}

// DeleteExpired はSCANでキーを走査し、expires_atがbeforeより前の記録を削除する。
// 走査中に他のリクエストで削除されたキーは件数に含めない。
func (r *RedisRefreshTokenRepo) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	var (
		cursor  uint64
		deleted int64
		cutoff  = before.Unix()
	)

	for {
		keys, next, err := r.client.Scan(ctx, cursor, r.prefix+"*", redisScanCount).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to scan refresh tokens: %w", err)
		}

		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Bytes()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return deleted, fmt.Errorf("failed to read refresh token: %w", err)
			}
			rec, err := decodeRedisRefreshRecord(data)
			if err != nil {
				return deleted, err
			}
			if rec.ExpiresAt >= cutoff {
				continue
			}
			n, err := r.client.Del(ctx, key).Result()
			if err != nil {
				return deleted, fmt.Errorf("failed to delete expired refresh token: %w", err)
			}
			deleted += n
		}

		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func decodeRedisRefreshRecord(data []byte) (*redisRefreshRecord, error) {
	rec := &redisRefreshRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("failed to decode refresh token: %w", err)
	}
	return rec, nil
}

func (rec *redisRefreshRecord) toModel() *model.RefreshToken {
	return &model.RefreshToken{
		Token:     rec.Token,
		UserID:    rec.UserID,
		IssuedAt:  time.Unix(rec.IssuedAt, 0).UTC(),
		ExpiresAt: time.Unix(rec.ExpiresAt, 0).UTC(),
	}
}

// compile-time interface check
var _ RefreshTokenRepository = (*RedisRefreshTokenRepo)(nil)
