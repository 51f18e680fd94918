// Package password はbcryptによるパスワードハッシュ化と照合を提供する。
package password

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// dummyPlain は未登録ユーザーへの照合で使用する固定値。
const dummyPlain = "fileauth-dummy-password"

// MaxPasswordBytes はbcryptが受け付ける平文の最大バイト数。
const MaxPasswordBytes = 72

// ErrPasswordTooLong は平文がMaxPasswordBytesを超える場合にHashが返す。
var ErrPasswordTooLong = errors.New("password exceeds 72 bytes")

// Hasher はbcryptのハッシュ化・照合を同時実行数の上限付きで行う。
// bcryptはCPUを占有するため、上限を超えたリクエストはスロットが空くかコンテキストが終了するまで待機する。
type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
	dummyErr  error
}

// NewHasher はHasherを生成する。
// costがbcryptの許容範囲外の場合はエラーを返す。concurrencyが0以下の場合はCPU数を使用する。
func NewHasher(cost, concurrency int) (*Hasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost out of range: %d", cost)
	}
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(concurrency)),
	}, nil
}

// Hash は平文パスワードのbcryptハッシュを返す。
// MaxPasswordBytesを超える平文はErrPasswordTooLongとなる。
func (h *Hasher) Hash(ctx context.Context, plain string) (string, error) {
	if len(plain) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("failed to acquire hasher slot: %w", err)
	}
	defer h.sem.Release(1)

	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashed), nil
}

// Compare はハッシュと平文が一致するかを返す。
// 不一致はエラーではなく false を返す。ハッシュ形式の不正などはエラーとなる。
func (h *Hasher) Compare(ctx context.Context, hash, plain string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, fmt.Errorf("failed to acquire hasher slot: %w", err)
	}
	defer h.sem.Release(1)

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("failed to compare password: %w", err)
}

// CompareDummy は固定ハッシュに対して照合を行い、結果を捨てる。
// 未登録の識別子でも登録済みユーザーと同じ処理時間をかけるために使用する。
func (h *Hasher) CompareDummy(ctx context.Context, plain string) error {
	h.dummyOnce.Do(func() {
		h.dummyHash, h.dummyErr = bcrypt.GenerateFromPassword([]byte(dummyPlain), h.cost)
	})
	if h.dummyErr != nil {
		return fmt.Errorf("failed to prepare dummy hash: %w", h.dummyErr)
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("failed to acquire hasher slot: %w", err)
	}
	defer h.sem.Release(1)

	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plain))
	return nil
}
