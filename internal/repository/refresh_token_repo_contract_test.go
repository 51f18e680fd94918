package repository

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/fileauth/internal/database"
	"github.com/hitoshi/fileauth/internal/model"
)

// refreshStoreFactory はテスト対象のリポジトリと、userIDのユーザーを用意する関数を返す。
type refreshStoreFactory func(t *testing.T) (RefreshTokenRepository, func(userID string))

func newSQLiteRefreshStore(t *testing.T) (RefreshTokenRepository, func(userID string)) {
	t.Helper()
	db, err := database.OpenSQLite(database.MemorySQLitePath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	users := NewSQLiteUserRepo(db)
	seed := func(userID string) {
		require.NoError(t, users.Create(context.Background(), &model.User{
			ID: userID, Email: userID + "@x.com", Phone: "tel-" + userID, Password: "h", CreatedAt: time.Now(),
		}))
	}
	return NewSQLiteRefreshTokenRepo(db), seed
}

func newRedisRefreshStore(t *testing.T) (RefreshTokenRepository, func(userID string)) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRefreshTokenRepo(client), func(string) {}
}

func refreshStoreFactories() map[string]refreshStoreFactory {
	return map[string]refreshStoreFactory{
		"sqlite": newSQLiteRefreshStore,
		"redis":  newRedisRefreshStore,
	}
}

func newRecord(token, userID string, issued time.Time, ttl time.Duration) *model.RefreshToken {
	return &model.RefreshToken{
		Token:     token,
		UserID:    userID,
		IssuedAt:  issued,
		ExpiresAt: issued.Add(ttl),
	}
}

func TestRefreshTokenRepo_InsertFindDelete(t *testing.T) {
	for name, factory := range refreshStoreFactories() {
		t.Run(name, func(t *testing.T) {
			repo, seed := factory(t)
			seed("u1")
			ctx := context.Background()
			issued := time.Unix(1_800_000_000, 0).UTC()

			require.NoError(t, repo.Insert(ctx, newRecord("tok-a", "u1", issued, time.Hour)))

			got, err := repo.FindByToken(ctx, "tok-a")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "tok-a", got.Token)
			assert.Equal(t, "u1", got.UserID)
			assert.True(t, got.IssuedAt.Equal(issued))
			assert.True(t, got.ExpiresAt.Equal(issued.Add(time.Hour)))

			require.NoError(t, repo.DeleteByToken(ctx, "tok-a"))

			got, err = repo.FindByToken(ctx, "tok-a")
			require.NoError(t, err)
			assert.Nil(t, got)

			assert.ErrorIs(t, repo.DeleteByToken(ctx, "tok-a"), ErrNotFound)
		})
	}
}

func TestRefreshTokenRepo_InsertDuplicateDoesNotOverwrite(t *testing.T) {
	for name, factory := range refreshStoreFactories() {
		t.Run(name, func(t *testing.T) {
			repo, seed := factory(t)
			seed("u1")
			seed("u2")
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, repo.Insert(ctx, newRecord("tok-a", "u1", now, time.Hour)))
			err := repo.Insert(ctx, newRecord("tok-a", "u2", now, time.Hour))
			assert.ErrorIs(t, err, ErrDuplicate)

			got, err := repo.FindByToken(ctx, "tok-a")
			require.NoError(t, err)
			require.NotNil(t, got)
			assert.Equal(t, "u1", got.UserID, "existing record must not be overwritten")
		})
	}
}

func TestRefreshTokenRepo_MultipleSessionsPerUser(t *testing.T) {
	for name, factory := range refreshStoreFactories() {
		t.Run(name, func(t *testing.T) {
			repo, seed := factory(t)
			seed("u1")
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, repo.Insert(ctx, newRecord("tok-phone", "u1", now, time.Hour)))
			require.NoError(t, repo.Insert(ctx, newRecord("tok-laptop", "u1", now, time.Hour)))

			require.NoError(t, repo.DeleteByToken(ctx, "tok-phone"))

			other, err := repo.FindByToken(ctx, "tok-laptop")
			require.NoError(t, err)
			assert.NotNil(t, other, "logging out one session must keep the others")
		})
	}
}

func TestRefreshTokenRepo_ExpiredRecordIsStillFound(t *testing.T) {
	for name, factory := range refreshStoreFactories() {
		t.Run(name, func(t *testing.T) {
			repo, seed := factory(t)
			seed("u1")
			ctx := context.Background()
			past := time.Now().Add(-48 * time.Hour)

			require.NoError(t, repo.Insert(ctx, newRecord("tok-old", "u1", past, time.Hour)))

			got, err := repo.FindByToken(ctx, "tok-old")
			require.NoError(t, err)
			assert.NotNil(t, got)

			assert.NoError(t, repo.DeleteByToken(ctx, "tok-old"))
		})
	}
}

func TestRefreshTokenRepo_DeleteExpired(t *testing.T) {
	for name, factory := range refreshStoreFactories() {
		t.Run(name, func(t *testing.T) {
			repo, seed := factory(t)
			seed("u1")
			ctx := context.Background()
			now := time.Now()

			require.NoError(t, repo.Insert(ctx, newRecord("tok-old", "u1", now.Add(-72*time.Hour), time.Hour)))
			require.NoError(t, repo.Insert(ctx, newRecord("tok-recent", "u1", now.Add(-2*time.Hour), time.Hour)))
			require.NoError(t, repo.Insert(ctx, newRecord("tok-live", "u1", now, time.Hour)))

			n, err := repo.DeleteExpired(ctx, now.Add(-24*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			for token, wantPresent := range map[string]bool{"tok-old": false, "tok-recent": true, "tok-live": true} {
				got, err := repo.FindByToken(ctx, token)
				require.NoError(t, err)
				assert.Equal(t, wantPresent, got != nil, token)
			}
		})
	}
}

func TestRefreshTokenRepo_ConcurrentDeleteSucceedsOnce(t *testing.T) {
	for name, factory := range refreshStoreFactories() {
		t.Run(name, func(t *testing.T) {
			repo, seed := factory(t)
			seed("u1")
			ctx := context.Background()

			require.NoError(t, repo.Insert(ctx, newRecord("tok-a", "u1", time.Now(), time.Hour)))

			const workers = 8
			var (
				wg        sync.WaitGroup
				successes atomic.Int32
				notFound  atomic.Int32
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := repo.DeleteByToken(ctx, "tok-a")
					switch {
					case err == nil:
						successes.Add(1)
					case errors.Is(err, ErrNotFound):
						notFound.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), successes.Load())
			assert.Equal(t, int32(workers-1), notFound.Load())
		})
	}
}

func TestRefreshTokenRepo_ConcurrentInsertSucceedsOnce(t *testing.T) {
	for name, factory := range refreshStoreFactories() {
		t.Run(name, func(t *testing.T) {
			repo, seed := factory(t)
			seed("u1")
			ctx := context.Background()
			now := time.Now()

			const workers = 8
			var (
				wg         sync.WaitGroup
				successes  atomic.Int32
				duplicates atomic.Int32
			)
			for i := 0; i < workers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					err := repo.Insert(ctx, newRecord("tok-a", "u1", now, time.Hour))
					switch {
					case err == nil:
						successes.Add(1)
					case errors.Is(err, ErrDuplicate):
						duplicates.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int32(1), successes.Load())
			assert.Equal(t, int32(workers-1), duplicates.Load())
		})
	}
}
