// Package auth はトークンのライフサイクル管理（サインアップ、サインイン、リフレッシュ、ログアウト、リクエスト認証）を提供する。
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/fileauth/internal/metrics"
	"github.com/hitoshi/fileauth/internal/model"
	"github.com/hitoshi/fileauth/internal/password"
	"github.com/hitoshi/fileauth/internal/repository"
	"github.com/hitoshi/fileauth/internal/token"
)

// 操作名。メトリクスとログのラベルに使用する。
const (
	OpSignup       = "signup"
	OpSignin       = "signin"
	OpRefresh      = "refresh"
	OpLogout       = "logout"
	OpAuthenticate = "authenticate"
)

const outcomeSuccess = "success"

// PasswordHasher はパスワードのハッシュ化と照合のインターフェース。
type PasswordHasher interface {
	Hash(ctx context.Context, plain string) (string, error)
	Compare(ctx context.Context, hash, plain string) (bool, error)
	// CompareDummy は未登録ユーザーに対して照合と同等の処理を行う。
	CompareDummy(ctx context.Context, plain string) error
}

// TokenSigner はトークンの署名・検証のインターフェース。
type TokenSigner interface {
	Sign(userID string) (string, *token.Claims, error)
	Verify(tokenString string) (*token.Claims, error)
}

// SignupInput はサインアップの入力。
type SignupInput struct {
	Email    string
	Phone    string
	Password string
}

// AccessToken はリフレッシュで発行されたアクセストークン。
type AccessToken struct {
	Token     string
	ExpiresAt time.Time
}

// Service はトークンのライフサイクルに関するビジネスロジックを提供する。
// アクセストークンは自己完結型で、検証時にストアやユーザーを参照しない。
// リフレッシュトークンは署名検証とストア上の存在確認の両方を満たす場合のみ有効とする。
type Service struct {
	userRepo      repository.UserRepository
	refreshRepo   repository.RefreshTokenRepository
	hasher        PasswordHasher
	accessSigner  TokenSigner
	refreshSigner TokenSigner
	metrics       metrics.MetricsCollector
}

// NewService はServiceを生成する。collectorがnilの場合はメトリクスを記録しない。
func NewService(
	userRepo repository.UserRepository,
	refreshRepo repository.RefreshTokenRepository,
	hasher PasswordHasher,
	accessSigner TokenSigner,
	refreshSigner TokenSigner,
	collector metrics.MetricsCollector,
) *Service {
	if collector == nil {
		collector = metrics.NopCollector{}
	}
	return &Service{
		userRepo:      userRepo,
		refreshRepo:   refreshRepo,
		hasher:        hasher,
		accessSigner:  accessSigner,
		refreshSigner: refreshSigner,
		metrics:       collector,
	}
}

// Signup はユーザーを登録し、トークンペアを発行する。
// email・phoneのいずれかが登録済みの場合はUSER_ALREADY_EXISTSを返す。
func (s *Service) Signup(ctx context.Context, in SignupInput) (*model.TokenPair, error) {
	if in.Email == "" || in.Phone == "" || in.Password == "" {
		return nil, s.reject(OpSignup, model.NewValidationError("Fill all fields"))
	}
	if len(in.Password) > password.MaxPasswordBytes {
		return nil, s.reject(OpSignup, model.NewValidationError("Password must be at most 72 bytes"))
	}

	exists, err := s.userRepo.ExistsByEmailOrPhone(ctx, in.Email, in.Phone)
	if err != nil {
		return nil, s.internal(OpSignup, err)
	}
	if exists {
		return nil, s.reject(OpSignup, model.NewUserAlreadyExistsError())
	}

	hashed, err := s.hashPassword(ctx, in.Password)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) {
			return nil, s.reject(OpSignup, model.NewValidationError("Password must be at most 72 bytes"))
		}
		return nil, s.internal(OpSignup, err)
	}

	user := &model.User{
		ID:        uuid.NewString(),
		Email:     in.Email,
		Phone:     in.Phone,
		Password:  hashed,
		CreatedAt: time.Now(),
	}
	if err := s.userRepo.Create(ctx, user); err != nil {
		// 事前チェックと挿入の間に同じemail・phoneで登録された場合
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, s.reject(OpSignup, model.NewUserAlreadyExistsError())
		}
		return nil, s.internal(OpSignup, err)
	}

	// 失敗したサインアップはユーザー行を残さない
	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		if delErr := s.userRepo.DeleteByID(ctx, user.ID); delErr != nil {
			slog.Warn("failed to roll back user after signup failure",
				slog.String("user_id", user.ID),
				slog.String("error", delErr.Error()),
			)
		}
		return nil, s.internal(OpSignup, err)
	}

	slog.Info("user signed up", slog.String("user_id", user.ID))
	s.metrics.RecordAuthOperation(OpSignup, outcomeSuccess)
	return pair, nil
}

// Signin はemailまたはphoneとパスワードで認証し、新しいトークンペアを発行する。
// 既存のセッションは無効化しない。
// 未登録の識別子とパスワード不一致は同一のエラーを返す。
func (s *Service) Signin(ctx context.Context, identifier, password string) (*model.TokenPair, error) {
	if identifier == "" || password == "" {
		return nil, s.reject(OpSignin, model.NewValidationError("Fill all fields"))
	}

	user, err := s.userRepo.FindByIdentifier(ctx, identifier)
	if err != nil {
		return nil, s.internal(OpSignin, err)
	}

	if user == nil {
		if err := s.compareDummy(ctx, password); err != nil {
			return nil, s.internal(OpSignin, err)
		}
		return nil, s.reject(OpSignin, model.NewInvalidCredentialsError())
	}

	ok, err := s.comparePassword(ctx, user.Password, password)
	if err != nil {
		return nil, s.internal(OpSignin, err)
	}
	if !ok {
		return nil, s.reject(OpSignin, model.NewInvalidCredentialsError())
	}

	pair, err := s.issuePair(ctx, user.ID)
	if err != nil {
		return nil, s.internal(OpSignin, err)
	}

	slog.Info("user signed in", slog.String("user_id", user.ID))
	s.metrics.RecordAuthOperation(OpSignin, outcomeSuccess)
	return pair, nil
}

// Refresh はリフレッシュトークンを検証し、新しいアクセストークンを発行する。
// 検証は署名・有効期限、ストア上の存在と所有者の一致の順に行い、いずれの失敗も同一のエラーを返す。
// リフレッシュトークン自体はローテーションしない。
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*AccessToken, error) {
	if refreshToken == "" {
		return nil, s.reject(OpRefresh, model.NewMissingRefreshTokenError())
	}

	claims, err := s.refreshSigner.Verify(refreshToken)
	if err != nil {
		slog.Debug("refresh token rejected", slog.String("reason", err.Error()))
		return nil, s.reject(OpRefresh, model.NewInvalidRefreshTokenError())
	}

	record, err := s.refreshRepo.FindByToken(ctx, refreshToken)
	if err != nil {
		return nil, s.internal(OpRefresh, err)
	}
	if record == nil {
		slog.Debug("refresh token rejected", slog.String("reason", "not in store"), slog.String("user_id", claims.UserID))
		return nil, s.reject(OpRefresh, model.NewInvalidRefreshTokenError())
	}
	if record.UserID != claims.UserID {
		slog.Warn("refresh token owner mismatch", slog.String("user_id", claims.UserID))
		return nil, s.reject(OpRefresh, model.NewInvalidRefreshTokenError())
	}

	signed, accessClaims, err := s.accessSigner.Sign(claims.UserID)
	if err != nil {
		return nil, s.internal(OpRefresh, err)
	}

	s.metrics.RecordAuthOperation(OpRefresh, outcomeSuccess)
	return &AccessToken{Token: signed, ExpiresAt: accessClaims.ExpiresAt.Time}, nil
}

// Logout はリフレッシュトークンの記録を削除する。
// 該当する記録がない場合はREFRESH_TOKEN_NOT_FOUNDを返す。発行済みのアクセストークンは期限まで有効なまま残る。
func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return s.reject(OpLogout, model.NewMissingRefreshTokenError())
	}

	if err := s.refreshRepo.DeleteByToken(ctx, refreshToken); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.reject(OpLogout, model.NewRefreshTokenNotFoundError())
		}
		return s.internal(OpLogout, err)
	}

	slog.Info("refresh token revoked")
	s.metrics.RecordAuthOperation(OpLogout, outcomeSuccess)
	return nil
}

// Authenticate はアクセストークンを検証し、ユーザーIDを返す。
// ストアやユーザーの存在は確認しない。
func (s *Service) Authenticate(_ context.Context, bearerToken string) (string, error) {
	if bearerToken == "" {
		return "", s.reject(OpAuthenticate, model.NewAccessTokenMissingError())
	}

	claims, err := s.accessSigner.Verify(bearerToken)
	if err != nil {
		if errors.Is(err, token.ErrTokenExpired) {
			return "", s.reject(OpAuthenticate, model.NewAccessTokenExpiredError())
		}
		return "", s.reject(OpAuthenticate, model.NewInvalidAccessTokenError())
	}

	s.metrics.RecordAuthOperation(OpAuthenticate, outcomeSuccess)
	return claims.UserID, nil
}

// issuePair はアクセストークンとリフレッシュトークンを発行し、リフレッシュトークンを記録する。
func (s *Service) issuePair(ctx context.Context, userID string) (*model.TokenPair, error) {
	access, _, err := s.accessSigner.Sign(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh, claims, err := s.refreshSigner.Sign(userID)
	if err != nil {
		return nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	record := &model.RefreshToken{
		Token:     refresh,
		UserID:    userID,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}
	if err := s.refreshRepo.Insert(ctx, record); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("refresh token collision: %w", err)
		}
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &model.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) hashPassword(ctx context.Context, plain string) (string, error) {
	start := time.Now()
	defer func() { s.metrics.RecordPasswordHashLatency(time.Since(start)) }()
	return s.hasher.Hash(ctx, plain)
}

func (s *Service) comparePassword(ctx context.Context, hash, plain string) (bool, error) {
	start := time.Now()
	defer func() { s.metrics.RecordPasswordHashLatency(time.Since(start)) }()
	return s.hasher.Compare(ctx, hash, plain)
}

func (s *Service) compareDummy(ctx context.Context, plain string) error {
	start := time.Now()
	defer func() { s.metrics.RecordPasswordHashLatency(time.Since(start)) }()
	return s.hasher.CompareDummy(ctx, plain)
}

// reject はクライアント起因の失敗を記録してそのまま返す。
func (s *Service) reject(op string, apiErr *model.APIError) error {
	s.metrics.RecordAuthOperation(op, apiErr.Code)
	return apiErr
}

// internal はインフラ起因の失敗をログに記録し、詳細を含まない内部エラーを返す。
func (s *Service) internal(op string, err error) error {
	slog.Error("auth operation failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
	s.metrics.RecordAuthOperation(op, model.ErrCodeInternal)
	return model.NewInternalError()
}
