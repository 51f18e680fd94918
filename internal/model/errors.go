// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// クライアントに返す原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, system
	Action   string // クライアント向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation           = "VALIDATION_ERROR"
	ErrCodeUserAlreadyExists    = "USER_ALREADY_EXISTS"
	ErrCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	ErrCodeMissingRefreshToken  = "MISSING_REFRESH_TOKEN"
	ErrCodeInvalidRefreshToken  = "INVALID_REFRESH_TOKEN"
	ErrCodeRefreshTokenNotFound = "REFRESH_TOKEN_NOT_FOUND"
	ErrCodeAccessTokenMissing   = "ACCESS_TOKEN_MISSING"
	ErrCodeAccessTokenExpired   = "ACCESS_TOKEN_EXPIRED"
	ErrCodeInvalidAccessToken   = "INVALID_ACCESS_TOKEN"
	ErrCodeInternal             = "INTERNAL_ERROR"
)

// NewValidationError は必須項目の欠落や不正な入力に対するエラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "Check the request body and fill all required fields.",
	}
}

// NewUserAlreadyExistsError はemailまたはphoneが登録済みの場合のエラーを生成する。
func NewUserAlreadyExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUserAlreadyExists,
		Message:  "User already registered",
		Category: "validation",
		Action:   "Sign in with the existing account or use another email and phone.",
	}
}

// NewInvalidCredentialsError は認証情報が一致しない場合のエラーを生成する。
// 未登録の識別子とパスワード不一致で同一の内容を返す。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid id or password",
		Category: "auth",
		Action:   "Check your email or phone and password.",
	}
}

// NewMissingRefreshTokenError はリクエストにリフレッシュトークンがない場合のエラーを生成する。
func NewMissingRefreshTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeMissingRefreshToken,
		Message:  "Missing refresh token",
		Category: "validation",
		Action:   "Send the refresh token issued at sign in.",
	}
}

// NewInvalidRefreshTokenError はリフレッシュトークンが無効・期限切れ・失効済みの場合のエラーを生成する。
// 偽造と失効を区別しないため、原因によらず同一の内容を返す。
func NewInvalidRefreshTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRefreshToken,
		Message:  "Invalid or expired refresh token",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewRefreshTokenNotFoundError はログアウト対象のリフレッシュトークンが存在しない場合のエラーを生成する。
// ログアウト済みと未発行は区別しない。
func NewRefreshTokenNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRefreshTokenNotFound,
		Message:  "Missing or invalid refresh token",
		Category: "auth",
		Action:   "The session is already closed.",
	}
}

// NewAccessTokenMissingError はAuthorizationヘッダーにトークンがない場合のエラーを生成する。
func NewAccessTokenMissingError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessTokenMissing,
		Message:  "Access token missing",
		Category: "auth",
		Action:   "Send the access token as 'Authorization: Bearer <token>'.",
	}
}

// NewAccessTokenExpiredError はアクセストークンの有効期限切れエラーを生成する。
func NewAccessTokenExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAccessTokenExpired,
		Message:  "Access token expired",
		Category: "auth",
		Action:   "Request a new access token with the refresh token.",
	}
}

// NewInvalidAccessTokenError は署名不一致や形式不正のアクセストークンに対するエラーを生成する。
func NewInvalidAccessTokenError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidAccessToken,
		Message:  "Invalid token",
		Category: "auth",
		Action:   "Sign in again.",
	}
}

// NewInternalError は内部エラーを生成する。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Internal server error",
		Category: "system",
		Action:   "Please wait and try again later.",
	}
}

// ErrCodeRateLimitExceeded はレート制限超過のエラーコード。
const ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

// NewRateLimitError はレート制限超過時のエラーを生成する。
func NewRateLimitError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimitExceeded,
		Message:  "Too many requests. Please try again later.",
		Category: "system",
		Action:   "Please wait and retry after the specified time.",
	}
}
