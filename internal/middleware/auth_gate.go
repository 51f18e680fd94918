// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// userIDCaptureKey は外側のミドルウェアへユーザーIDを伝えるための格納先のキー。
var userIDCaptureKey = contextKey("user_id_capture")

// Authenticator はアクセストークンからユーザーIDを解決するインターフェース。
// auth.Serviceが実装する。
type Authenticator interface {
	Authenticate(ctx context.Context, bearerToken string) (string, error)
}

// NewAuthGate はAuthorizationヘッダーのBearerトークンを検証し、
// 認証済みユーザーIDをリクエストコンテキストに注入するミドルウェアを返す。
// トークンの欠落・期限切れ・不正は統一エラーフォーマットで応答し、後続のハンドラーを呼ばない。
func NewAuthGate(authenticator Authenticator) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := authenticator.Authenticate(r.Context(), BearerToken(r))
			if err != nil {
				WriteError(w, err)
				return
			}

			ctx := ContextWithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーがない場合やBearer形式でない場合は空文字を返す。
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(header[len(bearerPrefix):])
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// 認証ゲートを通過したリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	if dst, ok := ctx.Value(userIDCaptureKey).(*string); ok {
		*dst = userID
	}
	return context.WithValue(ctx, userIDContextKey, userID)
}

// withUserIDCapture は内側でContextWithUserIDが呼ばれた際にdstへ書き込むコンテキストを返す。
func withUserIDCapture(ctx context.Context, dst *string) context.Context {
	return context.WithValue(ctx, userIDCaptureKey, dst)
}
