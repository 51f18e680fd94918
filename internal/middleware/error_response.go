package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/fileauth/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// errorStatus はエラーコードとHTTPステータスの対応表。
var errorStatus = map[string]int{
	model.ErrCodeValidation:           http.StatusBadRequest,
	model.ErrCodeUserAlreadyExists:    http.StatusBadRequest,
	model.ErrCodeInvalidCredentials:   http.StatusUnauthorized,
	model.ErrCodeMissingRefreshToken:  http.StatusBadRequest,
	model.ErrCodeInvalidRefreshToken:  http.StatusForbidden,
	model.ErrCodeRefreshTokenNotFound: http.StatusNotFound,
	model.ErrCodeAccessTokenMissing:   http.StatusUnauthorized,
	model.ErrCodeAccessTokenExpired:   http.StatusUnauthorized,
	model.ErrCodeInvalidAccessToken:   http.StatusForbidden,
	model.ErrCodeRateLimitExceeded:    http.StatusTooManyRequests,
	model.ErrCodeInternal:             http.StatusInternalServerError,
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。
// 未知のコードは500とする。
func StatusForCode(code string) int {
	if status, ok := errorStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteError はerrorを統一エラーフォーマットで書き込む。
// *model.APIError以外のエラーは詳細をログに記録し、500の一般的なレスポンスを返す。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, StatusForCode(apiErr.Code), apiErr)
		return
	}

	slog.Error("unhandled error", slog.String("error", err.Error()))
	WriteInternalServerError(w)
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, model.NewInternalError())
}
