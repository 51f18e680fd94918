// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/fileauth/internal/auth"
	"github.com/hitoshi/fileauth/internal/middleware"
	"github.com/hitoshi/fileauth/internal/model"
)

const (
	refreshTokenQueryParam = "refreshToken"
	refreshTokenHeader     = "X-Refresh-Token"

	// maxRequestBodyBytes は認証リクエストボディの上限。
	maxRequestBodyBytes = 1 << 16
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Signup(ctx context.Context, in auth.SignupInput) (*model.TokenPair, error)
	Signin(ctx context.Context, identifier, password string) (*model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*auth.AccessToken, error)
	Logout(ctx context.Context, refreshToken string) error
}

// compile-time interface check
var _ AuthServiceInterface = (*auth.Service)(nil)

type signupRequest struct {
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type signinRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type signupResponse struct {
	Message      string `json:"message"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type tokenPairResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type accessTokenResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// AuthHandler はトークンのライフサイクル関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface) *AuthHandler {
	return &AuthHandler{service: service}
}

// Signup はユーザーを登録し、トークンペアを返す。
// POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	pair, err := h.service.Signup(r.Context(), auth.SignupInput{
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, signupResponse{
		Message:      "User registered successfully",
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Signin はemailまたはphoneとパスワードで認証し、トークンペアを返す。
// POST /signin
func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	pair, err := h.service.Signin(r.Context(), req.ID, req.Password)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenPairResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Refresh はリフレッシュトークンから新しいアクセストークンを発行する。
// POST /signin/new_token
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	access, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, accessTokenResponse{
		AccessToken: access.Token,
		ExpiresAt:   access.ExpiresAt,
	})
}

// Logout はリフレッシュトークンを失効させる。
// GET /logout?refreshToken=xxx（またはX-Refresh-Tokenヘッダー）
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := r.URL.Query().Get(refreshTokenQueryParam)
	if refreshToken == "" {
		refreshToken = r.Header.Get(refreshTokenHeader)
	}

	if err := h.service.Logout(r.Context(), refreshToken); err != nil {
		middleware.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out successfully"})
}

// decodeJSONBody はリクエストボディをJSONとしてデコードする。
// 失敗した場合は400を書き込みfalseを返す。
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		middleware.WriteError(w, model.NewValidationError("Invalid request body"))
		return false
	}
	return true
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
