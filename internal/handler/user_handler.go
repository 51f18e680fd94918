package handler

import (
	"net/http"

	"github.com/hitoshi/fileauth/internal/middleware"
	"github.com/hitoshi/fileauth/internal/model"
)

type infoResponse struct {
	ID string `json:"id"`
}

type profileResponse struct {
	Message string      `json:"message"`
	User    profileUser `json:"user"`
}

type profileUser struct {
	UserID string `json:"userId"`
}

// UserHandler は認証済みユーザー向けのHTTPハンドラー。
// 認証ゲートの後段に配置し、ストアやユーザー記録は参照しない。
type UserHandler struct{}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler() *UserHandler {
	return &UserHandler{}
}

// Info は認証済みユーザーのIDを返す。
// GET /info
func (h *UserHandler) Info(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAccessTokenMissingError())
		return
	}

	writeJSON(w, http.StatusOK, infoResponse{ID: userID})
}

// Profile は認証済みであることとトークンの主体を返す。
// GET /profile
func (h *UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteError(w, model.NewAccessTokenMissingError())
		return
	}

	writeJSON(w, http.StatusOK, profileResponse{
		Message: "Authorized",
		User:    profileUser{UserID: userID},
	})
}
