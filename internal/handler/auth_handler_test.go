package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/fileauth/internal/auth"
	"github.com/hitoshi/fileauth/internal/middleware"
	"github.com/hitoshi/fileauth/internal/model"
)

// --- モック定義 ---

type mockAuthService struct {
	signupFn  func(ctx context.Context, in auth.SignupInput) (*model.TokenPair, error)
	signinFn  func(ctx context.Context, identifier, password string) (*model.TokenPair, error)
	refreshFn func(ctx context.Context, refreshToken string) (*auth.AccessToken, error)
	logoutFn  func(ctx context.Context, refreshToken string) error
}

func (m *mockAuthService) Signup(ctx context.Context, in auth.SignupInput) (*model.TokenPair, error) {
	if m.signupFn != nil {
		return m.signupFn(ctx, in)
	}
	return &model.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthService) Signin(ctx context.Context, identifier, password string) (*model.TokenPair, error) {
	if m.signinFn != nil {
		return m.signinFn(ctx, identifier, password)
	}
	return &model.TokenPair{AccessToken: "access", RefreshToken: "refresh"}, nil
}

func (m *mockAuthService) Refresh(ctx context.Context, refreshToken string) (*auth.AccessToken, error) {
	if m.refreshFn != nil {
		return m.refreshFn(ctx, refreshToken)
	}
	return &auth.AccessToken{Token: "access", ExpiresAt: time.Now().Add(10 * time.Minute)}, nil
}

func (m *mockAuthService) Logout(ctx context.Context, refreshToken string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, refreshToken)
	}
	return nil
}

// --- ヘルパー ---

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body
}

func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// --- Signup ---

func TestAuthHandler_Signup_Returns201WithTokens(t *testing.T) {
	var got auth.SignupInput
	svc := &mockAuthService{
		signupFn: func(ctx context.Context, in auth.SignupInput) (*model.TokenPair, error) {
			got = in
			return &model.TokenPair{AccessToken: "a-1", RefreshToken: "r-1"}, nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Signup(w, jsonRequest(http.MethodPost, "/signup", `{"email":"a@x.com","phone":"123","password":"p"}`))

	if w.Result().StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusCreated)
	}
	if got.Email != "a@x.com" || got.Phone != "123" || got.Password != "p" {
		t.Errorf("service received %+v", got)
	}

	var body signupResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.AccessToken != "a-1" || body.RefreshToken != "r-1" {
		t.Errorf("tokens = %+v", body)
	}
	if body.Message == "" {
		t.Error("message should not be empty")
	}
}

func TestAuthHandler_Signup_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", model.NewValidationError("Fill all fields"), http.StatusBadRequest, model.ErrCodeValidation},
		{"already exists", model.NewUserAlreadyExistsError(), http.StatusBadRequest, model.ErrCodeUserAlreadyExists},
		{"internal", model.NewInternalError(), http.StatusInternalServerError, model.ErrCodeInternal},
		{"raw error", errors.New("db down"), http.StatusInternalServerError, model.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				signupFn: func(ctx context.Context, in auth.SignupInput) (*model.TokenPair, error) {
					return nil, tt.err
				},
			}
			h := NewAuthHandler(svc)

			w := httptest.NewRecorder()
			h.Signup(w, jsonRequest(http.MethodPost, "/signup", `{"email":"a@x.com","phone":"123","password":"p"}`))

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
			if body := decodeErrorBody(t, w); body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestAuthHandler_MalformedJSON_Returns400(t *testing.T) {
	svc := &mockAuthService{
		signupFn: func(ctx context.Context, in auth.SignupInput) (*model.TokenPair, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
		signinFn: func(ctx context.Context, identifier, password string) (*model.TokenPair, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
		refreshFn: func(ctx context.Context, refreshToken string) (*auth.AccessToken, error) {
			t.Fatal("service should not be called")
			return nil, nil
		},
	}
	h := NewAuthHandler(svc)

	handlers := map[string]http.HandlerFunc{
		"/signup":           h.Signup,
		"/signin":           h.Signin,
		"/signin/new_token": h.Refresh,
	}
	for path, fn := range handlers {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			fn(w, jsonRequest(http.MethodPost, path, `{"email":`))

			if w.Result().StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
			}
			if body := decodeErrorBody(t, w); body.Code != model.ErrCodeValidation {
				t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
			}
		})
	}
}

func TestAuthHandler_OversizedBody_Returns400(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{})

	big := `{"id":"` + strings.Repeat("x", maxRequestBodyBytes) + `","password":"p"}`
	w := httptest.NewRecorder()
	h.Signin(w, jsonRequest(http.MethodPost, "/signin", big))

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

// --- Signin ---

func TestAuthHandler_Signin_Returns200WithTokens(t *testing.T) {
	var gotID, gotPassword string
	svc := &mockAuthService{
		signinFn: func(ctx context.Context, identifier, password string) (*model.TokenPair, error) {
			gotID, gotPassword = identifier, password
			return &model.TokenPair{AccessToken: "a-2", RefreshToken: "r-2"}, nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Signin(w, jsonRequest(http.MethodPost, "/signin", `{"id":"123","password":"p"}`))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotID != "123" || gotPassword != "p" {
		t.Errorf("service received id=%q password=%q", gotID, gotPassword)
	}

	var body tokenPairResponse
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.AccessToken != "a-2" || body.RefreshToken != "r-2" {
		t.Errorf("tokens = %+v", body)
	}
}

func TestAuthHandler_Signin_InvalidCredentials_Returns401(t *testing.T) {
	svc := &mockAuthService{
		signinFn: func(ctx context.Context, identifier, password string) (*model.TokenPair, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Signin(w, jsonRequest(http.MethodPost, "/signin", `{"id":"a@x.com","password":"wrong"}`))

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
	if body := decodeErrorBody(t, w); body.Message != "Invalid id or password" {
		t.Errorf("message = %q", body.Message)
	}
}

// --- Refresh ---

func TestAuthHandler_Refresh_ReturnsAccessToken(t *testing.T) {
	expiresAt := time.Date(2026, 1, 1, 0, 10, 0, 0, time.UTC)
	svc := &mockAuthService{
		refreshFn: func(ctx context.Context, refreshToken string) (*auth.AccessToken, error) {
			if refreshToken != "r-3" {
				t.Errorf("refreshToken = %q, want r-3", refreshToken)
			}
			return &auth.AccessToken{Token: "a-3", ExpiresAt: expiresAt}, nil
		},
	}
	h := NewAuthHandler(svc)

	w := httptest.NewRecorder()
	h.Refresh(w, jsonRequest(http.MethodPost, "/signin/new_token", `{"refreshToken":"r-3"}`))

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}

	var raw map[string]interface{}
	if err := json.NewDecoder(w.Result().Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["accessToken"] != "a-3" {
		t.Errorf("accessToken = %v, want a-3", raw["accessToken"])
	}
	if _, ok := raw["refreshToken"]; ok {
		t.Error("refresh response must not contain a refresh token")
	}
}

func TestAuthHandler_Refresh_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"missing", model.NewMissingRefreshTokenError(), http.StatusBadRequest},
		{"invalid", model.NewInvalidRefreshTokenError(), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				refreshFn: func(ctx context.Context, refreshToken string) (*auth.AccessToken, error) {
					return nil, tt.err
				},
			}
			h := NewAuthHandler(svc)

			w := httptest.NewRecorder()
			h.Refresh(w, jsonRequest(http.MethodPost, "/signin/new_token", `{}`))

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}

// --- Logout ---

func TestAuthHandler_Logout_ReadsTokenFromQueryThenHeader(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		header string
		want   string
	}{
		{"query", "/logout?refreshToken=from-query", "", "from-query"},
		{"header", "/logout", "from-header", "from-header"},
		{"query wins", "/logout?refreshToken=from-query", "from-header", "from-query"},
		{"none", "/logout", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			svc := &mockAuthService{
				logoutFn: func(ctx context.Context, refreshToken string) error {
					got = refreshToken
					return nil
				},
			}
			h := NewAuthHandler(svc)

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("X-Refresh-Token", tt.header)
			}
			w := httptest.NewRecorder()
			h.Logout(w, req)

			if got != tt.want {
				t.Errorf("service received %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAuthHandler_Logout_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"success", nil, http.StatusOK},
		{"missing", model.NewMissingRefreshTokenError(), http.StatusBadRequest},
		{"not found", model.NewRefreshTokenNotFoundError(), http.StatusNotFound},
		{"internal", model.NewInternalError(), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockAuthService{
				logoutFn: func(ctx context.Context, refreshToken string) error {
					return tt.err
				},
			}
			h := NewAuthHandler(svc)

			w := httptest.NewRecorder()
			h.Logout(w, httptest.NewRequest(http.MethodGet, "/logout?refreshToken=t", nil))

			if w.Result().StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Result().StatusCode, tt.wantStatus)
			}
		})
	}
}
