package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/service"
)

// AuthHandler 注册 / 登录 / 会话查询
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

// Signup POST /signup
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var form service.SignupForm
	if err := readBodyJSON(r, 1<<20, &form); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid request body"))
		return
	}

	user, err := h.auth.Signup(r.Context(), form)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			writeJSON(w, http.StatusConflict, Fail(err.Error()))
			return
		}
		h.logger.Error("Signup failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusCreated, Ok(user.PublicProfile()))
}

// tokenResponse 登录响应体
type tokenResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	Profile     domain.Profile `json:"profile"`
}

// Token POST /token
// 兼容表单（username/password）与 JSON（email/password）两种登录载荷
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	email, password := loginCredentials(r)
	if email == "" || password == "" {
		writeJSON(w, http.StatusBadRequest, Fail("missing credentials"))
		return
	}

	token, user, err := h.auth.Login(r.Context(), email, password)
	if err != nil {
		if errors.Is(err, domain.ErrUnauthorized) {
			writeJSON(w, http.StatusUnauthorized, Fail("incorrect email or password"))
			return
		}
		h.logger.Error("Login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		Profile:     user.PublicProfile(),
	}))
}

func loginCredentials(r *http.Request) (email, password string) {
	contentType := r.Header.Get("Content-Type")
	if contentType == "application/x-www-form-urlencoded" || contentType == "" {
		if err := r.ParseForm(); err == nil {
			email = r.PostFormValue("username")
			password = r.PostFormValue("password")
		}
		if email != "" {
			return email, password
		}
	}
	var body struct {
		Email    string `json:"email"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = readBodyJSON(r, 1<<20, &body)
	email = body.Email
	if email == "" {
		email = body.Username
	}
	return email, body.Password
}

// Me GET /user/me
func (h *AuthHandler) Me(auth *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.Require(w, r)
		if user == nil {
			return
		}
		writeJSON(w, http.StatusOK, Ok(user.PublicProfile()))
	}
}

// MeType GET /user/me/type
func (h *AuthHandler) MeType(auth *Auth) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := auth.Require(w, r)
		if user == nil {
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]string{"user_type": string(user.Role)}))
	}
}
