package httpapi

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

// Auth 鉴权中间件：Bearer token 解析为登录用户
// WebSocket 握手无法带自定义 Header，额外接受 ?token= 查询参数
type Auth struct {
	sessions Sessions
	logger   *zap.Logger
}

func NewAuth(sessions Sessions, logger *zap.Logger) *Auth {
	return &Auth{sessions: sessions, logger: logger}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// Require 鉴权失败直接响应 401 并返回 nil
func (a *Auth) Require(w http.ResponseWriter, r *http.Request) *domain.User {
	user, err := a.sessions.CurrentUser(r.Context(), bearerToken(r))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, Unauthorized("invalid or expired token"))
		return nil
	}
	return user
}

// RequireRole 鉴权并校验角色
func (a *Auth) RequireRole(w http.ResponseWriter, r *http.Request, roles ...domain.Role) *domain.User {
	user := a.Require(w, r)
	if user == nil {
		return nil
	}
	for _, role := range roles {
		if user.Role == role {
			return user
		}
	}
	writeJSON(w, http.StatusForbidden, Fail("operation not permitted for "+string(user.Role)))
	return nil
}
