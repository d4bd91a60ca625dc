package httpapi

import (
	"net/http"

	"go.uber.org/zap"
)

// Router 使用标准库 http.ServeMux（避免引入第三方路由依赖）
type Router struct {
	mux    *http.ServeMux
	logger *zap.Logger
}

func NewRouter(logger *zap.Logger) *Router {
	return &Router{
		mux:    http.NewServeMux(),
		logger: logger,
	}
}

func (r *Router) Handle(pattern string, h http.HandlerFunc) {
	r.mux.HandleFunc(pattern, h)
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func methodOnly(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if req.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	}
}

// RegisterAuthRoutes 注册 / 登录 / 会话
func (r *Router) RegisterAuthRoutes(h *AuthHandler, auth *Auth) {
	r.Handle("/signup", methodOnly(http.MethodPost, h.Signup))
	r.Handle("/token", methodOnly(http.MethodPost, h.Token))
	r.Handle("/user/me", methodOnly(http.MethodGet, h.Me(auth)))
	r.Handle("/user/me/type", methodOnly(http.MethodGet, h.MeType(auth)))
}

// RegisterWSRoutes WebSocket 接入
func (r *Router) RegisterWSRoutes(h *WSHandler) {
	r.Handle("/ws", h.ServeHTTP)
}

// RegisterElderRoutes elder 侧
func (r *Router) RegisterElderRoutes(h *ElderHandler) {
	r.Handle("/elder/new_volunteer_request", methodOnly(http.MethodPost, h.NewVolunteerRequest))
	r.Handle("/elder/find_assign_volunteer/", methodOnly(http.MethodGet, h.FindAssignVolunteer))
	r.Handle("/elder/new_service_request/", methodOnly(http.MethodPost, h.NewServiceRequest))
	r.Handle("/elder/record", methodOnly(http.MethodGet, h.Record))
}

// RegisterVolunteerRoutes 志愿者侧
func (r *Router) RegisterVolunteerRoutes(h *VolunteerHandler) {
	r.Handle("/volunteer/update_record", methodOnly(http.MethodPost, h.UpdateRecord))
	r.Handle("/volunteer/get_documents/", methodOnly(http.MethodGet, h.GetDocument))
}

// RegisterUserRoutes 结对双方共用
func (r *Router) RegisterUserRoutes(h *UserHandler) {
	r.Handle("/user/know_your_partner", methodOnly(http.MethodGet, h.KnowYourPartner))
	r.Handle("/user/unassign", methodOnly(http.MethodPost, h.Unassign))
	r.Handle("/user/feedback", methodOnly(http.MethodPost, h.Feedback))
}

// RegisterAdminRoutes 协调员管理台
func (r *Router) RegisterAdminRoutes(h *AdminHandler) {
	r.Handle("/admin/users", h.Users)
	r.Handle("/admin/users/", h.Users)
	r.Handle("/admin/records", methodOnly(http.MethodGet, h.Records))
	r.Handle("/admin/feedback", h.Feedback)
	r.Handle("/admin/feedback/", h.Feedback)
}
