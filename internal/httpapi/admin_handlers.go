package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/notify"
)

// AdminHandler 协调员管理台：用户、档案、反馈
type AdminHandler struct {
	users    Users
	care     CareRecords
	feedback FeedbackStore
	fanout   *notify.Fanout
	auth     *Auth
	logger   *zap.Logger
}

func NewAdminHandler(
	users Users,
	care CareRecords,
	feedback FeedbackStore,
	fanout *notify.Fanout,
	auth *Auth,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{
		users:    users,
		care:     care,
		feedback: feedback,
		fanout:   fanout,
		auth:     auth,
		logger:   logger,
	}
}

// Users GET /admin/users 与 /admin/users/{email} 的 GET/DELETE 分发
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleCoordinator)
	if user == nil {
		return
	}

	email := strings.TrimPrefix(r.URL.Path, "/admin/users")
	email = strings.TrimPrefix(email, "/")

	switch {
	case email == "" && r.Method == http.MethodGet:
		h.listUsers(w, r)
	case email != "" && r.Method == http.MethodGet:
		h.getUser(w, r, email)
	case email != "" && r.Method == http.MethodDelete:
		h.deleteUser(w, r, email)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *AdminHandler) listUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to list users", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	profiles := make([]domain.Profile, 0, len(users))
	for i := range users {
		profiles = append(profiles, users[i].PublicProfile())
	}
	writeJSON(w, http.StatusOK, Ok(profiles))
}

func (h *AdminHandler) getUser(w http.ResponseWriter, r *http.Request, email string) {
	u, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("user not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(u.PublicProfile()))
}

// deleteUser 删号；结对关系先行复位并通知对方
func (h *AdminHandler) deleteUser(w http.ResponseWriter, r *http.Request, email string) {
	u, err := h.users.GetByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("user not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	switch u.Role {
	case domain.RoleVolunteer:
		elders, err := h.care.ResetByVolunteer(r.Context(), email)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
			return
		}
		for _, elder := range elders {
			h.fanout.Unassigned(elder, "")
		}
	case domain.RoleElder:
		if record, err := h.care.GetByElder(r.Context(), email); err == nil && record.VolunteerEmail != nil {
			h.fanout.Unassigned(email, *record.VolunteerEmail)
		}
	}

	if err := h.users.Delete(r.Context(), email); err != nil {
		h.logger.Error("Failed to delete user",
			zap.String("email", email), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	h.logger.Info("User deleted",
		zap.String("email", email),
		zap.String("user_type", string(u.Role)),
	)
	writeJSON(w, http.StatusOK, Ok(map[string]string{"deleted": email}))
}

// Records GET /admin/records
func (h *AdminHandler) Records(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleCoordinator)
	if user == nil {
		return
	}
	records, err := h.care.ListAll(r.Context())
	if err != nil {
		h.logger.Error("Failed to list care records", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	views := make([]map[string]any, 0, len(records))
	for i := range records {
		views = append(views, careRecordView(&records[i]))
	}
	writeJSON(w, http.StatusOK, Ok(views))
}

// Feedback GET /admin/feedback 与 POST /admin/feedback/{id}/review 分发
func (h *AdminHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleCoordinator)
	if user == nil {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/admin/feedback")
	rest = strings.TrimPrefix(rest, "/")

	if rest == "" && r.Method == http.MethodGet {
		items, err := h.feedback.ListAll(r.Context())
		if err != nil {
			h.logger.Error("Failed to list feedback", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
			return
		}
		writeJSON(w, http.StatusOK, Ok(items))
		return
	}

	if idStr, found := strings.CutSuffix(rest, "/review"); found && r.Method == http.MethodPost {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Fail("invalid feedback id"))
			return
		}
		ok, err := h.feedback.MarkReviewed(r.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
			return
		}
		if !ok {
			writeJSON(w, http.StatusNotFound, Fail("feedback not found"))
			return
		}
		writeJSON(w, http.StatusOK, Ok(map[string]any{"reviewed": id}))
		return
	}

	w.WriteHeader(http.StatusMethodNotAllowed)
}
