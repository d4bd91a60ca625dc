package httpapi

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/matching"
	"github.com/abuFahad-vp/care-connect-backend/internal/notify"
)

// UserHandler 结对双方共用操作：查看对方、解除结对、提交反馈
type UserHandler struct {
	engine   *matching.Engine
	care     CareRecords
	users    Users
	feedback FeedbackStore
	fanout   *notify.Fanout
	auth     *Auth
	logger   *zap.Logger
}

func NewUserHandler(
	engine *matching.Engine,
	care CareRecords,
	users Users,
	feedback FeedbackStore,
	fanout *notify.Fanout,
	auth *Auth,
	logger *zap.Logger,
) *UserHandler {
	return &UserHandler{
		engine:   engine,
		care:     care,
		users:    users,
		feedback: feedback,
		fanout:   fanout,
		auth:     auth,
		logger:   logger,
	}
}

// partnerRecord 按调用方角色取结对档案
func (h *UserHandler) partnerRecord(r *http.Request, user *domain.User) (*domain.CareRecord, error) {
	if user.Role == domain.RoleElder {
		return h.care.GetByElder(r.Context(), user.Email)
	}
	return h.care.GetByVolunteer(r.Context(), user.Email)
}

// KnowYourPartner GET /user/know_your_partner
func (h *UserHandler) KnowYourPartner(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleElder, domain.RoleVolunteer)
	if user == nil {
		return
	}

	record, err := h.partnerRecord(r, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("no partner assigned"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	partnerEmail := record.ElderEmail
	if user.Role == domain.RoleElder {
		if record.VolunteerEmail == nil {
			writeJSON(w, http.StatusNotFound, Fail("no partner assigned"))
			return
		}
		partnerEmail = *record.VolunteerEmail
	}

	partner, err := h.users.GetByEmail(r.Context(), partnerEmail)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(partner.PublicProfile()))
}

// Unassign POST /user/unassign
// 双方任一方可发起；对未结对的档案幂等
func (h *UserHandler) Unassign(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleElder, domain.RoleVolunteer)
	if user == nil {
		return
	}

	record, err := h.partnerRecord(r, user)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusOK, Ok(map[string]string{"status": string(domain.CareNotAssigned)}))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	if err := h.engine.Unassign(r.Context(), record); err != nil {
		h.logger.Error("Failed to unassign",
			zap.String("elder", record.ElderEmail), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": string(domain.CareNotAssigned)}))
}

// Feedback POST /user/feedback
func (h *UserHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	user := h.auth.Require(w, r)
	if user == nil {
		return
	}

	var body struct {
		Subject string `json:"subject"`
		Body    string `json:"body"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil || body.Body == "" {
		writeJSON(w, http.StatusBadRequest, Fail("missing feedback body"))
		return
	}

	id, err := h.feedback.Create(r.Context(), user.Email, body.Subject, body.Body)
	if err != nil {
		h.logger.Error("Failed to store feedback", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	h.fanout.FeedbackReceived()

	writeJSON(w, http.StatusCreated, Ok(map[string]any{"id": id}))
}
