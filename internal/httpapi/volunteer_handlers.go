package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/ledger"
	"github.com/abuFahad-vp/care-connect-backend/internal/notify"
	"github.com/abuFahad-vp/care-connect-backend/internal/storage"
)

// checkInCreditAward 每次回访打卡的积分奖励
const checkInCreditAward = 50

// VolunteerHandler 志愿者侧操作：回访打卡、下载服务附件
type VolunteerHandler struct {
	care       CareRecords
	users      Users
	ledger     *ledger.Ledger
	files      *storage.FileStore
	fanout     *notify.Fanout
	auth       *Auth
	checkInGap time.Duration
	logger     *zap.Logger
}

func NewVolunteerHandler(
	care CareRecords,
	users Users,
	l *ledger.Ledger,
	files *storage.FileStore,
	fanout *notify.Fanout,
	auth *Auth,
	checkInGap time.Duration,
	logger *zap.Logger,
) *VolunteerHandler {
	return &VolunteerHandler{
		care:       care,
		users:      users,
		ledger:     l,
		files:      files,
		fanout:     fanout,
		auth:       auth,
		checkInGap: checkInGap,
		logger:     logger,
	}
}

// UpdateRecord POST /volunteer/update_record
// 回访打卡：更新档案、加积分、通知 elder；两次打卡间隔受限
func (h *VolunteerHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleVolunteer)
	if user == nil {
		return
	}

	var body struct {
		Data string `json:"data"`
	}
	if err := readBodyJSON(r, 1<<20, &body); err != nil || body.Data == "" {
		writeJSON(w, http.StatusBadRequest, Fail("missing check-in data"))
		return
	}

	record, err := h.care.GetByVolunteer(r.Context(), user.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusConflict, Fail("no elder assigned"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	now := time.Now()
	if record.LastCheckIn != nil && now.Sub(*record.LastCheckIn) < h.checkInGap {
		writeJSON(w, http.StatusTooManyRequests, Fail("check-in too soon"))
		return
	}

	if err := h.care.UpdateCheckIn(r.Context(), record.ElderEmail, body.Data, now); err != nil {
		h.logger.Error("Failed to update check-in",
			zap.String("elder", record.ElderEmail), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	if err := h.users.AddCredits(r.Context(), user.Email, checkInCreditAward); err != nil {
		h.logger.Warn("Failed to award credits",
			zap.String("volunteer", user.Email), zap.Error(err))
	}
	h.fanout.RecordUpdated(record.ElderEmail)

	h.logger.Info("Check-in recorded",
		zap.String("volunteer", user.Email),
		zap.String("elder", record.ElderEmail),
	)
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"elder_email":   record.ElderEmail,
		"last_check_in": now.Format(time.RFC3339),
		"credits_added": checkInCreditAward,
	}))
}

// GetDocument GET /volunteer/get_documents/{service_id}/{document}
// 仅在请求仍活跃（pending/accepted）且该志愿者被通知过时可下载
func (h *VolunteerHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleVolunteer)
	if user == nil {
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/volunteer/get_documents/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeJSON(w, http.StatusBadRequest, Fail("invalid document path"))
		return
	}
	serviceID, document := parts[0], parts[1]

	req, ok := h.ledger.Get(serviceID)
	if !ok {
		writeJSON(w, http.StatusNotFound, Fail("service request not found"))
		return
	}
	if !req.Notified(user.Email) {
		writeJSON(w, http.StatusForbidden, Fail("not a candidate for this request"))
		return
	}
	if req.Status == domain.ServiceAccepted && req.VolunteerEmail != user.Email {
		writeJSON(w, http.StatusForbidden, Fail("request assigned to another volunteer"))
		return
	}

	path, err := h.files.Path(serviceID, document)
	if err != nil {
		writeJSON(w, http.StatusNotFound, Fail("document not found"))
		return
	}
	http.ServeFile(w, r, path)
}
