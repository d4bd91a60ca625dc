package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/matching"
	"github.com/abuFahad-vp/care-connect-backend/internal/storage"
)

// ElderHandler elder 侧操作：发起结对搜索、发起服务请求、查档案
type ElderHandler struct {
	engine    *matching.Engine
	care      CareRecords
	users     Users
	files     *storage.FileStore
	auth      *Auth
	maxUpload int64
	logger    *zap.Logger
}

func NewElderHandler(
	engine *matching.Engine,
	care CareRecords,
	users Users,
	files *storage.FileStore,
	auth *Auth,
	maxUpload int64,
	logger *zap.Logger,
) *ElderHandler {
	return &ElderHandler{
		engine:    engine,
		care:      care,
		users:     users,
		files:     files,
		auth:      auth,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// NewVolunteerRequest POST /elder/new_volunteer_request
// not_assigned → searching_a_volunteer；重复调用幂等
func (h *ElderHandler) NewVolunteerRequest(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleElder)
	if user == nil {
		return
	}

	ok, err := h.care.BeginSearch(r.Context(), user.Email)
	if err != nil {
		h.logger.Error("Failed to begin search", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	if !ok {
		record, err := h.care.GetByElder(r.Context(), user.Email)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
			return
		}
		if record.Status == domain.CareAssigned {
			writeJSON(w, http.StatusConflict, Fail("volunteer already assigned"))
			return
		}
		// 已在搜索中：当作成功
	}
	writeJSON(w, http.StatusOK, Ok(map[string]string{"status": string(domain.CareSearching)}))
}

// FindAssignVolunteer GET /elder/find_assign_volunteer/{timeout}
// 长轮询：阻塞到指派完成、整体超时或搜索被取消
func (h *ElderHandler) FindAssignVolunteer(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleElder)
	if user == nil {
		return
	}

	seconds := parseInt(strings.TrimPrefix(r.URL.Path, "/elder/find_assign_volunteer/"), 0)
	if seconds <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("invalid timeout"))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(seconds)*time.Second)
	defer cancel()

	err := h.engine.FindAndAssign(ctx, user)
	switch {
	case err == nil:
		// 指派完成：带上对方档案
	case errors.Is(err, domain.ErrTimeout):
		writeJSON(w, http.StatusOK, Fail("no volunteer found"))
		return
	case matching.IsCancelled(err):
		writeJSON(w, http.StatusConflict, Fail("search cancelled"))
		return
	default:
		h.logger.Error("Volunteer search failed",
			zap.String("elder", user.Email), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	record, err := h.care.GetByElder(r.Context(), user.Email)
	if err != nil || record.VolunteerEmail == nil {
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	volunteer, err := h.users.GetByEmail(r.Context(), *record.VolunteerEmail)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(volunteer.PublicProfile()))
}

// NewServiceRequest POST /elder/new_service_request/{deadline}
// multipart 表单；deadline 为秒数；附件字段名 documents（可多个）
func (h *ElderHandler) NewServiceRequest(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleElder)
	if user == nil {
		return
	}

	seconds := parseInt(strings.TrimPrefix(r.URL.Path, "/elder/new_service_request/"), 0)
	if seconds <= 0 {
		writeJSON(w, http.StatusBadRequest, Fail("invalid deadline"))
		return
	}

	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeJSON(w, http.StatusBadRequest, Fail("invalid multipart form"))
		return
	}

	form := domain.ServiceForm{
		Description:    r.FormValue("description"),
		Locations:      r.FormValue("locations"),
		TimePeriodFrom: r.FormValue("time_period_from"),
		TimePeriodTo:   r.FormValue("time_period_to"),
		ContactNumber:  r.FormValue("contact_number"),
	}
	if form.ContactNumber == "" {
		form.ContactNumber = user.ContactNumber
	}

	type upload struct {
		name string
		data []byte
	}
	var uploads []upload
	if r.MultipartForm != nil {
		for _, fh := range r.MultipartForm.File["documents"] {
			if fh.Size > h.maxUpload {
				writeJSON(w, http.StatusRequestEntityTooLarge, Fail("attachment too large: "+fh.Filename))
				return
			}
			f, err := fh.Open()
			if err != nil {
				writeJSON(w, http.StatusBadRequest, Fail("unreadable attachment: "+fh.Filename))
				return
			}
			data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
			f.Close()
			if err != nil || int64(len(data)) > h.maxUpload {
				writeJSON(w, http.StatusRequestEntityTooLarge, Fail("attachment too large: "+fh.Filename))
				return
			}
			uploads = append(uploads, upload{name: fh.Filename, data: data})
			form.Documents = append(form.Documents, fh.Filename)
		}
	}
	form.HasDocuments = len(uploads) > 0

	deadline := time.Now().Add(time.Duration(seconds) * time.Second)
	req, err := h.engine.CreateServiceRequest(r.Context(), user, form, deadline)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			writeJSON(w, http.StatusConflict, Fail(err.Error()))
			return
		}
		h.logger.Error("Failed to create service request",
			zap.String("elder", user.Email), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}

	for _, up := range uploads {
		if err := h.files.Save(req.ID, up.name, up.data); err != nil {
			h.logger.Error("Failed to store attachment",
				zap.String("service_id", req.ID),
				zap.String("file", up.name),
				zap.Error(err),
			)
		}
	}

	writeJSON(w, http.StatusCreated, Ok(map[string]any{
		"service_id":          req.ID,
		"status":              string(req.Status),
		"timeout":             req.Deadline.Format(time.RFC3339),
		"notified_volunteers": len(req.NotifiedVolunteers),
	}))
}

// Record GET /elder/record
func (h *ElderHandler) Record(w http.ResponseWriter, r *http.Request) {
	user := h.auth.RequireRole(w, r, domain.RoleElder)
	if user == nil {
		return
	}
	record, err := h.care.GetByElder(r.Context(), user.Email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, Fail("care record not found"))
			return
		}
		writeJSON(w, http.StatusInternalServerError, Fail("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, Ok(careRecordView(record)))
}

// careRecordView care_records 行的响应视图
func careRecordView(rec *domain.CareRecord) map[string]any {
	view := map[string]any{
		"id":          rec.ID,
		"elder_email": rec.ElderEmail,
		"status":      string(rec.Status),
	}
	if rec.VolunteerEmail != nil {
		view["volunteer_email"] = *rec.VolunteerEmail
	}
	if rec.ActiveServiceID != nil {
		view["active_service_id"] = *rec.ActiveServiceID
	}
	if rec.LastCheckIn != nil {
		view["last_check_in"] = rec.LastCheckIn.Format(time.RFC3339)
	}
	if rec.CheckInData != nil {
		view["check_in_data"] = *rec.CheckInData
	}
	return view
}
