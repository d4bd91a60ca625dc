// Package ledger 维护活动服务请求的内存台账
//
// 台账是刻意的进程内易失状态（可重建，不持久化）；Transition 的
// compare-and-swap 是“谁赢得指派”的唯一串行化点。
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

// Ledger 活动服务请求表，key 为生成的 service id
type Ledger struct {
	mu       sync.Mutex
	requests map[string]*domain.ServiceRequest
	byElder  map[string]string // elder email → active service id
	logger   *zap.Logger
}

// NewLedger 创建台账
func NewLedger(logger *zap.Logger) *Ledger {
	return &Ledger{
		requests: make(map[string]*domain.ServiceRequest),
		byElder:  make(map[string]string),
		logger:   logger,
	}
}

// Create 登记新服务请求
// 同一 elder 存在非终态请求时返回 ErrConflict（台账内的快速路径；
// CareRecord 侧的状态校验由调用方在此之前完成）
func (l *Ledger) Create(elder domain.Profile, form domain.ServiceForm, deadline time.Time) (domain.ServiceRequest, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if activeID, ok := l.byElder[elder.Email]; ok {
		if req, ok := l.requests[activeID]; ok && !req.Status.Terminal() {
			return domain.ServiceRequest{}, domain.WrapErr("active service request exists", domain.ErrConflict)
		}
	}

	id := uuid.New().String()
	form.ServiceID = id
	req := &domain.ServiceRequest{
		ID:           id,
		ElderEmail:   elder.Email,
		ElderProfile: elder,
		Status:       domain.ServicePending,
		CreatedAt:    time.Now(),
		Deadline:     deadline,
		Form:         form,
	}
	l.requests[id] = req
	l.byElder[elder.Email] = id

	l.logger.Info("Service request registered",
		zap.String("service_id", id),
		zap.String("elder", elder.Email),
		zap.Time("deadline", deadline),
	)
	return *req, nil
}

// Get 按 id 查询（返回副本）
func (l *Ledger) Get(id string) (domain.ServiceRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[id]
	if !ok {
		return domain.ServiceRequest{}, false
	}
	return cloneRequest(req), true
}

// ActiveForElder 查询 elder 当前的非终态请求
func (l *Ledger) ActiveForElder(elderEmail string) (domain.ServiceRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id, ok := l.byElder[elderEmail]
	if !ok {
		return domain.ServiceRequest{}, false
	}
	req, ok := l.requests[id]
	if !ok || req.Status.Terminal() {
		return domain.ServiceRequest{}, false
	}
	return cloneRequest(req), true
}

// MarkNotified 记录该志愿者已被通知；重复调用幂等
func (l *Ledger) MarkNotified(id, volunteerEmail string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[id]
	if !ok || req.Notified(volunteerEmail) {
		return
	}
	req.NotifiedVolunteers = append(req.NotifiedVolunteers, volunteerEmail)
}

// Transition 状态 CAS：仅当当前状态等于 expected 时改为 next
// 返回是否成功；并发接受竞争全部在这里定胜负
func (l *Ledger) Transition(id string, expected, next domain.ServiceStatus) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[id]
	if !ok || req.Status != expected {
		return false
	}
	req.Status = next
	return true
}

// Accept 接受专用 CAS：pending → accepted，并在同一临界区内登记获胜志愿者
// 避免 status 与 volunteer 出现不一致窗口
func (l *Ledger) Accept(id, volunteerEmail string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[id]
	if !ok || req.Status != domain.ServicePending {
		return false
	}
	req.Status = domain.ServiceAccepted
	req.VolunteerEmail = volunteerEmail
	return true
}

// Evict 移除条目并返回它（调用方据此做附件清理等善后）
func (l *Ledger) Evict(id string) (domain.ServiceRequest, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	req, ok := l.requests[id]
	if !ok {
		return domain.ServiceRequest{}, false
	}
	delete(l.requests, id)
	if l.byElder[req.ElderEmail] == id {
		delete(l.byElder, req.ElderEmail)
	}
	return cloneRequest(req), true
}

// PendingFor 晚接入志愿者可见的请求：pending、未过期、且尚未通知过该志愿者
func (l *Ledger) PendingFor(volunteerEmail string, now time.Time) []domain.ServiceRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []domain.ServiceRequest
	for _, req := range l.requests {
		if req.Status == domain.ServicePending && !req.Expired(now) && !req.Notified(volunteerEmail) {
			out = append(out, cloneRequest(req))
		}
	}
	return out
}

// Sweep 移除所有终态或已过期的请求并返回被移除的条目
func (l *Ledger) Sweep(now time.Time) []domain.ServiceRequest {
	l.mu.Lock()
	defer l.mu.Unlock()
	var evicted []domain.ServiceRequest
	for id, req := range l.requests {
		if req.Status.Terminal() || req.Expired(now) {
			evicted = append(evicted, cloneRequest(req))
			delete(l.requests, id)
			if l.byElder[req.ElderEmail] == id {
				delete(l.byElder, req.ElderEmail)
			}
		}
	}
	return evicted
}

// Len 当前活动请求数
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.requests)
}

func cloneRequest(req *domain.ServiceRequest) domain.ServiceRequest {
	out := *req
	out.NotifiedVolunteers = append([]string(nil), req.NotifiedVolunteers...)
	out.Form.Documents = append([]string(nil), req.Form.Documents...)
	return out
}
