// Package matching 实现实时派单核心：志愿者发现（最近优先）、请求广播、
// accept/decline 协商与超时回退，以及“至多一个赢家”的指派提交。
package matching

import (
	"context"
	"errors"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/geo"
	"github.com/abuFahad-vp/care-connect-backend/internal/ledger"
	"github.com/abuFahad-vp/care-connect-backend/internal/presence"
)

// CareStore 持久层协作方（CareRecord 侧）
// 约定：Assign 只在 Ledger CAS 成功之后调用，状态与志愿者同一条 UPDATE 落库
type CareStore interface {
	GetByElder(ctx context.Context, elderEmail string) (*domain.CareRecord, error)
	// Assign 指派落库（ledger CAS 赢家同步 CareRecord）
	Assign(ctx context.Context, elderEmail, volunteerEmail string) error
	// AssignIfSearching 结对协商专用条件更新：仅当 status 仍为 searching 时生效
	AssignIfSearching(ctx context.Context, elderEmail, volunteerEmail string) (bool, error)
	// Unassign 双向复位；幂等
	Unassign(ctx context.Context, elderEmail string) error
	SetActiveService(ctx context.Context, elderEmail string, serviceID *string) error
	ClearActiveService(ctx context.Context, elderEmail, serviceID string) error
}

// UserDirectory 账号查询协作方
type UserDirectory interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListUnassignedVolunteers(ctx context.Context) ([]domain.User, error)
}

// Notifier 状态变化扇出协作方
type Notifier interface {
	// BroadcastNewRequest 向全体在线志愿者（及协调员）广播，返回成功通知的志愿者
	BroadcastNewRequest(req domain.ServiceRequest) (notified []string)
	// OfferRequest 定向补发一条仍在 pending 的请求（晚接入志愿者）
	OfferRequest(volunteerEmail string, req domain.ServiceRequest) bool
	// Proposal 定向结对提议；志愿者不在线或发送失败返回 false
	Proposal(volunteerEmail string, elder domain.Profile, serviceID string, deadline time.Time) bool
	// Accepted 指派成功：elder、获胜志愿者、协调员
	Accepted(req domain.ServiceRequest, volunteer domain.Profile)
	// Stale “名额已被抢走”——竞争落败方收到，不影响 elder
	Stale(volunteerEmail, serviceID string)
	// Rejected 资格校验未通过（例如从未被通知却来接受）
	Rejected(volunteerEmail, serviceID, reason string)
	// Relay 已指派服务内的状态更新转发给对端
	Relay(toEmail, serviceID string, status domain.ServiceStatus, message string)
	// Unassigned 解除结对，双方均收
	Unassigned(elderEmail, volunteerEmail string)
	// NotFound 请求不存在
	NotFound(email, serviceID string)
}

// ServiceMessage 入站 service_message 载荷
type ServiceMessage struct {
	ServiceID string               `json:"service_id"`
	Status    domain.ServiceStatus `json:"status"`
	Message   string               `json:"message"`
}

// Engine 匹配引擎
type Engine struct {
	ledger   *ledger.Ledger
	care     CareStore
	users    UserDirectory
	registry *presence.Registry
	notifier Notifier
	replies  *replyTable

	offerTimeout time.Duration
	retryBackoff time.Duration
	logger       *zap.Logger
}

// NewEngine 创建匹配引擎
func NewEngine(
	l *ledger.Ledger,
	care CareStore,
	users UserDirectory,
	registry *presence.Registry,
	notifier Notifier,
	offerTimeout time.Duration,
	retryBackoff time.Duration,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		ledger:       l,
		care:         care,
		users:        users,
		registry:     registry,
		notifier:     notifier,
		replies:      newReplyTable(),
		offerTimeout: offerTimeout,
		retryBackoff: retryBackoff,
		logger:       logger,
	}
}

// CreateServiceRequest 登记并广播新服务请求
// CareRecord 必须处于 not_assigned 或 searching_a_volunteer，否则 ErrConflict
func (e *Engine) CreateServiceRequest(
	ctx context.Context,
	elder *domain.User,
	form domain.ServiceForm,
	deadline time.Time,
) (domain.ServiceRequest, error) {
	record, err := e.care.GetByElder(ctx, elder.Email)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	switch record.Status {
	case domain.CareNotAssigned, domain.CareSearching:
		// 允许
	case domain.CareAssigned:
		return domain.ServiceRequest{}, domain.WrapErr("elder already assigned", domain.ErrConflict)
	default:
		return domain.ServiceRequest{}, domain.WrapErr("care record in unknown state", domain.ErrConflict)
	}
	if record.ActiveServiceID != nil {
		if _, active := e.ledger.Get(*record.ActiveServiceID); active {
			return domain.ServiceRequest{}, domain.WrapErr("active service request exists", domain.ErrConflict)
		}
	}

	req, err := e.ledger.Create(elder.PublicProfile(), form, deadline)
	if err != nil {
		return domain.ServiceRequest{}, err
	}
	if err := e.care.SetActiveService(ctx, elder.Email, &req.ID); err != nil {
		// 台账条目留给清扫器回收
		e.ledger.Transition(req.ID, domain.ServicePending, domain.ServiceAborted)
		return domain.ServiceRequest{}, err
	}

	notified := e.notifier.BroadcastNewRequest(req)
	for _, email := range notified {
		e.ledger.MarkNotified(req.ID, email)
	}
	e.logger.Info("Service request broadcast",
		zap.String("service_id", req.ID),
		zap.String("elder", elder.Email),
		zap.Int("notified", len(notified)),
	)

	req, _ = e.ledger.Get(req.ID)
	return req, nil
}

// SendPendingTo 给晚接入的志愿者补发仍在 pending 的请求
func (e *Engine) SendPendingTo(volunteerEmail string) int {
	sent := 0
	for _, req := range e.ledger.PendingFor(volunteerEmail, time.Now()) {
		if e.notifier.OfferRequest(volunteerEmail, req) {
			e.ledger.MarkNotified(req.ID, volunteerEmail)
			sent++
		}
	}
	return sent
}

// HandleVolunteerReply 志愿者对定向提议的应答入口（ws 层调用）
// 没有对应提议槽的应答记录后丢弃
func (e *Engine) HandleVolunteerReply(volunteerEmail string, reply Reply) bool {
	subject := reply.ServiceID
	if subject == "" {
		subject = reply.ElderEmail
	}
	ok := e.replies.resolve(replyKey{subject: subject, candidate: volunteerEmail}, reply)
	if !ok {
		e.logger.Warn("Reply without matching proposal",
			zap.String("volunteer", volunteerEmail),
			zap.String("subject", subject),
		)
	}
	return ok
}

// HandleServiceMessage 处理 service_message：接受竞争与已指派会话中的状态转发
func (e *Engine) HandleServiceMessage(ctx context.Context, sender *domain.User, msg ServiceMessage) {
	req, ok := e.ledger.Get(msg.ServiceID)
	if !ok {
		e.notifier.NotFound(sender.Email, msg.ServiceID)
		return
	}

	if req.Status == domain.ServicePending && msg.Status == domain.ServiceAccepted && sender.Role == domain.RoleVolunteer {
		e.acceptPending(ctx, sender, req)
		return
	}

	if req.Status == domain.ServiceAccepted {
		e.relayAccepted(ctx, sender, req, msg)
		return
	}

	// pending 状态下的其它消息、或已终态的请求：对发送方而言名额已不可用
	e.notifier.Stale(sender.Email, req.ID)
}

// acceptPending 接受竞争路径：台账 CAS 定胜负，赢家再同步 CareRecord
func (e *Engine) acceptPending(ctx context.Context, sender *domain.User, req domain.ServiceRequest) {
	if !req.Notified(sender.Email) {
		e.notifier.Rejected(sender.Email, req.ID, "not_notified")
		return
	}

	if !e.ledger.Accept(req.ID, sender.Email) {
		// 竞争落败或请求已不在 pending：只告知该志愿者，不打扰 elder
		e.notifier.Stale(sender.Email, req.ID)
		return
	}

	// CAS 成功后才允许持久化变更，状态与志愿者同步写入
	if err := e.care.Assign(ctx, req.ElderEmail, sender.Email); err != nil {
		e.logger.Error("Failed to persist assignment",
			zap.String("service_id", req.ID),
			zap.String("elder", req.ElderEmail),
			zap.String("volunteer", sender.Email),
			zap.Error(err),
		)
	}

	accepted, _ := e.ledger.Get(req.ID)
	e.notifier.Accepted(accepted, sender.PublicProfile())
	e.logger.Info("Service request accepted",
		zap.String("service_id", req.ID),
		zap.String("elder", req.ElderEmail),
		zap.String("volunteer", sender.Email),
	)
}

// relayAccepted 已指派请求内的消息：校验归属后转发给对端
func (e *Engine) relayAccepted(ctx context.Context, sender *domain.User, req domain.ServiceRequest, msg ServiceMessage) {
	var partner string
	var belongs bool
	switch sender.Role {
	case domain.RoleVolunteer:
		belongs = req.VolunteerEmail == sender.Email
		partner = req.ElderEmail
	case domain.RoleElder:
		belongs = req.ElderEmail == sender.Email
		partner = req.VolunteerEmail
	case domain.RoleCoordinator:
		belongs = false
	}
	if !belongs || msg.Message == "initial_request" {
		e.notifier.Stale(sender.Email, req.ID)
		return
	}

	status := req.Status
	if msg.Status == domain.ServiceCompleted || msg.Status == domain.ServiceAborted {
		if e.ledger.Transition(req.ID, domain.ServiceAccepted, msg.Status) {
			status = msg.Status
			_ = e.care.ClearActiveService(ctx, req.ElderEmail, req.ID)
		}
	}
	e.notifier.Relay(partner, req.ID, status, msg.Message)
}

// candidate 排序用中间结构
type candidate struct {
	user domain.User
	dist float64
}

// FindAndAssign 最近优先协商循环：为处于 searching 状态的 elder 找志愿者
//
// 每轮：取未指派志愿者、按球面距离升序逐个提议，等待应答或超时；
// 候选耗尽后退避重试，直到 ctx 截止或外部取消（记录不再 searching）。
// 返回 nil 表示指派完成；ErrTimeout 表示整体超时无人接受。
func (e *Engine) FindAndAssign(ctx context.Context, elder *domain.User) error {
	lat1, lon1, err := geo.ParseLatLon(elder.Location)
	if err != nil {
		return domain.WrapErr("elder location", err)
	}

	// 有活动服务请求时，提议与 CAS 都落在该请求上
	serviceID := ""
	if req, ok := e.ledger.ActiveForElder(elder.Email); ok {
		serviceID = req.ID
	}

	for {
		done, err := e.searchResolved(ctx, elder.Email)
		if err != nil {
			return err
		}
		if done {
			return nil
		}

		volunteers, err := e.users.ListUnassignedVolunteers(ctx)
		if err != nil {
			return err
		}

		candidates := make([]candidate, 0, len(volunteers))
		for _, v := range volunteers {
			lat2, lon2, err := geo.ParseLatLon(v.Location)
			if err != nil {
				e.logger.Warn("Skipping volunteer with bad location",
					zap.String("volunteer", v.Email), zap.Error(err))
				continue
			}
			candidates = append(candidates, candidate{user: v, dist: geo.Distance(lat1, lon1, lat2, lon2)})
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].dist < candidates[j].dist })

		for _, cand := range candidates {
			// 每个候选前重查取消/完成条件
			done, err := e.searchResolved(ctx, elder.Email)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
			if !e.registry.Connected(cand.user.Email) {
				continue
			}

			done, err = e.proposeTo(ctx, elder, cand.user, serviceID)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		}

		// 候选耗尽：退避后重扫，期间尊重整体截止
		select {
		case <-ctx.Done():
			return domain.WrapErr("no volunteer accepted", domain.ErrTimeout)
		case <-time.After(e.retryBackoff):
		}
	}
}

// proposeTo 单轮提议：发送、等应答、提交
// 返回 done=true 表示指派已完成（本人赢或他路已赢）
func (e *Engine) proposeTo(ctx context.Context, elder *domain.User, vol domain.User, serviceID string) (bool, error) {
	subject := serviceID
	if subject == "" {
		subject = elder.Email
	}
	key := replyKey{subject: subject, candidate: vol.Email}
	slot, ok := e.replies.create(key)
	if !ok {
		// 同一候选已有未决提议（不应发生），跳过
		return false, nil
	}
	defer e.replies.remove(key)

	deadline := time.Now().Add(e.offerTimeout)
	if !e.notifier.Proposal(vol.Email, elder.PublicProfile(), serviceID, deadline) {
		return false, nil
	}
	if serviceID != "" {
		e.ledger.MarkNotified(serviceID, vol.Email)
	}

	timer := time.NewTimer(e.offerTimeout)
	defer timer.Stop()

	select {
	case reply := <-slot:
		if !reply.Accept || reply.ElderEmail != elder.Email {
			return false, nil // decline 或应答对象不符 → 下一个候选
		}
		return e.commitAssignment(ctx, elder, vol, serviceID)
	case <-timer.C:
		return false, nil // 无应答 → 下一个候选
	case <-ctx.Done():
		return false, domain.WrapErr("no volunteer accepted", domain.ErrTimeout)
	}
}

// commitAssignment 提交指派：CAS 赢家写库并扇出，输家收 stale
func (e *Engine) commitAssignment(ctx context.Context, elder *domain.User, vol domain.User, serviceID string) (bool, error) {
	if serviceID != "" {
		if !e.ledger.Accept(serviceID, vol.Email) {
			// 另一路径已指派：向刚接受的志愿者声明提议失效
			e.notifier.Stale(vol.Email, serviceID)
			if req, ok := e.ledger.Get(serviceID); ok && req.Status == domain.ServiceAccepted {
				return true, nil // elder 已被他人服务，本轮搜索目的已达成
			}
			return false, nil
		}
		if err := e.care.Assign(ctx, elder.Email, vol.Email); err != nil {
			return false, err
		}
		req, _ := e.ledger.Get(serviceID)
		e.notifier.Accepted(req, vol.PublicProfile())
		return true, nil
	}

	// 纯结对：CareRecord 上的条件更新就是 CAS
	won, err := e.care.AssignIfSearching(ctx, elder.Email, vol.Email)
	if err != nil {
		return false, err
	}
	if !won {
		e.notifier.Stale(vol.Email, "")
		return true, nil // 记录已离开 searching：他路已指派或搜索被取消
	}
	e.notifier.Accepted(domain.ServiceRequest{
		ElderEmail:   elder.Email,
		ElderProfile: elder.PublicProfile(),
		Status:       domain.ServiceAccepted,
	}, vol.PublicProfile())
	e.logger.Info("Volunteer paired",
		zap.String("elder", elder.Email),
		zap.String("volunteer", vol.Email),
	)
	return true, nil
}

// Unassign 解除已确认的结对；对已是 not_assigned 的记录幂等
func (e *Engine) Unassign(ctx context.Context, record *domain.CareRecord) error {
	volunteerEmail := ""
	if record.VolunteerEmail != nil {
		volunteerEmail = *record.VolunteerEmail
	}

	// 先通知双方再复位，与旧行为一致；复位本身幂等
	e.notifier.Unassigned(record.ElderEmail, volunteerEmail)
	if err := e.care.Unassign(ctx, record.ElderEmail); err != nil {
		return err
	}
	e.logger.Info("Pair unassigned",
		zap.String("elder", record.ElderEmail),
		zap.String("volunteer", volunteerEmail),
	)
	return nil
}

// searchResolved 取消/完成检查：记录必须仍处于 searching_a_volunteer
// assigned → (true, nil) 搜索自然结束；not_assigned → 外部取消
func (e *Engine) searchResolved(ctx context.Context, elderEmail string) (bool, error) {
	record, err := e.care.GetByElder(ctx, elderEmail)
	if err != nil {
		return false, err
	}
	switch record.Status {
	case domain.CareSearching:
		return false, nil
	case domain.CareAssigned:
		return true, nil // 他路已完成指派
	default:
		return false, domain.WrapErr("search cancelled", domain.ErrConflict)
	}
}

// IsCancelled 搜索取消语义判断（handler 映射响应用）
func IsCancelled(err error) bool {
	return errors.Is(err, domain.ErrConflict)
}
