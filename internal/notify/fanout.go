// Package notify 把状态变化扇出给相关方：当事 elder、候选/获胜志愿者、
// 在线协调员，以及 Redis 审计流和可选的 MQTT 协调面板桥。
package notify

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/presence"
)

// RoleDirectory 计算“谁关心这个事件”所需的账号查询
type RoleDirectory interface {
	ListVolunteerEmails(ctx context.Context) ([]string, error)
	ListCoordinatorEmails(ctx context.Context) ([]string, error)
}

// Sink 事件旁路（审计流、MQTT 桥都实现它）；按投递记账
type Sink interface {
	Publish(eventType, recipient string, payload any)
}

// Fanout 通知扇出器
// 每个接收方 best-effort：单个发送失败只摘掉该连接，不影响其他接收方
type Fanout struct {
	registry  *presence.Registry
	directory RoleDirectory
	sinks     []Sink
	logger    *zap.Logger
}

// NewFanout 创建扇出器；sinks 可为空
func NewFanout(registry *presence.Registry, directory RoleDirectory, logger *zap.Logger, sinks ...Sink) *Fanout {
	return &Fanout{
		registry:  registry,
		directory: directory,
		sinks:     sinks,
		logger:    logger,
	}
}

// Push 向单个在线用户推送；发送失败即从注册表摘除该接收方
func (f *Fanout) Push(email string, eventType string, payload any) bool {
	f.emit(eventType, email, payload)

	conn, ok := f.registry.Lookup(email)
	if !ok {
		return false
	}
	data, err := json.Marshal(payload)
	if err != nil {
		f.logger.Error("Failed to marshal event",
			zap.String("event", eventType), zap.Error(err))
		return false
	}
	if err := conn.Send(string(data)); err != nil {
		// 失联连接：摘除后继续服务其他接收方
		f.logger.Warn("Dropping stale connection",
			zap.String("user", email),
			zap.String("event", eventType),
			zap.Error(err),
		)
		f.registry.RemoveConn(email, conn)
		return false
	}
	return true
}

// BroadcastNewRequest 新服务请求广播：全体志愿者 + 协调员，返回送达的志愿者
func (f *Fanout) BroadcastNewRequest(req domain.ServiceRequest) []string {
	event := NewServiceRequestEvent{
		Type:         domain.EventNewServiceRequest,
		ServiceID:    req.ID,
		ElderProfile: req.ElderProfile,
		ServiceForm:  req.Form,
		Timeout:      req.Deadline.Format(time.RFC3339),
	}

	ctx := context.Background()
	volunteers, err := f.directory.ListVolunteerEmails(ctx)
	if err != nil {
		f.logger.Error("Failed to list volunteers for broadcast", zap.Error(err))
		return nil
	}

	var notified []string
	for _, email := range volunteers {
		if f.Push(email, domain.EventNewServiceRequest, event) {
			notified = append(notified, email)
		}
	}
	f.pushCoordinators(event, domain.EventNewServiceRequest)
	return notified
}

// OfferRequest 定向补发一条 pending 请求
func (f *Fanout) OfferRequest(volunteerEmail string, req domain.ServiceRequest) bool {
	return f.Push(volunteerEmail, domain.EventNewServiceRequest, NewServiceRequestEvent{
		Type:         domain.EventNewServiceRequest,
		ServiceID:    req.ID,
		ElderProfile: req.ElderProfile,
		ServiceForm:  req.Form,
		Timeout:      req.Deadline.Format(time.RFC3339),
	})
}

// Proposal 定向结对提议
func (f *Fanout) Proposal(volunteerEmail string, elder domain.Profile, serviceID string, deadline time.Time) bool {
	return f.Push(volunteerEmail, domain.EventNewVolunteerRequest, VolunteerProposalEvent{
		Type:         domain.EventNewVolunteerRequest,
		ElderProfile: elder,
		ServiceID:    serviceID,
		Timeout:      deadline.Format(time.RFC3339),
	})
}

// Accepted 指派成功：elder、获胜志愿者、协调员都收到
func (f *Fanout) Accepted(req domain.ServiceRequest, volunteer domain.Profile) {
	v := volunteer
	f.Push(req.ElderEmail, domain.EventServiceMessage, ServiceMessageEvent{
		Type:             domain.EventServiceMessage,
		Status:           string(domain.ServiceAccepted),
		ServiceID:        req.ID,
		Message:          domain.MsgRequestAccepted,
		VolunteerProfile: &v,
	})
	f.Push(volunteer.Email, domain.EventServiceMessage, ServiceMessageEvent{
		Type:             domain.EventServiceMessage,
		Status:           string(domain.ServiceAccepted),
		ServiceID:        req.ID,
		Message:          domain.MsgElderRequestAccepted,
		VolunteerProfile: &v,
	})
	f.pushCoordinators(ServiceMessageEvent{
		Type:             domain.EventServiceMessage,
		Status:           string(domain.ServiceAccepted),
		ServiceID:        req.ID,
		Message:          domain.MsgRequestAccepted,
		VolunteerProfile: &v,
	}, domain.EventServiceMessage)
}

// Stale 竞争落败方：名额已被抢走
func (f *Fanout) Stale(volunteerEmail, serviceID string) {
	f.Push(volunteerEmail, domain.EventServiceMessage, ServiceMessageEvent{
		Type:      domain.EventServiceMessage,
		Status:    string(domain.CareNotAssigned),
		ServiceID: serviceID,
		Message:   domain.MsgAlreadyAssigned,
	})
}

// Rejected 资格校验未通过
func (f *Fanout) Rejected(volunteerEmail, serviceID, reason string) {
	f.Push(volunteerEmail, domain.EventServiceMessage, ServiceMessageEvent{
		Type:      domain.EventServiceMessage,
		Status:    "rejected",
		ServiceID: serviceID,
		Message:   reason,
	})
}

// Relay 已指派会话中的状态更新转发
func (f *Fanout) Relay(toEmail, serviceID string, status domain.ServiceStatus, message string) {
	f.Push(toEmail, domain.EventServiceMessage, ServiceMessageEvent{
		Type:      domain.EventServiceMessage,
		Status:    string(status),
		ServiceID: serviceID,
		Message:   message,
	})
}

// Unassigned 解除结对：elder 与志愿者双方
func (f *Fanout) Unassigned(elderEmail, volunteerEmail string) {
	event := VolunteerServiceMessageEvent{
		Type:    domain.EventVolunteerServiceMsg,
		Message: domain.MsgUnassign,
	}
	if volunteerEmail != "" {
		f.Push(volunteerEmail, domain.EventVolunteerServiceMsg, event)
	}
	f.Push(elderEmail, domain.EventVolunteerServiceMsg, event)
}

// Expired 请求过期回收：elder 与所有已通知志愿者
func (f *Fanout) Expired(req domain.ServiceRequest) {
	event := ServiceMessageEvent{
		Type:      domain.EventServiceMessage,
		Status:    string(domain.ServiceAborted),
		ServiceID: req.ID,
		Message:   domain.MsgExpired,
	}
	f.Push(req.ElderEmail, domain.EventServiceMessage, event)
	for _, email := range req.NotifiedVolunteers {
		f.Push(email, domain.EventServiceMessage, event)
	}
}

// RecordUpdated 回访完成：通知 elder
func (f *Fanout) RecordUpdated(elderEmail string) {
	f.Push(elderEmail, domain.EventVolunteerService, VolunteerServiceEvent{
		Type:    domain.EventVolunteerService,
		Message: domain.MsgRecordUpdated,
	})
}

// NotFound 请求不存在
func (f *Fanout) NotFound(email, serviceID string) {
	f.Push(email, domain.EventServiceNotFound, ServiceNotFoundEvent{
		Type:      domain.EventServiceNotFound,
		ServiceID: serviceID,
	})
}

// FeedbackReceived 新反馈：提醒在线协调员
func (f *Fanout) FeedbackReceived() {
	f.pushCoordinators(NewFeedbackEvent{Type: domain.EventNewFeedback}, domain.EventNewFeedback)
}

func (f *Fanout) pushCoordinators(payload any, eventType string) {
	emails, err := f.directory.ListCoordinatorEmails(context.Background())
	if err != nil {
		f.logger.Error("Failed to list coordinators", zap.Error(err))
		return
	}
	for _, email := range emails {
		f.Push(email, eventType, payload)
	}
}

func (f *Fanout) emit(eventType, recipient string, payload any) {
	for _, sink := range f.sinks {
		sink.Publish(eventType, recipient, payload)
	}
}
