package notify

import (
	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

// 出站事件载荷：type 判别字段与旧前端逐一对应

// NewServiceRequestEvent 新服务请求（广播/补发）
type NewServiceRequestEvent struct {
	Type         string             `json:"type"`
	ServiceID    string             `json:"service_id"`
	ElderProfile domain.Profile     `json:"elder_profile"`
	ServiceForm  domain.ServiceForm `json:"service_form"`
	Timeout      string             `json:"timeout"`
}

// VolunteerProposalEvent 定向结对提议
type VolunteerProposalEvent struct {
	Type         string         `json:"type"`
	ElderProfile domain.Profile `json:"elder_profile"`
	ServiceID    string         `json:"service_id,omitempty"`
	Timeout      string         `json:"timeout"`
}

// ServiceMessageEvent 服务请求状态变化/会话消息
type ServiceMessageEvent struct {
	Type             string          `json:"type"`
	Status           string          `json:"status"`
	ServiceID        string          `json:"service_id"`
	Message          string          `json:"message"`
	VolunteerProfile *domain.Profile `json:"volunteer_profile,omitempty"`
}

// VolunteerServiceMessageEvent 结对层面的通知（unassign 等）
type VolunteerServiceMessageEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// VolunteerServiceEvent 志愿者回访产生的通知
type VolunteerServiceEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServiceNotFoundEvent 请求不存在
type ServiceNotFoundEvent struct {
	Type      string `json:"type"`
	ServiceID string `json:"service_id,omitempty"`
}

// NewFeedbackEvent 新反馈提醒（协调员）
type NewFeedbackEvent struct {
	Type string `json:"type"`
}
