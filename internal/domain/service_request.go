package domain

import (
	"time"
)

// ServiceStatus 服务请求生命周期状态
// pending → accepted → {completed | aborted}；pending 超时进入 aborted
type ServiceStatus string

const (
	ServicePending   ServiceStatus = "pending"
	ServiceAccepted  ServiceStatus = "accepted"
	ServiceCompleted ServiceStatus = "completed"
	ServiceAborted   ServiceStatus = "aborted"
)

// Terminal 是否终态
func (s ServiceStatus) Terminal() bool {
	return s == ServiceCompleted || s == ServiceAborted
}

// ServiceForm 服务请求表单（随 new_service_request 事件原样下发）
type ServiceForm struct {
	ServiceID      string   `json:"service_id"`
	Description    string   `json:"description"`
	HasDocuments   bool     `json:"has_documents"`
	Locations      string   `json:"locations"`
	TimePeriodFrom string   `json:"time_period_from"`
	TimePeriodTo   string   `json:"time_period_to"`
	ContactNumber  string   `json:"contact_number"`
	Documents      []string `json:"documents,omitempty"`
}

// ServiceRequest 活动服务请求（仅存在于内存 Ledger 中，可重建，不落库）
type ServiceRequest struct {
	ID                 string
	ElderEmail         string
	ElderProfile       Profile
	Status             ServiceStatus
	CreatedAt          time.Time
	Deadline           time.Time
	Form               ServiceForm
	NotifiedVolunteers []string // 已通知志愿者（按通知顺序）
	VolunteerEmail     string   // 接受者（仅在 accepted 之后有值）
}

// Notified 该志愿者是否已被通知过此请求
func (s *ServiceRequest) Notified(volunteerEmail string) bool {
	for _, e := range s.NotifiedVolunteers {
		if e == volunteerEmail {
			return true
		}
	}
	return false
}

// Expired 截止时间是否已过
func (s *ServiceRequest) Expired(now time.Time) bool {
	return now.After(s.Deadline)
}
