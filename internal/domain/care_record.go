package domain

import (
	"time"
)

// CareStatus 长者照护记录的匹配状态
type CareStatus string

const (
	CareNotAssigned CareStatus = "not_assigned"
	CareSearching   CareStatus = "searching_a_volunteer"
	CareAssigned    CareStatus = "assigned"
)

// CareRecord 照护记录（对应 care_records 表），每位 elder 恰好一条
// 不变式：VolunteerEmail 非空 当且仅当 Status == assigned
type CareRecord struct {
	ID              int64      `db:"id"`
	ElderEmail      string     `db:"elder_email"` // UNIQUE, NOT NULL
	VolunteerEmail  *string    `db:"volunteer_email"`
	Status          CareStatus `db:"status"`
	ActiveServiceID *string    `db:"active_service_id"` // 当前非终态 ServiceRequest（若有）
	LastCheckIn     *time.Time `db:"last_check_in"`
	CheckInData     *string    `db:"check_in_data"` // 志愿者回访时提交的自由格式内容
}

// AssignedTo 当前是否已指派给该志愿者
func (r *CareRecord) AssignedTo(volunteerEmail string) bool {
	return r.Status == CareAssigned && r.VolunteerEmail != nil && *r.VolunteerEmail == volunteerEmail
}
