package domain

import (
	"time"
)

// Role 用户角色（封闭枚举，决策点均做穷举匹配）
type Role string

const (
	RoleElder       Role = "elder"
	RoleVolunteer   Role = "volunteer"
	RoleCoordinator Role = "coordinator"
)

// Valid 校验角色取值
func (r Role) Valid() bool {
	switch r {
	case RoleElder, RoleVolunteer, RoleCoordinator:
		return true
	}
	return false
}

// User 用户领域模型（对应 users 表）
// Email 是全系统的稳定身份标识（presence/matching 均以 email 为 key）
type User struct {
	Email            string    `db:"email"` // PRIMARY KEY
	Role             Role      `db:"user_type"`
	FullName         string    `db:"full_name"`
	PasswordHash     string    `db:"password_hash"` // sha256 hex
	DOB              time.Time `db:"dob"`
	CountryCode      string    `db:"country_code"`
	ContactNumber    string    `db:"contact_number"`
	Location         string    `db:"location"` // "lat,lon"
	Bio              string    `db:"bio"`
	VolunteerCredits int       `db:"volunteer_credits"`
	CreatedAt        time.Time `db:"created_at"`
}

// Profile 对外可见的用户信息（不含 password_hash）
// 作为 elder_profile / volunteer_profile 事件载荷下发
type Profile struct {
	Email         string `json:"email"`
	Role          Role   `json:"user_type"`
	FullName      string `json:"full_name"`
	DOB           string `json:"dob"`
	CountryCode   string `json:"country_code"`
	ContactNumber string `json:"contact_number"`
	Location      string `json:"location"`
	Bio           string `json:"bio"`
	Credits       int    `json:"volunteer_credits"`
}

// PublicProfile 构建对外档案
func (u *User) PublicProfile() Profile {
	return Profile{
		Email:         u.Email,
		Role:          u.Role,
		FullName:      u.FullName,
		DOB:           u.DOB.Format("2006-01-02"),
		CountryCode:   u.CountryCode,
		ContactNumber: u.ContactNumber,
		Location:      u.Location,
		Bio:           u.Bio,
		Credits:       u.VolunteerCredits,
	}
}
