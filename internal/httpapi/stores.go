package httpapi

import (
	"context"
	"time"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/repository"
)

// Sessions token → 登录用户
type Sessions interface {
	CurrentUser(ctx context.Context, token string) (*domain.User, error)
}

// Users handler 层需要的账号查询/管理面
type Users interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	ListAll(ctx context.Context) ([]domain.User, error)
	AddCredits(ctx context.Context, email string, delta int) error
	Delete(ctx context.Context, email string) error
}

// CareRecords handler 层需要的照护记录面
type CareRecords interface {
	GetByElder(ctx context.Context, elderEmail string) (*domain.CareRecord, error)
	GetByVolunteer(ctx context.Context, volunteerEmail string) (*domain.CareRecord, error)
	BeginSearch(ctx context.Context, elderEmail string) (bool, error)
	UpdateCheckIn(ctx context.Context, elderEmail, data string, at time.Time) error
	ListAll(ctx context.Context) ([]domain.CareRecord, error)
	ResetByVolunteer(ctx context.Context, volunteerEmail string) ([]string, error)
}

// FeedbackStore 反馈持久化面
type FeedbackStore interface {
	Create(ctx context.Context, reporterEmail, subject, body string) (int64, error)
	ListAll(ctx context.Context) ([]repository.Feedback, error)
	MarkReviewed(ctx context.Context, id int64) (bool, error)
}
