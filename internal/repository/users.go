// Package repository 封装 PostgreSQL 访问（原生 SQL，无 ORM）
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

// UsersRepository 用户表仓库
type UsersRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUsersRepository 创建用户仓库
func NewUsersRepository(db *sql.DB, logger *zap.Logger) *UsersRepository {
	return &UsersRepository{db: db, logger: logger}
}

const userColumns = `email, user_type, full_name, password_hash, dob, country_code, contact_number, location, bio, volunteer_credits, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	err := row.Scan(
		&u.Email, &u.Role, &u.FullName, &u.PasswordHash, &u.DOB,
		&u.CountryCode, &u.ContactNumber, &u.Location, &u.Bio,
		&u.VolunteerCredits, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// Create 新建用户；email 重复返回 ErrConflict
func (r *UsersRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())`,
		u.Email, u.Role, u.FullName, u.PasswordHash, u.DOB,
		u.CountryCode, u.ContactNumber, u.Location, u.Bio, u.VolunteerCredits,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.WrapErr("user already exists", domain.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetByEmail 按 email 查询
func (r *UsersRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapErr("user", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

// ListAll 全量用户（管理台）
func (r *UsersRepository) ListAll(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListUnassignedVolunteers 未被指派的志愿者（候选集合）
func (r *UsersRepository) ListUnassignedVolunteers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users u
		WHERE u.user_type = 'volunteer'
		  AND NOT EXISTS (
			SELECT 1 FROM care_records c
			WHERE c.volunteer_email = u.email AND c.status = 'assigned'
		  )
		ORDER BY u.email`)
	if err != nil {
		return nil, fmt.Errorf("failed to list unassigned volunteers: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

// ListVolunteerEmails 全体志愿者（广播接收方计算用）
func (r *UsersRepository) ListVolunteerEmails(ctx context.Context) ([]string, error) {
	return r.listEmailsByRole(ctx, domain.RoleVolunteer)
}

// ListCoordinatorEmails 全体协调员
func (r *UsersRepository) ListCoordinatorEmails(ctx context.Context) ([]string, error) {
	return r.listEmailsByRole(ctx, domain.RoleCoordinator)
}

func (r *UsersRepository) listEmailsByRole(ctx context.Context, role domain.Role) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM users WHERE user_type = $1 ORDER BY email`, role)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s emails: %w", role, err)
	}
	defer rows.Close()

	var emails []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan email: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, rows.Err()
}

// AddCredits 志愿者积分增加（回访奖励）
func (r *UsersRepository) AddCredits(ctx context.Context, email string, delta int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE users SET volunteer_credits = volunteer_credits + $2 WHERE email = $1`,
		email, delta)
	if err != nil {
		return fmt.Errorf("failed to add credits: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapErr("user", domain.ErrNotFound)
	}
	return nil
}

// Delete 删除用户（care_records 由外键级联清理）
func (r *UsersRepository) Delete(ctx context.Context, email string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE email = $1`, email)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapErr("user", domain.ErrNotFound)
	}
	return nil
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}
