package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

// CareRecordsRepository 照护记录仓库（每位 elder 恰好一条）
type CareRecordsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCareRecordsRepository 创建照护记录仓库
func NewCareRecordsRepository(db *sql.DB, logger *zap.Logger) *CareRecordsRepository {
	return &CareRecordsRepository{db: db, logger: logger}
}

const careColumns = `id, elder_email, volunteer_email, status, active_service_id, last_check_in, check_in_data`

func scanCareRecord(row interface{ Scan(...any) error }) (*domain.CareRecord, error) {
	var rec domain.CareRecord
	err := row.Scan(
		&rec.ID, &rec.ElderEmail, &rec.VolunteerEmail, &rec.Status,
		&rec.ActiveServiceID, &rec.LastCheckIn, &rec.CheckInData,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Create 注册 elder 时建档，初始 not_assigned
func (r *CareRecordsRepository) Create(ctx context.Context, elderEmail string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO care_records (elder_email, status) VALUES ($1, $2)`,
		elderEmail, domain.CareNotAssigned)
	if err != nil {
		return fmt.Errorf("failed to create care record: %w", err)
	}
	return nil
}

// GetByElder 按 elder 查档案
func (r *CareRecordsRepository) GetByElder(ctx context.Context, elderEmail string) (*domain.CareRecord, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+careColumns+` FROM care_records WHERE elder_email = $1`, elderEmail)
	rec, err := scanCareRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapErr("care record", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get care record: %w", err)
	}
	return rec, nil
}

// GetByVolunteer 查该志愿者当前负责的档案
func (r *CareRecordsRepository) GetByVolunteer(ctx context.Context, volunteerEmail string) (*domain.CareRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+careColumns+` FROM care_records
		WHERE volunteer_email = $1 AND status = $2`,
		volunteerEmail, domain.CareAssigned)
	rec, err := scanCareRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapErr("care record", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get care record by volunteer: %w", err)
	}
	return rec, nil
}

// BeginSearch not_assigned → searching 条件更新；已在搜索或已指派返回 false
func (r *CareRecordsRepository) BeginSearch(ctx context.Context, elderEmail string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE care_records SET status = $2
		WHERE elder_email = $1 AND status = $3`,
		elderEmail, domain.CareSearching, domain.CareNotAssigned)
	if err != nil {
		return false, fmt.Errorf("failed to begin search: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Assign 指派落库（调用方已通过内存 CAS 决出唯一赢家）
func (r *CareRecordsRepository) Assign(ctx context.Context, elderEmail, volunteerEmail string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE care_records SET volunteer_email = $2, status = $3
		WHERE elder_email = $1`,
		elderEmail, volunteerEmail, domain.CareAssigned)
	if err != nil {
		return fmt.Errorf("failed to assign volunteer: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapErr("care record", domain.ErrNotFound)
	}
	return nil
}

// AssignIfSearching 结对协商的串行化点：仅当仍在 searching 时写入
func (r *CareRecordsRepository) AssignIfSearching(ctx context.Context, elderEmail, volunteerEmail string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE care_records SET volunteer_email = $2, status = $3
		WHERE elder_email = $1 AND status = $4`,
		elderEmail, volunteerEmail, domain.CareAssigned, domain.CareSearching)
	if err != nil {
		return false, fmt.Errorf("failed to assign volunteer: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// Unassign 解除结对并复位；幂等
func (r *CareRecordsRepository) Unassign(ctx context.Context, elderEmail string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE care_records
		SET volunteer_email = NULL, status = $2, active_service_id = NULL
		WHERE elder_email = $1`,
		elderEmail, domain.CareNotAssigned)
	if err != nil {
		return fmt.Errorf("failed to unassign volunteer: %w", err)
	}
	return nil
}

// ResetByVolunteer 志愿者账号注销时复位其负责的档案
func (r *CareRecordsRepository) ResetByVolunteer(ctx context.Context, volunteerEmail string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE care_records
		SET volunteer_email = NULL, status = $2, active_service_id = NULL
		WHERE volunteer_email = $1
		RETURNING elder_email`,
		volunteerEmail, domain.CareNotAssigned)
	if err != nil {
		return nil, fmt.Errorf("failed to reset care records: %w", err)
	}
	defer rows.Close()

	var elders []string
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("failed to scan elder email: %w", err)
		}
		elders = append(elders, email)
	}
	return elders, rows.Err()
}

// SetActiveService 记录当前进行中的服务请求
func (r *CareRecordsRepository) SetActiveService(ctx context.Context, elderEmail string, serviceID *string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE care_records SET active_service_id = $2 WHERE elder_email = $1`,
		elderEmail, serviceID)
	if err != nil {
		return fmt.Errorf("failed to set active service: %w", err)
	}
	return nil
}

// ClearActiveService 仅当仍指向该服务时清除（避免覆盖后继请求）
func (r *CareRecordsRepository) ClearActiveService(ctx context.Context, elderEmail, serviceID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE care_records SET active_service_id = NULL
		WHERE elder_email = $1 AND active_service_id = $2`,
		elderEmail, serviceID)
	if err != nil {
		return fmt.Errorf("failed to clear active service: %w", err)
	}
	return nil
}

// UpdateCheckIn 志愿者回访打卡
func (r *CareRecordsRepository) UpdateCheckIn(ctx context.Context, elderEmail, data string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE care_records SET last_check_in = $2, check_in_data = $3
		WHERE elder_email = $1`,
		elderEmail, at, data)
	if err != nil {
		return fmt.Errorf("failed to update check-in: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.WrapErr("care record", domain.ErrNotFound)
	}
	return nil
}

// ListAll 全量档案（管理台）
func (r *CareRecordsRepository) ListAll(ctx context.Context) ([]domain.CareRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+careColumns+` FROM care_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list care records: %w", err)
	}
	defer rows.Close()

	var records []domain.CareRecord
	for rows.Next() {
		rec, err := scanCareRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan care record: %w", err)
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}
