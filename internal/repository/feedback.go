package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Feedback 用户反馈（协调员复核）
type Feedback struct {
	ID            int64     `json:"id"`
	ReporterEmail string    `json:"reporter_email"`
	Subject       string    `json:"subject"`
	Body          string    `json:"body"`
	Status        string    `json:"status"` // open | reviewed
	CreatedAt     time.Time `json:"created_at"`
}

// FeedbackRepository 反馈仓库
type FeedbackRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewFeedbackRepository 创建反馈仓库
func NewFeedbackRepository(db *sql.DB, logger *zap.Logger) *FeedbackRepository {
	return &FeedbackRepository{db: db, logger: logger}
}

// Create 新建反馈，返回生成的 ID
func (r *FeedbackRepository) Create(ctx context.Context, reporterEmail, subject, body string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO feedback (reporter_email, subject, body)
		VALUES ($1, $2, $3)
		RETURNING id`,
		reporterEmail, subject, body).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to create feedback: %w", err)
	}
	return id, nil
}

// ListAll 全量反馈，新的在前
func (r *FeedbackRepository) ListAll(ctx context.Context) ([]Feedback, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, reporter_email, subject, body, status, created_at
		FROM feedback ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feedback: %w", err)
	}
	defer rows.Close()

	var items []Feedback
	for rows.Next() {
		var f Feedback
		if err := rows.Scan(&f.ID, &f.ReporterEmail, &f.Subject, &f.Body, &f.Status, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan feedback: %w", err)
		}
		items = append(items, f)
	}
	return items, rows.Err()
}

// MarkReviewed 协调员标记已处理；返回是否命中
func (r *FeedbackRepository) MarkReviewed(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE feedback SET status = 'reviewed' WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark feedback reviewed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}
