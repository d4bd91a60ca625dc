package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// schema 启动时保证表存在（与旧服务行为一致：启动即建表）
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		email            VARCHAR(255) PRIMARY KEY,
		user_type        VARCHAR(20)  NOT NULL,
		full_name        VARCHAR(255) NOT NULL,
		password_hash    VARCHAR(255) NOT NULL,
		dob              DATE         NOT NULL,
		country_code     VARCHAR(5)   NOT NULL,
		contact_number   VARCHAR(20)  NOT NULL,
		location         VARCHAR(64)  NOT NULL,
		bio              TEXT         NOT NULL DEFAULT '',
		volunteer_credits INTEGER     NOT NULL DEFAULT 0,
		created_at       TIMESTAMPTZ  NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS care_records (
		id                BIGSERIAL PRIMARY KEY,
		elder_email       VARCHAR(255) NOT NULL UNIQUE REFERENCES users(email) ON DELETE CASCADE,
		volunteer_email   VARCHAR(255),
		status            VARCHAR(32)  NOT NULL DEFAULT 'not_assigned',
		active_service_id VARCHAR(64),
		last_check_in     TIMESTAMPTZ,
		check_in_data     TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS feedback (
		id             BIGSERIAL PRIMARY KEY,
		reporter_email VARCHAR(255) NOT NULL,
		subject        VARCHAR(255) NOT NULL DEFAULT '',
		body           TEXT         NOT NULL,
		status         VARCHAR(20)  NOT NULL DEFAULT 'open',
		created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_care_records_volunteer ON care_records(volunteer_email)`,
	`CREATE INDEX IF NOT EXISTS idx_users_type ON users(user_type)`,
}

// EnsureSchema 建表（幂等）
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
