// Package service 业务服务层（账号与会话）
package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/geo"
)

const tokenKeyPrefix = "auth:token:"

// UserStore 账号持久化协作方
type UserStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

// CareRecordCreator elder 注册时建档
type CareRecordCreator interface {
	Create(ctx context.Context, elderEmail string) error
}

// SignupForm 注册表单
type SignupForm struct {
	Email         string `json:"email"`
	Role          string `json:"user_type"`
	FullName      string `json:"full_name"`
	Password      string `json:"password"`
	DOB           string `json:"dob"` // YYYY-MM-DD
	CountryCode   string `json:"country_code"`
	ContactNumber string `json:"contact_number"`
	Location      string `json:"location"` // "lat,lon"
	Bio           string `json:"bio"`
}

// AuthService 注册 / 登录 / 会话解析
// token 是不透明 UUID，存 Redis，带 TTL；服务重启不失效
type AuthService struct {
	users    UserStore
	records  CareRecordCreator
	redis    *redis.Client
	tokenTTL time.Duration
	logger   *zap.Logger
}

// NewAuthService 创建认证服务
func NewAuthService(users UserStore, records CareRecordCreator, rdb *redis.Client, tokenTTL time.Duration, logger *zap.Logger) *AuthService {
	return &AuthService{
		users:    users,
		records:  records,
		redis:    rdb,
		tokenTTL: tokenTTL,
		logger:   logger,
	}
}

// HashPassword sha256 hex 摘要
func HashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}

// Signup 注册新用户；elder 同时建照护档案
func (s *AuthService) Signup(ctx context.Context, form SignupForm) (*domain.User, error) {
	role := domain.Role(form.Role)
	if !role.Valid() {
		return nil, domain.WrapErr("invalid user_type", domain.ErrConflict)
	}
	email := strings.ToLower(strings.TrimSpace(form.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, domain.WrapErr("invalid email", domain.ErrConflict)
	}
	if len(form.Password) < 6 {
		return nil, domain.WrapErr("password too short", domain.ErrConflict)
	}
	dob, err := time.Parse("2006-01-02", form.DOB)
	if err != nil {
		return nil, domain.WrapErr("invalid dob", domain.ErrConflict)
	}
	if _, _, err := geo.ParseLatLon(form.Location); err != nil {
		return nil, domain.WrapErr("invalid location", domain.ErrConflict)
	}

	user := &domain.User{
		Email:         email,
		Role:          role,
		FullName:      strings.TrimSpace(form.FullName),
		PasswordHash:  HashPassword(form.Password),
		DOB:           dob,
		CountryCode:   form.CountryCode,
		ContactNumber: form.ContactNumber,
		Location:      form.Location,
		Bio:           form.Bio,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	if role == domain.RoleElder {
		if err := s.records.Create(ctx, email); err != nil {
			return nil, fmt.Errorf("failed to create care record for %s: %w", email, err)
		}
	}

	s.logger.Info("User registered",
		zap.String("email", email),
		zap.String("user_type", string(role)),
	)
	return user, nil
}

// Login 校验口令，签发 bearer token
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", nil, domain.WrapErr("incorrect email or password", domain.ErrUnauthorized)
		}
		return "", nil, err
	}

	given := HashPassword(password)
	if subtle.ConstantTimeCompare([]byte(given), []byte(user.PasswordHash)) != 1 {
		return "", nil, domain.WrapErr("incorrect email or password", domain.ErrUnauthorized)
	}

	token := uuid.New().String()
	if err := s.redis.Set(ctx, tokenKeyPrefix+token, email, s.tokenTTL).Err(); err != nil {
		return "", nil, fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Info("User logged in", zap.String("email", email))
	return token, user, nil
}

// CurrentUser 按 token 解析登录用户
func (s *AuthService) CurrentUser(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, domain.WrapErr("missing token", domain.ErrUnauthorized)
	}
	email, err := s.redis.Get(ctx, tokenKeyPrefix+token).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.WrapErr("invalid or expired token", domain.ErrUnauthorized)
		}
		return nil, fmt.Errorf("failed to look up token: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// 账号被删但 token 未过期
			return nil, domain.WrapErr("user no longer exists", domain.ErrUnauthorized)
		}
		return nil, err
	}
	return user, nil
}

// Revoke 注销 token（登出 / 删号）
func (s *AuthService) Revoke(ctx context.Context, token string) {
	if err := s.redis.Del(ctx, tokenKeyPrefix+token).Err(); err != nil {
		s.logger.Warn("Failed to revoke token", zap.Error(err))
	}
}
