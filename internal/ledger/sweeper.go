package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

// EvictFunc 清扫回调：附件删除、过期通知等善后都挂在这里
type EvictFunc func(req domain.ServiceRequest)

// Sweeper 周期清扫器
// 单个后台任务统一回收，替代按请求各起一个轮询循环的做法
type Sweeper struct {
	ledger   *Ledger
	interval time.Duration
	onEvict  EvictFunc
	logger   *zap.Logger
}

// NewSweeper 创建清扫器
func NewSweeper(l *Ledger, interval time.Duration, onEvict EvictFunc, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Second
	}
	return &Sweeper{
		ledger:   l,
		interval: interval,
		onEvict:  onEvict,
		logger:   logger,
	}
}

// Run 阻塞运行直到 ctx 取消
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Expiry sweeper started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Expiry sweeper stopped")
			return
		case now := <-ticker.C:
			s.sweepOnce(now)
		}
	}
}

// SweepOnce 立即执行一轮清扫（测试与关停路径使用）
func (s *Sweeper) SweepOnce(now time.Time) int {
	return s.sweepOnce(now)
}

func (s *Sweeper) sweepOnce(now time.Time) int {
	evicted := s.ledger.Sweep(now)
	for _, req := range evicted {
		s.logger.Info("Service request evicted",
			zap.String("service_id", req.ID),
			zap.String("status", string(req.Status)),
			zap.Time("deadline", req.Deadline),
		)
		if s.onEvict != nil {
			s.onEvict(req)
		}
	}
	return len(evicted)
}
