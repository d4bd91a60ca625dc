package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// StreamAudit 把每次事件投递追加到 Redis Stream，供管理台回放/审计
type StreamAudit struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamAudit 创建审计流 sink
func NewStreamAudit(client *redis.Client, stream string, logger *zap.Logger) *StreamAudit {
	return &StreamAudit{client: client, stream: stream, logger: logger}
}

// Publish 实现 Sink；审计失败只记日志，绝不阻断通知链路
func (a *StreamAudit) Publish(eventType, recipient string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		a.logger.Error("Failed to marshal audit event",
			zap.String("event", eventType), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err = a.client.XAdd(ctx, &redis.XAddArgs{
		Stream: a.stream,
		Values: map[string]interface{}{
			"type":      eventType,
			"recipient": recipient,
			"data":      string(data),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		a.logger.Warn("Failed to append audit event",
			zap.String("event", eventType),
			zap.String("stream", a.stream),
			zap.Error(err),
		)
	}
}
