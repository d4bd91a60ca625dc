package notify

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
)

func TestStreamAudit_AppendsDelivery(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	audit := NewStreamAudit(client, "care:events", zap.NewNop())
	audit.Publish(domain.EventServiceMessage, "e1@example.com", ServiceMessageEvent{
		Type:      domain.EventServiceMessage,
		ServiceID: "svc-1",
		Message:   domain.MsgRequestAccepted,
	})

	msgs, err := client.XRange(context.Background(), "care:events", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.EventServiceMessage, msgs[0].Values["type"])
	assert.Equal(t, "e1@example.com", msgs[0].Values["recipient"])
	assert.Contains(t, msgs[0].Values["data"], "svc-1")
}

func TestStreamAudit_RedisDownDoesNotPanic(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	defer client.Close()

	audit := NewStreamAudit(client, "care:events", zap.NewNop())
	// 审计只旁路记账，Redis 不可用时静默降级
	audit.Publish(domain.EventNewFeedback, "", NewFeedbackEvent{Type: domain.EventNewFeedback})
}
