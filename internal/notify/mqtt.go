package notify

import (
	"encoding/json"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/config"
)

// MQTTBridge 把事件镜像到 MQTT（机构监控面板订阅 care/events/#）
type MQTTBridge struct {
	client      mqtt.Client
	topicPrefix string
	qos         byte
	logger      *zap.Logger
}

// NewMQTTBridge 连接 broker 并创建桥
func NewMQTTBridge(cfg *config.MQTTConfig, logger *zap.Logger) (*MQTTBridge, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return &MQTTBridge{
		client:      client,
		topicPrefix: cfg.TopicPrefix,
		qos:         cfg.QoS,
		logger:      logger,
	}, nil
}

// Publish 实现 Sink；发布失败只记日志
func (b *MQTTBridge) Publish(eventType, recipient string, payload any) {
	data, err := json.Marshal(map[string]any{
		"recipient": recipient,
		"event":     payload,
	})
	if err != nil {
		b.logger.Error("Failed to marshal mqtt event",
			zap.String("event", eventType), zap.Error(err))
		return
	}

	topic := b.topicPrefix + eventType
	token := b.client.Publish(topic, b.qos, false, data)
	// 不等待投递完成，失败由回调日志兜底
	go func() {
		if token.Wait() && token.Error() != nil {
			b.logger.Warn("Failed to publish mqtt event",
				zap.String("topic", topic),
				zap.Error(token.Error()),
			)
		}
	}()
}

// Close 断开 broker 连接
func (b *MQTTBridge) Close() {
	b.client.Disconnect(250)
}
