package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置（协调员事件桥，可选）
type MQTTConfig struct {
	Enabled  bool
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
	TopicPrefix string // 如 "care/events/"
}

// Config 服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	HTTP struct {
		Addr string // 监听地址，如 ":8080"
	}

	// 匹配引擎配置
	Matching struct {
		OfferTimeout  time.Duration // 单轮提议等待志愿者应答的超时
		RetryBackoff  time.Duration // 候选列表耗尽后的重试间隔
		SweepInterval time.Duration // Ledger 过期清扫周期
		CheckInGap    time.Duration // 志愿者两次回访的最小间隔
	}

	Auth struct {
		TokenTTL time.Duration // bearer token 在 Redis 中的有效期
	}

	Storage struct {
		UploadDir     string
		MaxUploadSize int64 // 单附件上限（字节）
	}

	// 事件审计流（Redis Streams）
	Events struct {
		Stream string
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置（环境变量覆盖默认值）
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "careconnect")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Enabled = getEnv("MQTT_ENABLED", "false") == "true"
	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "care-connect-server")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = 1
	cfg.MQTT.TopicPrefix = getEnv("MQTT_TOPIC_PREFIX", "care/events/")

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", ":8080")

	cfg.Matching.OfferTimeout = getEnvDuration("MATCH_OFFER_TIMEOUT", 30*time.Second)
	cfg.Matching.RetryBackoff = getEnvDuration("MATCH_RETRY_BACKOFF", 5*time.Second)
	cfg.Matching.SweepInterval = getEnvDuration("MATCH_SWEEP_INTERVAL", time.Second)
	cfg.Matching.CheckInGap = getEnvDuration("CHECKIN_MIN_GAP", 10*time.Second)

	cfg.Auth.TokenTTL = getEnvDuration("AUTH_TOKEN_TTL", 30*24*time.Hour)

	cfg.Storage.UploadDir = getEnv("UPLOAD_DIR", "uploads")
	cfg.Storage.MaxUploadSize = int64(getEnvInt("UPLOAD_MAX_BYTES", 500*1024))

	cfg.Events.Stream = getEnv("EVENT_STREAM", "care:events")

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
