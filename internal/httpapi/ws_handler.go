package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/abuFahad-vp/care-connect-backend/internal/domain"
	"github.com/abuFahad-vp/care-connect-backend/internal/matching"
	"github.com/abuFahad-vp/care-connect-backend/internal/presence"
)

// MatchGateway ws 入站消息投递到匹配引擎的入口
type MatchGateway interface {
	SendPendingTo(volunteerEmail string) int
	HandleVolunteerReply(volunteerEmail string, reply matching.Reply) bool
	HandleServiceMessage(ctx context.Context, sender *domain.User, msg matching.ServiceMessage)
}

// inboundMessage 入站消息统一信封，按 type 分发
type inboundMessage struct {
	Type string `json:"type"`

	// volunteer_reply
	Accept     bool   `json:"accept"`
	ElderEmail string `json:"elder_email"`

	// volunteer_reply / service_message 共用
	ServiceID string `json:"service_id"`

	// service_message
	Status  domain.ServiceStatus `json:"status"`
	Message string               `json:"message"`
}

// WSHandler WebSocket 接入：注册 presence、读循环分发
type WSHandler struct {
	registry *presence.Registry
	gateway  MatchGateway
	auth     *Auth
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

func NewWSHandler(registry *presence.Registry, gateway MatchGateway, auth *Auth, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		registry: registry,
		gateway:  gateway,
		auth:     auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// 客户端是移动端 app，不做 Origin 白名单
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger,
	}
}

// ServeHTTP GET /ws?token=...
func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user := h.auth.Require(w, r)
	if user == nil {
		return
	}

	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed",
			zap.String("user", user.Email), zap.Error(err))
		return
	}

	conn := presence.NewWSConn(raw)
	// 同一账号重连：旧连接让位
	if prior := h.registry.Register(user.Email, conn); prior != nil {
		_ = prior.Close()
	}
	h.logger.Info("WebSocket connected",
		zap.String("user", user.Email),
		zap.String("user_type", string(user.Role)),
	)

	defer func() {
		h.registry.RemoveConn(user.Email, conn)
		_ = conn.Close()
		h.logger.Info("WebSocket disconnected", zap.String("user", user.Email))
	}()

	// 升级后请求 context 随 ServeHTTP 生命周期走，分发用独立 context
	for {
		_, data, err := raw.ReadMessage()
		if err != nil {
			return
		}
		h.dispatch(context.Background(), user, data)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, user *domain.User, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.logger.Warn("Malformed ws message",
			zap.String("user", user.Email), zap.Error(err))
		return
	}

	switch msg.Type {
	case domain.EventLoadPending:
		if user.Role != domain.RoleVolunteer {
			return
		}
		sent := h.gateway.SendPendingTo(user.Email)
		h.logger.Debug("Pending requests replayed",
			zap.String("volunteer", user.Email), zap.Int("sent", sent))

	case domain.EventVolunteerReply:
		if user.Role != domain.RoleVolunteer {
			return
		}
		h.gateway.HandleVolunteerReply(user.Email, matching.Reply{
			Accept:     msg.Accept,
			ElderEmail: msg.ElderEmail,
			ServiceID:  msg.ServiceID,
		})

	case domain.EventServiceMessage:
		h.gateway.HandleServiceMessage(ctx, user, matching.ServiceMessage{
			ServiceID: msg.ServiceID,
			Status:    msg.Status,
			Message:   msg.Message,
		})

	default:
		h.logger.Warn("Unknown ws message type",
			zap.String("user", user.Email), zap.String("type", msg.Type))
	}
}
