package domain

// WebSocket 协议 type 判别字段（入站与出站共用一套词表）
// 每个 type 恰好对应一个 handler，与旧前端保持一致
const (
	// 出站
	EventNewServiceRequest   = "new_service_request"   // 新服务请求广播给志愿者
	EventNewVolunteerRequest = "new_volunteer_request" // 定向结对提议（最近优先协商）
	EventServiceMessage      = "service_message"       // 服务请求状态变化/会话消息
	EventVolunteerService    = "volunteer_service"     // 志愿者回访产生的通知
	EventVolunteerServiceMsg = "volunteer_service_message"
	EventServiceNotFound     = "service_not_found"
	EventNewFeedback         = "new_feedback"

	// 入站
	EventLoadPending    = "load_pending"    // 晚接入的志愿者拉取仍在 pending 的请求
	EventVolunteerReply = "volunteer_reply" // 对定向提议的 accept/decline 应答
)

// 通知语义（service_message.message 字段取值）
const (
	MsgRequestAccepted      = "request_accepted"
	MsgElderRequestAccepted = "elder_request_accepted"
	MsgAlreadyAssigned      = "already_assigned"
	MsgUnassign             = "unassign"
	MsgRecordUpdated        = "record_updated"
	MsgExpired              = "expired"
)
