// Package presence 维护“用户身份 → 在线连接”的进程级注册表
package presence

import (
	"sync"

	"go.uber.org/zap"
)

// Conn 双向连接抽象（传输层协作方只需要 Send + Close）
type Conn interface {
	// Send 发送一条文本消息；失败返回 TransportError 语义的错误
	Send(text string) error
	Close() error
}

// Registry 在线用户注册表
// 互斥锁只覆盖 map 更新，绝不跨网络发送持有（避免阻塞其它发送方）
type Registry struct {
	mu     sync.Mutex
	conns  map[string]Conn // key: user email
	logger *zap.Logger
}

// NewRegistry 创建注册表
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]Conn),
		logger: logger,
	}
}

// Register 登记连接，返回被替换的旧连接（由调用方负责关闭）
// 保证同一身份至多一条在线连接：重连会顶掉旧条目
func (r *Registry) Register(email string, conn Conn) Conn {
	r.mu.Lock()
	prev := r.conns[email]
	r.conns[email] = conn
	r.mu.Unlock()

	if prev != nil {
		r.logger.Info("Replaced existing connection", zap.String("user", email))
	}
	return prev
}

// Lookup 查找在线连接；从不阻塞
func (r *Registry) Lookup(email string) (Conn, bool) {
	r.mu.Lock()
	conn, ok := r.conns[email]
	r.mu.Unlock()
	return conn, ok
}

// Remove 移除条目；幂等
func (r *Registry) Remove(email string) {
	r.mu.Lock()
	delete(r.conns, email)
	r.mu.Unlock()
}

// RemoveConn 仅当当前登记的连接就是 conn 时移除
// 断线清理用：避免旧连接的关闭回调误删重连后的新连接
func (r *Registry) RemoveConn(email string, conn Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.conns[email]; ok && cur == conn {
		delete(r.conns, email)
		return true
	}
	return false
}

// Connected 该身份当前是否在线
func (r *Registry) Connected(email string) bool {
	_, ok := r.Lookup(email)
	return ok
}

// Snapshot 当前在线身份列表（快照，调用后可能立即过期）
func (r *Registry) Snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.conns))
	for email := range r.conns {
		out = append(out, email)
	}
	return out
}
