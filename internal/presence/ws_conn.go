package presence

import (
	"sync"

	"github.com/gorilla/websocket"
)

// WSConn gorilla/websocket 连接适配器
// websocket.Conn 不允许并发写，这里用互斥锁串行化 Send
type WSConn struct {
	mu sync.Mutex
	ws *websocket.Conn
}

// NewWSConn 包装底层 websocket 连接
func NewWSConn(ws *websocket.Conn) *WSConn {
	return &WSConn{ws: ws}
}

// Send 发送一条文本帧
func (c *WSConn) Send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// Close 关闭底层连接
func (c *WSConn) Close() error {
	return c.ws.Close()
}
