package transport

import (
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/pkg/logger"
)

var (
	_ Transport = (*WebSocketTransport)(nil)
	_ Conn      = (*WebSocketConn)(nil)
	_ Conn      = (*StreamConn)(nil)
)

// WebSocketTransport WebSocket 传输层实现。
// 它本身是 http.Handler，可以直接挂到已有的 mux 或 httptest 上；Listen 只是便捷入口。
type WebSocketTransport struct {
	path     string
	upgrader websocket.Upgrader
	server   *http.Server
	connCh   chan *WebSocketConn
	doneCh   chan struct{}
	once     sync.Once
}

// WebSocketConfig WebSocket 配置
type WebSocketConfig struct {
	Path             string
	ReadBufferSize   int
	WriteBufferSize  int
	HandshakeTimeout time.Duration
	AcceptBacklog    int
}

// NewWebSocketTransport 创建 WebSocket 传输层
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	if cfg.Path == "" {
		cfg.Path = "/sub"
	}
	if cfg.AcceptBacklog <= 0 {
		cfg.AcceptBacklog = 1000
	}
	return &WebSocketTransport{
		path: cfg.Path,
		upgrader: websocket.Upgrader{
			ReadBufferSize:   cfg.ReadBufferSize,
			WriteBufferSize:  cfg.WriteBufferSize,
			HandshakeTimeout: cfg.HandshakeTimeout,
			CheckOrigin: func(r *http.Request) bool {
				return true // 生产环境应检查 Origin
			},
		},
		connCh: make(chan *WebSocketConn, cfg.AcceptBacklog),
		doneCh: make(chan struct{}),
	}
}

// Path 返回升级路径
func (t *WebSocketTransport) Path() string {
	return t.path
}

// Listen 监听地址
func (t *WebSocketTransport) Listen(addr string) error {
	mux := http.NewServeMux()
	mux.Handle(t.path, t)

	t.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := t.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("websocket transport stopped", zap.String("addr", addr), zap.Error(err))
		}
	}()
	return nil
}

// ServeHTTP 升级为 WebSocket 连接并交给 Accept
func (t *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	conn := NewWebSocketConn(ws)
	conn.remoteAddr = r.RemoteAddr

	select {
	case t.connCh <- conn:
	case <-t.doneCh:
		conn.Close()
	}
}

// Accept 接受新连接
func (t *WebSocketTransport) Accept() (Conn, error) {
	select {
	case conn := <-t.connCh:
		return conn, nil
	case <-t.doneCh:
		return nil, http.ErrServerClosed
	}
}

// Close 关闭传输层
func (t *WebSocketTransport) Close() error {
	t.once.Do(func() { close(t.doneCh) })
	if t.server != nil {
		return t.server.Close()
	}
	return nil
}

// WebSocketConn WebSocket 连接实现，每条二进制消息是一个字节块
type WebSocketConn struct {
	conn       *websocket.Conn
	remoteAddr string
}

// NewWebSocketConn 包装 gorilla 连接
func NewWebSocketConn(ws *websocket.Conn) *WebSocketConn {
	return &WebSocketConn{
		conn:       ws,
		remoteAddr: ws.RemoteAddr().String(),
	}
}

// ReadChunk 读取一条消息，正常关闭映射为 io.EOF
func (c *WebSocketConn) ReadChunk() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

// WriteChunk 发送一条二进制消息
func (c *WebSocketConn) WriteChunk(p []byte) error {
	return c.conn.WriteMessage(websocket.BinaryMessage, p)
}

// Close 发送关闭帧后关闭连接
func (c *WebSocketConn) Close() error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}

// RemoteAddr 返回远程地址
func (c *WebSocketConn) RemoteAddr() string {
	return c.remoteAddr
}

// SetReadDeadline 设置读超时
func (c *WebSocketConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline 设置写超时
func (c *WebSocketConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}

// Underlying 返回底层 websocket.Conn
func (c *WebSocketConn) Underlying() *websocket.Conn {
	return c.conn
}
