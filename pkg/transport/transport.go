// Package transport 提供传输层抽象：WebSocket 和 TCP 字节流。
//
// 协议核心按字节块工作，Conn 每次读出一个块（WebSocket 消息或一次 TCP 读），
// 对端正常关闭时 ReadChunk 返回 io.EOF。
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// Transport 服务端传输层接口
type Transport interface {
	// Listen 监听指定地址
	Listen(addr string) error
	// Accept 接受新连接
	Accept() (Conn, error)
	// Close 关闭传输层
	Close() error
}

// Conn 连接接口
type Conn interface {
	// ReadChunk 读取下一个字节块，对端关闭时返回 io.EOF
	ReadChunk() ([]byte, error)
	// WriteChunk 写入一个完整的字节块
	WriteChunk(p []byte) error
	// Close 关闭连接
	Close() error
	// RemoteAddr 返回远程地址
	RemoteAddr() string
	// SetReadDeadline 设置读超时，零值表示不超时
	SetReadDeadline(t time.Time) error
	// SetWriteDeadline 设置写超时，零值表示不超时
	SetWriteDeadline(t time.Time) error
}

// ErrUnsupportedScheme Dial 不支持的 URL scheme
var ErrUnsupportedScheme = errors.New("transport: unsupported scheme")

// Dial 按 URL 建立客户端连接：ws:// 与 wss:// 使用 WebSocket，tcp://host:port 使用裸 TCP
func Dial(ctx context.Context, rawURL string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("transport: parse %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		ws, _, err := websocket.DefaultDialer.DialContext(ctx, rawURL, nil)
		if err != nil {
			return nil, err
		}
		return NewWebSocketConn(ws), nil
	case "tcp":
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", u.Host)
		if err != nil {
			return nil, err
		}
		return NewStreamConn(conn), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// IsTimeout 判断是否超时错误
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
