package transport

import (
	"net"
	"time"
)

// streamChunkSize StreamConn 单次读取的最大字节数
const streamChunkSize = 4096

// StreamConn 基于字节流（TCP 等 net.Conn）的连接，帧边界由协议核心自行切分
type StreamConn struct {
	conn net.Conn
	buf  []byte
}

// NewStreamConn 包装 net.Conn
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		conn: conn,
		buf:  make([]byte, streamChunkSize),
	}
}

// ReadChunk 读取一次，返回的切片归调用方所有
func (c *StreamConn) ReadChunk() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		chunk := make([]byte, n)
		copy(chunk, c.buf[:n])
		return chunk, nil
	}
	return nil, err
}

// WriteChunk 写入全部字节
func (c *StreamConn) WriteChunk(p []byte) error {
	_, err := c.conn.Write(p)
	return err
}

// Close 关闭连接
func (c *StreamConn) Close() error {
	return c.conn.Close()
}

// RemoteAddr 返回远程地址
func (c *StreamConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// SetReadDeadline 设置读超时
func (c *StreamConn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline 设置写超时
func (c *StreamConn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
