// Package protocol 实现直播弹幕广播总线的线协议：16 字节帧头、心跳、认证握手以及
// JSON 编码的业务命令（弹幕、礼物、在线人数等）。
//
// 协议核心不做任何 I/O：调用方把传输层读到的字节交给 ReceiveData，
// 反复调用 NextEvent 取出事件；Send 返回需要写回传输层的字节。
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

/*
帧格式（所有整数均为大端序）：
+----------+------------+----------+----------+----------+-----------------+
|   Size   | HeaderSize | Protover |    Op    |   Seq    |      Body       |
|  4 bytes |  2 bytes   |  2 bytes |  4 bytes |  4 bytes | Size-HeaderSize |
+----------+------------+----------+----------+----------+-----------------+
*/

const (
	HeaderSize = 16 // 4 + 2 + 2 + 4 + 4
)

var ErrShortHeader = errors.New("header too short")

// Protover 协议版本，同时决定正文的压缩方式
type Protover uint16

const (
	ProtoverCommand Protover = 0 // 不压缩的普通包
	ProtoverControl Protover = 1 // 不压缩的心跳、认证包
	ProtoverZlib    Protover = 2 // zlib 压缩的普通包
	ProtoverBrotli  Protover = 3 // brotli 压缩的普通包
)

// Op 操作码
type Op uint32

const (
	OpHeartbeat         Op = 2 // 心跳
	OpHeartbeatResponse Op = 3 // 心跳回复（人气值）
	OpCommand           Op = 5 // 普通包（命令）
	OpAuth              Op = 7 // 认证
	OpAuthResponse      Op = 8 // 认证回复
)

func (op Op) String() string {
	switch op {
	case OpHeartbeat:
		return "heartbeat"
	case OpHeartbeatResponse:
		return "heartbeat_response"
	case OpCommand:
		return "command"
	case OpAuth:
		return "auth"
	case OpAuthResponse:
		return "auth_response"
	default:
		return fmt.Sprintf("op(%d)", uint32(op))
	}
}

// Header 帧头，值类型，每帧独立构造
type Header struct {
	Size       uint32   // 封包总大小，包括头部和正文
	HeaderSize uint16   // 头部大小，一般为 16
	Protover   Protover // 协议版本
	Op         Op       // 操作码
	Seq        uint32   // 序列号，协议核心不使用
}

// NewHeader 为正文长度为 bodyLen 的帧构造帧头
func NewHeader(bodyLen int, protover Protover, op Op) Header {
	return Header{
		Size:       uint32(HeaderSize + bodyLen),
		HeaderSize: HeaderSize,
		Protover:   protover,
		Op:         op,
	}
}

// BodySize 返回正文长度，帧头不合法时为负数
func (h Header) BodySize() int {
	return int(h.Size) - int(h.HeaderSize)
}

// Put 把帧头写入 buf 的前 16 字节
func (h Header) Put(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.Size)
	binary.BigEndian.PutUint16(buf[4:6], h.HeaderSize)
	binary.BigEndian.PutUint16(buf[6:8], uint16(h.Protover))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Op))
	binary.BigEndian.PutUint32(buf[12:16], h.Seq)
}

// Encode 编码帧头
func (h Header) Encode() []byte {
	buf := make([]byte, HeaderSize)
	h.Put(buf)
	return buf
}

// DecodeHeader 从 data[offset:] 解码帧头。
// 除长度外不做任何校验，Size 与 HeaderSize 的关系由调用方检查。
func DecodeHeader(data []byte, offset int) (Header, error) {
	if offset < 0 || len(data)-offset < HeaderSize {
		return Header{}, ErrShortHeader
	}
	b := data[offset:]
	return Header{
		Size:       binary.BigEndian.Uint32(b[0:4]),
		HeaderSize: binary.BigEndian.Uint16(b[4:6]),
		Protover:   Protover(binary.BigEndian.Uint16(b[6:8])),
		Op:         Op(binary.BigEndian.Uint32(b[8:12])),
		Seq:        binary.BigEndian.Uint32(b[12:16]),
	}, nil
}

// EncodeFrame 编码一个完整的帧：帧头 + 正文
func EncodeFrame(body []byte, protover Protover, op Op) []byte {
	buf := make([]byte, HeaderSize+len(body))
	NewHeader(len(body), protover, op).Put(buf)
	copy(buf[HeaderSize:], body)
	return buf
}
