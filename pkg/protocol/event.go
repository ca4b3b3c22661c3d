package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"reflect"

	"github.com/goccy/go-json"
)

// Event 连接上可收发的事件。NeedData 与 ConnectionClosed 是哨兵值，不会被编码上线。
type Event interface {
	EventName() string
}

// NeedData 表示缓冲区内的数据不足以解析下一帧，Size 是还需要的最少字节数（下界估计）
type NeedData struct {
	Size int
}

func (NeedData) EventName() string { return "NeedData" }

// ConnectionClosed 表示连接已关闭；作为 Send 的参数时表示本端主动关闭
type ConnectionClosed struct{}

func (ConnectionClosed) EventName() string { return "ConnectionClosed" }

// Heartbeat 心跳包，正文原样传输（通常为空）
type Heartbeat struct {
	Content []byte
}

func (*Heartbeat) EventName() string { return "Heartbeat" }

// HeartbeatResponse 心跳回复：4 字节大端人气值 + 任意附加内容
type HeartbeatResponse struct {
	Popularity uint32
	Content    []byte
}

func (*HeartbeatResponse) EventName() string { return "HeartbeatResponse" }

// Auth 认证包，可选字段为 nil 时不出现在 JSON 中，字段顺序即线上顺序
type Auth struct {
	RoomID   int64   `json:"roomid"`
	UID      *int64  `json:"uid,omitempty"`
	Protover *int    `json:"protover,omitempty"`
	Platform *string `json:"platform,omitempty"`
	Type     *int    `json:"type,omitempty"`
	Key      *string `json:"key,omitempty"`
}

func (*Auth) EventName() string { return "Auth" }

// AuthResponse 认证回复，Code 为 0 表示成功
type AuthResponse struct {
	Code int32 `json:"code"`
}

func (*AuthResponse) EventName() string { return "AuthResponse" }

// RawFrame 携带已编码正文的帧，由调用方指定协议版本和操作码
type RawFrame struct {
	Body     []byte
	Protover Protover
	Op       Op
}

func (*RawFrame) EventName() string { return "RawFrame" }

// isNilEvent 事件为 nil 接口或 nil 指针
func isNilEvent(ev Event) bool {
	if ev == nil {
		return true
	}
	v := reflect.ValueOf(ev)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Ptr 返回 v 的指针，用于填写 Auth 的可选字段
func Ptr[T any](v T) *T {
	return &v
}

var (
	errMissingRoomID = errors.New("auth: missing required field roomid")
	errMissingCode   = errors.New("auth response: missing required field code")
)

// marshalJSON 紧凑 JSON，不转义 HTML 字符
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// MarshalBody 编码心跳正文
func (e *Heartbeat) MarshalBody() ([]byte, error) {
	return e.Content, nil
}

// UnmarshalHeartbeat 解码心跳正文
func UnmarshalHeartbeat(body []byte) (*Heartbeat, error) {
	return &Heartbeat{Content: bytes.Clone(body)}, nil
}

// MarshalBody 编码心跳回复正文
func (e *HeartbeatResponse) MarshalBody() ([]byte, error) {
	buf := make([]byte, 4+len(e.Content))
	binary.BigEndian.PutUint32(buf, e.Popularity)
	copy(buf[4:], e.Content)
	return buf, nil
}

// UnmarshalHeartbeatResponse 解码心跳回复正文，附加内容不一定为空。
// 不足 4 字节时按已有字节的大端值计算人气值。
func UnmarshalHeartbeatResponse(body []byte) (*HeartbeatResponse, error) {
	if len(body) >= 4 {
		return &HeartbeatResponse{
			Popularity: binary.BigEndian.Uint32(body[:4]),
			Content:    bytes.Clone(body[4:]),
		}, nil
	}
	var popularity uint32
	for _, b := range body {
		popularity = popularity<<8 | uint32(b)
	}
	return &HeartbeatResponse{Popularity: popularity, Content: []byte{}}, nil
}

// MarshalBody 编码认证正文
func (e *Auth) MarshalBody() ([]byte, error) {
	return marshalJSON(e)
}

// UnmarshalAuth 解码认证正文，roomid 必填
func UnmarshalAuth(body []byte) (*Auth, error) {
	fields, err := objectFields(body)
	if err != nil {
		return nil, err
	}

	a := &Auth{}
	roomID, err := field[int64](fields, "roomid")
	if err != nil {
		return nil, err
	}
	if roomID == nil {
		return nil, errMissingRoomID
	}
	a.RoomID = *roomID

	if a.UID, err = field[int64](fields, "uid"); err != nil {
		return nil, err
	}
	if a.Protover, err = field[int](fields, "protover"); err != nil {
		return nil, err
	}
	if a.Platform, err = field[string](fields, "platform"); err != nil {
		return nil, err
	}
	if a.Type, err = field[int](fields, "type"); err != nil {
		return nil, err
	}
	if a.Key, err = field[string](fields, "key"); err != nil {
		return nil, err
	}
	return a, nil
}

// MarshalBody 编码认证回复正文
func (e *AuthResponse) MarshalBody() ([]byte, error) {
	return marshalJSON(e)
}

// UnmarshalAuthResponse 解码认证回复正文，code 必填
func UnmarshalAuthResponse(body []byte) (*AuthResponse, error) {
	fields, err := objectFields(body)
	if err != nil {
		return nil, err
	}
	code, err := field[int32](fields, "code")
	if err != nil {
		return nil, err
	}
	if code == nil {
		return nil, errMissingCode
	}
	return &AuthResponse{Code: *code}, nil
}
