package protocol

import (
	"fmt"
)

// Role 连接角色
type Role int

const (
	RoleClient Role = iota + 1
	RoleServer
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleServer:
		return "server"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// State 连接状态。Closed 为终态，不会再迁出。
type State int

const (
	StateConnected      State = iota // 已连接，未认证
	StateAuthenticating              // 认证中
	StateAuthenticated               // 已认证
	StateClosed                      // 已关闭
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// rules 角色相关的合法性检查
type rules interface {
	// checkSend 检查事件能否发送，返回发送成功后的新状态
	checkSend(c *Conn, ev Event) (State, error)
	// checkReceive 检查收到的事件，必要时推进状态
	checkReceive(c *Conn, ev Event) error
}

// Conn 协议连接核心：单线程、无 I/O 的状态机。
//
// buf 保存传输层收到的原始字节；batch 保存一个已解压的批量包，
// batch 非空时 NextEvent 总是先从 batch 取子帧，再看 buf。
type Conn struct {
	role  Role
	rules rules
	opts  options

	state State
	phase State // 进入 Closed 前的最后状态，用于关闭后继续排空已缓冲的帧

	buf     []byte
	batch   []byte
	current *Header // 已解析帧头、等待正文
}

// Connect 按角色创建连接
func Connect(role Role, opts ...Option) *Conn {
	c := &Conn{
		role:  role,
		opts:  newOptions(opts),
		state: StateConnected,
		phase: StateConnected,
	}
	switch role {
	case RoleClient:
		c.rules = clientRules{}
	case RoleServer:
		c.rules = serverRules{}
	default:
		panic(fmt.Sprintf("protocol: unknown role %d", int(role)))
	}
	return c
}

// Role 返回连接角色
func (c *Conn) Role() Role { return c.role }

// State 返回当前状态
func (c *Conn) State() State { return c.state }

// Registry 返回连接使用的命令注册表
func (c *Conn) Registry() *Registry { return c.opts.registry }

// Buffered 返回尚未解析的字节数（含已解压未取出的批量子帧）
func (c *Conn) Buffered() int { return len(c.buf) + len(c.batch) }

func (c *Conn) setState(s State) {
	if c.state == StateClosed {
		return
	}
	if s != StateClosed {
		c.phase = s
	}
	c.state = s
}

// fail 对端违规：关闭连接并丢弃缓冲区
func (c *Conn) fail() {
	c.setState(StateClosed)
	c.buf = nil
	c.batch = nil
	c.current = nil
}

// Send 校验事件在当前角色和状态下是否合法，返回需要写入传输层的完整帧。
// 发送 ConnectionClosed 会关闭连接并返回 nil。
func (c *Conn) Send(ev Event) ([]byte, error) {
	switch ev.(type) {
	case ConnectionClosed, *ConnectionClosed:
		c.setState(StateClosed)
		return nil, nil
	}
	if isNilEvent(ev) {
		return nil, errNilEvent
	}
	if c.state == StateClosed {
		return nil, localErrorf("connection is closed")
	}

	next, err := c.rules.checkSend(c, ev)
	if err != nil {
		return nil, err
	}
	data, err := Frame(ev)
	if err != nil {
		return nil, &LocalProtocolError{Msg: "encode " + ev.EventName(), Err: err}
	}
	c.setState(next)
	return data, nil
}

// ReceiveData 追加传输层收到的字节。空输入表示对端关闭（EOF），连接进入 Closed。
func (c *Conn) ReceiveData(data []byte) error {
	if len(data) == 0 {
		c.setState(StateClosed)
		return nil
	}
	if c.state == StateClosed {
		return remoteErrorf("connection is closed")
	}
	c.buf = append(c.buf, data...)
	return nil
}

// NextEvent 取出下一个事件。
//
// 返回 NeedData 表示需要更多数据；连接关闭且缓冲区已排空后返回 ConnectionClosed。
// 解析失败或事件违反认证状态机时返回 *RemoteProtocolError，连接同时被关闭。
func (c *Conn) NextEvent() (Event, error) {
	ev, err := c.parse()
	if err == nil {
		err = c.rules.checkReceive(c, ev)
	}
	if err != nil {
		c.fail()
		return nil, asRemote(err)
	}
	if _, ok := ev.(NeedData); ok && c.state == StateClosed {
		return ConnectionClosed{}, nil
	}
	return ev, nil
}

// Events 反复调用 NextEvent，返回当前缓冲区内所有完整的事件。
// 最后一个事件是 NeedData 或 ConnectionClosed 时停止（不包含在结果中）。
func (c *Conn) Events() ([]Event, error) {
	var events []Event
	for {
		ev, err := c.NextEvent()
		if err != nil {
			return events, err
		}
		switch ev.(type) {
		case NeedData:
			return events, nil
		case ConnectionClosed:
			return append(events, ev), nil
		}
		events = append(events, ev)
	}
}

func (c *Conn) parse() (Event, error) {
	for {
		if len(c.batch) > 0 {
			return c.parseBatched()
		}

		if c.current == nil {
			if len(c.buf) < HeaderSize {
				return NeedData{Size: HeaderSize - len(c.buf)}, nil
			}
			h, err := DecodeHeader(c.buf, 0)
			if err != nil {
				return nil, err
			}
			if err := c.checkHeader(h); err != nil {
				return nil, err
			}
			c.current = &h
		}

		h := *c.current
		if len(c.buf) < int(h.Size) {
			return NeedData{Size: int(h.Size) - len(c.buf)}, nil
		}
		c.current = nil

		ev, err := c.dispatch(h, c.buf[h.HeaderSize:h.Size])
		if err != nil {
			return nil, err
		}
		c.buf = c.buf[h.Size:]
		if len(c.buf) == 0 {
			c.buf = nil
		}
		if ev != nil {
			return ev, nil
		}
		// 批量包已解压进 batch，下一轮从 batch 取
	}
}

func (c *Conn) checkHeader(h Header) error {
	if h.HeaderSize < HeaderSize {
		return remoteErrorf("invalid header size: %d", h.HeaderSize)
	}
	if h.Size < uint32(h.HeaderSize) {
		return remoteErrorf("invalid frame size: %d (header size %d)", h.Size, h.HeaderSize)
	}
	if c.opts.maxFrameSize > 0 && h.Size > uint32(c.opts.maxFrameSize) {
		return remoteErrorf("frame too large: %d", h.Size)
	}
	return nil
}

// parseBatched 从已解压的批量包中取出一个子帧，子帧总是命令
func (c *Conn) parseBatched() (Event, error) {
	h, err := DecodeHeader(c.batch, 0)
	if err != nil {
		return nil, remoteErrorf("truncated batch: %d bytes left", len(c.batch))
	}
	if h.HeaderSize < HeaderSize || h.Size < uint32(h.HeaderSize) || int(h.Size) > len(c.batch) {
		return nil, remoteErrorf("truncated batch frame: size %d, %d bytes left", h.Size, len(c.batch))
	}
	cmd, err := c.decodeCommand(c.batch[h.HeaderSize:h.Size])
	if err != nil {
		return nil, err
	}
	c.batch = c.batch[h.Size:]
	if len(c.batch) == 0 {
		c.batch = nil
	}
	return cmd, nil
}

// dispatch 按操作码解码正文。批量包解压进 batch 后返回 nil 事件。
func (c *Conn) dispatch(h Header, body []byte) (Event, error) {
	var (
		ev  Event
		err error
	)
	switch h.Op {
	case OpHeartbeat:
		ev, err = UnmarshalHeartbeat(body)
	case OpHeartbeatResponse:
		ev, err = UnmarshalHeartbeatResponse(body)
	case OpAuth:
		ev, err = UnmarshalAuth(body)
	case OpAuthResponse:
		ev, err = UnmarshalAuthResponse(body)
	case OpCommand:
		if h.Protover == ProtoverCommand {
			return c.decodeCommand(body)
		}
		codec, ok := c.opts.codecs[h.Protover]
		if !ok {
			return nil, remoteErrorf("unknown protover: %d", h.Protover)
		}
		out, err := codec.Decompress(body, c.opts.maxBatchSize)
		if err != nil {
			return nil, &RemoteProtocolError{Msg: fmt.Sprintf("decompress protover %d", h.Protover), Err: err}
		}
		c.batch = append(c.batch, out...)
		return nil, nil
	default:
		return nil, remoteErrorf("unknown op: %d", uint32(h.Op))
	}
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (c *Conn) decodeCommand(body []byte) (Event, error) {
	cmd, warning, err := c.opts.registry.Decode(body, c.opts.strict)
	if err != nil {
		return nil, err
	}
	if warning != nil {
		c.opts.onWarning(warning)
	}
	return cmd, nil
}

var errNilEvent = localErrorf("unknown event: <nil>")

// ProtoverFor 返回事件上线时使用的协议版本和操作码
func ProtoverFor(ev Event) (Protover, Op, bool) {
	switch e := ev.(type) {
	case *RawFrame:
		return e.Protover, e.Op, true
	case Command:
		return ProtoverCommand, OpCommand, true
	case *Heartbeat:
		return ProtoverControl, OpHeartbeat, true
	case *HeartbeatResponse:
		return ProtoverControl, OpHeartbeatResponse, true
	case *Auth:
		return ProtoverControl, OpAuth, true
	case *AuthResponse:
		return ProtoverControl, OpAuthResponse, true
	default:
		return 0, 0, false
	}
}

// MarshalBody 编码事件正文
func MarshalBody(ev Event) ([]byte, error) {
	switch e := ev.(type) {
	case *RawFrame:
		return e.Body, nil
	case Command:
		return MarshalCommand(e)
	case *Heartbeat:
		return e.MarshalBody()
	case *HeartbeatResponse:
		return e.MarshalBody()
	case *Auth:
		return e.MarshalBody()
	case *AuthResponse:
		return e.MarshalBody()
	default:
		return nil, localErrorf("unknown event: %s", ev.EventName())
	}
}

// Frame 把事件编码为完整的帧，不做状态检查
func Frame(ev Event) ([]byte, error) {
	if isNilEvent(ev) {
		return nil, errNilEvent
	}
	protover, op, ok := ProtoverFor(ev)
	if !ok {
		return nil, localErrorf("unknown event: %s", ev.EventName())
	}
	body, err := MarshalBody(ev)
	if err != nil {
		return nil, err
	}
	return EncodeFrame(body, protover, op), nil
}
