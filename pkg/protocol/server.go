package protocol

import (
	"bytes"
)

// ServerConn 服务端连接：接收 Auth、Heartbeat，发送 AuthResponse、HeartbeatResponse 和命令
type ServerConn struct {
	*Conn
}

// NewServerConn 创建服务端连接
func NewServerConn(opts ...Option) *ServerConn {
	return &ServerConn{Conn: Connect(RoleServer, opts...)}
}

// MultiSend 把多条命令打包成一个压缩的批量帧（protover 2: zlib，3: brotli）。
// 每条命令先单独成帧（protover 0, op 5），拼接后整体压缩，再包一层外帧。
func (s *ServerConn) MultiSend(events []Event, protover Protover) ([]byte, error) {
	c := s.Conn
	if c.state == StateClosed {
		return nil, localErrorf("connection is closed")
	}
	if c.phase != StateAuthenticated {
		return nil, localErrorf("connection is not authenticated")
	}
	codec, ok := c.opts.codecs[protover]
	if !ok || protover == ProtoverCommand || protover == ProtoverControl {
		return nil, localErrorf("unknown protover: %d", protover)
	}

	var plain bytes.Buffer
	for _, ev := range events {
		if isNilEvent(ev) {
			return nil, errNilEvent
		}
		var body []byte
		switch e := ev.(type) {
		case Command:
			b, err := MarshalCommand(e)
			if err != nil {
				return nil, &LocalProtocolError{Msg: "encode " + e.CommandName(), Err: err}
			}
			body = b
		case *RawFrame:
			body = e.Body
		default:
			return nil, localErrorf("unknown event: %s", ev.EventName())
		}
		plain.Write(NewHeader(len(body), ProtoverCommand, OpCommand).Encode())
		plain.Write(body)
	}

	compressed, err := codec.Compress(plain.Bytes())
	if err != nil {
		return nil, &LocalProtocolError{Msg: "compress batch", Err: err}
	}
	return EncodeFrame(compressed, protover, OpCommand), nil
}

type serverRules struct{}

func (serverRules) checkSend(c *Conn, ev Event) (State, error) {
	switch e := ev.(type) {
	case *HeartbeatResponse, Command:
		if c.phase != StateAuthenticated {
			return 0, localErrorf("connection is not authenticated")
		}
	case *AuthResponse:
		switch c.phase {
		case StateAuthenticated:
			return 0, localErrorf("connection is already authenticated")
		case StateAuthenticating:
		default:
			return 0, localErrorf("connection is not authenticating")
		}
		if e.Code != 0 {
			return StateClosed, nil
		}
		return StateAuthenticated, nil
	case *RawFrame:
	default:
		return 0, localErrorf("unknown event: %s", ev.EventName())
	}
	return c.state, nil
}

func (serverRules) checkReceive(c *Conn, ev Event) error {
	switch ev.(type) {
	case NeedData:
	case *Heartbeat:
		if c.phase != StateAuthenticated {
			return remoteErrorf("connection is not authenticated, but received a %s", ev.EventName())
		}
	case *Auth:
		switch c.phase {
		case StateAuthenticated:
			return remoteErrorf("connection is already authenticated, but received a %s", ev.EventName())
		case StateAuthenticating:
			return remoteErrorf("connection is already authenticating, but received a %s", ev.EventName())
		}
		c.setState(StateAuthenticating)
	default:
		return remoteErrorf("unknown event: %s", ev.EventName())
	}
	return nil
}
