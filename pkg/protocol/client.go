package protocol

// ClientConn 客户端连接：发送 Auth、Heartbeat，接收 AuthResponse、HeartbeatResponse 和命令
type ClientConn struct {
	*Conn
}

// NewClientConn 创建客户端连接
func NewClientConn(opts ...Option) *ClientConn {
	return &ClientConn{Conn: Connect(RoleClient, opts...)}
}

type clientRules struct{}

func (clientRules) checkSend(c *Conn, ev Event) (State, error) {
	switch ev.(type) {
	case *Heartbeat:
		if c.phase != StateAuthenticated {
			return 0, localErrorf("connection is not authenticated")
		}
	case *Auth:
		switch c.phase {
		case StateAuthenticating:
			return 0, localErrorf("connection is already authenticating")
		case StateAuthenticated:
			return 0, localErrorf("connection is already authenticated")
		}
		return StateAuthenticating, nil
	case *RawFrame:
	default:
		return 0, localErrorf("unknown event: %s", ev.EventName())
	}
	return c.state, nil
}

func (clientRules) checkReceive(c *Conn, ev Event) error {
	switch e := ev.(type) {
	case NeedData:
	case *HeartbeatResponse, Command:
		if c.phase != StateAuthenticated {
			return remoteErrorf("connection is not authenticated, but received a %s", ev.EventName())
		}
	case *AuthResponse:
		switch {
		case c.phase == StateAuthenticated:
			return remoteErrorf("connection is already authenticated, but received a %s", ev.EventName())
		case c.phase != StateAuthenticating:
			return remoteErrorf("connection is not authenticating, but received a %s", ev.EventName())
		case e.Code != 0:
			return remoteErrorf("authentication failed (code: %d)", e.Code)
		}
		c.setState(StateAuthenticated)
	default:
		return remoteErrorf("unknown event: %s", ev.EventName())
	}
	return nil
}
