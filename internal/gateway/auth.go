package gateway

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/pkg/auth"
	"github.com/qiminjie89/livebus/pkg/logger"
	"github.com/qiminjie89/livebus/pkg/metrics"
	"github.com/qiminjie89/livebus/pkg/protocol"
	"github.com/qiminjie89/livebus/pkg/transport"
)

var (
	ErrAuthTimeout      = errors.New("authentication timeout")
	ErrClosedBeforeAuth = errors.New("connection closed before authentication")
	ErrMissingKey       = errors.New("missing room key")
)

// serveConn 完成认证握手后运行连接的读写循环，返回时连接已关闭
func (s *Server) serveConn(conn transport.Conn) {
	proto := protocol.NewServerConn(s.protoOpts...)

	req, err := s.readAuth(conn, proto)
	if err != nil {
		result := "invalid"
		if errors.Is(err, ErrAuthTimeout) {
			result = "timeout"
		}
		metrics.GatewayAuthResults.WithLabelValues(result).Inc()
		logger.Debug("auth handshake failed",
			zap.String("remote_addr", conn.RemoteAddr()),
			zap.Error(err),
		)
		conn.Close()
		return
	}

	claims, err := s.authenticate(req)
	if err != nil {
		metrics.GatewayAuthResults.WithLabelValues("rejected").Inc()
		logger.Warn("authentication failed",
			zap.Int64("room_id", req.RoomID),
			zap.String("remote_addr", conn.RemoteAddr()),
			zap.Error(err),
		)
		s.writeAuthResponse(conn, proto, s.cfg.Auth.FailureCode)
		conn.Close()
		return
	}

	if !s.writeAuthResponse(conn, proto, 0) {
		conn.Close()
		return
	}
	metrics.GatewayAuthResults.WithLabelValues("ok").Inc()
	_ = conn.SetReadDeadline(time.Time{})

	c := NewConnection(uuid.New().String(), conn, proto, s.cfg, s)
	c.RoomID = req.RoomID
	c.UID = claims.UID
	s.addConnection(c)

	c.log.Info("new connection",
		zap.Int64("room_id", c.RoomID),
		zap.Int64("uid", c.UID),
	)

	go c.writeLoop()
	c.readLoop()
}

// readAuth 在握手超时内读取第一个事件，必须是 Auth
func (s *Server) readAuth(conn transport.Conn, proto *protocol.ServerConn) (*protocol.Auth, error) {
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.WebSocket.HandshakeTimeout))

	for {
		ev, err := proto.NextEvent()
		if err != nil {
			return nil, err
		}

		switch e := ev.(type) {
		case *protocol.Auth:
			return e, nil
		case protocol.ConnectionClosed:
			return nil, ErrClosedBeforeAuth
		case protocol.NeedData:
			data, err := conn.ReadChunk()
			switch {
			case err == nil:
			case errors.Is(err, io.EOF):
				data = nil
			case transport.IsTimeout(err):
				return nil, ErrAuthTimeout
			default:
				return nil, err
			}
			if err := proto.ReceiveData(data); err != nil {
				return nil, err
			}
		}
	}
}

// authenticate 校验 Auth 包中的 key
func (s *Server) authenticate(req *protocol.Auth) (*auth.Claims, error) {
	var uid int64
	if req.UID != nil {
		uid = *req.UID
	}

	if req.Key == nil || *req.Key == "" {
		if s.cfg.Auth.AllowAnonymous {
			return &auth.Claims{UID: uid, RoomID: req.RoomID}, nil
		}
		return nil, ErrMissingKey
	}

	if s.cfg.Auth.AllowDevKeys {
		return s.validator.ValidateOrMock(*req.Key, uid, req.RoomID)
	}
	return s.validator.ValidateRoomKey(*req.Key, req.RoomID)
}

// writeAuthResponse 发送认证结果，code 非 0 时协议状态机随之关闭
func (s *Server) writeAuthResponse(conn transport.Conn, proto *protocol.ServerConn, code int32) bool {
	data, err := proto.Send(&protocol.AuthResponse{Code: code})
	if err != nil {
		logger.Warn("encode auth response failed", zap.Error(err))
		return false
	}

	_ = conn.SetWriteDeadline(time.Now().Add(s.cfg.Protection.WriteTimeout))
	if err := conn.WriteChunk(data); err != nil {
		logger.Debug("write auth response failed", zap.Error(err))
		return false
	}
	return true
}
