// Package client 以客户端身份连接直播间弹幕服务器：认证、定时心跳、把收到的命令交给 Handler。
//
// 协议核心只在 Run 所在的 goroutine 上被访问，读 goroutine 只负责把字节块送进 channel。
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/pkg/config"
	"github.com/qiminjie89/livebus/pkg/logger"
	"github.com/qiminjie89/livebus/pkg/metrics"
	"github.com/qiminjie89/livebus/pkg/protocol"
	"github.com/qiminjie89/livebus/pkg/transport"
)

var (
	// ErrAuthTimeout 在 AuthTimeout 内没有收到 AuthResponse
	ErrAuthTimeout = errors.New("client: auth timeout")
	// ErrClosedBeforeAuth 认证完成前对端关闭了连接
	ErrClosedBeforeAuth = errors.New("client: connection closed before auth")
)

const role = "client"

// Config 客户端配置
type Config struct {
	URL               string
	RoomID            int64
	UID               int64
	Key               string
	Platform          string
	Protover          int
	Type              int // 0 表示不发送
	HeartbeatInterval time.Duration
	AuthTimeout       time.Duration
}

// ConfigFromUpstream 由 Relay 的上游配置生成客户端配置
func ConfigFromUpstream(up config.UpstreamConfig) Config {
	return Config{
		URL:               up.URL,
		RoomID:            up.RoomID,
		UID:               up.UID,
		Key:               up.Key,
		Platform:          up.Platform,
		Protover:          up.Protover,
		HeartbeatInterval: up.HeartbeatInterval,
		AuthTimeout:       up.AuthTimeout,
	}
}

// ProtocolOptions 把协议配置转换为连接选项
func ProtocolOptions(cfg config.ProtocolConfig) []protocol.Option {
	return []protocol.Option{
		protocol.WithMaxFrameSize(cfg.MaxFrameSize),
		protocol.WithMaxBatchSize(cfg.MaxBatchSize),
		protocol.WithStrictCommands(cfg.StrictCommands),
	}
}

// Handler 接收服务器推送
type Handler interface {
	OnCommand(cmd protocol.Command)
	OnHeartbeatResponse(resp *protocol.HeartbeatResponse)
}

// HandlerFuncs 用函数实现 Handler，nil 字段忽略对应事件
type HandlerFuncs struct {
	Command           func(cmd protocol.Command)
	HeartbeatResponse func(resp *protocol.HeartbeatResponse)
}

func (h HandlerFuncs) OnCommand(cmd protocol.Command) {
	if h.Command != nil {
		h.Command(cmd)
	}
}

func (h HandlerFuncs) OnHeartbeatResponse(resp *protocol.HeartbeatResponse) {
	if h.HeartbeatResponse != nil {
		h.HeartbeatResponse(resp)
	}
}

// Client 直播间客户端，不做重连，断线后由调用方决定是否重新 Run
type Client struct {
	cfg  Config
	opts []protocol.Option
	log  *zap.Logger
}

// New 创建客户端，opts 追加在默认选项之后
func New(cfg Config, opts ...protocol.Option) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = 10 * time.Second
	}
	log := logger.L().With(zap.Int64("room_id", cfg.RoomID))

	base := []protocol.Option{
		protocol.WithLogger(log),
		protocol.WithWarningHandler(func(w *protocol.UnknownCommandWarning) {
			metrics.UnknownCommands.WithLabelValues(w.Kind.String(), w.Cmd).Inc()
			log.Warn(w.Kind.String(), zap.String("cmd", w.Cmd), zap.Error(w.Err))
		}),
	}
	return &Client{
		cfg:  cfg,
		opts: append(base, opts...),
		log:  log,
	}
}

// authEvent 构造认证包，零值字段不发送
func (c *Client) authEvent() *protocol.Auth {
	auth := &protocol.Auth{
		RoomID: c.cfg.RoomID,
		UID:    protocol.Ptr(c.cfg.UID),
	}
	if c.cfg.Protover != 0 {
		auth.Protover = protocol.Ptr(c.cfg.Protover)
	}
	if c.cfg.Platform != "" {
		auth.Platform = protocol.Ptr(c.cfg.Platform)
	}
	if c.cfg.Type != 0 {
		auth.Type = protocol.Ptr(c.cfg.Type)
	}
	if c.cfg.Key != "" {
		auth.Key = protocol.Ptr(c.cfg.Key)
	}
	return auth
}

type chunk struct {
	data []byte
	err  error
}

// Run 连接、认证并持续接收，直到 ctx 取消（返回 nil）或连接出错/关闭
func (c *Client) Run(ctx context.Context, h Handler) error {
	conn, err := transport.Dial(ctx, c.cfg.URL)
	if err != nil {
		return fmt.Errorf("client: dial %s: %w", c.cfg.URL, err)
	}
	defer conn.Close()

	s := &session{
		client: c,
		conn:   conn,
		proto:  protocol.NewClientConn(c.opts...),
		h:      h,
	}
	return s.run(ctx)
}

// session 一次连接的运行状态
type session struct {
	client *Client
	conn   transport.Conn
	proto  *protocol.ClientConn
	h      Handler

	heartbeat *time.Ticker
}

func (s *session) run(ctx context.Context) error {
	if err := s.send(s.client.authEvent()); err != nil {
		return err
	}

	chunks := make(chan chunk, 16)
	done := make(chan struct{})
	defer close(done)
	go s.readLoop(chunks, done)

	authTimer := time.NewTimer(s.client.cfg.AuthTimeout)
	defer authTimer.Stop()
	defer func() {
		if s.heartbeat != nil {
			s.heartbeat.Stop()
		}
	}()

	for {
		var tick <-chan time.Time
		if s.heartbeat != nil {
			tick = s.heartbeat.C
		}

		select {
		case <-ctx.Done():
			_, _ = s.proto.Send(protocol.ConnectionClosed{})
			s.client.log.Info("client stopped", zap.Error(ctx.Err()))
			return nil

		case <-authTimer.C:
			if s.proto.State() != protocol.StateAuthenticated {
				return ErrAuthTimeout
			}

		case <-tick:
			if err := s.send(&protocol.Heartbeat{}); err != nil {
				return err
			}

		case ch := <-chunks:
			if ch.err != nil && !errors.Is(ch.err, io.EOF) {
				return fmt.Errorf("client: read: %w", ch.err)
			}
			// io.EOF 时 data 为空，协议核心据此进入关闭流程并先交付已缓冲的帧
			if err := s.proto.ReceiveData(ch.data); err != nil {
				return s.protocolError(err)
			}
			closed, err := s.drain(authTimer)
			if closed || err != nil {
				return err
			}
		}
	}
}

// readLoop 读取字节块直到出错，出错（含 EOF）时把错误送出后退出
func (s *session) readLoop(out chan<- chunk, done <-chan struct{}) {
	for {
		data, err := s.conn.ReadChunk()
		if err == nil && len(data) == 0 {
			continue
		}
		select {
		case out <- chunk{data: data, err: err}:
		case <-done:
			return
		}
		if err != nil {
			return
		}
	}
}

// drain 取出所有已就绪的事件；连接关闭时 closed 为 true
func (s *session) drain(authTimer *time.Timer) (closed bool, err error) {
	for {
		ev, err := s.proto.NextEvent()
		if err != nil {
			return true, s.protocolError(err)
		}
		if _, ok := ev.(protocol.NeedData); ok {
			return false, nil
		}
		metrics.FramesReceived.WithLabelValues(role, ev.EventName()).Inc()

		switch e := ev.(type) {
		case protocol.ConnectionClosed:
			if s.heartbeat == nil {
				return true, ErrClosedBeforeAuth
			}
			s.client.log.Info("upstream closed the connection")
			return true, nil
		case *protocol.AuthResponse:
			authTimer.Stop()
			s.client.log.Info("authenticated")
			s.heartbeat = time.NewTicker(s.client.cfg.HeartbeatInterval)
			if err := s.send(&protocol.Heartbeat{}); err != nil {
				return true, err
			}
		case *protocol.HeartbeatResponse:
			s.h.OnHeartbeatResponse(e)
		case protocol.Command:
			s.h.OnCommand(e)
		}
	}
}

func (s *session) send(ev protocol.Event) error {
	data, err := s.proto.Send(ev)
	if err != nil {
		return s.protocolError(err)
	}
	if err := s.conn.WriteChunk(data); err != nil {
		return fmt.Errorf("client: write %s: %w", ev.EventName(), err)
	}
	metrics.FramesSent.WithLabelValues(role, ev.EventName()).Inc()
	return nil
}

func (s *session) protocolError(err error) error {
	side := "local"
	if protocol.IsRemote(err) {
		side = "remote"
	}
	metrics.ProtocolErrors.WithLabelValues(role, side).Inc()
	s.client.log.Warn("protocol error", zap.String("side", side), zap.Error(err))
	return err
}
