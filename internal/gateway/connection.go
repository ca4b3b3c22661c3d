package gateway

import (
	"errors"
	"io"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/pkg/config"
	"github.com/qiminjie89/livebus/pkg/logger"
	"github.com/qiminjie89/livebus/pkg/metrics"
	"github.com/qiminjie89/livebus/pkg/protocol"
	"github.com/qiminjie89/livebus/pkg/transport"
)

const role = "server"

// ctrlChSize 控制帧队列（心跳回复），不参与优先级丢弃
const ctrlChSize = 4

// Connection 表示一个已认证的客户端连接
type Connection struct {
	ID     string
	RoomID int64
	UID    int64

	conn transport.Conn

	// 协议状态机由读、写两个循环共用
	proto   *protocol.ServerConn
	protoMu sync.Mutex

	// 下行队列：广播命令走 sendCh，心跳回复走 ctrlCh
	sendCh chan protocol.Event
	ctrlCh chan protocol.Event

	// 健康度
	health ConnHealth

	// 所属 Distributor
	distributor *Distributor

	cfg *config.GatewayConfig

	closeOnce sync.Once
	closeCh   chan struct{}

	server *Server
	log    *zap.Logger
}

// ConnHealth 连接健康度。投递维度只由所属 Distributor 修改，写入维度只由写循环修改。
type ConnHealth struct {
	// 队列维度
	QueueFullSince time.Time

	// 投递维度
	DropCount        int
	ConsecutiveDrops int

	// 写入维度
	WriteTimeoutCount        int
	ConsecutiveWriteTimeouts int
	LastWriteTime            time.Time
}

// NewConnection 创建连接
func NewConnection(id string, conn transport.Conn, proto *protocol.ServerConn, cfg *config.GatewayConfig, server *Server) *Connection {
	return &Connection{
		ID:      id,
		conn:    conn,
		proto:   proto,
		sendCh:  make(chan protocol.Event, cfg.Connection.SendChSize),
		ctrlCh:  make(chan protocol.Event, ctrlChSize),
		cfg:     cfg,
		closeCh: make(chan struct{}),
		server:  server,
		log:     logger.L().With(zap.String("conn_id", id), zap.String("remote_addr", conn.RemoteAddr())),
	}
}

// readLoop 读循环：喂给协议核心，处理心跳，直到连接关闭
func (c *Connection) readLoop() {
	reason := "read_error"
	defer func() {
		c.Close(reason)
	}()

	// 握手时可能和 Auth 一起读入了后续帧
	events, err := c.receive(nil, false)
	for {
		if stop, why := c.handle(events, err); stop {
			reason = why
			return
		}

		if c.cfg.Connection.HeartbeatTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.Connection.HeartbeatTimeout))
		}
		data, readErr := c.conn.ReadChunk()
		switch {
		case readErr == nil:
		case errors.Is(readErr, io.EOF):
			data = nil
		case transport.IsTimeout(readErr):
			reason = "heartbeat_timeout"
			return
		default:
			c.log.Debug("connection read error", zap.Error(readErr))
			return
		}

		events, err = c.receive(data, true)
	}
}

// handle 处理已解析的事件，stop 为 true 时返回关闭原因
func (c *Connection) handle(events []protocol.Event, err error) (stop bool, reason string) {
	for _, ev := range events {
		switch ev.(type) {
		case *protocol.Heartbeat:
			c.sendControl(&protocol.HeartbeatResponse{Popularity: c.server.rooms.Popularity(c.RoomID)})
		case protocol.ConnectionClosed:
			return true, "client_closed"
		}
	}
	if err != nil {
		metrics.ProtocolErrors.WithLabelValues(role, "remote").Inc()
		c.log.Warn("protocol error", zap.Error(err))
		return true, "protocol_error"
	}
	return false, ""
}

// receive 在锁内把字节交给协议核心并取出已就绪的事件，feed 为 false 时只取缓冲中的事件
func (c *Connection) receive(data []byte, feed bool) ([]protocol.Event, error) {
	c.protoMu.Lock()
	defer c.protoMu.Unlock()

	if feed {
		if err := c.proto.ReceiveData(data); err != nil {
			return nil, err
		}
	}
	events, err := c.proto.Events()
	for _, ev := range events {
		metrics.FramesReceived.WithLabelValues(role, ev.EventName()).Inc()
	}
	return events, err
}

// sendControl 投递控制帧，队列满说明客户端心跳过于频繁，直接丢弃
func (c *Connection) sendControl(ev protocol.Event) {
	select {
	case c.ctrlCh <- ev:
	default:
	}
}

// writeLoop 写循环（带批量发送）
func (c *Connection) writeLoop() {
	ticker := time.NewTicker(c.cfg.Connection.BatchInterval)
	defer ticker.Stop()

	batch := make([]protocol.Event, 0, c.cfg.Connection.BatchMaxSize)

	for {
		select {
		case <-c.closeCh:
			return

		case ev := <-c.ctrlCh:
			if !c.flush([]protocol.Event{ev}) {
				return
			}

		case ev := <-c.sendCh:
			batch = append(batch, ev)
			if len(batch) >= c.cfg.Connection.BatchMaxSize {
				if !c.flush(batch) {
					return
				}
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				if !c.flush(batch) {
					return
				}
				batch = batch[:0]
			}
		}
	}
}

// encode 单条事件直接成帧，多条打包成压缩批量帧
func (c *Connection) encode(batch []protocol.Event) ([]byte, error) {
	c.protoMu.Lock()
	defer c.protoMu.Unlock()

	if len(batch) == 1 {
		return c.proto.Send(batch[0])
	}
	metrics.GatewayBatchSize.Observe(float64(len(batch)))
	return c.proto.MultiSend(batch, protocol.Protover(c.cfg.Protocol.BatchProtover))
}

func (c *Connection) protoState() protocol.State {
	c.protoMu.Lock()
	defer c.protoMu.Unlock()
	return c.proto.State()
}

// flush 带超时的写入，返回 false 表示连接已关闭
func (c *Connection) flush(batch []protocol.Event) bool {
	data, err := c.encode(batch)
	if err != nil {
		metrics.ProtocolErrors.WithLabelValues(role, "local").Inc()
		c.log.Warn("encode frame failed", zap.Int("events", len(batch)), zap.Error(err))
		if c.protoState() == protocol.StateClosed {
			c.Close("protocol_error")
			return false
		}
		return true
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.Protection.WriteTimeout))
	err = c.conn.WriteChunk(data)
	if err != nil {
		if transport.IsTimeout(err) {
			c.health.WriteTimeoutCount++
			c.health.ConsecutiveWriteTimeouts++
			metrics.GatewayWriteTimeouts.Inc()

			if c.health.ConsecutiveWriteTimeouts >= c.cfg.Protection.MaxConsecutiveWriteTimeouts {
				c.Close("write_timeout_exceeded")
				return false
			}
			return true
		}
		c.Close("write_error")
		return false
	}

	c.health.ConsecutiveWriteTimeouts = 0
	c.health.LastWriteTime = time.Now()
	for _, ev := range batch {
		metrics.FramesSent.WithLabelValues(role, ev.EventName()).Inc()
	}
	return true
}

// Send 发送消息到队列（非阻塞）
func (c *Connection) Send(ev protocol.Event) bool {
	select {
	case c.sendCh <- ev:
		c.health.ConsecutiveDrops = 0
		c.health.QueueFullSince = time.Time{}
		return true
	default:
		c.health.DropCount++
		c.health.ConsecutiveDrops++
		if c.health.QueueFullSince.IsZero() {
			c.health.QueueFullSince = time.Now()
		}
		return false
	}
}

// QueueUsage 返回队列使用率
func (c *Connection) QueueUsage() float64 {
	return float64(len(c.sendCh)) / float64(cap(c.sendCh))
}

// Done 连接关闭后返回的 channel 会被关闭
func (c *Connection) Done() <-chan struct{} {
	return c.closeCh
}

// Close 关闭连接
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.conn.Close()

		metrics.GatewayConnectionCloseReason.WithLabelValues(reason).Inc()

		c.log.Debug("connection closed", zap.String("reason", reason))

		if c.server != nil {
			c.server.removeConnection(c)
		}
	})
}
