// Package gateway 实现直播弹幕的广播接入层：客户端以直播间协议连接并认证，
// 总线上的命令按房间扇出到本地连接。
package gateway

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/qiminjie89/livebus/internal/bus"
	"github.com/qiminjie89/livebus/pkg/auth"
	"github.com/qiminjie89/livebus/pkg/config"
	"github.com/qiminjie89/livebus/pkg/kafka"
	"github.com/qiminjie89/livebus/pkg/logger"
	"github.com/qiminjie89/livebus/pkg/metrics"
	"github.com/qiminjie89/livebus/pkg/protocol"
	"github.com/qiminjie89/livebus/pkg/transport"
)

// Server Gateway 服务器
type Server struct {
	cfg *config.GatewayConfig

	transport *transport.WebSocketTransport
	validator *auth.JWTValidator
	protoOpts []protocol.Option

	// 连接管理
	conns  map[string]*Connection // conn_id → connection
	connMu sync.RWMutex

	rooms *Rooms

	// Distributor 分片
	distributors []*Distributor

	// Kafka 消费者（数据面）
	consumer *kafka.Consumer

	health    *healthServer
	startTime time.Time

	// 生命周期
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer 创建 Gateway 服务器
func NewServer(cfg *config.GatewayConfig) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		cfg: cfg,
		transport: transport.NewWebSocketTransport(transport.WebSocketConfig{
			Path:             cfg.Server.Path,
			ReadBufferSize:   cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:  cfg.WebSocket.WriteBufferSize,
			HandshakeTimeout: cfg.WebSocket.HandshakeTimeout,
		}),
		validator: auth.NewJWTValidator(cfg.Auth.Secret),
		protoOpts: []protocol.Option{
			// 服务端只接收 Auth 和 Heartbeat，不需要命令类型
			protocol.WithRegistry(protocol.NewRegistry()),
			protocol.WithMaxFrameSize(cfg.Protocol.MaxFrameSize),
			protocol.WithMaxBatchSize(cfg.Protocol.MaxBatchSize),
		},
		conns:     make(map[string]*Connection),
		rooms:     NewRooms(),
		startTime: time.Now(),
		ctx:       ctx,
		cancel:    cancel,
	}

	s.distributors = make([]*Distributor, cfg.Distributor.Shards)
	for i := 0; i < cfg.Distributor.Shards; i++ {
		s.distributors[i] = NewDistributor(i, cfg.Distributor.InputQueueSize, &cfg.Protection)
	}
	s.health = newHealthServer(s)

	return s
}

// Transport 返回 WebSocket 传输层，它同时是 http.Handler
func (s *Server) Transport() *transport.WebSocketTransport {
	return s.transport
}

// Start 启动服务
func (s *Server) Start() error {
	logger.Info("starting gateway server",
		zap.String("id", s.cfg.Server.ID),
		zap.String("addr", s.cfg.Server.Addr),
		zap.String("path", s.cfg.Server.Path),
	)

	if err := s.transport.Listen(s.cfg.Server.Addr); err != nil {
		return err
	}
	s.startWorkers()
	s.startKafkaConsumer(s.ctx)

	if err := s.health.start(); err != nil {
		return err
	}

	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Addr != "" {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := metrics.ListenAndServe(s.ctx, s.cfg.Metrics.Addr); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	logger.Info("gateway server started")
	return nil
}

// startWorkers 启动 Distributor 和接入循环
func (s *Server) startWorkers() {
	for _, d := range s.distributors {
		s.wg.Add(1)
		go func(dist *Distributor) {
			defer s.wg.Done()
			dist.Run(s.ctx)
		}(d)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.acceptLoop()
	}()
}

// acceptLoop 接受新连接，每个连接一个 goroutine 完成握手和读循环
func (s *Server) acceptLoop() {
	for {
		conn, err := s.transport.Accept()
		if err != nil {
			if s.ctx.Err() == nil {
				logger.Error("accept failed", zap.Error(err))
			}
			return
		}
		go s.serveConn(conn)
	}
}

// Stop 停止服务
func (s *Server) Stop() {
	logger.Info("stopping gateway server")
	s.cancel()
	_ = s.transport.Close()

	s.connMu.RLock()
	conns := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.RUnlock()
	for _, c := range conns {
		c.Close("server_shutdown")
	}

	s.health.stop()
	s.wg.Wait()

	if s.consumer != nil {
		_ = s.consumer.Close()
	}

	logger.Info("gateway server stopped")
}

// Broadcast 把事件广播给房间内的本地连接，返回是否全部入队
func (s *Server) Broadcast(roomID int64, ev protocol.Event, priority bus.Priority) bool {
	if !s.rooms.Has(roomID) {
		return false
	}
	metrics.GatewayBroadcastMessages.Inc()

	msg := &DispatchMessage{
		Priority: priority,
		RoomID:   roomID,
		Event:    ev,
	}
	ok := true
	for _, d := range s.distributors {
		if !d.Enqueue(msg) {
			metrics.GatewayMessagesDropped.WithLabelValues(priority.String()).Inc()
			ok = false
		}
	}
	return ok
}

// ConnCount 当前已认证的连接数
func (s *Server) ConnCount() int {
	s.connMu.RLock()
	defer s.connMu.RUnlock()
	return len(s.conns)
}

// Rooms 返回本地房间表
func (s *Server) Rooms() *Rooms {
	return s.rooms
}

// addConnection 登记连接并分配到 Distributor
func (s *Server) addConnection(c *Connection) {
	s.connMu.Lock()
	s.conns[c.ID] = c
	s.connMu.Unlock()

	c.distributor = s.distributors[shardFor(c.ID, len(s.distributors))]
	c.distributor.AddConn(c)
	s.rooms.Join(c.RoomID, c)

	metrics.GatewayConnections.Inc()
}

// removeConnection 由 Connection.Close 回调
func (s *Server) removeConnection(c *Connection) {
	s.connMu.Lock()
	_, ok := s.conns[c.ID]
	delete(s.conns, c.ID)
	s.connMu.Unlock()
	if !ok {
		return
	}

	c.distributor.RemoveConn(c)
	s.rooms.Leave(c.RoomID, c.ID)
	metrics.GatewayConnections.Dec()
}

// shardFor 计算连接所属分片
func shardFor(connID string, shards int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(connID))
	return int(h.Sum32() % uint32(shards))
}
