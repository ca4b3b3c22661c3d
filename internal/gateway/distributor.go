package gateway

import (
	"context"
	"strconv"
	"sync"

	"github.com/qiminjie89/livebus/internal/bus"
	"github.com/qiminjie89/livebus/pkg/config"
	"github.com/qiminjie89/livebus/pkg/metrics"
	"github.com/qiminjie89/livebus/pkg/protocol"
)

// Distributor 负责消息分发的分片，持有本分片内连接的房间索引
type Distributor struct {
	id         int
	inputQueue chan *DispatchMessage
	rooms      map[int64]map[string]*Connection // room_id → conn_id → 连接
	mu         sync.RWMutex
	protection *config.ProtectionConfig
}

// DispatchMessage 分发消息
type DispatchMessage struct {
	Priority bus.Priority
	RoomID   int64
	Event    protocol.Event // Command 或 *protocol.RawFrame
}

// NewDistributor 创建 Distributor
func NewDistributor(id int, queueSize int, protection *config.ProtectionConfig) *Distributor {
	return &Distributor{
		id:         id,
		inputQueue: make(chan *DispatchMessage, queueSize),
		rooms:      make(map[int64]map[string]*Connection),
		protection: protection,
	}
}

// Run 运行 Distributor
func (d *Distributor) Run(ctx context.Context) {
	gauge := metrics.DistributorQueueSize.WithLabelValues(strconv.Itoa(d.id))
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.inputQueue:
			gauge.Set(float64(len(d.inputQueue)))
			d.dispatch(msg)
		}
	}
}

// Enqueue 入队消息，队列满时返回 false
func (d *Distributor) Enqueue(msg *DispatchMessage) bool {
	select {
	case d.inputQueue <- msg:
		return true
	default:
		return false
	}
}

// dispatch 分发给本分片内该房间的所有连接
func (d *Distributor) dispatch(msg *DispatchMessage) {
	d.mu.RLock()
	members := make([]*Connection, 0, len(d.rooms[msg.RoomID]))
	for _, conn := range d.rooms[msg.RoomID] {
		members = append(members, conn)
	}
	d.mu.RUnlock()

	// 慢连接会在 sendToConn 里被关闭并回调 RemoveConn，所以不能持锁投递
	for _, conn := range members {
		d.sendToConn(conn, msg)
	}
}

// sendToConn 按队列水位和优先级决定是否投递
func (d *Distributor) sendToConn(conn *Connection, msg *DispatchMessage) {
	queueRatio := conn.QueueUsage()
	metrics.GatewayQueueUsage.Observe(queueRatio)

	shouldDrop := false
	switch {
	case queueRatio >= d.protection.QueueCriticalRatio:
		shouldDrop = msg.Priority > bus.PriorityCritical
	case queueRatio >= d.protection.QueueSevereRatio:
		shouldDrop = msg.Priority > bus.PriorityHigh
	case queueRatio >= d.protection.QueueWarningRatio:
		shouldDrop = msg.Priority > bus.PriorityNormal
	}

	if shouldDrop {
		conn.health.DropCount++
		conn.health.ConsecutiveDrops++
		metrics.GatewayMessagesDropped.WithLabelValues(msg.Priority.String()).Inc()
		d.checkAndCloseSlowConn(conn)
		return
	}

	if !conn.Send(msg.Event) {
		metrics.GatewayMessagesDropped.WithLabelValues(msg.Priority.String()).Inc()
		d.checkAndCloseSlowConn(conn)
	}
}

// checkAndCloseSlowConn 连续丢弃过多时关闭慢连接
func (d *Distributor) checkAndCloseSlowConn(conn *Connection) {
	if conn.health.ConsecutiveDrops >= d.protection.MaxConsecutiveDrops {
		conn.Close("consecutive_drops_exceeded")
	}
}

// AddConn 添加连接
func (d *Distributor) AddConn(conn *Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.rooms[conn.RoomID]
	if !ok {
		members = make(map[string]*Connection)
		d.rooms[conn.RoomID] = members
	}
	members[conn.ID] = conn
}

// RemoveConn 移除连接
func (d *Distributor) RemoveConn(conn *Connection) {
	d.mu.Lock()
	defer d.mu.Unlock()

	members, ok := d.rooms[conn.RoomID]
	if !ok {
		return
	}
	delete(members, conn.ID)
	if len(members) == 0 {
		delete(d.rooms, conn.RoomID)
	}
}

// Len 本分片内的连接数
func (d *Distributor) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	n := 0
	for _, members := range d.rooms {
		n += len(members)
	}
	return n
}
