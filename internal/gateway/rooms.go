package gateway

import (
	"sync"

	"github.com/qiminjie89/livebus/pkg/metrics"
)

// Rooms 本地房间成员表：room_id → conn_id → 连接
type Rooms struct {
	mu    sync.RWMutex
	rooms map[int64]map[string]*Connection
}

// NewRooms 创建房间表
func NewRooms() *Rooms {
	return &Rooms{
		rooms: make(map[int64]map[string]*Connection),
	}
}

// Join 把连接加入房间
func (r *Rooms) Join(roomID int64, conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		members = make(map[string]*Connection)
		r.rooms[roomID] = members
		metrics.GatewayRooms.Inc()
	}
	members[conn.ID] = conn
}

// Leave 把连接移出房间，房间空了就删除
func (r *Rooms) Leave(roomID int64, connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, roomID)
		metrics.GatewayRooms.Dec()
	}
}

// Popularity 房间人气值，取本地在线人数
func (r *Rooms) Popularity(roomID int64) uint32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return uint32(len(r.rooms[roomID]))
}

// Has 房间在本地是否有成员
func (r *Rooms) Has(roomID int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[roomID]
	return ok
}

// Len 有成员的房间数
func (r *Rooms) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}
