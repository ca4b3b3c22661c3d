package gateway

import (
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiminjie89/livebus/internal/bus"
	"github.com/qiminjie89/livebus/pkg/config"
	"github.com/qiminjie89/livebus/pkg/protocol"
)

type fakeConn struct {
	closed atomic.Bool
}

func (f *fakeConn) ReadChunk() ([]byte, error)       { return nil, io.EOF }
func (f *fakeConn) WriteChunk([]byte) error          { return nil }
func (f *fakeConn) Close() error                     { f.closed.Store(true); return nil }
func (f *fakeConn) RemoteAddr() string               { return "pipe" }
func (f *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (f *fakeConn) SetWriteDeadline(time.Time) error { return nil }

func newFakeConnection(t *testing.T, id string, roomID int64, cfg *config.GatewayConfig) (*Connection, *fakeConn) {
	t.Helper()
	fc := &fakeConn{}
	c := NewConnection(id, fc, protocol.NewServerConn(), cfg, nil)
	c.RoomID = roomID
	return c, fc
}

func dispatch(d *Distributor, roomID int64, p bus.Priority) {
	d.dispatch(&DispatchMessage{Priority: p, RoomID: roomID, Event: protocol.NewCommand("TEST")})
}

func TestDistributorPriorityDrop(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	cfg.Connection.SendChSize = 10
	cfg.Protection.MaxConsecutiveDrops = 1000

	c, _ := newFakeConnection(t, "c1", 7, cfg)
	d := NewDistributor(0, 16, &cfg.Protection)
	d.AddConn(c)
	require.Equal(t, 1, d.Len())

	for i := 0; i < 5; i++ {
		dispatch(d, 7, bus.PriorityLow)
	}
	require.Len(t, c.sendCh, 5)

	// 50%：丢 low
	dispatch(d, 7, bus.PriorityLow)
	assert.Len(t, c.sendCh, 5)
	assert.Equal(t, 1, c.health.ConsecutiveDrops)
	dispatch(d, 7, bus.PriorityNormal)
	dispatch(d, 7, bus.PriorityNormal)
	dispatch(d, 7, bus.PriorityNormal)
	assert.Len(t, c.sendCh, 8)
	assert.Equal(t, 0, c.health.ConsecutiveDrops)

	// 80%：丢 normal
	dispatch(d, 7, bus.PriorityNormal)
	assert.Len(t, c.sendCh, 8)
	dispatch(d, 7, bus.PriorityHigh)
	dispatch(d, 7, bus.PriorityHigh)
	assert.Len(t, c.sendCh, 10)

	// 队列满：critical 也进不去
	dispatch(d, 7, bus.PriorityCritical)
	assert.Len(t, c.sendCh, 10)
	assert.Equal(t, 3, c.health.DropCount)
}

func TestDistributorClosesSlowConnection(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	cfg.Connection.SendChSize = 2
	cfg.Protection.MaxConsecutiveDrops = 3

	c, fc := newFakeConnection(t, "slow", 7, cfg)
	d := NewDistributor(0, 16, &cfg.Protection)
	d.AddConn(c)

	dispatch(d, 7, bus.PriorityCritical)
	dispatch(d, 7, bus.PriorityCritical)
	for i := 0; i < 3; i++ {
		dispatch(d, 7, bus.PriorityLow)
	}

	select {
	case <-c.Done():
	default:
		t.Fatal("slow connection should be closed")
	}
	assert.True(t, fc.closed.Load())
}

func TestDistributorOnlyTargetsRoom(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	a, _ := newFakeConnection(t, "a", 1, cfg)
	b, _ := newFakeConnection(t, "b", 2, cfg)

	d := NewDistributor(0, 16, &cfg.Protection)
	d.AddConn(a)
	d.AddConn(b)

	dispatch(d, 1, bus.PriorityNormal)
	assert.Len(t, a.sendCh, 1)
	assert.Len(t, b.sendCh, 0)

	d.RemoveConn(a)
	d.RemoveConn(a)
	dispatch(d, 1, bus.PriorityNormal)
	assert.Len(t, a.sendCh, 1)
	assert.Equal(t, 1, d.Len())
}

func TestDistributorEnqueueFull(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	d := NewDistributor(0, 1, &cfg.Protection)
	msg := &DispatchMessage{RoomID: 1, Event: protocol.NewCommand("TEST")}
	assert.True(t, d.Enqueue(msg))
	assert.False(t, d.Enqueue(msg))
}

func TestRooms(t *testing.T) {
	cfg := config.DefaultGatewayConfig()
	a, _ := newFakeConnection(t, "a", 1, cfg)
	b, _ := newFakeConnection(t, "b", 1, cfg)

	r := NewRooms()
	assert.False(t, r.Has(1))
	r.Join(1, a)
	r.Join(1, b)
	r.Join(1, b)
	assert.True(t, r.Has(1))
	assert.Equal(t, uint32(2), r.Popularity(1))
	assert.Equal(t, 1, r.Len())

	r.Leave(1, "a")
	assert.Equal(t, uint32(1), r.Popularity(1))
	r.Leave(1, "b")
	r.Leave(1, "b")
	assert.False(t, r.Has(1))
	assert.Equal(t, uint32(0), r.Popularity(1))
	assert.Equal(t, 0, r.Len())
}

func TestShardFor(t *testing.T) {
	for _, id := range []string{"a", "b", "00000000-0000-0000-0000-000000000000"} {
		s := shardFor(id, 4)
		assert.GreaterOrEqual(t, s, 0)
		assert.Less(t, s, 4)
		assert.Equal(t, s, shardFor(id, 4))
	}
}
