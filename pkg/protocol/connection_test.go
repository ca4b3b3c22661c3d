package protocol

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"
)

const (
	authFrame         = "\x00\x00\x00\x22\x00\x10\x00\x01\x00\x00\x00\x07\x00\x00\x00\x00{\"roomid\":8131361}"
	authOKHeader      = "\x00\x00\x00\x1a\x00\x10\x00\x01\x00\x00\x00\x08\x00\x00\x00\x00"
	authOKFrame       = authOKHeader + `{"code":0}`
	heartbeatFrame    = "\x00\x00\x00\x10\x00\x10\x00\x01\x00\x00\x00\x02\x00\x00\x00\x00"
	heartbeatRspFrame = "\x00\x00\x00\x14\x00\x10\x00\x01\x00\x00\x00\x03\x00\x00\x00\x00\x00\x00\x00\x01"
)

// warnings 收集告警
type warnings []*UnknownCommandWarning

func (w *warnings) handle(warning *UnknownCommandWarning) {
	*w = append(*w, warning)
}

func newTestClient(w *warnings, opts ...Option) *ClientConn {
	base := []Option{WithRegistry(NewRegistry()), WithLogger(zap.NewNop())}
	if w != nil {
		base = append(base, WithWarningHandler(w.handle))
	}
	return NewClientConn(append(base, opts...)...)
}

// authenticate 完成客户端握手
func authenticate(t testing.TB, c *ClientConn) {
	t.Helper()
	_, err := c.Send(&Auth{RoomID: 8131361})
	require.NoError(t, err)
	require.NoError(t, c.ReceiveData([]byte(authOKFrame)))
	ev, err := c.NextEvent()
	require.NoError(t, err)
	require.Equal(t, &AuthResponse{Code: 0}, ev)
	require.Equal(t, StateAuthenticated, c.State())
}

func commandFrame(body string) []byte {
	return EncodeFrame([]byte(body), ProtoverCommand, OpCommand)
}

func TestConnectionScenario(t *testing.T) {
	var w warnings
	c := newTestClient(&w)

	data, err := c.Send(&Auth{RoomID: 8131361})
	require.NoError(t, err)
	assert.Equal(t, []byte(authFrame), data)
	assert.Equal(t, StateAuthenticating, c.State())

	ev, err := c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, NeedData{Size: 16}, ev)

	require.NoError(t, c.ReceiveData([]byte(authOKHeader)))
	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, NeedData{Size: 10}, ev)

	require.NoError(t, c.ReceiveData([]byte(`{"code":0}`)))
	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, &AuthResponse{Code: 0}, ev)
	assert.Equal(t, StateAuthenticated, c.State())

	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, NeedData{Size: 16}, ev)

	data, err = c.Send(&Heartbeat{})
	require.NoError(t, err)
	assert.Equal(t, []byte(heartbeatFrame), data)

	require.NoError(t, c.ReceiveData([]byte(heartbeatRspFrame[:16])))
	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, NeedData{Size: 4}, ev)
	require.NoError(t, c.ReceiveData([]byte(heartbeatRspFrame[16:])))
	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, &HeartbeatResponse{Popularity: 1, Content: []byte{}}, ev)
	assert.Empty(t, w)
}

func TestConnectionUnknownCommand(t *testing.T) {
	var w warnings
	c := newTestClient(&w)
	authenticate(t, c)

	body := `{"cmd":"UNKNOWN_COMMAND"}`
	require.NoError(t, c.ReceiveData(commandFrame(body)))
	ev, err := c.NextEvent()
	require.NoError(t, err)
	require.Implements(t, (*Command)(nil), ev)
	assert.Equal(t, "UNKNOWN_COMMAND", ev.(Command).CommandName())
	require.Len(t, w, 1)
	assert.Equal(t, "UNKNOWN_COMMAND", w[0].Cmd)
	assert.Equal(t, []byte(body), w[0].Body)

	require.NoError(t, c.ReceiveData(commandFrame(body)))
	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, "UNKNOWN_COMMAND", ev.(Command).CommandName())
	assert.Len(t, w, 1)
}

func TestConnectionCommandWithoutCmdKey(t *testing.T) {
	c := newTestClient(nil)
	authenticate(t, c)

	require.NoError(t, c.ReceiveData(commandFrame(`{"CMD":"X"}`)))
	_, err := c.NextEvent()
	assert.True(t, IsRemote(err))
	assert.ErrorIs(t, err, errMissingCmd)
	assert.Equal(t, StateClosed, c.State())
}

func TestConnectionWarningIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := NewClientConn(WithRegistry(NewRegistry()), WithLogger(zap.New(core)))
	authenticate(t, c)

	require.NoError(t, c.ReceiveData(commandFrame(`{"cmd":"STOP_LIVE_ROOM_LIST","data":{}}`)))
	_, err := c.NextEvent()
	require.NoError(t, err)

	entries := logs.FilterMessage("unknown_command").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "STOP_LIVE_ROOM_LIST", entries[0].ContextMap()["cmd"])
}

func TestConnectionCapturedZlibBatch(t *testing.T) {
	frame, err := os.ReadFile("testdata/zlib_batch.bin")
	require.NoError(t, err)

	var w warnings
	c := newTestClient(&w)
	authenticate(t, c)
	require.NoError(t, c.ReceiveData(frame))

	events, err := c.Events()
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "WATCHED_CHANGE", events[0].(Command).CommandName())
	assert.Equal(t, "INTERACT_WORD", events[1].(Command).CommandName())
	assert.Len(t, w, 2)
	assert.Equal(t, 0, c.Buffered())

	ev, err := c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, NeedData{Size: 16}, ev)
}

func TestConnectionCapturedBrotliBatch(t *testing.T) {
	frame, err := os.ReadFile("testdata/brotli_batch.bin")
	require.NoError(t, err)

	c := newTestClient(nil)
	authenticate(t, c)
	require.NoError(t, c.ReceiveData(frame))

	ev, err := c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, "INTERACT_WORD", ev.(Command).CommandName())

	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, NeedData{Size: 16}, ev)
}

func TestConnectionRemoteErrors(t *testing.T) {
	tests := []struct {
		name  string
		opts  []Option
		frame string
		msg   string
	}{
		{
			name:  "unknown protover",
			frame: "\x00\x00\x00\x10\x00\x10\x00\x01\x00\x00\x00\x05\x00\x00\x00\x00",
			msg:   "unknown protover: 1",
		},
		{
			name:  "unknown op",
			frame: "\x00\x00\x00\x10\x00\x10\x00\x00\x00\x00\x00\x00\x00\x00\x00\x00",
			msg:   "unknown op: 0",
		},
		{
			name:  "header size too small",
			frame: "\x00\x00\x00\x10\x00\x08\x00\x00\x00\x00\x00\x05\x00\x00\x00\x00",
			msg:   "invalid header size: 8",
		},
		{
			name:  "size smaller than header",
			frame: "\x00\x00\x00\x04\x00\x10\x00\x00\x00\x00\x00\x05\x00\x00\x00\x00",
			msg:   "invalid frame size: 4 (header size 16)",
		},
		{
			name:  "frame too large",
			opts:  []Option{WithMaxFrameSize(64)},
			frame: "\x00\x00\x00\x41\x00\x10\x00\x00\x00\x00\x00\x05\x00\x00\x00\x00",
			msg:   "frame too large: 65",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(nil, tt.opts...)
			authenticate(t, c)
			require.NoError(t, c.ReceiveData([]byte(tt.frame)))

			_, err := c.NextEvent()
			var remote *RemoteProtocolError
			require.ErrorAs(t, err, &remote)
			assert.Equal(t, tt.msg, remote.Error())
			assert.Equal(t, StateClosed, c.State())

			// 出错后缓冲区被丢弃
			ev, err := c.NextEvent()
			require.NoError(t, err)
			assert.Equal(t, ConnectionClosed{}, ev)
		})
	}
}

func TestConnectionBatchLimits(t *testing.T) {
	plain := append(commandFrame(`{"cmd":"A"}`), commandFrame(`{"cmd":"B"}`)...)
	compressed, err := ZlibCodec{}.Compress(plain)
	require.NoError(t, err)
	batch := EncodeFrame(compressed, ProtoverZlib, OpCommand)

	t.Run("decompressed too large", func(t *testing.T) {
		c := newTestClient(nil, WithMaxBatchSize(len(plain)-1))
		authenticate(t, c)
		require.NoError(t, c.ReceiveData(batch))
		_, err := c.NextEvent()
		assert.True(t, IsRemote(err))
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("truncated sub frame", func(t *testing.T) {
		truncated, err := ZlibCodec{}.Compress(plain[:len(plain)-3])
		require.NoError(t, err)
		c := newTestClient(nil)
		authenticate(t, c)
		require.NoError(t, c.ReceiveData(EncodeFrame(truncated, ProtoverZlib, OpCommand)))

		ev, err := c.NextEvent()
		require.NoError(t, err)
		assert.Equal(t, "A", ev.(Command).CommandName())
		_, err = c.NextEvent()
		assert.True(t, IsRemote(err))
		assert.Equal(t, StateClosed, c.State())
	})

	t.Run("corrupt stream", func(t *testing.T) {
		c := newTestClient(nil)
		authenticate(t, c)
		require.NoError(t, c.ReceiveData(EncodeFrame([]byte("garbage"), ProtoverZlib, OpCommand)))
		_, err := c.NextEvent()
		assert.True(t, IsRemote(err))
	})
}

func TestConnectionDrainsAfterEOF(t *testing.T) {
	c := newTestClient(nil)
	authenticate(t, c)

	require.NoError(t, c.ReceiveData(append(commandFrame(`{"cmd":"A"}`), heartbeatRspFrame...)))
	require.NoError(t, c.ReceiveData(nil))
	assert.Equal(t, StateClosed, c.State())

	ev, err := c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, "A", ev.(Command).CommandName())

	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, &HeartbeatResponse{Popularity: 1, Content: []byte{}}, ev)

	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, ConnectionClosed{}, ev)

	// 关闭后持续轮询仍然是 ConnectionClosed
	ev, err = c.NextEvent()
	require.NoError(t, err)
	assert.Equal(t, ConnectionClosed{}, ev)
}

func TestConnectionClosedAfterPartialFrame(t *testing.T) {
	c := newTestClient(nil)
	authenticate(t, c)

	require.NoError(t, c.ReceiveData([]byte(heartbeatRspFrame[:10])))
	require.NoError(t, c.ReceiveData(nil))

	events, err := c.Events()
	require.NoError(t, err)
	assert.Equal(t, []Event{ConnectionClosed{}}, events)
}

func TestConnectionReceiveAfterClose(t *testing.T) {
	c := newTestClient(nil)
	require.NoError(t, c.ReceiveData(nil))
	assert.Equal(t, StateClosed, c.State())

	_, err := c.Send(&Heartbeat{})
	var local *LocalProtocolError
	require.ErrorAs(t, err, &local)
	assert.Equal(t, "connection is closed", local.Error())

	err = c.ReceiveData([]byte("x"))
	var remote *RemoteProtocolError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "connection is closed", remote.Error())

	assert.NoError(t, c.ReceiveData(nil))
}

func TestConnectionSendClose(t *testing.T) {
	c := newTestClient(nil)

	data, err := c.Send(ConnectionClosed{})
	require.NoError(t, err)
	assert.Nil(t, data)
	assert.Equal(t, StateClosed, c.State())

	data, err = c.Send(&ConnectionClosed{})
	require.NoError(t, err)
	assert.Nil(t, data)
}

// 任意切分输入字节，得到的事件序列都与一次性输入相同
func TestConnectionIncrementalParsing(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var stream []byte
		var want []string
		n := rapid.IntRange(0, 8).Draw(t, "frames")
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "heartbeat") {
				stream = append(stream, heartbeatRspFrame...)
				want = append(want, "HeartbeatResponse")
				continue
			}
			name := rapid.StringMatching(`[A-Z_]{1,12}`).Draw(t, "cmd")
			stream = append(stream, commandFrame(`{"cmd":"`+name+`"}`)...)
			want = append(want, name)
		}

		var w warnings
		c := newTestClient(&w)
		if _, err := c.Send(&Auth{RoomID: 1}); err != nil {
			t.Fatalf("send auth: %v", err)
		}
		stream = append([]byte(authOKFrame), stream...)
		want = append([]string{"AuthResponse"}, want...)

		var got []string
		for len(stream) > 0 {
			size := rapid.IntRange(1, len(stream)).Draw(t, "chunk")
			if err := c.ReceiveData(stream[:size]); err != nil {
				t.Fatalf("receive: %v", err)
			}
			stream = stream[size:]
			for {
				ev, err := c.NextEvent()
				if err != nil {
					t.Fatalf("next event: %v", err)
				}
				if nd, ok := ev.(NeedData); ok {
					if nd.Size <= 0 {
						t.Fatalf("need data with size %d", nd.Size)
					}
					break
				}
				if cmd, ok := ev.(Command); ok {
					got = append(got, cmd.CommandName())
				} else {
					got = append(got, ev.EventName())
				}
			}
		}

		if len(got) != len(want) {
			t.Fatalf("got %d events %v, want %d %v", len(got), got, len(want), want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("event %d: got %s, want %s", i, got[i], want[i])
			}
		}
		if c.Buffered() != 0 {
			t.Fatalf("%d bytes left in buffer", c.Buffered())
		}
	})
}

func TestConnectPanicsOnUnknownRole(t *testing.T) {
	assert.Panics(t, func() { Connect(Role(0)) })
	assert.Equal(t, RoleServer, Connect(RoleServer).Role())
}
