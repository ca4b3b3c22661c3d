package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthBody(t *testing.T) {
	tests := []struct {
		name string
		auth *Auth
		want string
	}{
		{
			name: "room only",
			auth: &Auth{RoomID: 8131361},
			want: `{"roomid":8131361}`,
		},
		{
			name: "all fields",
			auth: &Auth{
				RoomID:   1,
				UID:      Ptr[int64](2),
				Protover: Ptr(3),
				Platform: Ptr("4"),
				Type:     Ptr(5),
				Key:      Ptr("6"),
			},
			want: `{"roomid":1,"uid":2,"protover":3,"platform":"4","type":5,"key":"6"}`,
		},
		{
			name: "zero values are still present",
			auth: &Auth{RoomID: 0, UID: Ptr[int64](0)},
			want: `{"roomid":0,"uid":0}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, err := tt.auth.MarshalBody()
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(body))

			got, err := UnmarshalAuth(body)
			require.NoError(t, err)
			assert.Equal(t, tt.auth, got)
		})
	}
}

func TestAuthFrameSize(t *testing.T) {
	frame, err := Frame(&Auth{
		RoomID:   1,
		UID:      Ptr[int64](2),
		Protover: Ptr(3),
		Platform: Ptr("4"),
		Type:     Ptr(5),
		Key:      Ptr("6"),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00\x00\x00\x53\x00\x10\x00\x01\x00\x00\x00\x07\x00\x00\x00\x00"), frame[:HeaderSize])
}

func TestUnmarshalAuthErrors(t *testing.T) {
	_, err := UnmarshalAuth([]byte(`{"uid":1}`))
	assert.ErrorIs(t, err, errMissingRoomID)

	_, err = UnmarshalAuth([]byte(`not json`))
	assert.Error(t, err)

	_, err = UnmarshalAuth([]byte(`{"roomid":"abc"}`))
	assert.Error(t, err)

	_, err = UnmarshalAuth([]byte(`{"RoomID":1}`))
	assert.ErrorIs(t, err, errMissingRoomID)
}

func TestUnmarshalAuthExactKeys(t *testing.T) {
	got, err := UnmarshalAuth([]byte(`{"roomid":1,"RoomID":2,"UID":3,"key":null,"Key":"x"}`))
	require.NoError(t, err)
	assert.Equal(t, &Auth{RoomID: 1}, got)

	resp, err := UnmarshalAuthResponse([]byte(`{"Code":1,"code":0}`))
	require.NoError(t, err)
	assert.Equal(t, int32(0), resp.Code)

	_, err = UnmarshalAuthResponse([]byte(`{"CODE":0}`))
	assert.ErrorIs(t, err, errMissingCode)
}

func TestHeartbeatResponseBody(t *testing.T) {
	hr := &HeartbeatResponse{Popularity: 114514, Content: []byte("test")}
	body, err := hr.MarshalBody()
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00\x01\xbfRtest"), body)

	got, err := UnmarshalHeartbeatResponse(body)
	require.NoError(t, err)
	assert.Equal(t, hr, got)

	short := []struct {
		body       []byte
		popularity uint32
	}{
		{nil, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x01, 0x02}, 0x0102},
		{[]byte{0, 1, 2}, 0x0102},
	}
	for _, tt := range short {
		got, err := UnmarshalHeartbeatResponse(tt.body)
		require.NoError(t, err)
		assert.Equal(t, tt.popularity, got.Popularity)
		assert.Empty(t, got.Content)
	}
}

func TestHeartbeatBodyIsCopied(t *testing.T) {
	body := []byte("ping")
	hb, err := UnmarshalHeartbeat(body)
	require.NoError(t, err)
	body[0] = 'x'
	assert.Equal(t, []byte("ping"), hb.Content)
}

func TestAuthResponseBody(t *testing.T) {
	body, err := (&AuthResponse{Code: 0}).MarshalBody()
	require.NoError(t, err)
	assert.Equal(t, `{"code":0}`, string(body))

	got, err := UnmarshalAuthResponse([]byte(`{"code":-101}`))
	require.NoError(t, err)
	assert.Equal(t, int32(-101), got.Code)

	_, err = UnmarshalAuthResponse([]byte(`{}`))
	assert.ErrorIs(t, err, errMissingCode)
}

func TestGenericCommand(t *testing.T) {
	body, err := MarshalCommand(NewCommand("TEST"))
	require.NoError(t, err)
	assert.Equal(t, `{"cmd":"TEST"}`, string(body))

	raw := []byte(`{"cmd":"ONLINE_RANK_COUNT","data":{"count":0}}`)
	c, err := UnmarshalGenericCommand(raw)
	require.NoError(t, err)
	assert.Equal(t, "ONLINE_RANK_COUNT", c.CommandName())
	assert.Equal(t, "Command", c.EventName())
	assert.Equal(t, raw, c.Raw)

	_, err = UnmarshalGenericCommand([]byte(`{"data":1}`))
	assert.ErrorIs(t, err, errMissingCmd)

	_, err = UnmarshalGenericCommand([]byte(`{"cmd":1}`))
	assert.Error(t, err)
}

func TestProtoverFor(t *testing.T) {
	tests := []struct {
		ev       Event
		protover Protover
		op       Op
	}{
		{&Heartbeat{}, ProtoverControl, OpHeartbeat},
		{&HeartbeatResponse{}, ProtoverControl, OpHeartbeatResponse},
		{&Auth{}, ProtoverControl, OpAuth},
		{&AuthResponse{}, ProtoverControl, OpAuthResponse},
		{NewCommand("X"), ProtoverCommand, OpCommand},
		{&RawFrame{Protover: 9, Op: 42}, 9, 42},
	}
	for _, tt := range tests {
		protover, op, ok := ProtoverFor(tt.ev)
		require.True(t, ok, tt.ev.EventName())
		assert.Equal(t, tt.protover, protover, tt.ev.EventName())
		assert.Equal(t, tt.op, op, tt.ev.EventName())
	}

	_, _, ok := ProtoverFor(NeedData{Size: 1})
	assert.False(t, ok)
}
