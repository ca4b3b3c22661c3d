package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestHeaderRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		h := Header{
			Size:       rapid.Uint32().Draw(t, "size"),
			HeaderSize: rapid.Uint16().Draw(t, "headerSize"),
			Protover:   Protover(rapid.Uint16().Draw(t, "protover")),
			Op:         Op(rapid.Uint32().Draw(t, "op")),
			Seq:        rapid.Uint32().Draw(t, "seq"),
		}
		prefix := rapid.IntRange(0, 8).Draw(t, "prefix")

		buf := append(make([]byte, prefix), h.Encode()...)
		got, err := DecodeHeader(buf, prefix)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got != h {
			t.Fatalf("header mismatch: got %+v, want %+v", got, h)
		}
	})
}

func TestDecodeHeaderShort(t *testing.T) {
	_, err := DecodeHeader(make([]byte, HeaderSize-1), 0)
	assert.ErrorIs(t, err, ErrShortHeader)

	_, err = DecodeHeader(make([]byte, HeaderSize+1), 2)
	assert.ErrorIs(t, err, ErrShortHeader)

	_, err = DecodeHeader(make([]byte, HeaderSize), -1)
	assert.ErrorIs(t, err, ErrShortHeader)
}

func TestHeaderLayout(t *testing.T) {
	h := Header{Size: 0x1a, HeaderSize: HeaderSize, Protover: ProtoverControl, Op: OpAuthResponse, Seq: 7}
	assert.Equal(t, []byte("\x00\x00\x00\x1a\x00\x10\x00\x01\x00\x00\x00\x08\x00\x00\x00\x07"), h.Encode())
	assert.Equal(t, 10, h.BodySize())
}

func TestEncodeFrame(t *testing.T) {
	frame := EncodeFrame([]byte(`{"roomid":8131361}`), ProtoverControl, OpAuth)
	require.Len(t, frame, 34)
	assert.Equal(t, []byte("\x00\x00\x00\x22\x00\x10\x00\x01\x00\x00\x00\x07\x00\x00\x00\x00{\"roomid\":8131361}"), frame)

	h, err := DecodeHeader(frame, 0)
	require.NoError(t, err)
	assert.Equal(t, NewHeader(18, ProtoverControl, OpAuth), h)
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "heartbeat", OpHeartbeat.String())
	assert.Equal(t, "auth_response", OpAuthResponse.String())
	assert.Equal(t, "op(42)", Op(42).String())
}
