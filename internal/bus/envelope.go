// Package bus 定义 Relay 与 Gateway 之间的命令总线：msgpack 编码的 Envelope 经 Kafka 传递，
// 以房间号为分区键保证同一房间内有序。
package bus

import (
	"strconv"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/qiminjie89/livebus/pkg/protocol/command"
)

// Priority 消息优先级，数值越小越重要
type Priority int

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityNormal
	PriorityLow
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// PriorityFor 根据命令名给出默认优先级
func PriorityFor(cmd string) Priority {
	switch cmd {
	case command.CmdLive, command.CmdPreparing:
		return PriorityCritical
	case command.CmdSendGift, command.CmdGuardBuy:
		return PriorityHigh
	case command.CmdWatchedChange, command.CmdLikeInfoV3Update, command.CmdInteractWord:
		return PriorityLow
	default:
		return PriorityNormal
	}
}

// Envelope 总线消息，Body 是上游命令的原始 JSON 正文
type Envelope struct {
	RoomID    int64    `msgpack:"room_id"`
	Cmd       string   `msgpack:"cmd"`
	Body      []byte   `msgpack:"body"`
	Seq       uint64   `msgpack:"seq"`
	Priority  Priority `msgpack:"priority"`
	Timestamp int64    `msgpack:"ts"` // 毫秒
}

// Key 分区键
func (e *Envelope) Key() []byte {
	return strconv.AppendInt(nil, e.RoomID, 10)
}

// Encode 使用 msgpack 编码
func Encode(e *Envelope) ([]byte, error) {
	return msgpack.Marshal(e)
}

// Decode 使用 msgpack 解码
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
