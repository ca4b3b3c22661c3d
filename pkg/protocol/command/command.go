// Package command 直播间业务命令的具体结构。
//
// 导入本包即把全部命令注册进 protocol.DefaultRegistry()；
// 需要隔离的场景用 NewRegistry 或 Register 注册到自己的注册表。
package command

import (
	"github.com/goccy/go-json"

	"github.com/qiminjie89/livebus/pkg/protocol"
)

// 命令名
const (
	CmdDanmuMsg         = "DANMU_MSG"
	CmdSendGift         = "SEND_GIFT"
	CmdInteractWord     = "INTERACT_WORD"
	CmdWatchedChange    = "WATCHED_CHANGE"
	CmdLikeInfoV3Update = "LIKE_INFO_V3_UPDATE"
	CmdGuardBuy         = "GUARD_BUY"
	CmdLive             = "LIVE"
	CmdPreparing        = "PREPARING"
)

func init() {
	Register(protocol.DefaultRegistry())
}

// Register 把本包的全部命令注册进 reg
func Register(reg *protocol.Registry) {
	reg.RegisterType("DanmuMsg", protocol.JSONDecoder[DanmuMsg]())
	reg.RegisterType("SendGift", protocol.JSONDecoder[SendGift]())
	reg.RegisterType("InteractWord", protocol.JSONDecoder[InteractWord]())
	reg.RegisterType("WatchedChange", protocol.JSONDecoder[WatchedChange]())
	reg.RegisterType("LikeInfoV3Update", protocol.JSONDecoder[LikeInfoV3Update]())
	reg.RegisterType("GuardBuy", protocol.JSONDecoder[GuardBuy]())
	reg.RegisterType("Live", protocol.JSONDecoder[Live]())
	reg.RegisterType("Preparing", protocol.JSONDecoder[Preparing]())
}

// NewRegistry 返回注册了全部命令的新注册表
func NewRegistry() *protocol.Registry {
	reg := protocol.NewRegistry()
	Register(reg)
	return reg
}

// decodeArray 按位置解码 JSON 数组，dst 比数组长时多出的目标保持原值，nil 目标跳过
func decodeArray(raw json.RawMessage, dst ...any) error {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return err
	}
	for i, d := range dst {
		if i >= len(items) {
			break
		}
		if d == nil {
			continue
		}
		if err := json.Unmarshal(items[i], d); err != nil {
			return err
		}
	}
	return nil
}
