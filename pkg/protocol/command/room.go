package command

import (
	"github.com/qiminjie89/livebus/pkg/protocol"
)

// InteractWord 进场、关注、分享等互动
type InteractWord struct {
	protocol.CommandBase
	Data InteractWordData `json:"data"`
}

// 互动类型
const (
	MsgTypeEntry            = 1
	MsgTypeAttention        = 2
	MsgTypeShare            = 3
	MsgTypeSpecialAttention = 4
	MsgTypeMutualAttention  = 5
)

// InteractWordData 互动数据
type InteractWordData struct {
	UID          int64      `json:"uid"`
	Identities   []int      `json:"identities,omitempty"`
	Uname        string     `json:"uname"`
	UnameColor   string     `json:"uname_color,omitempty"`
	MsgType      int        `json:"msg_type"`
	FansMedal    *FansMedal `json:"fans_medal,omitempty"`
	Timestamp    int64      `json:"timestamp"`
	RoomID       int64      `json:"roomid"`
	Score        int64      `json:"score,omitempty"`
	TriggerTime  int64      `json:"trigger_time,omitempty"` // 纳秒
	Contribution *struct {
		Grade int `json:"grade"`
	} `json:"contribution,omitempty"`
}

// FansMedal 互动消息中的粉丝勋章
type FansMedal struct {
	MedalLevel   int    `json:"medal_level"`
	MedalName    string `json:"medal_name"`
	AnchorRoomID int64  `json:"anchor_roomid"`
	MedalColor   int    `json:"medal_color"`
	GuardLevel   int    `json:"guard_level"`
	IsLighted    int    `json:"is_lighted"`
	TargetID     int64  `json:"target_id"`
}

// WatchedChange 看过人数变化
type WatchedChange struct {
	protocol.CommandBase
	Data struct {
		Num       int64  `json:"num"`
		TextSmall string `json:"text_small"`
		TextLarge string `json:"text_large"`
	} `json:"data"`
}

// LikeInfoV3Update 点赞数更新
type LikeInfoV3Update struct {
	protocol.CommandBase
	Data struct {
		ClickCount int64 `json:"click_count"`
	} `json:"data"`
}

// Live 开播
type Live struct {
	protocol.CommandBase
	LiveKey       string `json:"live_key,omitempty"`
	SubSessionKey string `json:"sub_session_key,omitempty"`
	LivePlatform  string `json:"live_platform,omitempty"` // pc, pc_link
	LiveModel     int    `json:"live_model,omitempty"`
	LiveTime      *int64 `json:"live_time,omitempty"`
	RoomID        int64  `json:"roomid"`
}

// Preparing 下播，上游以字符串形式给出房间号
type Preparing struct {
	protocol.CommandBase
	RoomID string `json:"roomid"`
}
