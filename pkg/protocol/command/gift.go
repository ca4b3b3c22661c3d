package command

import (
	"github.com/qiminjie89/livebus/pkg/protocol"
)

// SendGift 礼物
type SendGift struct {
	protocol.CommandBase
	Data SendGiftData `json:"data"`
}

// SendGiftData 礼物数据。新版上游把整个结构放在 pb 字段里（protobuf，base64），此时其余字段为空。
type SendGiftData struct {
	UID          int64      `json:"uid,omitempty"`
	Uname        string     `json:"uname,omitempty"`
	Face         string     `json:"face,omitempty"`
	GuardLevel   int        `json:"guard_level,omitempty"`
	GiftID       int64      `json:"giftId,omitempty"`
	GiftName     string     `json:"giftName,omitempty"`
	GiftType     int        `json:"giftType,omitempty"`
	Num          int        `json:"num,omitempty"`
	Price        int64      `json:"price,omitempty"`
	TotalCoin    int64      `json:"total_coin,omitempty"`
	CoinType     string     `json:"coin_type,omitempty"` // gold 或 silver
	Action       string     `json:"action,omitempty"`
	Timestamp    int64      `json:"timestamp,omitempty"`
	BatchComboID string     `json:"batch_combo_id,omitempty"`
	MedalInfo    *MedalInfo `json:"medal_info,omitempty"`
	BlindGift    *BlindGift `json:"blind_gift,omitempty"`
	PB           []byte     `json:"pb,omitempty"`
}

// BlindGift 盲盒礼物
type BlindGift struct {
	ConfigID         int64  `json:"blind_gift_config_id"`
	OriginalGiftID   int64  `json:"original_gift_id"`
	OriginalGiftName string `json:"original_gift_name"`
	From             int    `json:"from"`
	GiftAction       string `json:"gift_action,omitempty"`
}

// MedalInfo 粉丝勋章
type MedalInfo struct {
	TargetID     int64  `json:"target_id"`
	Special      string `json:"special"`
	AnchorUname  string `json:"anchor_uname"`
	AnchorRoomID int64  `json:"anchor_roomid"`
	MedalLevel   int    `json:"medal_level"`
	MedalName    string `json:"medal_name"`
	MedalColor   int    `json:"medal_color"`
	IsLighted    int    `json:"is_lighted"`
	GuardLevel   int    `json:"guard_level"`
}

// IsProtobuf 数据是否以 protobuf 形式携带
func (g *SendGift) IsProtobuf() bool {
	return len(g.Data.PB) > 0
}

// GuardBuy 大航海购买
type GuardBuy struct {
	protocol.CommandBase
	Data GuardBuyData `json:"data"`
}

// GuardBuyData 大航海购买数据
type GuardBuyData struct {
	UID        int64  `json:"uid"`
	Username   string `json:"username"`
	GuardLevel int    `json:"guard_level"` // 1: 总督，2: 提督，3: 舰长
	Num        int    `json:"num"`
	Price      int64  `json:"price"`
	GiftID     int64  `json:"gift_id"`
	GiftName   string `json:"gift_name"`
	StartTime  int64  `json:"start_time"`
	EndTime    int64  `json:"end_time"`
}
