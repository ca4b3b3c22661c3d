package command

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/qiminjie89/livebus/pkg/protocol"
)

// info 数组各元素的位置
const (
	infoMeta       = 0
	infoContent    = 1
	infoSender     = 2
	infoMedal      = 3
	infoLevel      = 4
	infoGuardLevel = 7
)

// DanmuMsg 弹幕。info 是按位置排列的异构数组，用访问方法读取需要的部分。
type DanmuMsg struct {
	protocol.CommandBase
	Info []json.RawMessage `json:"info"`
}

// DanmuMeta 弹幕元数据（info[0]）
type DanmuMeta struct {
	Mode   int   // 1: 滚动，4: 顶部，5: 底部
	Size   int   // 字体大小
	Color  int   // 弹幕颜色
	Time   int64 // 发送时间，单位：毫秒
	DmType int   // 弹幕类型，0: 文本，1: 表情，2: 语音
}

// DanmuSender 发送者（info[2]）
type DanmuSender struct {
	UID      int64
	Username string
	IsAdmin  int
	IsVip    int
	IsSvip   int
	Rank     int
	Verify   int
	Color    string
}

// DanmuMedal 粉丝勋章（info[3]），未佩戴时数组为空
type DanmuMedal struct {
	Level        int
	Name         string
	AnchorName   string
	ShortRoomID  int64
	Color        int
	Special      string
	IconID       int
	ColorBorder  int
	ColorStart   int
	ColorEnd     int
	GuardLevel   int // 0: 无，1: 总督，2: 提督，3: 舰长
	IsLight      int
	AnchorUserID int64
}

// NewDanmuMsg 构造一条最小可用的弹幕
func NewDanmuMsg(content string, uid int64, username string) (*DanmuMsg, error) {
	items := []any{
		[]any{0, 1, 25, 16777215, 0, 0, 0, "", 0, 0, 0, "", 0},
		content,
		[]any{uid, username, 0, 0, 0, 10000, 1, ""},
		[]any{},
		[]any{0, 0, 0, 0, 0},
	}
	info := make([]json.RawMessage, len(items))
	for i, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return nil, err
		}
		info[i] = raw
	}
	return &DanmuMsg{
		CommandBase: protocol.CommandBase{Cmd: CmdDanmuMsg},
		Info:        info,
	}, nil
}

func (m *DanmuMsg) item(i int) (json.RawMessage, error) {
	if i >= len(m.Info) {
		return nil, fmt.Errorf("danmu: info has %d items, want index %d", len(m.Info), i)
	}
	return m.Info[i], nil
}

// Content 弹幕内容
func (m *DanmuMsg) Content() (string, error) {
	raw, err := m.item(infoContent)
	if err != nil {
		return "", err
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", err
	}
	return s, nil
}

// Meta 弹幕元数据
func (m *DanmuMsg) Meta() (DanmuMeta, error) {
	var meta DanmuMeta
	raw, err := m.item(infoMeta)
	if err != nil {
		return meta, err
	}
	err = decodeArray(raw, nil, &meta.Mode, &meta.Size, &meta.Color, &meta.Time,
		nil, nil, nil, nil, nil, nil, nil, &meta.DmType)
	return meta, err
}

// Sender 发送者信息
func (m *DanmuMsg) Sender() (DanmuSender, error) {
	var s DanmuSender
	raw, err := m.item(infoSender)
	if err != nil {
		return s, err
	}
	err = decodeArray(raw, &s.UID, &s.Username, &s.IsAdmin, &s.IsVip, &s.IsSvip, &s.Rank, &s.Verify, &s.Color)
	return s, err
}

// Medal 粉丝勋章，未佩戴时返回 nil
func (m *DanmuMsg) Medal() (*DanmuMedal, error) {
	raw, err := m.item(infoMedal)
	if err != nil {
		return nil, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	md := &DanmuMedal{}
	err = decodeArray(raw, &md.Level, &md.Name, &md.AnchorName, &md.ShortRoomID, &md.Color,
		&md.Special, &md.IconID, &md.ColorBorder, &md.ColorStart, &md.ColorEnd,
		&md.GuardLevel, &md.IsLight, &md.AnchorUserID)
	if err != nil {
		return nil, err
	}
	return md, nil
}

// UserLevel 用户等级
func (m *DanmuMsg) UserLevel() (int, error) {
	raw, err := m.item(infoLevel)
	if err != nil {
		return 0, err
	}
	var level int
	err = decodeArray(raw, &level)
	return level, err
}

// GuardLevel 发送者的大航海等级，数组过短时为 0
func (m *DanmuMsg) GuardLevel() int {
	raw, err := m.item(infoGuardLevel)
	if err != nil {
		return 0
	}
	var level int
	if json.Unmarshal(raw, &level) != nil {
		return 0
	}
	return level
}
