package command

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiminjie89/livebus/pkg/protocol"
)

func decode(t *testing.T, body string) protocol.Command {
	t.Helper()
	cmd, warning, err := NewRegistry().Decode([]byte(body), true)
	require.NoError(t, err)
	require.Nil(t, warning)
	return cmd
}

func TestRegisterNames(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{
		CmdDanmuMsg, CmdSendGift, CmdInteractWord, CmdWatchedChange,
		CmdLikeInfoV3Update, CmdGuardBuy, CmdLive, CmdPreparing,
	} {
		decode, seen := reg.Resolve(name)
		assert.True(t, seen, name)
		assert.NotNil(t, decode, name)
	}
	assert.Equal(t, 8, reg.Len())

	_, seen := protocol.DefaultRegistry().Resolve(CmdDanmuMsg)
	assert.True(t, seen)
}

func TestDanmuMsgCaptured(t *testing.T) {
	body, err := os.ReadFile("testdata/danmu_msg.json")
	require.NoError(t, err)

	msg, ok := decode(t, string(body)).(*DanmuMsg)
	require.True(t, ok)
	assert.Equal(t, CmdDanmuMsg, msg.CommandName())

	content, err := msg.Content()
	require.NoError(t, err)
	assert.Equal(t, "what", content)

	meta, err := msg.Meta()
	require.NoError(t, err)
	assert.Equal(t, DanmuMeta{Mode: 1, Size: 25, Color: 16777215, Time: 1672600515362, DmType: 1}, meta)

	sender, err := msg.Sender()
	require.NoError(t, err)
	assert.Equal(t, int64(1087319369), sender.UID)
	assert.Equal(t, "ProgramRipper", sender.Username)
	assert.Equal(t, 1, sender.IsAdmin)
	assert.Equal(t, 10000, sender.Rank)

	medal, err := msg.Medal()
	require.NoError(t, err)
	require.NotNil(t, medal)
	assert.Equal(t, 18, medal.Level)
	assert.Equal(t, "鲸呆", medal.Name)
	assert.Equal(t, "希月萌奈", medal.AnchorName)
	assert.Equal(t, int64(22889484), medal.ShortRoomID)
	assert.Equal(t, 1, medal.IsLight)
	assert.Equal(t, int64(591892279), medal.AnchorUserID)

	level, err := msg.UserLevel()
	require.NoError(t, err)
	assert.Equal(t, 9, level)
	assert.Equal(t, 0, msg.GuardLevel())
}

func TestNewDanmuMsg(t *testing.T) {
	msg, err := NewDanmuMsg("hello", 7, "alice")
	require.NoError(t, err)

	body, err := protocol.MarshalCommand(msg)
	require.NoError(t, err)

	got, ok := decode(t, string(body)).(*DanmuMsg)
	require.True(t, ok)
	content, err := got.Content()
	require.NoError(t, err)
	assert.Equal(t, "hello", content)

	sender, err := got.Sender()
	require.NoError(t, err)
	assert.Equal(t, int64(7), sender.UID)
	assert.Equal(t, "alice", sender.Username)

	medal, err := got.Medal()
	require.NoError(t, err)
	assert.Nil(t, medal)
}

func TestDanmuMsgShortInfo(t *testing.T) {
	msg, ok := decode(t, `{"cmd":"DANMU_MSG","info":[]}`).(*DanmuMsg)
	require.True(t, ok)
	_, err := msg.Content()
	assert.Error(t, err)
	assert.Equal(t, 0, msg.GuardLevel())
}

func TestCapturedCommands(t *testing.T) {
	watched, ok := decode(t, `{"cmd":"WATCHED_CHANGE","data":{"num":1126,"text_small":"1126","text_large":"1126人看过"}}`).(*WatchedChange)
	require.True(t, ok)
	assert.Equal(t, int64(1126), watched.Data.Num)
	assert.Equal(t, "1126人看过", watched.Data.TextLarge)

	interact, ok := decode(t, `{"cmd":"INTERACT_WORD","data":{"contribution":{"grade":0},"dmscore":4,`+
		`"fans_medal":{"anchor_roomid":2900469,"guard_level":0,"icon_id":0,"is_lighted":0,"medal_color":6067854,`+
		`"medal_level":3,"medal_name":"猫咪罐","score":789,"special":"","target_id":68412710},"identities":[1],`+
		`"msg_type":1,"roomid":13863380,"score":1672606870447,"timestamp":1672606860,`+
		`"trigger_time":1672606860437300700,"uid":49820933,"uname":"塔塔宝宝W","uname_color":""}}`).(*InteractWord)
	require.True(t, ok)
	assert.Equal(t, MsgTypeEntry, interact.Data.MsgType)
	assert.Equal(t, int64(49820933), interact.Data.UID)
	assert.Equal(t, "塔塔宝宝W", interact.Data.Uname)
	require.NotNil(t, interact.Data.FansMedal)
	assert.Equal(t, "猫咪罐", interact.Data.FansMedal.MedalName)
	assert.Equal(t, int64(1672606860437300700), interact.Data.TriggerTime)
}

func TestGiftCommands(t *testing.T) {
	gift, ok := decode(t, `{"cmd":"SEND_GIFT","data":{"uid":1,"uname":"a","giftId":31036,"giftName":"小花花","num":3,"price":100,"coin_type":"gold","action":"投喂"}}`).(*SendGift)
	require.True(t, ok)
	assert.Equal(t, "小花花", gift.Data.GiftName)
	assert.Equal(t, 3, gift.Data.Num)
	assert.False(t, gift.IsProtobuf())

	pb, ok := decode(t, `{"cmd":"SEND_GIFT","data":{"pb":"CAEQAg=="}}`).(*SendGift)
	require.True(t, ok)
	assert.True(t, pb.IsProtobuf())
	assert.Equal(t, []byte{0x08, 0x01, 0x10, 0x02}, pb.Data.PB)

	guard, ok := decode(t, `{"cmd":"GUARD_BUY","data":{"uid":2,"username":"b","guard_level":3,"num":1,"price":198000,"gift_id":10003,"gift_name":"舰长","start_time":1,"end_time":1}}`).(*GuardBuy)
	require.True(t, ok)
	assert.Equal(t, 3, guard.Data.GuardLevel)
	assert.Equal(t, "舰长", guard.Data.GiftName)
}

func TestLiveStateCommands(t *testing.T) {
	live, ok := decode(t, `{"cmd":"LIVE","live_key":"k","live_platform":"pc","live_model":0,"roomid":22889484,"live_time":1672600000}`).(*Live)
	require.True(t, ok)
	assert.Equal(t, int64(22889484), live.RoomID)
	require.NotNil(t, live.LiveTime)
	assert.Equal(t, int64(1672600000), *live.LiveTime)

	preparing, ok := decode(t, `{"cmd":"PREPARING","roomid":"22889484"}`).(*Preparing)
	require.True(t, ok)
	assert.Equal(t, "22889484", preparing.RoomID)

	like, ok := decode(t, `{"cmd":"LIKE_INFO_V3_UPDATE","data":{"click_count":42}}`).(*LikeInfoV3Update)
	require.True(t, ok)
	assert.Equal(t, int64(42), like.Data.ClickCount)
}

func TestInvalidTypedCommandDegrades(t *testing.T) {
	reg := NewRegistry()
	cmd, warning, err := reg.Decode([]byte(`{"cmd":"PREPARING","roomid":123}`), false)
	require.NoError(t, err)
	require.NotNil(t, warning)
	assert.Equal(t, protocol.WarningInvalidCommand, warning.Kind)
	_, generic := cmd.(*protocol.GenericCommand)
	assert.True(t, generic)
}
