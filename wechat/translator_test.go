package wechat

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxbot/go-wxhttp/db/leveldb"
	"github.com/wxbot/go-wxhttp/internal/cache"
	"github.com/wxbot/go-wxhttp/internal/driver"
	"github.com/wxbot/go-wxhttp/internal/onebot"
)

func newCache(t *testing.T) *cache.Service {
	store, err := leveldb.OpenMemory()
	require.NoError(t, err)
	c, err := cache.New(filepath.Join(t.TempDir(), "temp"), store)
	require.NoError(t, err)
	return c
}

type translatorEnv struct {
	*Translator
	image, voice, wechat string
}

func newTranslatorEnv(t *testing.T) *translatorEnv {
	root := t.TempDir()
	env := &translatorEnv{
		image:  filepath.Join(root, "image"),
		voice:  filepath.Join(root, "voice"),
		wechat: filepath.Join(root, "WeChat Files"),
	}
	for _, d := range []string{env.image, env.voice, env.wechat} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}
	env.Translator = NewTranslator(newCache(t), env.image, env.voice, env.wechat, 300*time.Millisecond)
	return env
}

func TestParseText(t *testing.T) {
	tests := []struct {
		text string
		ats  []string
		want onebot.Message
	}{
		{"@Alice 你好", []string{"alice-id"}, onebot.Message{onebot.Mention("alice-id"), onebot.Text("你好")}},
		{"@Alice 你好", nil, onebot.Message{onebot.Text("@Alice 你好")}},
		{"hi @所有人 开会", []string{onebot.MentionAllID}, onebot.Message{onebot.Text("hi "), onebot.MentionAll(), onebot.Text("开会")}},
		{"@a @b rest", []string{"a-id"}, onebot.Message{onebot.Mention("a-id"), onebot.Text("@b rest")}},
		{"@a @b ", []string{"a-id", "b-id"}, onebot.Message{onebot.Mention("a-id"), onebot.Mention("b-id")}},
		{"plain", []string{}, onebot.Message{onebot.Text("plain")}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseText(tt.text, tt.ats), tt.text)
	}
}

func TestAtList(t *testing.T) {
	assert.Nil(t, atList(""))
	assert.Nil(t, atList("<msgsource></msgsource>"))
	assert.Equal(t, []string{"a", "b"}, atList("<msgsource><atuserlist>,a,b</atuserlist></msgsource>"))
	assert.Equal(t, []string{"a"}, atList("<msgsource><atuserlist>a</atuserlist></msgsource>"))
}

func TestTranslateText(t *testing.T) {
	env := newTranslatorEnv(t)
	ctx := context.Background()

	p, err := env.Translate(ctx, &driver.RawMessage{
		Type: driver.TextMsg, Self: "bot", Sender: "wxid_a", WxID: "wxid_a",
		MsgID: 7, Message: "你好", Timestamp: 1700000000,
	})
	require.NoError(t, err)
	pm, ok := p.(*onebot.PrivateMessage)
	require.True(t, ok)
	assert.Equal(t, "private", pm.DetailType)
	assert.Equal(t, "wxid_a", pm.UserID)
	assert.Equal(t, "7", pm.MessageID)
	assert.Equal(t, float64(1700000000), pm.Time)
	assert.Equal(t, "bot", pm.Self.UserID)
	assert.Equal(t, onebot.Platform, pm.Self.Platform)

	p, err = env.Translate(ctx, &driver.RawMessage{
		Type: driver.TextMsg, Self: "bot", Sender: "123@chatroom", WxID: "wxid_b",
		MsgID: 8, Message: "@Alice 你好", ExtraInfo: "<msgsource><atuserlist>,alice-id</atuserlist></msgsource>",
	})
	require.NoError(t, err)
	gm, ok := p.(*onebot.GroupMessage)
	require.True(t, ok)
	assert.Equal(t, "123@chatroom", gm.GroupID)
	assert.Equal(t, "wxid_b", gm.UserID)
	assert.Equal(t, onebot.Message{onebot.Mention("alice-id"), onebot.Text("你好")}, gm.Message)
}

func TestTranslateImage(t *testing.T) {
	env := newTranslatorEnv(t)
	ctx := context.Background()
	msg := &driver.RawMessage{
		Type: driver.ImageMsg, Self: "bot", Sender: "wxid_a", WxID: "wxid_a",
		MsgID: 9, FilePath: `wxid_bot\FileStorage\Image\2022-10\abcdef.dat`,
	}

	go func() {
		time.Sleep(120 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(env.image, "abcdef.png"), []byte("png"), 0o644)
	}()
	p, err := env.Translate(ctx, msg)
	require.NoError(t, err)
	pm, ok := p.(*onebot.PrivateMessage)
	require.True(t, ok)
	require.Len(t, pm.Message, 1)
	assert.Equal(t, onebot.SegImage, pm.Message[0].Type)

	f, err := env.cache.Get(pm.Message[0].Get("file_id"))
	require.NoError(t, err)
	assert.Equal(t, "abcdef.png", f.Name)
	assert.False(t, f.Temp)
}

func TestTranslateMediaTimeout(t *testing.T) {
	env := newTranslatorEnv(t)
	start := time.Now()
	p, err := env.Translate(context.Background(), &driver.RawMessage{
		Type: driver.VoiceMsg, Self: "bot", Sender: "wxid_a", WxID: "wxid_a", Sign: "never",
	})
	assert.NoError(t, err)
	assert.Nil(t, p)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestTranslateNotices(t *testing.T) {
	env := newTranslatorEnv(t)
	ctx := context.Background()

	p, err := env.Translate(ctx, &driver.RawMessage{
		Type: driver.SystemMsg, Self: "bot", Sender: "123@chatroom", WxID: "wxid_b", MsgID: 11,
		Message: `<sysmsg type="revokemsg"><revokemsg><session>123@chatroom</session><newmsgid>42</newmsgid></revokemsg></sysmsg>`,
	})
	require.NoError(t, err)
	gd, ok := p.(*onebot.GroupMessageDelete)
	require.True(t, ok)
	assert.Equal(t, "group_message_delete", gd.DetailType)
	assert.Equal(t, "42", gd.MessageID)
	assert.Equal(t, "wxid_b", gd.UserID)

	p, err = env.Translate(ctx, &driver.RawMessage{
		Type: driver.SystemMsg, Self: "bot", Sender: "wxid_a", WxID: "wxid_a",
		Message: `<sysmsg type="revokemsg"><revokemsg><newmsgid>43</newmsgid></revokemsg></sysmsg>`,
	})
	require.NoError(t, err)
	pd, ok := p.(*onebot.PrivateMessageDelete)
	require.True(t, ok)
	assert.Equal(t, "43", pd.MessageID)

	p, err = env.Translate(ctx, &driver.RawMessage{
		Type: driver.SystemMsg, Self: "bot", Sender: "123@chatroom",
		Message: `<sysmsg type="roomtoolstips"></sysmsg>`,
	})
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = env.Translate(ctx, &driver.RawMessage{
		Type: driver.SystemNotice, Self: "bot", Sender: "wxid_a", WxID: "wxid_a", MsgID: 12,
		Message: redPacketText,
	})
	require.NoError(t, err)
	sn, ok := p.(*onebot.SimpleNotice)
	require.True(t, ok)
	assert.Equal(t, "wx.get_private_redbag", sn.DetailType)
	assert.Empty(t, sn.GroupID)

	p, err = env.Translate(ctx, &driver.RawMessage{
		Type: driver.SystemNotice, Self: "bot", Sender: "123@chatroom", WxID: "wxid_b", MsgID: 13,
		Message: `"Alice" 拍了拍我`,
	})
	require.NoError(t, err)
	sn, ok = p.(*onebot.SimpleNotice)
	require.True(t, ok)
	assert.Equal(t, "wx.get_group_poke", sn.DetailType)
	assert.Equal(t, "123@chatroom", sn.GroupID)

	p, err = env.Translate(ctx, &driver.RawMessage{
		Type: driver.SystemNotice, Self: "bot", Sender: "wxid_a", Message: "你已添加了对方",
	})
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestTranslateApp(t *testing.T) {
	env := newTranslatorEnv(t)
	ctx := context.Background()
	app := func(body string) *driver.RawMessage {
		return &driver.RawMessage{
			Type: driver.AppMsg, Self: "bot", Sender: "wxid_a", WxID: "wxid_a", MsgID: 20,
			Message: `<msg><appmsg appid="">` + body + `</appmsg></msg>`,
		}
	}

	p, err := env.Translate(ctx, app(`<title>看这个</title><type>57</type><refermsg><svrid>99</svrid><fromusr>wxid_c</fromusr></refermsg>`))
	require.NoError(t, err)
	pm := p.(*onebot.PrivateMessage)
	assert.Equal(t, onebot.Message{onebot.Reply("99", "wxid_c"), onebot.Text("看这个")}, pm.Message)

	p, err = env.Translate(ctx, app(`<title>标题</title><des>描述</des><type>5</type><url>http://a.com/ x</url>`))
	require.NoError(t, err)
	pm = p.(*onebot.PrivateMessage)
	require.Len(t, pm.Message, 1)
	assert.Equal(t, onebot.SegLink, pm.Message[0].Type)
	assert.Equal(t, "http://a.com/x", pm.Message[0].Get("url"))

	p, err = env.Translate(ctx, app(`<title>a.zip</title><type>6</type><appattach><totallen>1024</totallen></appattach><md5>abc</md5>`))
	require.NoError(t, err)
	fn, ok := p.(*onebot.FileNotice)
	require.True(t, ok)
	assert.Equal(t, "wx.get_private_file", fn.DetailType)
	assert.Equal(t, int64(1024), fn.FileLength)
	assert.Equal(t, "a.zip", fn.FileName)
	assert.Equal(t, "abc", fn.MD5)

	p, err = env.Translate(ctx, app(`<title>小程序</title><type>33</type><url>u</url><weappinfo><username>gh_1@app</username></weappinfo>`))
	require.NoError(t, err)
	pm = p.(*onebot.PrivateMessage)
	assert.Equal(t, onebot.Message{onebot.App("gh_1@app", "小程序", "u")}, pm.Message)

	p, err = env.Translate(ctx, app(`<type>2000</type>`))
	assert.NoError(t, err)
	assert.Nil(t, p)

	p, err = env.Translate(ctx, app(`<type>999</type>`))
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestTranslateFileDownloaded(t *testing.T) {
	env := newTranslatorEnv(t)
	rel := filepath.Join("wxid_bot", "FileStorage", "File", "a.zip")
	require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(env.wechat, rel)), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.wechat, rel), []byte("zip"), 0o644))

	p, err := env.Translate(context.Background(), &driver.RawMessage{
		Type: driver.AppMsg, Self: "bot", Sender: "123@chatroom", WxID: "wxid_b", MsgID: 21,
		FilePath: `wxid_bot\FileStorage\File\a.zip`,
		Message:  `<msg><appmsg><title>a.zip</title><type>6</type><appattach><overwrite_newmsgid>21</overwrite_newmsgid></appattach></appmsg></msg>`,
	})
	require.NoError(t, err)
	gm, ok := p.(*onebot.GroupMessage)
	require.True(t, ok)
	require.Len(t, gm.Message, 1)
	f, err := env.cache.Get(gm.Message[0].Get("file_id"))
	require.NoError(t, err)
	assert.Equal(t, "a.zip", f.Name)
}

func TestTranslateCardAndRequest(t *testing.T) {
	env := newTranslatorEnv(t)
	ctx := context.Background()

	p, err := env.Translate(ctx, &driver.RawMessage{
		Type: driver.CardMsg, Self: "bot", Sender: "123@chatroom", WxID: "wxid_b", MsgID: 30,
		Message: `<msg username="v3_x" nickname="Bob" antispamticket="v4_x" province="P" city="C" sex="1" bigheadimgurl="http://h"/>`,
	})
	require.NoError(t, err)
	card, ok := p.(*onebot.CardNotice)
	require.True(t, ok)
	assert.Equal(t, "wx.get_group_card", card.DetailType)
	assert.Equal(t, "v3_x", card.V3)
	assert.Equal(t, "Bob", card.Nickname)

	p, err = env.Translate(ctx, &driver.RawMessage{
		Type: driver.FriendRequest, Self: "bot", Sender: "fmessage",
		Message: `<msg fromusername="wxid_new" encryptusername="v3_y" ticket="v4_y" fromnickname="New" content="hi"/>`,
	})
	require.NoError(t, err)
	req, ok := p.(*onebot.FriendRequest)
	require.True(t, ok)
	assert.Equal(t, onebot.TypeRequest, req.Type)
	assert.Equal(t, "wx.friend_request", req.DetailType)
	assert.Equal(t, "v4_y", req.V4)

	p, err = env.Translate(ctx, &driver.RawMessage{
		Type: driver.LocationMsg, Self: "bot", Sender: "wxid_a", WxID: "wxid_a",
		Message: `<msg><location x="22.5" y="113.9" label="深圳" poiname="某地"/></msg>`,
	})
	require.NoError(t, err)
	pm := p.(*onebot.PrivateMessage)
	assert.Equal(t, onebot.Message{onebot.Location(22.5, 113.9, "深圳", "某地")}, pm.Message)

	p, err = env.Translate(ctx, &driver.RawMessage{Type: 12345})
	assert.NoError(t, err)
	assert.Nil(t, p)
}
