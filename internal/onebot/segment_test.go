package onebot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMessageReduce(t *testing.T) {
	m := Message{Text("a"), Text("b"), Mention("wxid_1"), Text("c"), Text("")}
	r := m.Reduce()
	require.Len(t, r, 3)
	assert.Equal(t, "ab", r[0].Get("text"))
	assert.Equal(t, SegMention, r[1].Type)
	assert.Equal(t, "c", r[2].Get("text"))
	// 原消息不被修改
	assert.Len(t, m, 5)
}

func TestMessageString(t *testing.T) {
	tests := []struct {
		msg      Message
		expected string
	}{
		{Message{Text("你好")}, "你好"},
		{Message{Mention("wxid_1"), Text(" hi")}, "[mention:user_id=wxid_1] hi"},
		{Message{MentionAll()}, "[mention_all]"},
		{Message{Location(1.5, 2, "t", "c")}, "[location:content=c,latitude=1.5,longitude=2,title=t]"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.msg.String())
	}
}

func TestParseMessage(t *testing.T) {
	m, err := ParseMessage(gjson.Parse(`[{"type":"text","data":{"text":"hi"}},{"type":"mention","data":{"user_id":"wxid_a"}}]`))
	require.NoError(t, err)
	require.Len(t, m, 2)
	assert.Equal(t, "hi", m[0].Get("text"))
	assert.Equal(t, "wxid_a", m[1].Get("user_id"))

	m, err = ParseMessage(gjson.Parse(`"plain"`))
	require.NoError(t, err)
	assert.Equal(t, Message{Text("plain")}, m)

	m, err = ParseMessage(gjson.Parse(`{"type":"mention_all"}`))
	require.NoError(t, err)
	assert.Equal(t, SegMentionAll, m[0].Type)

	for _, bad := range []string{`1`, `[{"data":{}}]`, `[{"type":"text","data":1}]`, `null`} {
		_, err = ParseMessage(gjson.Parse(bad))
		assert.Error(t, err, bad)
	}
}

func TestParseRequest(t *testing.T) {
	req := ParseRequest(gjson.Parse(`{"action":"get_status","echo":"abc"}`))
	assert.Equal(t, "get_status", req.Action)
	assert.True(t, req.Params.IsObject())
	assert.Nil(t, req.Self)

	req = ParseRequest(gjson.Parse(`{"action":"x","params":null,"self":{"platform":"wechat","user_id":"wxid_s"}}`))
	assert.True(t, req.Params.IsObject())
	require.NotNil(t, req.Self)
	assert.Equal(t, "wxid_s", req.Self.UserID)
}

func TestEventJSON(t *testing.T) {
	self := &Self{Platform: Platform, UserID: "wxid_self"}
	e := NewGroupMessage(self, "1", "123@chatroom", "wxid_u", Message{Text("a"), Text("b")})
	j := gjson.Parse(toJSON(e))
	assert.Equal(t, "message", j.Get("type").Str)
	assert.Equal(t, "group", j.Get("detail_type").Str)
	assert.Equal(t, "", j.Get("sub_type").Str)
	assert.True(t, j.Get("sub_type").Exists())
	assert.Equal(t, "wxid_self", j.Get("self.user_id").Str)
	assert.Equal(t, "ab", j.Get("alt_message").Str)
	assert.Equal(t, int64(1), j.Get("message.#").Int())
	assert.NotEmpty(t, j.Get("id").Str)

	c := gjson.Parse(toJSON(NewConnect("v1")))
	assert.Equal(t, "ComWeChat", c.Get("version.impl").Str)
	assert.Equal(t, "12", c.Get("version.onebot_version").Str)
	assert.False(t, c.Get("self").Exists())
}
