package wechat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tidwall/gjson"

	"github.com/wxbot/go-wxhttp/internal/onebot"
)

type brokenField struct{}

func (brokenField) MarshalJSON() ([]byte, error) {
	panic("broken")
}

type brokenPayload struct {
	onebot.Event
	Broken brokenField `json:"broken"`
}

func TestEventJSONBytes(t *testing.T) {
	self := &onebot.Self{Platform: onebot.Platform, UserID: "wxid_bot"}
	e := NewEvent(onebot.NewPrivateMessage(self, "1", "wxid_a", onebot.Message{onebot.Text("hi"), onebot.Mention("wxid_b")}))
	j := gjson.ParseBytes(e.JSONBytes())
	assert.Equal(t, "private", j.Get("detail_type").String())
	assert.Equal(t, "hi", j.Get("message.0.data.text").String())
	assert.Equal(t, "wxid_b", j.Get("message.1.data.user_id").String())
	assert.Equal(t, e.JSONString(), string(e.JSONBytes()))
}

func TestEventMarshalPanic(t *testing.T) {
	e := NewEvent(&brokenPayload{Event: onebot.NewEvent("meta", "broken", nil)})
	assert.NotPanics(t, func() {
		assert.Equal(t, "{}", e.JSONString())
	})
	assert.Equal(t, "{}", string(e.JSONBytes()))
}
