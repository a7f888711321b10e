package wechat

import (
	"bytes"
	"runtime/debug"
	"sync"

	jsoniter "github.com/json-iterator/go"
	log "github.com/sirupsen/logrus"

	"github.com/wxbot/go-wxhttp/global"
	"github.com/wxbot/go-wxhttp/internal/onebot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event 推送给连接服务的事件
//
// 事件创建后不再修改, json 只序列化一次供所有连接复用.
type Event struct {
	once    sync.Once
	payload onebot.Payload
	buffer  *bytes.Buffer
}

// NewEvent 包装事件负载
func NewEvent(p onebot.Payload) *Event {
	return &Event{payload: p}
}

// Payload 事件负载
func (e *Event) Payload() onebot.Payload {
	return e.payload
}

// Header 事件公共字段
func (e *Event) Header() *onebot.Event {
	return e.payload.Header()
}

func (e *Event) marshal() {
	buf := global.NewBuffer()
	e.buffer = buf
	defer func() {
		if pan := recover(); pan != nil {
			log.Errorf("序列化事件时发生异常: %v\n%s", pan, debug.Stack())
			buf.Reset()
			buf.WriteString("{}")
		}
	}()
	if err := json.NewEncoder(buf).Encode(e.payload); err != nil {
		log.Warnf("序列化事件 %v 失败: %v", e.Header().DetailType, err)
		buf.Reset()
		buf.WriteString("{}")
	}
	// Encoder 会追加换行
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}

// JSONBytes return byes of json by lazy marshalling.
func (e *Event) JSONBytes() []byte {
	e.once.Do(e.marshal)
	return e.buffer.Bytes()
}

// JSONString return string of json by lazy marshalling.
func (e *Event) JSONString() string {
	return string(e.JSONBytes())
}
