package onebot

import (
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// MentionAllID 微信中表示 @所有人 的 wxid
const MentionAllID = "notify@all"

// 消息段类型
const (
	SegText       = "text"
	SegMention    = "mention"
	SegMentionAll = "mention_all"
	SegImage      = "image"
	SegVoice      = "voice"
	SegVideo      = "video"
	SegFile       = "file"
	SegLocation   = "location"
	SegReply      = "reply"
)

// 扩展消息段类型
var (
	SegEmoji = Ext("emoji")
	SegLink  = Ext("link")
	SegApp   = Ext("app")
	SegCard  = Ext("card")
)

// Segment 消息段
//
// https://12.onebot.dev/connect/data-protocol/message/
type Segment struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

// Message 消息, 由有序的消息段组成
type Message []Segment

// Text 纯文本
func Text(text string) Segment {
	return Segment{Type: SegText, Data: map[string]any{"text": text}}
}

// Mention 提及
func Mention(userID string) Segment {
	return Segment{Type: SegMention, Data: map[string]any{"user_id": userID}}
}

// MentionAll 提及所有人
func MentionAll() Segment {
	return Segment{Type: SegMentionAll, Data: map[string]any{}}
}

// Image 图片
func Image(fileID string) Segment {
	return Segment{Type: SegImage, Data: map[string]any{"file_id": fileID}}
}

// Voice 语音
func Voice(fileID string) Segment {
	return Segment{Type: SegVoice, Data: map[string]any{"file_id": fileID}}
}

// Video 视频
func Video(fileID string) Segment {
	return Segment{Type: SegVideo, Data: map[string]any{"file_id": fileID}}
}

// File 文件
func File(fileID string) Segment {
	return Segment{Type: SegFile, Data: map[string]any{"file_id": fileID}}
}

// Location 位置
func Location(latitude, longitude float64, title, content string) Segment {
	return Segment{Type: SegLocation, Data: map[string]any{
		"latitude":  latitude,
		"longitude": longitude,
		"title":     title,
		"content":   content,
	}}
}

// Reply 回复
func Reply(messageID, userID string) Segment {
	return Segment{Type: SegReply, Data: map[string]any{"message_id": messageID, "user_id": userID}}
}

// Emoji 微信表情
func Emoji(fileID string) Segment {
	return Segment{Type: SegEmoji, Data: map[string]any{"file_id": fileID}}
}

// Link 链接卡片
func Link(title, des, url, fileID string) Segment {
	return Segment{Type: SegLink, Data: map[string]any{
		"title":   title,
		"des":     des,
		"url":     url,
		"file_id": fileID,
	}}
}

// App 小程序
func App(appID, title, url string) Segment {
	return Segment{Type: SegApp, Data: map[string]any{"appid": appID, "title": title, "url": url}}
}

// Card 名片
func Card(userID, nickname, headURL string) Segment {
	return Segment{Type: SegCard, Data: map[string]any{"user_id": userID, "nickname": nickname, "head_url": headURL}}
}

// Get 获取字符串形式的 data 字段
func (s Segment) Get(key string) string {
	switch v := s.Data[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return gjson.Parse(toJSON(v)).String()
	}
}

// String 将消息段还原为便于日志输出的字符串
func (s Segment) String() string {
	if s.Type == SegText {
		return s.Get("text")
	}
	keys := make([]string, 0, len(s.Data))
	for k := range s.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(s.Type)
	for i, k := range keys {
		if i == 0 {
			sb.WriteByte(':')
		} else {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(s.Get(k))
	}
	sb.WriteByte(']')
	return sb.String()
}

// String 将消息还原为字符串
func (m Message) String() string {
	var sb strings.Builder
	for _, s := range m {
		sb.WriteString(s.String())
	}
	return sb.String()
}

// Reduce 合并相邻的纯文本消息段, 返回新的消息
func (m Message) Reduce() Message {
	ret := make(Message, 0, len(m))
	for _, s := range m {
		if n := len(ret); n > 0 && s.Type == SegText && ret[n-1].Type == SegText {
			ret[n-1] = Text(ret[n-1].Get("text") + s.Get("text"))
			continue
		}
		ret = append(ret, s)
	}
	return ret
}

// ParseMessage 从动作参数中解析消息, 字符串视为一个纯文本消息段
func ParseMessage(j gjson.Result) (Message, error) {
	switch {
	case j.Type == gjson.String:
		return Message{Text(j.Str)}, nil
	case j.IsObject():
		s, err := parseSegment(j)
		if err != nil {
			return nil, err
		}
		return Message{s}, nil
	case j.IsArray():
		var m Message
		for _, e := range j.Array() {
			s, err := parseSegment(e)
			if err != nil {
				return nil, err
			}
			m = append(m, s)
		}
		return m, nil
	default:
		return nil, errors.New("invalid message")
	}
}

func parseSegment(j gjson.Result) (Segment, error) {
	t := j.Get("type")
	if t.Type != gjson.String || t.Str == "" {
		return Segment{}, errors.New("invalid segment type")
	}
	data := j.Get("data")
	s := Segment{Type: t.Str, Data: map[string]any{}}
	if data.IsObject() {
		if v, ok := data.Value().(map[string]any); ok {
			s.Data = v
		}
	} else if data.Exists() && data.Type != gjson.Null {
		return Segment{}, errors.New("invalid segment data")
	}
	return s, nil
}
