package onebot

import (
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

func toJSON(v any) string {
	s, _ := json.MarshalToString(v)
	return s
}

// 事件类型
const (
	TypeMessage = "message"
	TypeNotice  = "notice"
	TypeRequest = "request"
	TypeMeta    = "meta"
)

// Event 事件公共字段
//
// https://12.onebot.dev/connect/data-protocol/event/
type Event struct {
	ID         string  `json:"id"`
	Time       float64 `json:"time"`
	Type       string  `json:"type"`
	DetailType string  `json:"detail_type"`
	SubType    string  `json:"sub_type"`
	Self       *Self   `json:"self,omitempty"`
}

func (e *Event) header() *Event { return e }

// Header 返回事件的公共字段
func (e *Event) Header() *Event { return e }

// Payload 所有事件变体的集合, 只能由本包定义的事件结构体实现
type Payload interface {
	header() *Event
	Header() *Event
}

// NewEvent 生成新的事件公共字段
func NewEvent(typ, detail string, self *Self) Event {
	now := time.Now()
	return Event{
		ID:         uuid.NewString(),
		Time:       float64(now.UnixNano()) / 1e9,
		Type:       typ,
		DetailType: detail,
		Self:       self,
	}
}

// PrivateMessage 私聊消息
type PrivateMessage struct {
	Event
	MessageID  string  `json:"message_id"`
	Message    Message `json:"message"`
	AltMessage string  `json:"alt_message"`
	UserID     string  `json:"user_id"`
}

// GroupMessage 群消息
type GroupMessage struct {
	Event
	MessageID  string  `json:"message_id"`
	Message    Message `json:"message"`
	AltMessage string  `json:"alt_message"`
	GroupID    string  `json:"group_id"`
	UserID     string  `json:"user_id"`
}

// NewPrivateMessage 构造私聊消息事件
func NewPrivateMessage(self *Self, messageID, userID string, msg Message) *PrivateMessage {
	msg = msg.Reduce()
	return &PrivateMessage{
		Event:      NewEvent(TypeMessage, "private", self),
		MessageID:  messageID,
		Message:    msg,
		AltMessage: msg.String(),
		UserID:     userID,
	}
}

// NewGroupMessage 构造群消息事件
func NewGroupMessage(self *Self, messageID, groupID, userID string, msg Message) *GroupMessage {
	msg = msg.Reduce()
	return &GroupMessage{
		Event:      NewEvent(TypeMessage, "group", self),
		MessageID:  messageID,
		Message:    msg,
		AltMessage: msg.String(),
		GroupID:    groupID,
		UserID:     userID,
	}
}

// PrivateMessageDelete 私聊消息撤回
type PrivateMessageDelete struct {
	Event
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// GroupMessageDelete 群消息撤回
type GroupMessageDelete struct {
	Event
	MessageID  string `json:"message_id"`
	GroupID    string `json:"group_id"`
	UserID     string `json:"user_id"`
	OperatorID string `json:"operator_id"`
}

// FileNotice 收到文件但尚未下载完成的通知
type FileNotice struct {
	Event
	GroupID    string `json:"group_id,omitempty"`
	UserID     string `json:"user_id"`
	FileName   string `json:"file_name"`
	FileLength int64  `json:"file_length"`
	MD5        string `json:"md5"`
	MessageID  string `json:"message_id"`
}

// CardNotice 收到名片的通知
type CardNotice struct {
	Event
	GroupID   string `json:"group_id,omitempty"`
	UserID    string `json:"user_id"`
	V3        string `json:"v3"`
	V4        string `json:"v4"`
	Nickname  string `json:"nickname"`
	HeadURL   string `json:"head_url"`
	Province  string `json:"province"`
	City      string `json:"city"`
	Sex       string `json:"sex"`
	MessageID string `json:"message_id"`
}

// SimpleNotice 只携带会话信息的通知, 用于红包与拍一拍
type SimpleNotice struct {
	Event
	GroupID   string `json:"group_id,omitempty"`
	UserID    string `json:"user_id"`
	MessageID string `json:"message_id"`
}

// GroupAnnouncement 群公告
type GroupAnnouncement struct {
	Event
	GroupID   string `json:"group_id"`
	UserID    string `json:"user_id"`
	Text      string `json:"text"`
	MessageID string `json:"message_id"`
}

// FriendRequest 好友申请
type FriendRequest struct {
	Event
	UserID   string `json:"user_id"`
	V3       string `json:"v3"`
	V4       string `json:"v4"`
	Nickname string `json:"nickname"`
	Content  string `json:"content"`
	Country  string `json:"country"`
	Province string `json:"province"`
	City     string `json:"city"`
}

// VersionInfo 实现版本信息
type VersionInfo struct {
	Impl          string `json:"impl"`
	Version       string `json:"version"`
	OneBotVersion string `json:"onebot_version"`
}

// BotStatus 单个机器人的状态
type BotStatus struct {
	Self   Self `json:"self"`
	Online bool `json:"online"`
}

// Status 运行状态
type Status struct {
	Good bool        `json:"good"`
	Bots []BotStatus `json:"bots"`
}

// Connect 元事件 连接
type Connect struct {
	Event
	Version VersionInfo `json:"version"`
}

// StatusUpdate 元事件 状态更新
type StatusUpdate struct {
	Event
	Status Status `json:"status"`
}

// Heartbeat 元事件 心跳
type Heartbeat struct {
	Event
	Interval int64 `json:"interval"`
}

// NewConnect 构造连接元事件
func NewConnect(version string) *Connect {
	return &Connect{
		Event: NewEvent(TypeMeta, "connect", nil),
		Version: VersionInfo{
			Impl:          Impl,
			Version:       version,
			OneBotVersion: "12",
		},
	}
}

// NewStatusUpdate 构造状态更新元事件
func NewStatusUpdate(status Status) *StatusUpdate {
	return &StatusUpdate{Event: NewEvent(TypeMeta, "status_update", nil), Status: status}
}

// NewHeartbeat 构造心跳元事件
func NewHeartbeat(interval time.Duration) *Heartbeat {
	return &Heartbeat{Event: NewEvent(TypeMeta, "heartbeat", nil), Interval: interval.Milliseconds()}
}
