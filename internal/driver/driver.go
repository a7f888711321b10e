// Package driver 定义与微信自动化组件交互的能力接口
//
// 网关本身不实现微信协议, 所有对微信客户端的操作都经由 Driver 完成.
// 具体实现通过 Register 注册, 由配置文件中的 wechat.driver 选择.
package driver

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// GroupMarker 群聊 id 的特征后缀
const GroupMarker = "@chatroom"

// IsGroup 判断 id 是否为群聊
func IsGroup(id string) bool {
	return strings.Contains(id, GroupMarker)
}

// WxType 微信消息类型
type WxType int

// 微信消息类型
const (
	TextMsg       WxType = 1     // 文本消息
	ImageMsg      WxType = 3     // 图片消息
	VoiceMsg      WxType = 34    // 语音消息
	FriendRequest WxType = 37    // 加好友请求
	CardMsg       WxType = 42    // 名片消息
	VideoMsg      WxType = 43    // 视频消息
	EmojiMsg      WxType = 47    // 表情消息
	LocationMsg   WxType = 48    // 位置消息
	AppMsg        WxType = 49    // 应用消息
	CreateRoom    WxType = 51    // 创建房间
	SystemNotice  WxType = 10000 // 个人系统消息
	SystemMsg     WxType = 10002 // 群系统消息
)

// AppType 应用消息(49)的内部类型, 取自 appmsg/type
type AppType int

// 应用消息类型
const (
	AppLink           AppType = 4    // 其他应用分享的链接
	LinkMsg           AppType = 5    // 链接消息
	FileMsg           AppType = 6    // 文件消息, 包含提示和下载完成
	AppletMsg         AppType = 33   // 小程序
	QuoteMsg          AppType = 57   // 引用消息
	GroupAnnouncement AppType = 87   // 群公告
	TransferMsg       AppType = 2000 // 转账
)

// 系统消息(10002)的类型, 取自 sysmsg@type
const (
	SysRevoke   = "revokemsg"
	SysRoomTool = "roomtoolstips"
	SysFunction = "functionmsg"
	SysPat      = "pat"
)

// RawMessage 驱动推送的原始消息
type RawMessage struct {
	ExtraInfo     string `json:"extrainfo"`
	FilePath      string `json:"filepath"`
	IsSendByPhone bool   `json:"isSendByPhone"`
	IsSendMsg     bool   `json:"isSendMsg"`
	Message       string `json:"message"`
	MsgID         int64  `json:"msgid"`
	Pid           int    `json:"pid"`
	Self          string `json:"self"`
	Sender        string `json:"sender"`
	Sign          string `json:"sign"`
	ThumbPath     string `json:"thumb_path"`
	Time          string `json:"time"`
	Timestamp     int64  `json:"timestamp"`
	Type          WxType `json:"type"`
	WxID          string `json:"wxid"`
}

// SelfInfo 登录账号信息
type SelfInfo struct {
	WxID      string `json:"wxId"`
	Nickname  string `json:"wxNickName"`
	WxNumber  string `json:"wxNumber"`
	Sex       string `json:"Sex"`
	BigAvatar string `json:"wxBigAvatar"`
	FilePath  string `json:"wxFilePath"` // 微信文件目录, 视频等文件保存在其上级目录
}

// Contact 联系人, 好友/群/群成员/公众号共用
type Contact struct {
	WxID        string `json:"wxId"`
	Nickname    string `json:"wxNickName"`
	Remark      string `json:"wxRemark"`
	WxNumber    string `json:"wxNumber"`
	Nation      string `json:"wxNation"`
	Province    string `json:"wxProvince"`
	City        string `json:"wxCity"`
	BigAvatar   string `json:"wxBigAvatar"`
	SmallAvatar string `json:"wxSmallAvatar"`
	VerifyFlag  int64  `json:"wxVerifyFlag"`
}

// ErrNotFound 驱动未找到对应的联系人
var ErrNotFound = errors.New("contact not found")

type (
	// Session 驱动生命周期
	Session interface {
		// Start 连接微信进程并开启消息 hook, 图片与语音将被保存到 hookDir 下的 image 与 voice 目录
		Start(ctx context.Context, hookDir string) error
		// Messages 原始消息流, 驱动关闭后 channel 被关闭
		Messages() <-chan *RawMessage
		Close() error
	}

	// Contacts 联系人查询
	Contacts interface {
		SelfInfo() (*SelfInfo, error)
		UserInfo(wxid string) (*Contact, error)
		FriendList() ([]*Contact, error)
		GroupList() ([]*Contact, error)
		GroupMembers(groupID string) ([]*Contact, error)
		// GroupMemberNickname 查询群成员昵称, 不在群内时返回空字符串
		GroupMemberNickname(groupID, wxid string) (string, error)
		PublicAccountList() ([]*Contact, error)
		SearchByRemark(remark string) (*Contact, error)
		SearchByWxNumber(number string) (*Contact, error)
		SearchByNickname(nickname string) (*Contact, error)
		CheckFriendStatus(wxid string) (int64, error)
		// RefreshContacts 刷新驱动内部的联系人缓存
		RefreshContacts() error
	}

	// Sender 消息发送
	Sender interface {
		SendText(wxid, text string) error
		SendAtText(groupID string, atList []string, text string) error
		SendImage(wxid, path string) error
		SendFile(wxid, path string) error
		SendGif(wxid, path string) error
		SendLink(wxid, title, des, url, imagePath string) error
		SendXML(wxid, xml, imagePath string) error
		SendCard(wxid, cardID, nickname string) error
		ForwardMessage(wxid string, msgid int64) error
	}

	// Manager 好友/群/客户端管理
	Manager interface {
		SetGroupName(groupID, name string) error
		SetGroupAnnouncement(groupID, announcement string) error
		SetGroupNickname(groupID, nickname string) error
		AddGroupMembers(groupID string, wxids []string) error
		DeleteGroupMembers(groupID string, wxids []string) error
		FollowPublicAccount(id string) error
		PublicHistory(id, offset string) (any, error)
		AcceptFriend(v3, v4 string) error
		DeleteFriend(wxid string) error
		EditRemark(wxid, remark string) error
		DBHandles() (any, error)
		ExecuteSQL(handle int64, sql string) (any, error)
		BackupDB(handle int64, path string) error
		WeChatVersion() (string, error)
		SetWeChatVersion(version string) error
	}

	// Driver 完整的驱动能力集合
	Driver interface {
		Session
		Contacts
		Sender
		Manager
	}
)

var drivers = make(map[string]func(yaml.Node) (Driver, error))

// Register 注册驱动实现
func Register(name string, init func(yaml.Node) (Driver, error)) {
	if _, ok := drivers[name]; ok {
		panic(name + " driver has existed")
	}
	drivers[name] = init
}

// New 使用配置创建名为 name 的驱动
func New(name string, conf yaml.Node) (Driver, error) {
	init, ok := drivers[name]
	if !ok {
		return nil, errors.Errorf("未知的驱动: %s", name)
	}
	d, err := init(conf)
	if err != nil {
		return nil, errors.Wrapf(err, "初始化驱动 %s 失败", name)
	}
	return d, nil
}
