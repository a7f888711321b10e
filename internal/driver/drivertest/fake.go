// Package drivertest 提供用于测试的内存驱动
package drivertest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/wxbot/go-wxhttp/internal/driver"
)

// ErrFailed 由 Fail 指定失败的操作返回
var ErrFailed = errors.New("operation failed")

// Call 一次驱动调用记录
type Call struct {
	Method string
	Args   []any
}

func (c Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = fmt.Sprint(a)
	}
	return c.Method + "(" + strings.Join(args, ",") + ")"
}

// Fake 内存驱动, 所有字段都可以在测试中直接修改
type Fake struct {
	mu sync.Mutex

	Self     driver.SelfInfo
	Users    map[string]*driver.Contact
	Friends  []*driver.Contact
	Groups   []*driver.Contact
	Members  map[string][]*driver.Contact
	Publics  []*driver.Contact
	Version  string
	Failures map[string]bool // 方法名 -> 返回 ErrFailed

	calls    []Call
	messages chan *driver.RawMessage
	closed   bool
}

var _ driver.Driver = (*Fake)(nil)

// New 创建登录账号为 wxid 的内存驱动
func New(wxid string) *Fake {
	return &Fake{
		Self: driver.SelfInfo{
			WxID:     wxid,
			Nickname: "bot",
			WxNumber: "bot_number",
			Sex:      "1",
		},
		Users:    map[string]*driver.Contact{},
		Members:  map[string][]*driver.Contact{},
		Version:  "3.7.0.30",
		Failures: map[string]bool{},
		messages: make(chan *driver.RawMessage, 16),
	}
}

func (f *Fake) record(method string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, Call{Method: method, Args: args})
	if f.Failures[method] {
		return ErrFailed
	}
	return nil
}

// Fail 令 method 之后的调用返回 ErrFailed
func (f *Fake) Fail(method string) {
	f.mu.Lock()
	f.Failures[method] = true
	f.mu.Unlock()
}

// Calls 返回所有调用记录
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf 返回指定方法的调用记录
func (f *Fake) CallsOf(method string) []Call {
	var ret []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			ret = append(ret, c)
		}
	}
	return ret
}

// Push 推送一条原始消息
func (f *Fake) Push(msg *driver.RawMessage) {
	f.messages <- msg
}

func (f *Fake) Start(_ context.Context, hookDir string) error {
	return f.record("Start", hookDir)
}

func (f *Fake) Messages() <-chan *driver.RawMessage { return f.messages }

func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.messages)
	}
	return nil
}

func (f *Fake) SelfInfo() (*driver.SelfInfo, error) {
	if err := f.record("SelfInfo"); err != nil {
		return nil, err
	}
	info := f.Self
	return &info, nil
}

func (f *Fake) UserInfo(wxid string) (*driver.Contact, error) {
	if err := f.record("UserInfo", wxid); err != nil {
		return nil, err
	}
	if c, ok := f.Users[wxid]; ok {
		return c, nil
	}
	return &driver.Contact{WxID: wxid, Nickname: "null", Remark: "null"}, nil
}

func (f *Fake) FriendList() ([]*driver.Contact, error) {
	return f.Friends, f.record("FriendList")
}

func (f *Fake) GroupList() ([]*driver.Contact, error) {
	return f.Groups, f.record("GroupList")
}

func (f *Fake) GroupMembers(groupID string) ([]*driver.Contact, error) {
	return f.Members[groupID], f.record("GroupMembers", groupID)
}

func (f *Fake) GroupMemberNickname(groupID, wxid string) (string, error) {
	if err := f.record("GroupMemberNickname", groupID, wxid); err != nil {
		return "", err
	}
	for _, m := range f.Members[groupID] {
		if m.WxID == wxid {
			return m.Nickname, nil
		}
	}
	return "", nil
}

func (f *Fake) PublicAccountList() ([]*driver.Contact, error) {
	return f.Publics, f.record("PublicAccountList")
}

func (f *Fake) search(method string, match func(*driver.Contact) bool, arg string) (*driver.Contact, error) {
	if err := f.record(method, arg); err != nil {
		return nil, err
	}
	for _, c := range f.Friends {
		if match(c) {
			return c, nil
		}
	}
	return nil, driver.ErrNotFound
}

func (f *Fake) SearchByRemark(remark string) (*driver.Contact, error) {
	return f.search("SearchByRemark", func(c *driver.Contact) bool { return c.Remark == remark }, remark)
}

func (f *Fake) SearchByWxNumber(number string) (*driver.Contact, error) {
	return f.search("SearchByWxNumber", func(c *driver.Contact) bool { return c.WxNumber == number }, number)
}

func (f *Fake) SearchByNickname(nickname string) (*driver.Contact, error) {
	return f.search("SearchByNickname", func(c *driver.Contact) bool { return c.Nickname == nickname }, nickname)
}

func (f *Fake) CheckFriendStatus(wxid string) (int64, error) {
	if err := f.record("CheckFriendStatus", wxid); err != nil {
		return 0, err
	}
	for _, c := range f.Friends {
		if c.WxID == wxid {
			return 0xB1, nil
		}
	}
	return 0xB0, nil
}

func (f *Fake) RefreshContacts() error { return f.record("RefreshContacts") }

func (f *Fake) SendText(wxid, text string) error { return f.record("SendText", wxid, text) }

func (f *Fake) SendAtText(groupID string, atList []string, text string) error {
	return f.record("SendAtText", groupID, strings.Join(atList, ","), text)
}

func (f *Fake) SendImage(wxid, path string) error { return f.record("SendImage", wxid, path) }

func (f *Fake) SendFile(wxid, path string) error { return f.record("SendFile", wxid, path) }

func (f *Fake) SendGif(wxid, path string) error { return f.record("SendGif", wxid, path) }

func (f *Fake) SendLink(wxid, title, des, url, imagePath string) error {
	return f.record("SendLink", wxid, title, des, url, imagePath)
}

func (f *Fake) SendXML(wxid, xml, imagePath string) error {
	return f.record("SendXML", wxid, xml, imagePath)
}

func (f *Fake) SendCard(wxid, cardID, nickname string) error {
	return f.record("SendCard", wxid, cardID, nickname)
}

func (f *Fake) ForwardMessage(wxid string, msgid int64) error {
	return f.record("ForwardMessage", wxid, msgid)
}

func (f *Fake) SetGroupName(groupID, name string) error {
	return f.record("SetGroupName", groupID, name)
}

func (f *Fake) SetGroupAnnouncement(groupID, announcement string) error {
	return f.record("SetGroupAnnouncement", groupID, announcement)
}

func (f *Fake) SetGroupNickname(groupID, nickname string) error {
	return f.record("SetGroupNickname", groupID, nickname)
}

func (f *Fake) AddGroupMembers(groupID string, wxids []string) error {
	return f.record("AddGroupMembers", groupID, strings.Join(wxids, ","))
}

func (f *Fake) DeleteGroupMembers(groupID string, wxids []string) error {
	return f.record("DeleteGroupMembers", groupID, strings.Join(wxids, ","))
}

func (f *Fake) FollowPublicAccount(id string) error { return f.record("FollowPublicAccount", id) }

func (f *Fake) PublicHistory(id, offset string) (any, error) {
	return map[string]any{"public_id": id, "offset": offset}, f.record("PublicHistory", id, offset)
}

func (f *Fake) AcceptFriend(v3, v4 string) error { return f.record("AcceptFriend", v3, v4) }

func (f *Fake) DeleteFriend(wxid string) error { return f.record("DeleteFriend", wxid) }

func (f *Fake) EditRemark(wxid, remark string) error { return f.record("EditRemark", wxid, remark) }

func (f *Fake) DBHandles() (any, error) {
	return []map[string]any{{"handle": 1, "name": "MicroMsg.db"}}, f.record("DBHandles")
}

func (f *Fake) ExecuteSQL(handle int64, sql string) (any, error) {
	return [][]string{{"col"}, {"val"}}, f.record("ExecuteSQL", handle, sql)
}

func (f *Fake) BackupDB(handle int64, path string) error {
	return f.record("BackupDB", handle, path)
}

func (f *Fake) WeChatVersion() (string, error) {
	return f.Version, f.record("WeChatVersion")
}

func (f *Fake) SetWeChatVersion(version string) error {
	if err := f.record("SetWeChatVersion", version); err != nil {
		return err
	}
	f.Version = version
	return nil
}
