// Package bridge 通过 HTTP 与 WebSocket 连接注入到微信进程中的组件
//
// 调用: POST {url}/api/{method}, 请求体为 JSON 参数,
// 响应为 {"code":0,"msg":"","data":...}, code 非 0 视为失败.
// 消息: 组件在 {url}/message 以 WebSocket 文本帧推送原始消息.
package bridge

import (
	"bytes"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/internal/download"
	"github.com/wxbot/go-wxhttp/internal/driver"
	"github.com/wxbot/go-wxhttp/internal/param"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// config bridge 驱动配置
type config struct {
	URL               string `yaml:"url"`
	ReconnectInterval int    `yaml:"reconnect-interval"`
	Timeout           int    `yaml:"timeout"`
}

func init() {
	driver.Register("bridge", func(node yaml.Node) (driver.Driver, error) {
		var conf config
		if err := node.Decode(&conf); err != nil {
			return nil, errors.Wrap(err, "读取 bridge 驱动配置失败")
		}
		return New(conf.URL, time.Millisecond*time.Duration(conf.ReconnectInterval), time.Millisecond*time.Duration(conf.Timeout)), nil
	})
}

// Bridge 基于 HTTP 接口的驱动实现
type Bridge struct {
	url       string
	reconnect time.Duration
	timeout   time.Duration

	messages  chan *driver.RawMessage
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New 创建 bridge 驱动, url 为组件的 HTTP 地址
func New(url string, reconnect, timeout time.Duration) *Bridge {
	if url == "" {
		url = "http://127.0.0.1:18888"
	}
	if reconnect <= 0 {
		reconnect = time.Second * 3
	}
	if timeout <= 0 {
		timeout = time.Second * 30
	}
	return &Bridge{
		url:       strings.TrimSuffix(url, "/"),
		reconnect: reconnect,
		timeout:   timeout,
		messages:  make(chan *driver.RawMessage, 128),
	}
}

func (b *Bridge) call(method string, params any) (gjson.Result, error) {
	if params == nil {
		params = struct{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return gjson.Result{}, errors.Wrap(err, "序列化参数失败")
	}
	r, err := download.Request{
		Method: http.MethodPost,
		URL:    b.url + "/api/" + method,
		Header: map[string]string{"Content-Type": "application/json"},
		Body:   bytes.NewReader(body),
	}.WithTimeout(b.timeout).JSON()
	if err != nil {
		return gjson.Result{}, errors.Wrapf(err, "调用 %s 失败", method)
	}
	if code := r.Get("code").Int(); code != 0 {
		return gjson.Result{}, errors.Errorf("调用 %s 失败: %s (code: %d)", method, r.Get("msg").String(), code)
	}
	return r.Get("data"), nil
}

// exec 调用无返回值的接口
func (b *Bridge) exec(method string, params any) error {
	_, err := b.call(method, params)
	return err
}

func (b *Bridge) decode(method string, params, v any) error {
	data, err := b.call(method, params)
	if err != nil {
		return err
	}
	if !data.Exists() || data.Type == gjson.Null {
		return driver.ErrNotFound
	}
	return errors.Wrapf(json.UnmarshalFromString(data.Raw, v), "解析 %s 返回值失败", method)
}

func (b *Bridge) contacts(method string, params any) ([]*driver.Contact, error) {
	var ret []*driver.Contact
	err := b.decode(method, params, &ret)
	if errors.Is(err, driver.ErrNotFound) {
		return []*driver.Contact{}, nil
	}
	return ret, err
}

func (b *Bridge) contact(method string, params any) (*driver.Contact, error) {
	c := new(driver.Contact)
	if err := b.decode(method, params, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Start 等待登录并开启消息 hook, 之后在后台接收消息推送
func (b *Bridge) Start(ctx context.Context, hookDir string) error {
	log.Info("等待微信登录...")
	for {
		data, err := b.call("is_login", nil)
		if err == nil && param.EnsureBool(data, false) {
			break
		}
		if err != nil {
			log.Debugf("查询登录状态失败: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
	log.Info("微信登录完成.")

	if err := b.exec("start_receive_message", nil); err != nil {
		return errors.Wrap(err, "启动消息hook失败")
	}
	for _, kind := range []string{"image", "voice"} {
		dir, err := filepath.Abs(filepath.Join(hookDir, kind))
		if err != nil {
			return errors.Wrap(err, "获取hook目录失败")
		}
		if err := b.exec("hook_"+kind+"_msg", map[string]string{"path": dir}); err != nil {
			log.Errorf("启动 %s hook 失败: %v", kind, err)
		}
	}

	ctx, b.cancel = context.WithCancel(ctx)
	b.wg.Add(1)
	go b.listen(ctx)
	return nil
}

func (b *Bridge) messageURL() string {
	u := b.url
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/message"
}

// listen 接收消息推送, 断开后按间隔重连直到 ctx 结束
func (b *Bridge) listen(ctx context.Context) {
	defer b.wg.Done()
	defer close(b.messages)
	addr := b.messageURL()
	for {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, addr, nil) // nolint
		if err == nil {
			log.Infof("已连接到消息推送 %v", addr)
			b.receive(ctx, conn)
		} else if ctx.Err() == nil {
			log.Warnf("连接到消息推送 %v 时出现错误: %v", addr, err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.reconnect):
		}
	}
}

func (b *Bridge) receive(ctx context.Context, conn *websocket.Conn) {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer func() { _ = conn.Close() }()
	for {
		t, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				log.Warnf("消息推送连接断开: %v", err)
			}
			return
		}
		if t != websocket.TextMessage {
			continue
		}
		msg := new(driver.RawMessage)
		if err := json.Unmarshal(data, msg); err != nil {
			log.Errorf("微信消息实例化失败: %v", err)
			continue
		}
		select {
		case b.messages <- msg:
		case <-ctx.Done():
			return
		}
	}
}

// Messages 原始消息流
func (b *Bridge) Messages() <-chan *driver.RawMessage {
	return b.messages
}

// Close 停止接收消息
func (b *Bridge) Close() error {
	b.closeOnce.Do(func() {
		if b.cancel != nil {
			b.cancel()
			b.wg.Wait()
			return
		}
		close(b.messages)
	})
	return nil
}

func (b *Bridge) SelfInfo() (*driver.SelfInfo, error) {
	info := new(driver.SelfInfo)
	if err := b.decode("get_self_info", nil, info); err != nil {
		return nil, err
	}
	return info, nil
}

func (b *Bridge) UserInfo(wxid string) (*driver.Contact, error) {
	return b.contact("get_user_info", map[string]string{"wxid": wxid})
}

func (b *Bridge) FriendList() ([]*driver.Contact, error) {
	return b.contacts("get_friend_list", nil)
}

func (b *Bridge) GroupList() ([]*driver.Contact, error) {
	return b.contacts("get_group_list", nil)
}

func (b *Bridge) GroupMembers(groupID string) ([]*driver.Contact, error) {
	return b.contacts("get_group_members", map[string]string{"group_id": groupID})
}

func (b *Bridge) GroupMemberNickname(groupID, wxid string) (string, error) {
	data, err := b.call("get_groupmember_nickname", map[string]string{"group_id": groupID, "wxid": wxid})
	if err != nil {
		return "", err
	}
	return data.String(), nil
}

func (b *Bridge) PublicAccountList() ([]*driver.Contact, error) {
	return b.contacts("get_public_account_list", nil)
}

func (b *Bridge) SearchByRemark(remark string) (*driver.Contact, error) {
	return b.contact("search_friend_by_remark", map[string]string{"remark": remark})
}

func (b *Bridge) SearchByWxNumber(number string) (*driver.Contact, error) {
	return b.contact("search_friend_by_wxnumber", map[string]string{"wx_number": number})
}

func (b *Bridge) SearchByNickname(nickname string) (*driver.Contact, error) {
	return b.contact("search_friend_by_nickname", map[string]string{"nickname": nickname})
}

func (b *Bridge) CheckFriendStatus(wxid string) (int64, error) {
	data, err := b.call("check_friend_status", map[string]string{"wxid": wxid})
	return data.Int(), err
}

func (b *Bridge) RefreshContacts() error {
	return b.exec("get_contacts", nil)
}

func (b *Bridge) SendText(wxid, text string) error {
	return b.exec("send_text", map[string]string{"wxid": wxid, "message": text})
}

func (b *Bridge) SendAtText(groupID string, atList []string, text string) error {
	return b.exec("send_at_message", map[string]any{
		"group_id":      groupID,
		"at_users":      atList,
		"message":       text,
		"auto_nickname": false,
	})
}

func (b *Bridge) SendImage(wxid, path string) error {
	return b.exec("send_image", map[string]string{"wxid": wxid, "path": path})
}

func (b *Bridge) SendFile(wxid, path string) error {
	return b.exec("send_file", map[string]string{"wxid": wxid, "path": path})
}

func (b *Bridge) SendGif(wxid, path string) error {
	return b.exec("send_gif", map[string]string{"wxid": wxid, "path": path})
}

func (b *Bridge) SendLink(wxid, title, des, url, imagePath string) error {
	return b.exec("send_message_card", map[string]string{
		"wxid":       wxid,
		"title":      title,
		"abstract":   des,
		"url":        url,
		"image_path": imagePath,
	})
}

func (b *Bridge) SendXML(wxid, xml, imagePath string) error {
	return b.exec("send_xml", map[string]string{"wxid": wxid, "xml": xml, "image_path": imagePath})
}

func (b *Bridge) SendCard(wxid, cardID, nickname string) error {
	return b.exec("send_contact_card", map[string]string{"wxid": wxid, "card_id": cardID, "nickname": nickname})
}

func (b *Bridge) ForwardMessage(wxid string, msgid int64) error {
	return b.exec("send_forward_msg", map[string]any{"wxid": wxid, "msgid": msgid})
}

func (b *Bridge) SetGroupName(groupID, name string) error {
	return b.exec("set_group_name", map[string]string{"group_id": groupID, "name": name})
}

func (b *Bridge) SetGroupAnnouncement(groupID, announcement string) error {
	return b.exec("set_group_announcement", map[string]string{"group_id": groupID, "announcement": announcement})
}

func (b *Bridge) SetGroupNickname(groupID, nickname string) error {
	return b.exec("set_group_nickname", map[string]string{"group_id": groupID, "nickname": nickname})
}

func (b *Bridge) AddGroupMembers(groupID string, wxids []string) error {
	return b.exec("add_groupmember", map[string]any{"group_id": groupID, "user_list": wxids})
}

func (b *Bridge) DeleteGroupMembers(groupID string, wxids []string) error {
	return b.exec("delete_groupmember", map[string]any{"group_id": groupID, "user_list": wxids})
}

func (b *Bridge) FollowPublicAccount(id string) error {
	return b.exec("follow_public_number", map[string]string{"public_id": id})
}

func (b *Bridge) PublicHistory(id, offset string) (any, error) {
	data, err := b.call("get_history_public_msg", map[string]string{"public_id": id, "offset": offset})
	return data.Value(), err
}

func (b *Bridge) AcceptFriend(v3, v4 string) error {
	return b.exec("verify_friend_apply", map[string]string{"v3": v3, "v4": v4})
}

func (b *Bridge) DeleteFriend(wxid string) error {
	return b.exec("delete_friend", map[string]string{"wxid": wxid})
}

func (b *Bridge) EditRemark(wxid, remark string) error {
	return b.exec("edit_remark", map[string]string{"wxid": wxid, "remark": remark})
}

func (b *Bridge) DBHandles() (any, error) {
	data, err := b.call("get_db_handles", nil)
	return data.Value(), err
}

func (b *Bridge) ExecuteSQL(handle int64, sql string) (any, error) {
	data, err := b.call("execute_sql", map[string]any{"handle": handle, "sql": sql})
	return data.Value(), err
}

func (b *Bridge) BackupDB(handle int64, path string) error {
	return b.exec("backup_db", map[string]any{"handle": handle, "path": path})
}

func (b *Bridge) WeChatVersion() (string, error) {
	data, err := b.call("get_wechat_version", nil)
	return data.String(), err
}

func (b *Bridge) SetWeChatVersion(version string) error {
	return b.exec("change_wechat_version", map[string]string{"version": version})
}
