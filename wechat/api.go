package wechat

import (
	"context"
	"os"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/wxbot/go-wxhttp/global"
	"github.com/wxbot/go-wxhttp/internal/base"
	"github.com/wxbot/go-wxhttp/internal/driver"
	"github.com/wxbot/go-wxhttp/internal/onebot"
	"github.com/wxbot/go-wxhttp/internal/param"
	"github.com/wxbot/go-wxhttp/modules/api"
)

// MSG 动作返回的 data
type MSG map[string]any

// registerActions 注册全部标准动作与扩展动作
func (b *Bot) registerActions() {
	r := b.registry
	r.Register("get_status", nil, b.getStatus)
	r.Register("get_version", nil, b.getVersion)
	r.Register("send_message", api.Schema{
		api.Required("detail_type", api.String),
		api.Required("message", api.Message),
		api.Optional("user_id", api.String),
		api.Optional("group_id", api.String),
		api.Optional("guild_id", api.String),
		api.Optional("channel_id", api.String),
	}, b.sendMessage)
	r.Register("get_self_info", nil, b.getSelfInfo)
	r.Register("get_user_info", api.Schema{api.Required("user_id", api.String)}, b.getUserInfo)
	r.Register("get_friend_list", nil, b.getFriendList)
	r.Register("get_group_info", api.Schema{api.Required("group_id", api.String)}, b.getGroupInfo)
	r.Register("get_group_list", nil, b.getGroupList)
	r.Register("get_group_member_info", api.Schema{
		api.Required("group_id", api.String),
		api.Required("user_id", api.String),
	}, b.getGroupMemberInfo)
	r.Register("get_group_member_list", api.Schema{api.Required("group_id", api.String)}, b.getGroupMemberList)
	r.Register("set_group_name", api.Schema{
		api.Required("group_id", api.String),
		api.Required("group_name", api.String),
	}, b.setGroupName)
	r.Register("upload_file", api.Schema{
		api.Required("type", api.String),
		api.Required("name", api.String),
		api.Optional("url", api.String),
		api.Optional("headers", api.Object),
		api.Optional("path", api.String),
		api.Optional("data", api.String),
		api.Optional("sha256", api.String),
	}, b.uploadFile)
	r.Register("get_file", api.Schema{
		api.Required("file_id", api.String),
		api.Required("type", api.String),
	}, b.getFile)
	b.registerExtActions()
}

// platformError 记录驱动操作失败的原因, 返回统一的 35000
func platformError(action string, err error) error {
	log.Warnf("调用驱动执行 %v 失败: %v", action, err)
	return onebot.ErrPlatform
}

// contactError 将驱动未找到联系人的错误转换为 35001
func contactError(err error) error {
	if errors.Is(err, driver.ErrNotFound) {
		return onebot.ErrNotFound
	}
	return err
}

func nullable(s string) string {
	if s == "null" {
		return ""
	}
	return s
}

func userInfo(c *driver.Contact) MSG {
	return MSG{
		"user_id":               c.WxID,
		"user_name":             c.Nickname,
		"user_displayname":      "",
		onebot.Ext("avatar"):    c.BigAvatar,
		onebot.Ext("wx_number"): c.WxNumber,
		onebot.Ext("nation"):    c.Nation,
		onebot.Ext("province"):  c.Province,
		onebot.Ext("city"):      c.City,
	}
}

func (b *Bot) getStatus(context.Context, gjson.Result) (any, error) {
	return b.Status(), nil
}

func (b *Bot) getVersion(context.Context, gjson.Result) (any, error) {
	return onebot.VersionInfo{
		Impl:          onebot.Impl,
		Version:       base.Version,
		OneBotVersion: "12",
	}, nil
}

func (b *Bot) getSelfInfo(context.Context, gjson.Result) (any, error) {
	info, err := b.driver.SelfInfo()
	if err != nil {
		return nil, errors.Wrap(err, "get self info error")
	}
	return MSG{
		"user_id":               info.WxID,
		"user_name":             info.Nickname,
		"user_displayname":      "",
		onebot.Ext("sex"):       info.Sex,
		onebot.Ext("wx_number"): info.WxNumber,
		onebot.Ext("avatar"):    info.BigAvatar,
	}, nil
}

func (b *Bot) getUserInfo(_ context.Context, p gjson.Result) (any, error) {
	uid := p.Get("user_id").String()
	c, err := b.driver.UserInfo(uid)
	if err != nil {
		return nil, contactError(err)
	}
	ret := userInfo(c)
	ret["user_id"] = uid
	ret["user_remark"] = nullable(c.Remark)
	return ret, nil
}

func (b *Bot) getFriendList(context.Context, gjson.Result) (any, error) {
	list, err := b.driver.FriendList()
	if err != nil {
		return nil, errors.Wrap(err, "get friend list error")
	}
	fs := make([]MSG, 0, len(list))
	for _, f := range list {
		fs = append(fs, MSG{
			"user_id":                 f.WxID,
			"user_name":               f.Nickname,
			"user_displayname":        "",
			"user_remark":             f.Remark,
			onebot.Ext("verify_flag"): f.VerifyFlag,
		})
	}
	return fs, nil
}

func (b *Bot) getGroupInfo(_ context.Context, p gjson.Result) (any, error) {
	c, err := b.driver.UserInfo(p.Get("group_id").String())
	if err != nil {
		return nil, contactError(err)
	}
	return MSG{
		"group_id":           c.WxID,
		"group_name":         nullable(c.Nickname),
		onebot.Ext("avatar"): c.SmallAvatar,
	}, nil
}

func (b *Bot) getGroupList(context.Context, gjson.Result) (any, error) {
	list, err := b.driver.GroupList()
	if err != nil {
		return nil, errors.Wrap(err, "get group list error")
	}
	gs := make([]MSG, 0, len(list))
	for _, g := range list {
		gs = append(gs, MSG{
			"group_id":   g.WxID,
			"group_name": g.Nickname,
		})
	}
	return gs, nil
}

func (b *Bot) getGroupMemberInfo(_ context.Context, p gjson.Result) (any, error) {
	members, err := b.driver.GroupMembers(p.Get("group_id").String())
	if err != nil {
		return nil, contactError(err)
	}
	uid := p.Get("user_id").String()
	for _, m := range members {
		if m.WxID == uid {
			return userInfo(m), nil
		}
	}
	return nil, onebot.ErrNotMember
}

func (b *Bot) getGroupMemberList(_ context.Context, p gjson.Result) (any, error) {
	members, err := b.driver.GroupMembers(p.Get("group_id").String())
	if err != nil {
		return nil, contactError(err)
	}
	ms := make([]MSG, 0, len(members))
	for _, m := range members {
		ms = append(ms, userInfo(m))
	}
	return ms, nil
}

func (b *Bot) setGroupName(_ context.Context, p gjson.Result) (any, error) {
	if err := b.driver.SetGroupName(p.Get("group_id").String(), p.Get("group_name").String()); err != nil {
		return nil, platformError("set_group_name", err)
	}
	return nil, nil
}

func (b *Bot) uploadFile(ctx context.Context, p gjson.Result) (any, error) {
	name := p.Get("name").String()
	var id string
	var err error
	switch p.Get("type").String() {
	case "url":
		u := p.Get("url")
		if !u.Exists() || u.Type == gjson.Null {
			return nil, onebot.NewError(onebot.RetBadParam, "缺少url参数")
		}
		headers := make(map[string]string)
		p.Get("headers").ForEach(func(key, value gjson.Result) bool {
			headers[key.String()] = value.String()
			return true
		})
		if id, err = b.cache.FromURL(ctx, u.String(), headers, name); err != nil {
			return nil, onebot.ErrDownload
		}
	case "path":
		path := p.Get("path")
		if !path.Exists() || path.Type == gjson.Null {
			return nil, onebot.NewError(onebot.RetBadParam, "缺少path参数")
		}
		if id, err = b.cache.FromPath(path.String(), name, false); err != nil {
			return nil, onebot.ErrFileOperate
		}
	case "data":
		data := p.Get("data")
		if !data.Exists() || data.Type == gjson.Null {
			return nil, onebot.NewError(onebot.RetBadParam, "缺少data参数")
		}
		raw, err := param.Base64DecodeString(data.String())
		if err != nil {
			return nil, onebot.NewError(onebot.RetBadParam, "data参数不是有效的base64")
		}
		if id, err = b.cache.FromBytes(raw, name); err != nil {
			return nil, onebot.ErrFileOperate
		}
	default:
		return nil, onebot.NewError(onebot.RetBadParam, "无效的type参数")
	}
	return MSG{"file_id": id}, nil
}

func (b *Bot) getFile(_ context.Context, p gjson.Result) (any, error) {
	id := p.Get("file_id").String()
	f, err := b.cache.Get(id)
	if err != nil || !global.PathExists(f.Path) {
		return nil, onebot.ErrFileNotFound
	}
	switch p.Get("type").String() {
	case "url":
		base := b.baseURL()
		if base == "" {
			return nil, onebot.NewError(onebot.RetFileError, "未开启http服务, 无法获取文件url")
		}
		return MSG{"name": f.Name, "url": strings.TrimSuffix(base, "/") + "/get_file/" + id}, nil
	case "path":
		return MSG{"name": f.Name, "path": f.Path}, nil
	case "data":
		data, err := os.ReadFile(f.Path)
		if err != nil {
			log.Warnf("读取文件 %v 失败: %v", f.Path, err)
			return nil, onebot.ErrFileOperate
		}
		return MSG{"name": f.Name, "data": data}, nil
	default:
		return nil, onebot.NewError(onebot.RetBadParam, "无效的type参数")
	}
}
