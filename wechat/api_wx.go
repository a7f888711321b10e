package wechat

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/wxbot/go-wxhttp/internal/driver"
	"github.com/wxbot/go-wxhttp/internal/onebot"
	"github.com/wxbot/go-wxhttp/modules/api"
)

func (b *Bot) registerExtActions() {
	ext := func(name string, schema api.Schema, fn api.Func) {
		b.registry.Register(onebot.Ext(name), schema, fn)
	}
	userID := api.Required("user_id", api.String)
	groupID := api.Required("group_id", api.String)

	ext("get_public_account_list", nil, b.getPublicAccountList)
	ext("follow_public_number", api.Schema{userID}, b.followPublicNumber)
	ext("search_contact_by_remark", api.Schema{api.Required("remark", api.String)}, b.searchContact("remark", b.driver.SearchByRemark))
	ext("search_contact_by_wxnumber", api.Schema{api.Required("wx_number", api.String)}, b.searchContact("wx_number", b.driver.SearchByWxNumber))
	ext("search_contact_by_nickname", api.Schema{api.Required("nickname", api.String)}, b.searchContact("nickname", b.driver.SearchByNickname))
	ext("check_friend_status", api.Schema{userID}, b.checkFriendStatus)
	ext("get_db_info", nil, b.getDBInfo)
	ext("execute_sql", api.Schema{api.Required("handle", api.Int), api.Required("sql", api.String)}, b.executeSQL)
	ext("backup_db", api.Schema{api.Required("handle", api.Int), api.Required("file_path", api.String)}, b.backupDB)
	ext("accept_friend", api.Schema{api.Required("v3", api.String), api.Required("v4", api.String)}, b.acceptFriend)
	ext("get_wechat_version", nil, b.getWeChatVersion)
	ext("set_wechat_version", api.Schema{api.Required("version", api.String)}, b.setWeChatVersion)
	ext("delete_friend", api.Schema{userID}, b.deleteFriend)
	ext("set_remark", api.Schema{userID, api.Required("remark", api.String)}, b.setRemark)
	ext("set_group_announcement", api.Schema{groupID, api.Required("announcement", api.String)}, b.setGroupAnnouncement)
	ext("set_group_nickname", api.Schema{groupID, api.Required("nickname", api.String)}, b.setGroupNickname)
	ext("get_groupmember_nickname", api.Schema{groupID, userID}, b.getGroupMemberNickname)
	ext("delete_groupmember", api.Schema{groupID, api.Required("user_list", api.Any)}, b.deleteGroupMember)
	ext("add_groupmember", api.Schema{groupID, api.Required("user_list", api.Any)}, b.addGroupMember)
	ext("get_public_history", api.Schema{api.Required("public_id", api.String), api.Optional("offset", api.String)}, b.getPublicHistory)
	ext("send_forward_msg", api.Schema{userID, api.Required("message_id", api.Int)}, b.sendForwardMsg)
	ext("send_raw_xml", api.Schema{userID, api.Required("xml", api.String), api.Optional("image_path", api.String)}, b.sendRawXML)
	ext("send_card", api.Schema{userID, api.Required("card_id", api.String), api.Required("nickname", api.String)}, b.sendCard)
	ext("clean_cache", api.Schema{api.Optional("days", api.Int)}, b.cleanCache)
}

// modify 执行会修改联系人的操作, 成功后刷新驱动的联系人缓存
func (b *Bot) modify(action string, fn func() error) (any, error) {
	if err := fn(); err != nil {
		return nil, platformError(action, err)
	}
	if err := b.driver.RefreshContacts(); err != nil {
		log.Warnf("刷新联系人列表失败: %v", err)
	}
	return nil, nil
}

func (b *Bot) getPublicAccountList(context.Context, gjson.Result) (any, error) {
	list, err := b.driver.PublicAccountList()
	if err != nil {
		return nil, errors.Wrap(err, "get public account list error")
	}
	ps := make([]MSG, 0, len(list))
	for _, c := range list {
		ps = append(ps, MSG{
			"user_id":   c.WxID,
			"user_name": c.Nickname,
			"wx_number": c.WxNumber,
		})
	}
	return ps, nil
}

func (b *Bot) followPublicNumber(_ context.Context, p gjson.Result) (any, error) {
	if err := b.driver.FollowPublicAccount(p.Get("user_id").String()); err != nil {
		return nil, platformError("follow_public_number", err)
	}
	return nil, nil
}

func (b *Bot) searchContact(key string, search func(string) (*driver.Contact, error)) api.Func {
	return func(_ context.Context, p gjson.Result) (any, error) {
		c, err := search(p.Get(key).String())
		if err != nil {
			return nil, contactError(err)
		}
		ret := userInfo(c)
		ret["user_remark"] = c.Remark
		return ret, nil
	}
}

func (b *Bot) checkFriendStatus(_ context.Context, p gjson.Result) (any, error) {
	return b.driver.CheckFriendStatus(p.Get("user_id").String())
}

func (b *Bot) getDBInfo(context.Context, gjson.Result) (any, error) {
	return b.driver.DBHandles()
}

func (b *Bot) executeSQL(_ context.Context, p gjson.Result) (any, error) {
	return b.driver.ExecuteSQL(p.Get("handle").Int(), p.Get("sql").String())
}

func (b *Bot) backupDB(_ context.Context, p gjson.Result) (any, error) {
	if err := b.driver.BackupDB(p.Get("handle").Int(), p.Get("file_path").String()); err != nil {
		log.Warnf("备份数据库失败: %v", err)
		return nil, onebot.NewError(onebot.RetFileError, "备份数据库失败")
	}
	return nil, nil
}

func (b *Bot) acceptFriend(_ context.Context, p gjson.Result) (any, error) {
	if err := b.driver.AcceptFriend(p.Get("v3").String(), p.Get("v4").String()); err != nil {
		return nil, platformError("accept_friend", err)
	}
	return nil, nil
}

func (b *Bot) getWeChatVersion(context.Context, gjson.Result) (any, error) {
	return b.driver.WeChatVersion()
}

func (b *Bot) setWeChatVersion(_ context.Context, p gjson.Result) (any, error) {
	if err := b.driver.SetWeChatVersion(p.Get("version").String()); err != nil {
		return nil, platformError("set_wechat_version", err)
	}
	return nil, nil
}

func (b *Bot) deleteFriend(_ context.Context, p gjson.Result) (any, error) {
	return b.modify("delete_friend", func() error {
		return b.driver.DeleteFriend(p.Get("user_id").String())
	})
}

func (b *Bot) setRemark(_ context.Context, p gjson.Result) (any, error) {
	return b.modify("set_remark", func() error {
		return b.driver.EditRemark(p.Get("user_id").String(), p.Get("remark").String())
	})
}

func (b *Bot) setGroupAnnouncement(_ context.Context, p gjson.Result) (any, error) {
	return b.modify("set_group_announcement", func() error {
		return b.driver.SetGroupAnnouncement(p.Get("group_id").String(), p.Get("announcement").String())
	})
}

func (b *Bot) setGroupNickname(_ context.Context, p gjson.Result) (any, error) {
	return b.modify("set_group_nickname", func() error {
		return b.driver.SetGroupNickname(p.Get("group_id").String(), p.Get("nickname").String())
	})
}

func (b *Bot) getGroupMemberNickname(_ context.Context, p gjson.Result) (any, error) {
	return b.driver.GroupMemberNickname(p.Get("group_id").String(), p.Get("user_id").String())
}

// userList user_list 可以是单个 wxid 或 wxid 数组
func userList(p gjson.Result) ([]string, error) {
	list := p.Get("user_list")
	switch {
	case list.Type == gjson.String:
		return []string{list.Str}, nil
	case list.IsArray():
		var ids []string
		for _, id := range list.Array() {
			if id.Type != gjson.String {
				return nil, onebot.NewError(onebot.RetBadParam, "Param参数错误: 类型错误 user_list")
			}
			ids = append(ids, id.Str)
		}
		return ids, nil
	default:
		return nil, onebot.NewError(onebot.RetBadParam, "Param参数错误: 类型错误 user_list")
	}
}

func (b *Bot) deleteGroupMember(_ context.Context, p gjson.Result) (any, error) {
	ids, err := userList(p)
	if err != nil {
		return nil, err
	}
	return b.modify("delete_groupmember", func() error {
		return b.driver.DeleteGroupMembers(p.Get("group_id").String(), ids)
	})
}

func (b *Bot) addGroupMember(_ context.Context, p gjson.Result) (any, error) {
	ids, err := userList(p)
	if err != nil {
		return nil, err
	}
	return b.modify("add_groupmember", func() error {
		return b.driver.AddGroupMembers(p.Get("group_id").String(), ids)
	})
}

func (b *Bot) getPublicHistory(_ context.Context, p gjson.Result) (any, error) {
	return b.driver.PublicHistory(p.Get("public_id").String(), p.Get("offset").String())
}

func (b *Bot) sendForwardMsg(_ context.Context, p gjson.Result) (any, error) {
	return b.modify("send_forward_msg", func() error {
		return b.driver.ForwardMessage(p.Get("user_id").String(), p.Get("message_id").Int())
	})
}

func (b *Bot) sendRawXML(_ context.Context, p gjson.Result) (any, error) {
	return b.modify("send_raw_xml", func() error {
		return b.driver.SendXML(p.Get("user_id").String(), p.Get("xml").String(), p.Get("image_path").String())
	})
}

func (b *Bot) sendCard(_ context.Context, p gjson.Result) (any, error) {
	return b.modify("send_card", func() error {
		return b.driver.SendCard(p.Get("user_id").String(), p.Get("card_id").String(), p.Get("nickname").String())
	})
}

func (b *Bot) cleanCache(_ context.Context, p gjson.Result) (any, error) {
	days := 3
	if d := p.Get("days"); d.Exists() && d.Type != gjson.Null {
		days = int(d.Int())
	}
	n, err := b.cache.Cleanup(days)
	if err != nil {
		log.Warnf("清理缓存失败: %v", err)
		return nil, onebot.ErrFileOperate
	}
	return n, nil
}
