package wechat

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/wxbot/go-wxhttp/global"
	"github.com/wxbot/go-wxhttp/internal/driver"
	"github.com/wxbot/go-wxhttp/internal/onebot"
)

func (t *Translator) link(_ context.Context, msg *driver.RawMessage, app *xmlNode) (onebot.Payload, error) {
	fileID := ""
	if msg.FilePath != "" {
		p := filepath.Join(t.wechatDir, localPath(msg.FilePath))
		if global.PathExists(p) {
			id, err := t.cache.FromPath(p, filepath.Base(p), false)
			if err != nil {
				log.Warnf("缓存链接封面 %v 失败: %v", p, err)
			}
			fileID = id
		}
	}
	u := strings.ReplaceAll(app.Text("url"), " ", "")
	return newMessage(msg, onebot.Message{onebot.Link(app.Text("title"), app.Text("des"), u, fileID)}), nil
}

// file 文件消息先推送一次通知, 下载完成后再推送一次携带 overwrite_newmsgid 的消息
func (t *Translator) file(ctx context.Context, msg *driver.RawMessage, app *xmlNode) (onebot.Payload, error) {
	name := app.Text("title")
	attach := app.Find("appattach")
	if attach.Find("overwrite_newmsgid") == nil {
		length, _ := strconv.ParseInt(attach.Text("totallen"), 10, 64)
		n := &onebot.FileNotice{
			Event:      onebot.NewEvent(onebot.TypeNotice, onebot.Ext("get_private_file"), selfOf(msg)),
			UserID:     msg.WxID,
			FileName:   name,
			FileLength: length,
			MD5:        app.Text("md5"),
			MessageID:  messageID(msg),
		}
		if driver.IsGroup(msg.Sender) {
			n.DetailType = onebot.Ext("get_group_file")
			n.GroupID = msg.Sender
		}
		return n, nil
	}
	p := filepath.Join(t.wechatDir, localPath(msg.FilePath))
	id, err := t.waitMedia(ctx, msg, p, []string{""}, name)
	if id == "" {
		return nil, err
	}
	return newMessage(msg, onebot.Message{onebot.File(id)}), nil
}

func (t *Translator) quote(_ context.Context, msg *driver.RawMessage, app *xmlNode) (onebot.Payload, error) {
	return newMessage(msg, onebot.Message{
		onebot.Reply(app.Text("refermsg/svrid"), app.Text("refermsg/fromusr")),
		onebot.Text(app.Text("title")),
	}), nil
}

func (t *Translator) applet(_ context.Context, msg *driver.RawMessage, app *xmlNode) (onebot.Payload, error) {
	return newMessage(msg, onebot.Message{
		onebot.App(app.Text("weappinfo/username"), app.Text("title"), app.Text("url")),
	}), nil
}

func (t *Translator) announcement(_ context.Context, msg *driver.RawMessage, app *xmlNode) (onebot.Payload, error) {
	return &onebot.GroupAnnouncement{
		Event:     onebot.NewEvent(onebot.TypeNotice, onebot.Ext("get_group_announcement"), selfOf(msg)),
		GroupID:   msg.Sender,
		UserID:    msg.WxID,
		Text:      app.Text("textannouncement"),
		MessageID: messageID(msg),
	}, nil
}

func revoke(msg *driver.RawMessage, sys *xmlNode) onebot.Payload {
	id := sys.Text("revokemsg/newmsgid")
	if driver.IsGroup(msg.Sender) {
		return &onebot.GroupMessageDelete{
			Event:     onebot.NewEvent(onebot.TypeNotice, "group_message_delete", selfOf(msg)),
			MessageID: id,
			GroupID:   msg.Sender,
			UserID:    msg.WxID,
		}
	}
	return &onebot.PrivateMessageDelete{
		Event:     onebot.NewEvent(onebot.TypeNotice, "private_message_delete", selfOf(msg)),
		MessageID: id,
		UserID:    msg.WxID,
	}
}

func redPacket(msg *driver.RawMessage) onebot.Payload {
	if msg.Message != redPacketText {
		return nil
	}
	return simpleNotice(msg, "redbag")
}

func poke(msg *driver.RawMessage) onebot.Payload {
	if !strings.Contains(msg.Message, pokeText) {
		return nil
	}
	return simpleNotice(msg, "poke")
}

func simpleNotice(msg *driver.RawMessage, kind string) onebot.Payload {
	if driver.IsGroup(msg.Sender) {
		return &onebot.SimpleNotice{
			Event:     onebot.NewEvent(onebot.TypeNotice, onebot.Ext("get_group_"+kind), selfOf(msg)),
			GroupID:   msg.Sender,
			UserID:    msg.WxID,
			MessageID: messageID(msg),
		}
	}
	return &onebot.SimpleNotice{
		Event:     onebot.NewEvent(onebot.TypeNotice, onebot.Ext("get_private_"+kind), selfOf(msg)),
		UserID:    msg.WxID,
		MessageID: messageID(msg),
	}
}
