package wechat

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/wxbot/go-wxhttp/internal/onebot"
)

// 发送消息段失败时的原因
var (
	errInvalidFile = errors.New("无效的file_id")
)

type segmentSender func(b *Bot, target string, seg onebot.Segment) error

// segmentSenders 支持发送的消息段, text 在发送群消息时会携带 at 列表单独处理
var segmentSenders = map[string]segmentSender{
	onebot.SegText: func(b *Bot, target string, seg onebot.Segment) error {
		return b.driver.SendText(target, seg.Get("text"))
	},
	onebot.SegImage: func(b *Bot, target string, seg onebot.Segment) error {
		p, err := b.filePath(seg.Get("file_id"))
		if err != nil {
			return err
		}
		return b.driver.SendImage(target, p)
	},
	onebot.SegFile: func(b *Bot, target string, seg onebot.Segment) error {
		p, err := b.filePath(seg.Get("file_id"))
		if err != nil {
			return err
		}
		return b.driver.SendFile(target, p)
	},
	onebot.SegEmoji: func(b *Bot, target string, seg onebot.Segment) error {
		p, err := b.filePath(seg.Get("file_id"))
		if err != nil {
			return err
		}
		return b.driver.SendGif(target, p)
	},
	onebot.SegLink: func(b *Bot, target string, seg onebot.Segment) error {
		image := ""
		if id := seg.Get("file_id"); id != "" {
			p, err := b.filePath(id)
			if err != nil {
				return err
			}
			image = p
		}
		return b.driver.SendLink(target, seg.Get("title"), seg.Get("des"), seg.Get("url"), image)
	},
}

func (b *Bot) filePath(id string) (string, error) {
	if id == "" {
		return "", errInvalidFile
	}
	f, err := b.cache.Get(id)
	if err != nil {
		return "", errInvalidFile
	}
	return f.Path, nil
}

// sendError 汇总发送过程中各个消息段的错误
type sendError []string

func (e *sendError) add(format string, args ...any) {
	*e = append(*e, fmt.Sprintf(format, args...))
}

func (e *sendError) fail(seg onebot.Segment, err error) {
	switch {
	case errors.Is(err, errInvalidFile):
		log.Errorf("发送消息段 %v 失败: %v", seg.Type, err)
		e.add("无效的file_id")
	default:
		log.Errorf("发送消息出错: %v", err)
		e.add("发送消息出错:%v", err)
	}
}

func (e sendError) result() (any, error) {
	if len(e) == 0 {
		return nil, nil
	}
	return nil, onebot.NewError(onebot.RetUnsupportedAction, "发送消息时出现以下错误:\n"+strings.Join(e, "\n"))
}

func (b *Bot) sendMessage(_ context.Context, p gjson.Result) (any, error) {
	m, err := onebot.ParseMessage(p.Get("message"))
	if err != nil {
		return nil, onebot.NewError(onebot.RetBadParam, "Param参数错误: 类型错误 message")
	}
	switch p.Get("detail_type").String() {
	case "private":
		uid := p.Get("user_id")
		if uid.Type == gjson.Null || uid.String() == "" {
			return nil, onebot.ErrParam
		}
		log.Infof("发送好友 %v 的消息: %v", uid.String(), m.String())
		return b.sendPrivate(uid.String(), m)
	case "group":
		gid := p.Get("group_id")
		if gid.Type == gjson.Null || gid.String() == "" {
			return nil, onebot.ErrParam
		}
		log.Infof("发送群 %v 的消息: %v", gid.String(), m.String())
		return b.sendGroup(gid.String(), m)
	case "channel":
		return nil, onebot.NewError(onebot.RetUnsupportedParam, "不支持channel发送")
	default:
		return nil, onebot.NewError(onebot.RetBadParam, "Param参数错误: 无效的detail_type")
	}
}

func (b *Bot) sendPrivate(uid string, m onebot.Message) (any, error) {
	var errs sendError
	for _, seg := range m {
		if seg.Type == onebot.SegMention || seg.Type == onebot.SegMentionAll {
			errs.add("私聊不支持的消息段:%s", seg.Type)
			continue
		}
		send, ok := segmentSenders[seg.Type]
		if !ok {
			errs.add("不支持的消息段:%s", seg.Type)
			continue
		}
		if err := send(b, uid, seg); err != nil {
			errs.fail(seg, err)
		}
	}
	return errs.result()
}

// foldMentions 将连续的 text/mention/mention_all 合并为一个文本段, 返回合并后的消息与每个文本段对应的 at 列表
//
// 无法解析昵称的 mention 会被记录为错误并跳过.
func (b *Bot) foldMentions(gid string, m onebot.Message, errs *sendError) (onebot.Message, [][]string) {
	var (
		folded  onebot.Message
		atLists [][]string
		current []string
		inText  bool
	)
	flush := func() {
		if inText {
			atLists = append(atLists, current)
		}
		inText, current = false, nil
	}
	for _, seg := range m {
		switch seg.Type {
		case onebot.SegText:
			inText = true
			folded = append(folded, seg)
		case onebot.SegMention:
			uid := seg.Get("user_id")
			nickname, err := b.driver.GroupMemberNickname(gid, uid)
			if err != nil || nickname == "" {
				errs.add("%s:%s", onebot.ErrNotMember.Message, uid)
				continue
			}
			folded = append(folded, onebot.Text("@"+nickname+" "))
			inText = true
			current = append(current, uid)
		case onebot.SegMentionAll:
			folded = append(folded, onebot.Text("@全体成员 "))
			inText = true
			current = append(current, onebot.MentionAllID)
		default:
			flush()
			folded = append(folded, seg)
		}
	}
	flush()
	return folded.Reduce(), atLists
}

func (b *Bot) sendGroup(gid string, m onebot.Message) (any, error) {
	var errs sendError
	folded, atLists := b.foldMentions(gid, m, &errs)
	for _, seg := range folded {
		send, ok := segmentSenders[seg.Type]
		if !ok {
			errs.add("不支持的消息段:%s", seg.Type)
			continue
		}
		var ats []string
		if seg.Type == onebot.SegText && len(atLists) > 0 {
			ats, atLists = atLists[0], atLists[1:]
		}
		var err error
		if len(ats) > 0 {
			err = b.driver.SendAtText(gid, ats, seg.Get("text"))
		} else {
			err = send(b, gid, seg)
		}
		if err != nil {
			errs.fail(seg, err)
		}
	}
	return errs.result()
}
