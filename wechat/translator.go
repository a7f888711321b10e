package wechat

import (
	"context"
	"net/url"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wxbot/go-wxhttp/internal/cache"
	"github.com/wxbot/go-wxhttp/internal/driver"
	"github.com/wxbot/go-wxhttp/internal/onebot"
)

// 系统提示中的固定文本
const (
	redPacketText = "收到红包，请在手机上查看"
	pokeText      = " 拍了拍我"
)

// mentionRegex 匹配文本中的 @昵称 与其后的一个空白(包括 U+2005)
var mentionRegex = regexp.MustCompile(`@[^@\s\p{Z}]+[\s\p{Z}]`)

type (
	handler    func(ctx context.Context, msg *driver.RawMessage) (onebot.Payload, error)
	appHandler func(ctx context.Context, msg *driver.RawMessage, app *xmlNode) (onebot.Payload, error)
	sysHandler func(msg *driver.RawMessage, sys *xmlNode) onebot.Payload
)

// Translator 将驱动推送的原始消息转换为事件
type Translator struct {
	cache     *cache.Service
	imageDir  string // 图片 hook 目录
	voiceDir  string // 语音 hook 目录
	wechatDir string // 微信文件目录
	timeout   time.Duration

	handlers map[driver.WxType]handler
	apps     map[driver.AppType]appHandler
	sysmsgs  map[string]sysHandler
	notices  []func(msg *driver.RawMessage) onebot.Payload
}

// NewTranslator 创建消息转换器
func NewTranslator(c *cache.Service, imageDir, voiceDir, wechatDir string, timeout time.Duration) *Translator {
	t := &Translator{
		cache:     c,
		imageDir:  imageDir,
		voiceDir:  voiceDir,
		wechatDir: wechatDir,
		timeout:   timeout,
	}
	t.handlers = map[driver.WxType]handler{
		driver.TextMsg:       t.text,
		driver.ImageMsg:      t.image,
		driver.VoiceMsg:      t.voice,
		driver.FriendRequest: t.friendRequest,
		driver.CardMsg:       t.card,
		driver.VideoMsg:      t.video,
		driver.EmojiMsg:      t.emoji,
		driver.LocationMsg:   t.location,
		driver.AppMsg:        t.app,
		driver.SystemNotice:  t.sysNotice,
		driver.SystemMsg:     t.sysMsg,
	}
	t.apps = map[driver.AppType]appHandler{
		driver.LinkMsg:           t.link,
		driver.FileMsg:           t.file,
		driver.QuoteMsg:          t.quote,
		driver.AppletMsg:         t.applet,
		driver.GroupAnnouncement: t.announcement,
		driver.TransferMsg:       func(context.Context, *driver.RawMessage, *xmlNode) (onebot.Payload, error) { return nil, nil },
	}
	t.sysmsgs = map[string]sysHandler{
		driver.SysRevoke:   revoke,
		driver.SysRoomTool: func(*driver.RawMessage, *xmlNode) onebot.Payload { return nil },
		driver.SysFunction: func(*driver.RawMessage, *xmlNode) onebot.Payload { return nil },
	}
	t.notices = []func(msg *driver.RawMessage) onebot.Payload{redPacket, poke}
	return t
}

// Translate 转换一条原始消息, 无对应事件时返回 nil
func (t *Translator) Translate(ctx context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	h, ok := t.handlers[msg.Type]
	if !ok {
		log.Debugf("忽略未知类型的微信消息: %d", msg.Type)
		return nil, nil
	}
	p, err := h(ctx, msg)
	if err != nil || p == nil {
		return nil, err
	}
	if msg.Timestamp > 0 {
		p.Header().Time = float64(msg.Timestamp)
	}
	return p, nil
}

func selfOf(msg *driver.RawMessage) *onebot.Self {
	return &onebot.Self{Platform: onebot.Platform, UserID: msg.Self}
}

func messageID(msg *driver.RawMessage) string {
	return strconv.FormatInt(msg.MsgID, 10)
}

// newMessage 按发送方构造私聊或群消息事件
func newMessage(msg *driver.RawMessage, m onebot.Message) onebot.Payload {
	if driver.IsGroup(msg.Sender) {
		return onebot.NewGroupMessage(selfOf(msg), messageID(msg), msg.Sender, msg.WxID, m)
	}
	return onebot.NewPrivateMessage(selfOf(msg), messageID(msg), msg.WxID, m)
}

// localPath 将微信给出的 windows 风格路径转换为本地路径
func localPath(p string) string {
	return filepath.FromSlash(strings.ReplaceAll(p, `\`, "/"))
}

func stem(p string) string {
	base := filepath.Base(p)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// waitMedia 等待驱动写出媒体文件并缓存, 超时返回空字符串
func (t *Translator) waitMedia(ctx context.Context, msg *driver.RawMessage, stemPath string, exts []string, name string) (string, error) {
	found, ok := t.cache.WaitForPath(ctx, stemPath, exts, t.timeout)
	if !ok {
		log.Debugf("等待消息 %d 的文件 %v 超时, 已丢弃.", msg.MsgID, stemPath)
		return "", nil
	}
	if name == "" {
		name = filepath.Base(found)
	}
	id, err := t.cache.FromPath(found, name, false)
	if err != nil {
		return "", errors.Wrap(err, "缓存文件失败")
	}
	return id, nil
}

// atList 读取 extrainfo 中的 at 列表, 没有 at 时返回 nil
func atList(extra string) []string {
	if extra == "" {
		return nil
	}
	root, err := parseXML(extra)
	if err != nil {
		log.Debugf("解析消息的 extrainfo 失败: %v", err)
		return nil
	}
	n := root.Find("atuserlist")
	if n == nil {
		return nil
	}
	ids := strings.Split(strings.TrimSpace(n.Content), ",")
	if ids[0] == "" {
		// pc微信发消息at时, 会多一个','
		ids = ids[1:]
	}
	return ids
}

// ParseText 按 at 列表将文本拆分为消息段
func ParseText(text string, ats []string) onebot.Message {
	if ats == nil {
		return onebot.Message{onebot.Text(text)}
	}
	var m onebot.Message
	last := 0
	for _, loc := range mentionRegex.FindAllStringIndex(text, -1) {
		if loc[0] > last {
			m = append(m, onebot.Text(text[last:loc[0]]))
		}
		if len(ats) == 0 {
			// 已经没有 at 目标了, 剩余部分都作为文本
			m = append(m, onebot.Text(text[loc[0]:]))
			return m
		}
		id := ats[0]
		ats = ats[1:]
		if id == onebot.MentionAllID {
			m = append(m, onebot.MentionAll())
		} else {
			m = append(m, onebot.Mention(id))
		}
		last = loc[1]
	}
	if last < len(text) {
		m = append(m, onebot.Text(text[last:]))
	}
	return m
}

func (t *Translator) text(_ context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	return newMessage(msg, ParseText(msg.Message, atList(msg.ExtraInfo))), nil
}

func (t *Translator) image(ctx context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	p := filepath.Join(t.imageDir, stem(localPath(msg.FilePath)))
	id, err := t.waitMedia(ctx, msg, p, cache.ImageExts, "")
	if id == "" {
		return nil, err
	}
	return newMessage(msg, onebot.Message{onebot.Image(id)}), nil
}

func (t *Translator) voice(ctx context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	p := filepath.Join(t.voiceDir, msg.Sign)
	id, err := t.waitMedia(ctx, msg, p, cache.VoiceExts, "")
	if id == "" {
		return nil, err
	}
	return newMessage(msg, onebot.Message{onebot.Voice(id)}), nil
}

func (t *Translator) video(ctx context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	thumb := filepath.Join(t.wechatDir, localPath(msg.ThumbPath))
	p := filepath.Join(filepath.Dir(thumb), stem(thumb))
	id, err := t.waitMedia(ctx, msg, p, cache.VideoExts, stem(thumb)+".mp4")
	if id == "" {
		return nil, err
	}
	return newMessage(msg, onebot.Message{onebot.Video(id)}), nil
}

func (t *Translator) emoji(ctx context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	root, err := parseXML(msg.Message)
	if err != nil {
		return nil, err
	}
	raw := root.Find("emoji").Attr("cdnurl")
	if raw == "" {
		return nil, errors.New("表情消息缺少cdnurl")
	}
	u, err := url.PathUnescape(raw)
	if err != nil {
		u = raw
	}
	id, err := t.cache.FromURL(ctx, u, nil, strconv.FormatInt(msg.MsgID, 10)+".gif")
	if err != nil {
		return nil, errors.Wrap(err, "下载表情失败")
	}
	return newMessage(msg, onebot.Message{onebot.Emoji(id)}), nil
}

func (t *Translator) location(_ context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	root, err := parseXML(msg.Message)
	if err != nil {
		return nil, err
	}
	loc := root
	if loc.Attr("x") == "" {
		loc = root.Find("location")
	}
	lat, _ := strconv.ParseFloat(loc.Attr("x"), 64)
	lon, _ := strconv.ParseFloat(loc.Attr("y"), 64)
	return newMessage(msg, onebot.Message{onebot.Location(lat, lon, loc.Attr("label"), loc.Attr("poiname"))}), nil
}

func (t *Translator) friendRequest(_ context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	root, err := parseXML(msg.Message)
	if err != nil {
		return nil, err
	}
	return &onebot.FriendRequest{
		Event:    onebot.NewEvent(onebot.TypeRequest, onebot.Ext("friend_request"), selfOf(msg)),
		UserID:   root.Attr("fromusername"),
		V3:       root.Attr("encryptusername"),
		V4:       root.Attr("ticket"),
		Nickname: root.Attr("fromnickname"),
		Content:  root.Attr("content"),
		Country:  root.Attr("country"),
		Province: root.Attr("province"),
		City:     root.Attr("city"),
	}, nil
}

func (t *Translator) card(_ context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	root, err := parseXML(msg.Message)
	if err != nil {
		return nil, err
	}
	detail := onebot.Ext("get_private_card")
	group := ""
	if driver.IsGroup(msg.Sender) {
		detail = onebot.Ext("get_group_card")
		group = msg.Sender
	}
	return &onebot.CardNotice{
		Event:     onebot.NewEvent(onebot.TypeNotice, detail, selfOf(msg)),
		GroupID:   group,
		UserID:    msg.WxID,
		V3:        root.Attr("username"),
		V4:        root.Attr("antispamticket"),
		Nickname:  root.Attr("nickname"),
		HeadURL:   root.Attr("bigheadimgurl"),
		Province:  root.Attr("province"),
		City:      root.Attr("city"),
		Sex:       root.Attr("sex"),
		MessageID: messageID(msg),
	}, nil
}

func (t *Translator) app(ctx context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	root, err := parseXML(msg.Message)
	if err != nil {
		return nil, err
	}
	app := root.Find("appmsg")
	if app == nil {
		return nil, errors.New("应用消息缺少appmsg")
	}
	typ, _ := strconv.Atoi(app.Text("type"))
	h, ok := t.apps[driver.AppType(typ)]
	if !ok {
		log.Debugf("忽略未知类型的应用消息: %d", typ)
		return nil, nil
	}
	return h(ctx, msg, app)
}

func (t *Translator) sysNotice(_ context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	for _, match := range t.notices {
		if p := match(msg); p != nil {
			return p, nil
		}
	}
	return nil, nil
}

func (t *Translator) sysMsg(_ context.Context, msg *driver.RawMessage) (onebot.Payload, error) {
	root, err := parseXML(msg.Message)
	if err != nil {
		return nil, err
	}
	h, ok := t.sysmsgs[root.Attr("type")]
	if !ok {
		return nil, nil
	}
	return h(msg, root), nil
}
