// Package wechat 连接驱动与连接服务, 负责事件转换与动作处理
package wechat

import (
	"context"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/adhocore/gronx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wxbot/go-wxhttp/internal/cache"
	"github.com/wxbot/go-wxhttp/internal/driver"
	"github.com/wxbot/go-wxhttp/internal/onebot"
	"github.com/wxbot/go-wxhttp/modules/api"
)

// Options 机器人运行参数
type Options struct {
	CacheDays         int           // 定时清理时保留的天数
	CacheCron         string        // 定时清理的 cron 表达式, 为空时不清理
	MediaTimeout      time.Duration // 等待媒体文件落盘的超时时间
	HeartbeatInterval time.Duration // 心跳间隔, 为 0 时关闭心跳
}

// Bot 机器人
type Bot struct {
	driver     driver.Driver
	cache      *cache.Service
	opts       Options
	info       *driver.SelfInfo
	translator *Translator
	registry   *api.Registry

	lock   sync.Mutex
	events []func(*Event)

	mu          sync.RWMutex
	fileBaseURL string

	wg sync.WaitGroup
}

// NewBot 初始化一个机器人, 注册所有动作
func NewBot(drv driver.Driver, c *cache.Service, opts Options) (*Bot, error) {
	if opts.CacheCron != "" {
		gron := gronx.New()
		if !gron.IsValid(opts.CacheCron) {
			return nil, errors.Errorf("无效的缓存清理计划: %v", opts.CacheCron)
		}
	}
	info, err := drv.SelfInfo()
	if err != nil {
		return nil, errors.Wrap(err, "获取登录账号信息失败")
	}
	wechatDir := filepath.Dir(localPath(info.FilePath))
	b := &Bot{
		driver: drv,
		cache:  c,
		opts:   opts,
		info:   info,
		translator: NewTranslator(c,
			filepath.Join(c.Dir(), "image", info.WxID),
			filepath.Join(c.Dir(), "voice", info.WxID),
			wechatDir, opts.MediaTimeout),
		registry: api.NewRegistry(),
	}
	b.registerActions()
	log.Infof("登录成功, 欢迎使用: %v(%v)", info.Nickname, info.WxID)
	return b, nil
}

// Self 机器人自身标识
func (b *Bot) Self() onebot.Self {
	return onebot.Self{Platform: onebot.Platform, UserID: b.info.WxID}
}

// Registry 机器人支持的动作
func (b *Bot) Registry() *api.Registry {
	return b.registry
}

// SetFileBaseURL 设置 get_file 返回的下载地址前缀, 由 http 服务设置
func (b *Bot) SetFileBaseURL(u string) {
	b.mu.Lock()
	b.fileBaseURL = u
	b.mu.Unlock()
}

func (b *Bot) baseURL() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fileBaseURL
}

// Cache 文件缓存
func (b *Bot) Cache() *cache.Service {
	return b.cache
}

// Status 运行状态
func (b *Bot) Status() onebot.Status {
	return onebot.Status{
		Good: true,
		Bots: []onebot.BotStatus{{Self: b.Self(), Online: true}},
	}
}

// OnEventPush 注册事件上报函数
func (b *Bot) OnEventPush(f func(e *Event)) {
	b.lock.Lock()
	b.events = append(b.events, f)
	b.lock.Unlock()
}

// Run 启动驱动的消息接收, 心跳与定时清理, ctx 取消后全部退出
func (b *Bot) Run(ctx context.Context) error {
	if err := b.driver.Start(ctx, b.cache.Dir()); err != nil {
		return errors.Wrap(err, "启动消息接收失败")
	}
	b.wg.Add(1)
	go b.receive(ctx)
	if b.opts.HeartbeatInterval > 0 {
		b.wg.Add(1)
		go b.heartbeat(ctx)
	} else {
		log.Warn("警告: 心跳功能已关闭，若非预期，请检查配置文件。")
	}
	if b.opts.CacheCron != "" {
		b.wg.Add(1)
		go b.scheduleCleanup(ctx)
	}
	return nil
}

// Wait 等待 Run 启动的任务全部退出
func (b *Bot) Wait() {
	b.wg.Wait()
}

// Release 关闭驱动
func (b *Bot) Release() {
	if err := b.driver.Close(); err != nil {
		log.Warnf("关闭驱动时出现错误: %v", err)
	}
}

func (b *Bot) receive(ctx context.Context) {
	defer b.wg.Done()
	var wg sync.WaitGroup
	defer wg.Wait()
	messages := b.driver.Messages()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				log.Warn("驱动消息通道已关闭.")
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				b.handleMessage(ctx, msg)
			}()
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *driver.RawMessage) {
	defer func() {
		if pan := recover(); pan != nil {
			log.Errorf("处理消息 %d 时出现错误: %v \n%s", msg.MsgID, pan, debug.Stack())
		}
	}()
	p, err := b.translator.Translate(ctx, msg)
	if err != nil {
		log.Warnf("转换消息 %d (类型 %d) 失败: %v", msg.MsgID, msg.Type, err)
		return
	}
	if p == nil {
		return
	}
	logEvent(p)
	b.dispatch(p)
}

func logEvent(p onebot.Payload) {
	switch e := p.(type) {
	case *onebot.PrivateMessage:
		log.Infof("收到好友 %v 的消息: %v (%v)", e.UserID, e.AltMessage, e.MessageID)
	case *onebot.GroupMessage:
		log.Infof("收到群 %v 内 %v 的消息: %v (%v)", e.GroupID, e.UserID, e.AltMessage, e.MessageID)
	case *onebot.FriendRequest:
		log.Infof("收到来自 %v(%v) 的好友请求: %v", e.Nickname, e.UserID, e.Content)
	default:
		h := p.Header()
		log.Infof("收到 %v 事件: %v", h.Type, h.DetailType)
	}
}

// dispatch 按注册顺序依次推送事件, 保证每个连接收到的事件顺序与产生顺序一致
func (b *Bot) dispatch(p onebot.Payload) {
	e := NewEvent(p)
	b.lock.Lock()
	defer b.lock.Unlock()
	for _, f := range b.events {
		b.push(f, e)
	}
}

func (b *Bot) push(f func(*Event), e *Event) {
	defer func() {
		if pan := recover(); pan != nil {
			log.Warnf("处理事件 %v 时出现错误: %v \n%s", e.JSONString(), pan, debug.Stack())
		}
	}()
	start := time.Now()
	f(e)
	if cost := time.Since(start); cost > time.Second*5 {
		log.Debugf("警告: 事件处理耗时超过 5 秒 (%v), 请检查应用是否有堵塞.", cost)
	}
}

func (b *Bot) heartbeat(ctx context.Context) {
	defer b.wg.Done()
	ticker := time.NewTicker(b.opts.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.dispatch(onebot.NewHeartbeat(b.opts.HeartbeatInterval))
		}
	}
}

func (b *Bot) scheduleCleanup(ctx context.Context) {
	defer b.wg.Done()
	for {
		next, err := gronx.NextTickAfter(b.opts.CacheCron, time.Now(), false)
		if err != nil {
			log.Errorf("计算下次缓存清理时间失败: %v", err)
			return
		}
		log.Debugf("下次缓存清理时间: %v", next.Format(time.DateTime))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		if _, err := b.cache.Cleanup(b.opts.CacheDays); err != nil {
			log.Warnf("定时清理缓存失败: %v", err)
		}
	}
}
