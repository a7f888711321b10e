// Package wxhttp 程序的主体部分
package wxhttp

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wxbot/go-wxhttp/global"
	"github.com/wxbot/go-wxhttp/internal/base"
	"github.com/wxbot/go-wxhttp/internal/download"
	"github.com/wxbot/go-wxhttp/internal/driver"
	"github.com/wxbot/go-wxhttp/modules/servers"
	"github.com/wxbot/go-wxhttp/wechat"

	_ "github.com/wxbot/go-wxhttp/server" // 注册连接服务
)

// Main 启动主程序
func Main() {
	base.Parse()
	if base.LittleH {
		base.Help()
	}
	base.Init()
	InitLog()
	log.Info("当前版本:", base.Version)

	download.SetTimeout(base.DownloadTimeout)
	c := InitCache()
	drv, err := driver.New(base.Driver, base.Drivers[base.Driver])
	if err != nil {
		log.Fatalf("初始化驱动 %v 失败: %v", base.Driver, err)
	}

	opts := wechat.Options{
		CacheDays:         base.CacheDays,
		CacheCron:         base.CacheCron,
		MediaTimeout:      base.MediaTimeout,
		HeartbeatInterval: base.HeartbeatInterval,
	}
	if base.HeartbeatDisabled {
		opts.HeartbeatInterval = 0
	}
	bot, err := wechat.NewBot(drv, c, opts)
	if err != nil {
		log.Fatalf("初始化机器人失败: %v", err)
	}

	ctx := global.SetupMainSignalHandler(context.Background())
	if err = bot.Run(ctx); err != nil {
		log.Fatalf("启动机器人失败: %v", err)
	}
	servers.Run(ctx, bot)
	log.Info("资源初始化完成, 开始处理信息.")

	<-ctx.Done()
	log.Info("正在关闭连接服务...")
	done := make(chan struct{})
	go func() {
		bot.Wait()
		servers.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second * 10):
		log.Warn("等待连接服务退出超时, 将强制退出.")
	}
	bot.Release()
}
