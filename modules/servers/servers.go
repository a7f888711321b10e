// Package servers provide servers register
package servers

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/internal/base"
	"github.com/wxbot/go-wxhttp/wechat"
)

var (
	svr = make(map[string]func(context.Context, *wechat.Bot, yaml.Node))
	wg  sync.WaitGroup
)

// Register 注册 Server, proc 应阻塞运行直到 ctx 取消
func Register(name string, proc func(context.Context, *wechat.Bot, yaml.Node)) {
	_, ok := svr[name]
	if ok {
		panic(name + " server has existed")
	}
	svr[name] = proc
}

// Run 运行所有svr
func Run(ctx context.Context, bot *wechat.Bot) {
	for _, l := range base.Servers {
		for name, conf := range l {
			fn, ok := svr[name]
			if !ok {
				log.Warnf("未知的连接服务: %v", name)
				continue
			}
			wg.Add(1)
			go func(conf yaml.Node) {
				defer wg.Done()
				fn(ctx, bot, conf)
			}(conf)
		}
	}
}

// Wait 等待所有svr退出
func Wait() {
	wg.Wait()
}
