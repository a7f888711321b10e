// Package pprof provide pprof server of go-wxhttp
package pprof

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/modules/config"
	"github.com/wxbot/go-wxhttp/modules/servers"
	"github.com/wxbot/go-wxhttp/wechat"
)

const pprofDefault = `  # pprof 性能分析服务器, 一般情况下不需要启用.
  # 注意: pprof服务不支持中间件、不支持鉴权. 请不要开放到公网
  - pprof:
      # pprof服务器监听地址
      host: 127.0.0.1
      # pprof服务器监听端口
      port: 7700
`

// pprofServer pprof性能分析服务器相关配置
type pprofServer struct {
	Disabled bool   `yaml:"disabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
}

func init() {
	config.AddServer(&config.Server{
		Brief:   "pprof 性能分析服务器",
		Default: pprofDefault,
	})
	servers.Register("pprof", runPprof)
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// runPprof 启动 pprof 性能分析服务器, ctx 取消后关闭
func runPprof(ctx context.Context, _ *wechat.Bot, node yaml.Node) {
	var conf pprofServer
	switch err := node.Decode(&conf); {
	case err != nil:
		log.Warn("读取pprof配置失败 :", err)
		fallthrough
	case conf.Disabled:
		return
	}
	if conf.Host == "" {
		conf.Host = "127.0.0.1"
	}
	if conf.Port == 0 {
		conf.Port = 7700
	}

	addr := fmt.Sprintf("%s:%d", conf.Host, conf.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Errorf("pprof 服务启动失败, 请检查端口是否被占用: %v", err)
		return
	}
	server := &http.Server{Handler: newMux()}
	stop := context.AfterFunc(ctx, func() { _ = server.Close() })
	defer stop()
	log.Infof("pprof debug 服务器已启动: %v/debug/pprof", listener.Addr())
	log.Warnf("警告: pprof 服务不支持鉴权, 请不要运行在公网.")
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		log.Error(err)
	}
}
