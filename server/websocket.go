package server

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/internal/base"
	"github.com/wxbot/go-wxhttp/internal/onebot"
	"github.com/wxbot/go-wxhttp/internal/param"
	"github.com/wxbot/go-wxhttp/modules/api"
	"github.com/wxbot/go-wxhttp/modules/config"
	"github.com/wxbot/go-wxhttp/modules/filter"
	"github.com/wxbot/go-wxhttp/modules/servers"
	"github.com/wxbot/go-wxhttp/wechat"
)

// WebsocketServer 正向WS相关配置
type WebsocketServer struct {
	Disabled bool   `yaml:"disabled"`
	Address  string `yaml:"address"`

	config.MiddleWares `yaml:"middlewares"`
}

// WebsocketReverse 反向WS相关配置
type WebsocketReverse struct {
	Disabled          bool   `yaml:"disabled"`
	URL               string `yaml:"url"`
	ReconnectInterval int    `yaml:"reconnect-interval"`

	config.MiddleWares `yaml:"middlewares"`
}

const wsDefault = `  # 正向WS设置
  - ws:
      # 正向WS服务器监听地址
      address: 0.0.0.0:6700
      middlewares:
        <<: *default # 引用默认中间件
`

const wsReverseDefault = `  # 反向WS设置
  - ws-reverse:
      # 反向WS地址
      url: ws://127.0.0.1:8080/onebot/v12/ws
      # 重连间隔 单位毫秒
      reconnect-interval: 3000
      middlewares:
        <<: *default # 引用默认中间件
`

func init() {
	config.AddServer(&config.Server{Brief: "正向 Websocket 通信", Default: wsDefault})
	config.AddServer(&config.Server{Brief: "反向 Websocket 通信", Default: wsReverseDefault})
	servers.Register("ws", runWebSocketServer)
	servers.Register("ws-reverse", runWebSocketClient)
}

type webSocketServer struct {
	ctx   context.Context
	bot   *wechat.Bot
	conf  *WebsocketServer
	conns *connTable
	token string
}

// websocketClient WebSocket客户端实例
type websocketClient struct {
	bot    *wechat.Bot
	conf   *WebsocketReverse
	conns  *connTable
	caller *api.Caller
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	Subprotocols: []string{onebot.Protocol},
}

var dialer = websocket.Dialer{
	Proxy:            http.ProxyFromEnvironment,
	HandshakeTimeout: time.Second * 45,
	Subprotocols:     []string{onebot.Protocol},
}

// serveConn 推送连接元事件后登记连接, 直到连接断开或 ctx 取消
func serveConn(ctx context.Context, table *connTable, b *wechat.Bot, c *websocket.Conn, caller *api.Caller) {
	conn := newWebSocketConn(c, caller)
	stop := context.AfterFunc(ctx, conn.close)
	defer stop()
	if err := greet(conn, b); err != nil {
		log.Warnf("WebSocket 握手时出现错误: %v", err)
		conn.close()
		return
	}
	id := table.add(conn)
	defer table.remove(conn)
	log.Debugf("WebSocket 连接 %v 已登记", id)
	conn.listen(ctx)
}

func newWebSocketServer(ctx context.Context, b *wechat.Bot, conf *WebsocketServer) *webSocketServer {
	s := &webSocketServer{
		ctx:   ctx,
		bot:   b,
		conf:  conf,
		conns: newConnTable(conf.Filter),
		token: conf.AccessToken,
	}
	filter.Add(conf.Filter)
	b.OnEventPush(s.conns.onBotPushEvent)
	return s
}

// runWebSocketServer 运行一个正向WS server
func runWebSocketServer(ctx context.Context, b *wechat.Bot, node yaml.Node) {
	var conf WebsocketServer
	switch err := node.Decode(&conf); {
	case err != nil:
		log.Warn("读取正向Websocket配置失败 :", err)
		fallthrough
	case conf.Disabled:
		return
	}
	param.SetAtDefault(&conf.Address, "0.0.0.0:6700", "")
	s := newWebSocketServer(ctx, b, &conf)
	listener, err := net.Listen("tcp", conf.Address)
	if err != nil {
		log.Errorf("WebSocket 服务启动失败: %v", err)
		return
	}
	srv := &http.Server{Handler: s}
	go func() {
		<-ctx.Done()
		s.conns.closeAll()
		_ = srv.Close()
	}()
	log.Infof("OneBot WebSocket 服务器已启动: %v", listener.Addr())
	if err = srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		log.Errorf("WebSocket 服务器出现错误: %v", err)
	}
}

func (s *webSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := checkAuth(r, s.token)
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("处理 WebSocket 请求时出现错误: %v", err)
		return
	}
	if status != http.StatusOK {
		log.Warnf("已拒绝 %v 的 WebSocket 请求: Token鉴权失败(code:%d)", r.RemoteAddr, status)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, authReason(status))
		_ = c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.Close()
		return
	}
	log.Infof("接受 WebSocket 连接: %v", r.RemoteAddr)
	serveConn(s.ctx, s.conns, s.bot, c, newCaller(s.bot, &s.conf.MiddleWares))
	log.Infof("WebSocket 连接 %v 已断开", r.RemoteAddr)
}

// runWebSocketClient 运行一个反向WS client, ctx 取消前断线会按间隔重连
func runWebSocketClient(ctx context.Context, b *wechat.Bot, node yaml.Node) {
	var conf WebsocketReverse
	switch err := node.Decode(&conf); {
	case err != nil:
		log.Warn("读取反向Websocket配置失败 :", err)
		fallthrough
	case conf.Disabled || conf.URL == "":
		return
	}
	if conf.ReconnectInterval <= 0 {
		conf.ReconnectInterval = 3000
	}
	c := &websocketClient{
		bot:    b,
		conf:   &conf,
		conns:  newConnTable(conf.Filter),
		caller: newCaller(b, &conf.MiddleWares),
	}
	filter.Add(conf.Filter)
	b.OnEventPush(c.conns.onBotPushEvent)
	c.run(ctx)
}

func (c *websocketClient) run(ctx context.Context) {
	interval := time.Millisecond * time.Duration(c.conf.ReconnectInterval)
	for {
		c.connect(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func (c *websocketClient) connect(ctx context.Context) {
	log.Infof("开始尝试连接到反向WebSocket服务器: %v", c.conf.URL)
	header := http.Header{
		"User-Agent": []string{base.UserAgent()},
	}
	if c.conf.AccessToken != "" {
		header["Authorization"] = []string{"Bearer " + c.conf.AccessToken}
	}
	conn, _, err := dialer.DialContext(ctx, c.conf.URL, header) // nolint
	if err != nil {
		if ctx.Err() == nil {
			log.Warnf("连接到反向WebSocket服务器 %v 时出现错误: %v", c.conf.URL, err)
		}
		return
	}
	log.Infof("已连接到反向WebSocket服务器 %v", c.conf.URL)
	serveConn(ctx, c.conns, c.bot, conn, c.caller)
	if ctx.Err() == nil {
		log.Warnf("与反向WebSocket服务器 %v 的连接已断开, 将在 %vms 后重连", c.conf.URL, c.conf.ReconnectInterval)
	}
}
