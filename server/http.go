package server

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/internal/base"
	"github.com/wxbot/go-wxhttp/internal/download"
	"github.com/wxbot/go-wxhttp/internal/onebot"
	"github.com/wxbot/go-wxhttp/internal/param"
	"github.com/wxbot/go-wxhttp/modules/api"
	"github.com/wxbot/go-wxhttp/modules/config"
	"github.com/wxbot/go-wxhttp/modules/filter"
	"github.com/wxbot/go-wxhttp/modules/servers"
	"github.com/wxbot/go-wxhttp/wechat"
)

// HTTPServer HTTP通信相关配置
type HTTPServer struct {
	Disabled    bool             `yaml:"disabled"`
	Address     string           `yaml:"address"`
	Timeout     int32            `yaml:"timeout"`
	EventBuffer int              `yaml:"event-buffer"`
	Post        []httpServerPost `yaml:"post"`

	config.MiddleWares `yaml:"middlewares"`
}

type httpServerPost struct {
	URL string `yaml:"url"`
}

type httpServer struct {
	bot         *wechat.Bot
	api         *api.Caller
	accessToken string
}

// HTTPClient 事件上报 (webhook) 客户端
type HTTPClient struct {
	bot     *wechat.Bot
	addr    string
	token   string
	filter  string
	timeout time.Duration
}

const httpDefault = `
  - http: # HTTP 通信设置
      address: 0.0.0.0:5700 # HTTP监听地址
      timeout: 5      # 事件上报超时时间, 单位秒，<5 时将被忽略
      event-buffer: 0 # 事件缓冲区大小, 为 0 时不提供 get_latest_events
      middlewares:
        <<: *default # 引用默认中间件
      post:           # 事件上报地址列表, 上报失败不会重试
      #- url: http://127.0.0.1:5701/ # 地址
`

func init() {
	config.AddServer(&config.Server{Brief: "HTTP通信", Default: httpDefault})
	servers.Register("http", runHTTP)
}

func isMsgpack(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "msgpack")
}

// parseBody 解析请求体, 空请求体视为空参数
func parseBody(body []byte, contentType string) (*onebot.Request, bool) {
	if len(bytes.TrimSpace(body)) == 0 {
		return onebot.ParseRequest(gjson.Parse("{}")), true
	}
	var req *onebot.Request
	var err error
	if isMsgpack(contentType) {
		req, _, err = decodeMsgpack(body)
	} else {
		req, _, err = decodeJSON(body)
	}
	if err != nil {
		return nil, false
	}
	return req, true
}

func (s *httpServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, "/get_file/") {
		s.getFile(w, r)
		return
	}
	if r.Method != http.MethodPost {
		log.Warnf("已拒绝客户端 %v 的请求: 方法错误", r.RemoteAddr)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if status := checkAuth(r, s.accessToken); status != http.StatusOK {
		log.Warnf("已拒绝 %v 的 HTTP 请求: Token鉴权失败(code:%d)", r.RemoteAddr, status)
		http.Error(w, authReason(status), status)
		return
	}
	if r.Header.Get("X-Self-ID") == "" {
		log.Warnf("已拒绝 %v 的 HTTP 请求: 缺少 X-Self-ID", r.RemoteAddr)
		http.Error(w, "缺少 X-Self-ID", http.StatusBadRequest)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Warnf("读取 %v 的请求体失败: %v", r.RemoteAddr, err)
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	contentType := r.Header.Get("Content-Type")
	req, ok := parseBody(body, contentType)
	if !ok {
		log.Warnf("已忽略 %v 的 HTTP 请求: 无法解析请求体", r.RemoteAddr)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	req.Action = strings.TrimPrefix(r.URL.Path, "/")
	log.Debugf("HTTPServer接收到API调用: %v", req.Action)
	ret := s.api.Call(r.Context(), req)

	h := w.Header()
	h.Set("X-Self-ID", s.bot.Self().UserID)
	h.Set("X-Impl", onebot.Impl)
	h.Set("X-OneBot-Version", "12")
	var data []byte
	if isMsgpack(contentType) {
		h.Set("Content-Type", "application/msgpack")
		data, err = marshalMsgpack(ret)
	} else {
		h.Set("Content-Type", "application/json; charset=utf-8")
		data, err = json.Marshal(ret)
	}
	if err != nil {
		log.Warnf("编码动作 %v 的响应失败: %v", req.Action, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *httpServer) getFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/get_file/")
	f, err := s.bot.Cache().Get(id)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	file, err := os.Open(f.Path)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	defer func() { _ = file.Close() }()
	stat, err := file.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}
	if mime, err := mimetype.DetectFile(f.Path); err == nil {
		w.Header().Set("Content-Type", mime.String())
	}
	w.Header().Set("Content-Disposition", "attachment; filename*=UTF-8''"+url.PathEscape(f.Name))
	http.ServeContent(w, r, f.Name, stat.ModTime(), file)
}

func newHTTPServer(bot *wechat.Bot, conf *HTTPServer) *httpServer {
	s := &httpServer{
		bot:         bot,
		api:         newCaller(bot, &conf.MiddleWares),
		accessToken: conf.AccessToken,
	}
	filter.Add(conf.Filter)
	if conf.EventBuffer > 0 {
		buf := newEventBuffer(bot, conf.EventBuffer, conf.Filter)
		s.api.Provide("get_latest_events", latestEventsSchema, buf.getLatestEvents)
	}
	for _, c := range conf.Post {
		if c.URL != "" {
			HTTPClient{
				bot:     bot,
				addr:    c.URL,
				token:   conf.AccessToken,
				filter:  conf.Filter,
				timeout: time.Duration(conf.Timeout) * time.Second,
			}.Run()
		}
	}
	return s
}

func runHTTP(ctx context.Context, bot *wechat.Bot, node yaml.Node) {
	var conf HTTPServer
	switch err := node.Decode(&conf); {
	case err != nil:
		log.Warn("读取http配置失败 :", err)
		fallthrough
	case conf.Disabled:
		return
	}
	param.SetAtDefault(&conf.Address, "0.0.0.0:5700", "")

	s := newHTTPServer(bot, &conf)
	listener, err := net.Listen("tcp", conf.Address)
	if err != nil {
		log.Errorf("HTTP 服务启动失败: %v", err)
		return
	}
	bot.SetFileBaseURL(fileBaseURL(listener.Addr()))
	srv := &http.Server{Handler: s}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()
	log.Infof("OneBot HTTP 服务器已启动: %v", listener.Addr())
	if err = srv.Serve(listener); err != nil && err != http.ErrServerClosed {
		log.Errorf("HTTP 服务器出现错误: %v", err)
	}
}

// fileBaseURL 监听所有地址时使用本机回环地址
func fileBaseURL(addr net.Addr) string {
	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return "http://" + addr.String()
	}
	if ip := net.ParseIP(host); ip == nil || ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// Run 运行事件上报
func (c HTTPClient) Run() {
	if c.timeout < time.Second*5 {
		c.timeout = time.Second * 5
	}
	c.bot.OnEventPush(c.onBotPushEvent)
	log.Infof("HTTP POST上报器已启动: %v", c.addr)
}

func (c *HTTPClient) onBotPushEvent(e *wechat.Event) {
	if !allow(c.filter, e) {
		return
	}
	header := map[string]string{
		"Content-Type":     "application/json",
		"User-Agent":       base.UserAgent(),
		"X-OneBot-Version": "12",
		"X-Impl":           onebot.Impl,
		"X-Self-ID":        c.bot.Self().UserID,
	}
	if c.token != "" {
		header["Authorization"] = "Bearer " + c.token
	}
	body := e.JSONBytes()
	go func() {
		req := download.Request{
			Method: http.MethodPost,
			URL:    c.addr,
			Header: header,
			Body:   bytes.NewReader(body),
		}
		if _, err := req.WithTimeout(c.timeout).Bytes(); err != nil {
			log.Warnf("上报Event数据到 %v 失败: %v", c.addr, err)
			return
		}
		log.Debugf("上报Event数据 %s 到 %v", body, c.addr)
	}()
}
