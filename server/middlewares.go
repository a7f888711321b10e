package server

import (
	"container/list"
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/wxbot/go-wxhttp/internal/onebot"
	"github.com/wxbot/go-wxhttp/modules/api"
	"github.com/wxbot/go-wxhttp/modules/config"
	"github.com/wxbot/go-wxhttp/modules/filter"
	"github.com/wxbot/go-wxhttp/wechat"
)

func rateLimit(frequency float64, bucketSize int) api.Handler {
	limiter := rate.NewLimiter(rate.Limit(frequency), bucketSize)
	return func(ctx context.Context, req *onebot.Request) *onebot.Response {
		if err := limiter.Wait(ctx); err != nil {
			log.Warnf("动作 %v 等待限速令牌失败: %v", req.Action, err)
			return onebot.Failed(onebot.RetInternalHandleError, "请求已取消")
		}
		return nil
	}
}

// newCaller 创建连接使用的 Caller 并挂载中间件
func newCaller(b *wechat.Bot, m *config.MiddleWares) *api.Caller {
	caller := api.NewCaller(b.Registry())
	if m.RateLimit.Enabled {
		caller.Use(rateLimit(m.RateLimit.Frequency, m.RateLimit.Bucket))
	}
	return caller
}

// allow 判断事件能否通过 file 指定的过滤器
func allow(file string, e *wechat.Event) bool {
	f := filter.Find(file)
	if f == nil {
		return true
	}
	if !f.Eval(gjson.ParseBytes(e.JSONBytes())) {
		log.Debugf("上报Event %s 时被过滤.", e.JSONBytes())
		return false
	}
	return true
}

// checkAuth 校验访问令牌, 返回 http 状态码
func checkAuth(req *http.Request, token string) int {
	if token == "" { // quick path
		return http.StatusOK
	}
	auth := req.Header.Get("Authorization")
	if auth == "" {
		auth = req.URL.Query().Get("access_token")
	} else {
		scheme, t, ok := strings.Cut(auth, " ")
		if ok && (strings.EqualFold(scheme, "bearer") || strings.EqualFold(scheme, "token")) {
			auth = strings.TrimSpace(t)
		}
	}

	switch auth {
	case token:
		return http.StatusOK
	case "":
		return http.StatusBadRequest
	default:
		return http.StatusForbidden
	}
}

func authReason(status int) string {
	if status == http.StatusBadRequest {
		return "缺少访问令牌"
	}
	return "访问令牌错误"
}

// eventBuffer 保存最近的事件, 供 get_latest_events 拉取
type eventBuffer struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   *list.List
	maxSize int
	filter  string
}

func newEventBuffer(b *wechat.Bot, maxSize int, filter string) *eventBuffer {
	buf := &eventBuffer{queue: list.New(), maxSize: maxSize, filter: filter}
	buf.cond = sync.NewCond(&buf.mu)
	b.OnEventPush(buf.push)
	return buf
}

func (buf *eventBuffer) push(e *wechat.Event) {
	if !allow(buf.filter, e) {
		return
	}
	buf.mu.Lock()
	defer buf.mu.Unlock()
	buf.queue.PushBack(e.Payload())
	for buf.maxSize != 0 && buf.queue.Len() > buf.maxSize {
		buf.queue.Remove(buf.queue.Front())
	}
	buf.cond.Broadcast()
}

// poll 取出至多 limit 个事件, 队列为空时最多等待 timeout
func (buf *eventBuffer) poll(ctx context.Context, limit int, timeout time.Duration) []any {
	buf.mu.Lock()
	defer buf.mu.Unlock()
	if buf.queue.Len() == 0 && timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		stop := context.AfterFunc(ctx, func() {
			buf.mu.Lock()
			buf.cond.Broadcast()
			buf.mu.Unlock()
		})
		defer stop()
		for buf.queue.Len() == 0 && ctx.Err() == nil {
			buf.cond.Wait()
		}
	}
	if limit <= 0 || buf.queue.Len() < limit {
		limit = buf.queue.Len()
	}
	ret := make([]any, limit)
	for i := 0; i < limit; i++ {
		ret[i] = buf.queue.Remove(buf.queue.Front())
	}
	return ret
}

func (buf *eventBuffer) getLatestEvents(ctx context.Context, p gjson.Result) (any, error) {
	timeout := time.Duration(p.Get("timeout").Int()) * time.Millisecond
	return buf.poll(ctx, int(p.Get("limit").Int()), timeout), nil
}

var latestEventsSchema = api.Schema{
	api.Optional("limit", api.Int),
	api.Optional("timeout", api.Int),
}
