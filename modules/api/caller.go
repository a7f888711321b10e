// Package api implements the action route for servers.
package api

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/wxbot/go-wxhttp/internal/onebot"
)

// Handler 中间件, 返回非 nil 时直接作为响应
type Handler func(ctx context.Context, req *onebot.Request) *onebot.Response

// Caller api route caller
//
// 每个连接服务持有一个 Caller, 可以在全局注册表之外提供仅该服务可用的动作.
type Caller struct {
	registry *Registry
	local    *Registry
	handlers []Handler
}

// Call specific action, echo 原样返回
func (c *Caller) Call(ctx context.Context, req *onebot.Request) *onebot.Response {
	log.Debugf("接收到API调用: %v 参数: %v", req.Action, req.Params.Raw)
	ret := c.call(ctx, req)
	ret.Echo = req.Echo
	return ret
}

func (c *Caller) call(ctx context.Context, req *onebot.Request) *onebot.Response {
	for _, fn := range c.handlers {
		if ret := fn(ctx, req); ret != nil {
			return ret
		}
	}
	if c.local.Has(req.Action) {
		return c.local.Dispatch(ctx, req)
	}
	return c.registry.Dispatch(ctx, req)
}

// Use add handlers to the API caller
func (c *Caller) Use(middlewares ...Handler) {
	c.handlers = append(c.handlers, middlewares...)
}

// Provide 注册仅对该 Caller 可用的动作
func (c *Caller) Provide(name string, schema Schema, fn Func) {
	c.local.Register(name, schema, fn)
}

// Supported 该 Caller 可用的全部动作
func (c *Caller) Supported() []string {
	seen := make(map[string]struct{})
	var ret []string
	for _, r := range []*Registry{c.registry, c.local} {
		for _, name := range r.Supported() {
			if _, ok := seen[name]; !ok {
				seen[name] = struct{}{}
				ret = append(ret, name)
			}
		}
	}
	sort.Strings(ret)
	return ret
}

// NewCaller create a new API caller
func NewCaller(r *Registry) *Caller {
	c := &Caller{
		registry: r,
		local:    &Registry{actions: make(map[string]*action)},
		handlers: make([]Handler, 0),
	}
	c.Provide("get_supported_actions", nil, func(context.Context, gjson.Result) (any, error) {
		return c.Supported(), nil
	})
	return c
}
