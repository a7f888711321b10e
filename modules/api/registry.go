package api

import (
	"context"
	"runtime/debug"
	"sort"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/wxbot/go-wxhttp/internal/onebot"
)

// Func 动作处理函数, 返回值作为响应的 data
//
// 返回 *onebot.Error 时使用其返回码, 其他错误统一为 20002.
type Func func(ctx context.Context, p gjson.Result) (any, error)

type action struct {
	schema Schema
	fn     Func
}

// Registry 动作注册表, 注册在启动时完成, 之后只读
type Registry struct {
	actions map[string]*action
}

// NewRegistry 创建空的动作注册表
func NewRegistry() *Registry {
	r := &Registry{actions: make(map[string]*action)}
	r.Register("get_supported_actions", nil, func(context.Context, gjson.Result) (any, error) {
		return r.Supported(), nil
	})
	return r
}

// Register 注册动作, 同名动作重复注册时 panic
func (r *Registry) Register(name string, schema Schema, fn Func) {
	if _, ok := r.actions[name]; ok {
		panic(name + " action has existed")
	}
	r.actions[name] = &action{schema: schema, fn: fn}
}

// Has 动作是否已注册
func (r *Registry) Has(name string) bool {
	_, ok := r.actions[name]
	return ok
}

// Schema 动作的参数声明, 未注册的动作返回 nil
func (r *Registry) Schema(name string) Schema {
	if a, ok := r.actions[name]; ok {
		return a.schema
	}
	return nil
}

// Supported 已注册的动作列表
func (r *Registry) Supported() []string {
	names := make([]string, 0, len(r.actions))
	for name := range r.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch 校验参数并执行动作, 任何情况下都返回格式正确的响应
func (r *Registry) Dispatch(ctx context.Context, req *onebot.Request) *onebot.Response {
	a, ok := r.actions[req.Action]
	if !ok {
		return onebot.Failed(onebot.RetUnsupportedAction, "未实现的action: "+req.Action)
	}
	return a.call(ctx, req)
}

func (a *action) call(ctx context.Context, req *onebot.Request) (ret *onebot.Response) {
	if err := a.schema.Validate(req.Params); err != nil {
		return fromError(req.Action, err)
	}
	defer func() {
		if pan := recover(); pan != nil {
			log.Errorf("调用api %v 时发生无法恢复的异常: %v\n%s", req.Action, pan, debug.Stack())
			ret = onebot.Failed(onebot.RetInternalHandleError, "内部服务错误")
		}
	}()
	data, err := a.fn(ctx, req.Params)
	if err != nil {
		return fromError(req.Action, err)
	}
	return onebot.OK(data)
}

func fromError(action string, err error) *onebot.Response {
	var e *onebot.Error
	if errors.As(err, &e) {
		return onebot.Failed(e.Code, e.Message)
	}
	log.Errorf("调用api %v 错误: %v", action, err)
	return onebot.Failed(onebot.RetInternalHandleError, "内部服务错误")
}
