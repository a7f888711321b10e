// Package filter implements an event filter for go-wxhttp
//
// 过滤规则是一个 json 对象, 普通键表示对事件中该字段的匹配, 以 . 开头的键表示操作符:
//
//	{"type": "message", ".or": [{"detail_type": "private"}, {"group_id": {".in": ["a@chatroom"]}}]}
package filter

import (
	"regexp"
	"strings"

	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
)

// Filter 对事件 json 求值, 返回 false 的事件不会上报
type Filter func(payload gjson.Result) bool

// Eval 对 payload 执行过滤, nil 过滤器放行所有事件
func (f Filter) Eval(payload gjson.Result) bool {
	if f == nil {
		return true
	}
	return f(payload)
}

type builder func(argument gjson.Result) (Filter, error)

var operators map[string]builder

func init() {
	operators = map[string]builder{
		"not":      notOp,
		"and":      andOp,
		"or":       orOp,
		"eq":       eqOp,
		"neq":      neqOp,
		"in":       inOp,
		"contains": containsOp,
		"regex":    regexOp,
	}
}

// Generate 根据操作符名 op 及其参数创建过滤器
func Generate(op string, argument gjson.Result) (Filter, error) {
	build, ok := operators[op]
	if !ok {
		return nil, errors.Errorf("the operator %s is not supported", op)
	}
	return build(argument)
}

func notOp(argument gjson.Result) (Filter, error) {
	if !argument.IsObject() {
		return nil, errors.New("the argument of 'not' operator must be an object")
	}
	operand, err := andOp(argument)
	if err != nil {
		return nil, err
	}
	return func(payload gjson.Result) bool { return !operand(payload) }, nil
}

func andOp(argument gjson.Result) (Filter, error) {
	if !argument.IsObject() {
		return nil, errors.New("the argument of 'and' operator must be an object")
	}
	type operand struct {
		key    string // 为空时对整个 payload 求值
		filter Filter
	}
	var (
		operands []operand
		err      error
	)
	argument.ForEach(func(key, value gjson.Result) bool {
		var f Filter
		switch {
		case strings.HasPrefix(key.Str, "."):
			f, err = Generate(key.Str[1:], value)
			operands = append(operands, operand{filter: f})
		case value.IsObject():
			f, err = andOp(value)
			operands = append(operands, operand{key: key.Str, filter: f})
		default:
			f, err = eqOp(value)
			operands = append(operands, operand{key: key.Str, filter: f})
		}
		return err == nil
	})
	if err != nil {
		return nil, err
	}
	return func(payload gjson.Result) bool {
		for _, o := range operands {
			v := payload
			if o.key != "" {
				v = payload.Get(o.key)
			}
			if !o.filter(v) {
				return false
			}
		}
		return true
	}, nil
}

func orOp(argument gjson.Result) (Filter, error) {
	if !argument.IsArray() {
		return nil, errors.New("the argument of 'or' operator must be an array")
	}
	var operands []Filter
	for _, value := range argument.Array() {
		f, err := andOp(value)
		if err != nil {
			return nil, err
		}
		operands = append(operands, f)
	}
	return func(payload gjson.Result) bool {
		for _, f := range operands {
			if f(payload) {
				return true
			}
		}
		return false
	}, nil
}

func eqOp(argument gjson.Result) (Filter, error) {
	want := argument.String()
	return func(payload gjson.Result) bool { return payload.String() == want }, nil
}

func neqOp(argument gjson.Result) (Filter, error) {
	want := argument.String()
	return func(payload gjson.Result) bool { return payload.String() != want }, nil
}

// inOp 参数为数组时判断是否为其中之一, 为字符串时判断是否为其子串
func inOp(argument gjson.Result) (Filter, error) {
	if argument.IsObject() {
		return nil, errors.New("the argument of 'in' operator must be an array or a string")
	}
	if !argument.IsArray() {
		s := argument.String()
		return func(payload gjson.Result) bool { return strings.Contains(s, payload.String()) }, nil
	}
	set := make(map[string]struct{})
	for _, v := range argument.Array() {
		set[v.String()] = struct{}{}
	}
	return func(payload gjson.Result) bool {
		_, ok := set[payload.String()]
		return ok
	}, nil
}

func containsOp(argument gjson.Result) (Filter, error) {
	if argument.IsArray() || argument.IsObject() {
		return nil, errors.New("the argument of 'contains' operator must be a string")
	}
	sub := argument.String()
	return func(payload gjson.Result) bool { return strings.Contains(payload.String(), sub) }, nil
}

func regexOp(argument gjson.Result) (Filter, error) {
	if argument.IsArray() || argument.IsObject() {
		return nil, errors.New("the argument of 'regex' operator must be a string")
	}
	re, err := regexp.Compile(argument.String())
	if err != nil {
		return nil, errors.Wrap(err, "invalid regex")
	}
	return func(payload gjson.Result) bool { return re.MatchString(payload.String()) }, nil
}
