package api

import (
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/wxbot/go-wxhttp/internal/onebot"
)

// Kind 参数类型
type Kind int

// 参数类型
const (
	String  Kind = iota // 字符串, 数字会被视为字符串
	Int                 // 整数, 可以是数字字符串
	Float               // 浮点数
	Bool                // 布尔值
	Array               // 数组
	Object              // 对象
	Message             // 消息, 可以是字符串/消息段/消息段数组
	Any                 // 任意类型
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Int:
		return "int"
	case Float:
		return "float"
	case Bool:
		return "bool"
	case Array:
		return "array"
	case Object:
		return "object"
	case Message:
		return "message"
	default:
		return "any"
	}
}

func (k Kind) match(r gjson.Result) bool {
	switch k {
	case String:
		return r.Type == gjson.String || r.Type == gjson.Number
	case Int:
		switch r.Type {
		case gjson.Number:
			return r.Num == math.Trunc(r.Num)
		case gjson.String:
			_, err := strconv.ParseInt(r.Str, 10, 64)
			return err == nil
		}
		return false
	case Float:
		switch r.Type {
		case gjson.Number:
			return true
		case gjson.String:
			_, err := strconv.ParseFloat(r.Str, 64)
			return err == nil
		}
		return false
	case Bool:
		return r.IsBool()
	case Array:
		return r.IsArray()
	case Object:
		return r.IsObject()
	case Message:
		return r.Type == gjson.String || r.IsObject() || r.IsArray()
	default:
		return true
	}
}

// Field 参数字段声明
type Field struct {
	Name     string
	Kind     Kind
	Required bool
}

// Required 必填参数
func Required(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind, Required: true}
}

// Optional 可选参数, 值为 null 时视为未填写
func Optional(name string, kind Kind) Field {
	return Field{Name: name, Kind: kind}
}

// Schema 动作的参数声明, 在注册时确定, 之后不再修改
type Schema []Field

// Validate 校验参数, 未知字段/缺失必填字段/类型不符时返回 10003 错误
func (s Schema) Validate(p gjson.Result) error {
	if p.Type == gjson.Null || !p.Exists() {
		p = gjson.Parse("{}")
	}
	if !p.IsObject() {
		return onebot.NewError(onebot.RetBadParam, "Param参数错误: params 必须为对象")
	}
	known := make(map[string]Kind, len(s))
	for _, f := range s {
		known[f.Name] = f.Kind
	}
	var unknown []string
	var wrong []string
	p.ForEach(func(key, value gjson.Result) bool {
		kind, ok := known[key.Str]
		switch {
		case !ok:
			unknown = append(unknown, key.Str)
		case value.Type == gjson.Null:
		case !kind.match(value):
			wrong = append(wrong, key.Str+"("+kind.String()+")")
		}
		return true
	})
	if len(unknown) > 0 {
		return onebot.NewError(onebot.RetBadParam, "Param参数错误: 未知参数 "+strings.Join(unknown, ","))
	}
	if len(wrong) > 0 {
		return onebot.NewError(onebot.RetBadParam, "Param参数错误: 类型错误 "+strings.Join(wrong, ","))
	}
	for _, f := range s {
		if !f.Required {
			continue
		}
		if v := p.Get(escape(f.Name)); !v.Exists() || v.Type == gjson.Null {
			return onebot.NewError(onebot.RetBadParam, "Param参数错误: 缺少参数 "+f.Name)
		}
	}
	return nil
}

// escape 转义 gjson 路径中的特殊字符, 扩展参数名中可能包含 '.'
func escape(name string) string {
	var sb strings.Builder
	for _, c := range name {
		switch c {
		case '.', '*', '?', '|', '#', '@', '\\':
			sb.WriteByte('\\')
		}
		sb.WriteRune(c)
	}
	return sb.String()
}
