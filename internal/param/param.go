// Package param 配置与动作参数的解析工具
package param

import (
	"strings"
	"unsafe"

	"github.com/segmentio/asm/base64"
	"github.com/tidwall/gjson"
)

// EnsureBool 将驱动或动作参数中的 p 解析为 bool, 无法解析时返回 defaultVal
//
// p 可以是 bool, string 或 gjson.Result. 字符串支持
// "true","yes","1","false","no","0", 不区分大小写; 数字 0/1 同样接受.
func EnsureBool(p any, defaultVal bool) bool {
	switch v := p.(type) {
	case bool:
		return v
	case string:
		return parseBool(v, defaultVal)
	case gjson.Result:
		switch v.Type {
		case gjson.True:
			return true
		case gjson.False:
			return false
		case gjson.String:
			return parseBool(v.Str, defaultVal)
		case gjson.Number:
			return parseBool(v.Raw, defaultVal)
		}
	}
	return defaultVal
}

func parseBool(s string, defaultVal bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "1":
		return true
	case "false", "no", "0":
		return false
	}
	return defaultVal
}

// Base64DecodeString 使用 avx2 解码 base64
//
// 原库的 DecodeString 存在不正确的 unsafe 用法, 见 https://github.com/segmentio/asm/issues/50
func Base64DecodeString(s string) ([]byte, error) {
	e := base64.StdEncoding
	dst := make([]byte, e.DecodedLen(len(s)))
	n, err := e.Decode(dst, unsafe.Slice(unsafe.StringData(s), len(s)))
	return dst[:n], err
}

// SetAtDefault 在 *variable 仍为零值 zero 时改写为 value
func SetAtDefault[T comparable](variable *T, value, zero T) {
	if variable != nil && *variable == zero {
		*variable = value
	}
}

// SetExcludeDefault 在 value 不为零值 zero 时覆盖 *variable
func SetExcludeDefault[T comparable](variable *T, value, zero T) {
	if variable != nil && value != zero {
		*variable = value
	}
}
