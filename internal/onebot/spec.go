// Package onebot defines onebot protocol struct and some protocol constants.
package onebot

// OneBot 12 相关常量
const (
	Version  = 12          // 协议版本
	Platform = "wechat"    // 平台名称
	Prefix   = "wx"        // 扩展字段前缀
	Impl     = "ComWeChat" // 实现名称

	// ExtPrefix 扩展动作与事件使用的前缀
	ExtPrefix = Prefix + "."
)

// Protocol 反向 WebSocket 使用的子协议
const Protocol = "12." + Impl

// Ext 为给定名称加上扩展前缀
func Ext(name string) string {
	return ExtPrefix + name
}
