package base

import "runtime/debug"

// Version go-wxhttp的版本信息，在编译时使用ldflags进行覆盖
var Version = "unknown"

// UserAgent 对外请求时使用的 User-Agent
func UserAgent() string {
	return "OneBot/12 (wechat) go-wxhttp/" + Version
}

func init() {
	if Version != "unknown" {
		return
	}
	info, ok := debug.ReadBuildInfo()
	if ok {
		Version = info.Main.Version
	}
}
