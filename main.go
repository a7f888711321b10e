// Package main
package main

import (
	"github.com/wxbot/go-wxhttp/cmd/wxhttp"

	_ "github.com/wxbot/go-wxhttp/db/leveldb"             // leveldb 数据库支持
	_ "github.com/wxbot/go-wxhttp/db/mongodb"             // mongodb 数据库支持
	_ "github.com/wxbot/go-wxhttp/db/sqlite3"             // sqlite3 数据库支持
	_ "github.com/wxbot/go-wxhttp/internal/driver/bridge" // 注入组件驱动
	_ "github.com/wxbot/go-wxhttp/modules/pprof"          // pprof 性能分析
)

func main() {
	wxhttp.Main()
}
