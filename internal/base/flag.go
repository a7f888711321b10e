// Package base provides base config for go-wxhttp
package base

import (
	"flag"
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/internal/param"
	"github.com/wxbot/go-wxhttp/modules/config"
)

// command flags
var (
	LittleC string // config file
	LittleH bool   // Help
	LittleD bool   // debug 模式, 覆盖配置文件
)

// config file flags
var (
	Debug       bool          // 是否开启 debug 模式
	LogLevel    string        // 日志等级
	LogAging    time.Duration // 日志时效
	LogForceNew bool          // 是否在每次启动时强制创建全新的文件储存日志
	LogColorful bool          // 是否启用日志颜色

	HeartbeatDisabled bool          // 是否关闭心跳
	HeartbeatInterval time.Duration // 心跳间隔

	Driver       string               // 使用的驱动名称
	Drivers      map[string]yaml.Node // 驱动配置
	MediaTimeout time.Duration        // 等待媒体文件落盘的超时时间

	CachePath string // 缓存目录
	CacheDays int    // 缓存保留天数
	CacheCron string // 缓存清理计划

	DownloadTimeout time.Duration // 下载远程文件的超时时间

	Servers  []map[string]yaml.Node // 连接服务列表
	Database map[string]yaml.Node   // 数据库列表
)

// Parse parse flags
func Parse() {
	flag.StringVar(&LittleC, "c", "config.yml", "configuration filename")
	flag.BoolVar(&LittleH, "h", false, "this Help")
	flag.BoolVar(&LittleD, "debug", false, "enable debug mode")
	flag.Parse()
}

// Init read config from yml file
func Init() {
	conf := config.Parse(LittleC)
	Apply(conf)
	param.SetExcludeDefault(&Debug, LittleD, false)
}

// Apply 将配置文件中的值写入全局变量并填充默认值
func Apply(conf *config.Config) {
	Debug = conf.Output.Debug
	LogLevel = conf.Output.LogLevel
	LogAging = time.Hour * 24 * time.Duration(conf.Output.LogAging)
	LogForceNew = conf.Output.LogForceNew
	LogColorful = conf.Output.LogColorful == nil || *conf.Output.LogColorful

	HeartbeatDisabled = conf.Heartbeat.Disabled
	HeartbeatInterval = time.Millisecond * time.Duration(conf.Heartbeat.Interval)
	if HeartbeatInterval <= 0 {
		HeartbeatInterval = time.Second * 5
	}

	Driver = conf.WeChat.Driver
	param.SetAtDefault(&Driver, "bridge", "")
	Drivers = conf.WeChat.Drivers
	MediaTimeout = time.Millisecond * time.Duration(conf.WeChat.MediaTimeout)
	if MediaTimeout <= 0 {
		MediaTimeout = time.Second * 10
	}

	CachePath = "file_cache"
	param.SetExcludeDefault(&CachePath, conf.FileCache.Path, "")
	CacheDays = conf.FileCache.Days
	if CacheDays <= 0 {
		CacheDays = 3
	}
	CacheCron = conf.FileCache.Cron
	param.SetAtDefault(&CacheCron, "0 4 * * *", "")
	DownloadTimeout = time.Second * time.Duration(conf.FileCache.DownloadTimeout)

	Servers = conf.Servers
	Database = conf.Database
	if Database == nil {
		log.Warn("未配置数据库, 将使用默认的 leveldb.")
		var node yaml.Node
		_ = node.Encode(map[string]bool{"enable": true})
		Database = map[string]yaml.Node{"leveldb": node}
	}
}

// Help cli命令行-h的帮助提示
func Help() {
	fmt.Printf(`go-wxhttp service
version: %s
Usage:
  -c string
        configuration filename (default "config.yml")
  -h    this Help
  -debug
        enable debug mode
`, Version)
	os.Exit(0)
}
