package wxhttp

import (
	log "github.com/sirupsen/logrus"

	"github.com/wxbot/go-wxhttp/db"
	"github.com/wxbot/go-wxhttp/internal/base"
	"github.com/wxbot/go-wxhttp/internal/cache"
)

// InitCache 打开数据库并初始化文件缓存
func InitCache() *cache.Service {
	db.Init()
	store, err := db.Open()
	if err != nil {
		log.Fatalf("打开数据库失败: %v", err)
	}
	c, err := cache.New(base.CachePath, store)
	if err != nil {
		log.Fatalf("初始化文件缓存失败: %v", err)
	}
	return c
}
