// Package db 定义文件缓存记录的持久化接口与多后端支持
package db

import (
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/internal/base"
)

type (
	// Database 数据库操作接口定义
	Database interface {
		// Open 初始化数据库
		Open() error

		// InsertFile 向数据库写入新的文件记录
		InsertFile(*StoredFile) error
		// GetFile 通过 ID 获取文件记录, 不存在时返回 ErrNotFound
		GetFile(string) (*StoredFile, error)
		// DeleteFile 删除文件记录, 记录不存在时不返回错误
		DeleteFile(string) error
		// FilesBefore 获取所有 CreatedAt 早于给定时间戳(秒)的文件记录
		FilesBefore(int64) ([]*StoredFile, error)
	}

	// StoredFile 持久化文件记录
	StoredFile struct {
		ID        string `bson:"_id" msgpack:"id"`
		Path      string `bson:"path" msgpack:"path"`
		Name      string `bson:"name" msgpack:"name"`
		CreatedAt int64  `bson:"createdAt" msgpack:"created_at"`
		Temp      bool   `bson:"temp" msgpack:"temp"` // 为 true 时清理记录会同时删除文件
	}
)

// ErrNotFound 记录不存在
var ErrNotFound = errors.New("record not found")

var (
	drivers  = make(map[string]func(node yaml.Node) Database)
	backends []Database
)

// Register 添加数据库后端
func Register(name string, init func(yaml.Node) Database) {
	if _, ok := drivers[name]; ok {
		panic(name + " database driver has existed")
	}
	drivers[name] = init
}

// Init 根据配置文件初始化已启用的数据库后端
func Init() {
	backends = backends[:0]
	for name, init := range drivers {
		if n, ok := base.Database[name]; ok {
			if d := init(n); d != nil {
				backends = append(backends, d)
			}
		}
	}
}

// Open 打开所有已启用的数据库后端
func Open() (Database, error) {
	m := NewMultiDatabase(backends...)
	if err := m.Open(); err != nil {
		return nil, err
	}
	return m, nil
}
