// Package leveldb 基于 goleveldb 的文件记录存储, 默认启用
package leveldb

import (
	"path"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/db"
)

const filePrefix = "file:"

type database struct {
	path string
	db   *leveldb.DB
}

// config leveldb 相关配置
type config struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

func init() {
	db.Register("leveldb", func(node yaml.Node) db.Database {
		conf := new(config)
		_ = node.Decode(conf)
		if !conf.Enable {
			return nil
		}
		if conf.Path == "" {
			conf.Path = path.Join("data", "leveldb")
		}
		return &database{path: conf.Path}
	})
}

func (ldb *database) Open() error {
	if ldb.db != nil {
		return nil
	}
	d, err := leveldb.OpenFile(ldb.path, &opt.Options{
		WriteBuffer: 32 * opt.KiB,
	})
	if err != nil {
		return errors.Wrap(err, "open leveldb error")
	}
	ldb.db = d
	return nil
}

func (ldb *database) InsertFile(f *db.StoredFile) error {
	b, err := msgpack.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encode file error")
	}
	err = ldb.db.Put([]byte(filePrefix+f.ID), b, nil)
	return errors.Wrap(err, "put data error")
}

func (ldb *database) GetFile(id string) (*db.StoredFile, error) {
	v, err := ldb.db.Get([]byte(filePrefix+id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "get value error")
	}
	f := new(db.StoredFile)
	if err = msgpack.Unmarshal(v, f); err != nil {
		return nil, errors.Wrap(err, "decode file error")
	}
	return f, nil
}

func (ldb *database) DeleteFile(id string) error {
	err := ldb.db.Delete([]byte(filePrefix+id), nil)
	return errors.Wrap(err, "delete data error")
}

func (ldb *database) FilesBefore(t int64) ([]*db.StoredFile, error) {
	iter := ldb.db.NewIterator(util.BytesPrefix([]byte(filePrefix)), nil)
	defer iter.Release()
	var ret []*db.StoredFile
	for iter.Next() {
		f := new(db.StoredFile)
		if err := msgpack.Unmarshal(iter.Value(), f); err != nil {
			return nil, errors.Wrap(err, "decode file error")
		}
		if f.CreatedAt < t {
			ret = append(ret, f)
		}
	}
	return ret, errors.Wrap(iter.Error(), "iterate error")
}

// OpenMemory 打开一个数据保存在内存中的 leveldb
func OpenMemory() (db.Database, error) {
	d, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "open leveldb error")
	}
	return &database{db: d}, nil
}
