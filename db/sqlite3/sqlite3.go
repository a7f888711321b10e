// Package sqlite3 基于 sqlite 的文件记录存储
package sqlite3

import (
	"database/sql"
	"os"
	"path"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/wxbot/go-wxhttp/db"
)

// Sqlite3FileTableName 文件记录表名
const Sqlite3FileTableName = "files"

type database struct {
	path string
	db   *sql.DB
}

// config sqlite3 相关配置
type config struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path"`
}

func init() {
	db.Register("sqlite3", func(node yaml.Node) db.Database {
		conf := new(config)
		_ = node.Decode(conf)
		if !conf.Enable {
			return nil
		}
		if conf.Path == "" {
			conf.Path = path.Join("data", "sqlite3", "file.db")
		}
		return &database{path: conf.Path}
	})
}

func (s *database) Open() error {
	if s.path != ":memory:" {
		_ = os.MkdirAll(filepath.Dir(s.path), 0o755)
	}
	d, err := sql.Open("sqlite", s.path)
	if err != nil {
		return errors.Wrap(err, "open sqlite3 error")
	}
	// 内存数据库只在单个连接内可见
	d.SetMaxOpenConns(1)
	_, err = d.Exec(`CREATE TABLE IF NOT EXISTS ` + Sqlite3FileTableName + ` (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL,
		name TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		temp INTEGER NOT NULL
	)`)
	if err != nil {
		_ = d.Close()
		return errors.Wrap(err, "create sqlite3 table error")
	}
	s.db = d
	return nil
}

func (s *database) InsertFile(f *db.StoredFile) error {
	_, err := s.db.Exec(`INSERT OR REPLACE INTO `+Sqlite3FileTableName+` (id, path, name, created_at, temp) VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.Path, f.Name, f.CreatedAt, f.Temp)
	return errors.Wrap(err, "insert into sqlite3 table "+Sqlite3FileTableName+" error")
}

func (s *database) GetFile(id string) (*db.StoredFile, error) {
	row := s.db.QueryRow(`SELECT id, path, name, created_at, temp FROM `+Sqlite3FileTableName+` WHERE id = ?`, id)
	f := new(db.StoredFile)
	err := row.Scan(&f.ID, &f.Path, &f.Name, &f.CreatedAt, &f.Temp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, db.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "query sqlite3 error")
	}
	return f, nil
}

func (s *database) DeleteFile(id string) error {
	_, err := s.db.Exec(`DELETE FROM `+Sqlite3FileTableName+` WHERE id = ?`, id)
	return errors.Wrap(err, "delete from sqlite3 error")
}

func (s *database) FilesBefore(t int64) ([]*db.StoredFile, error) {
	rows, err := s.db.Query(`SELECT id, path, name, created_at, temp FROM `+Sqlite3FileTableName+` WHERE created_at < ?`, t)
	if err != nil {
		return nil, errors.Wrap(err, "query sqlite3 error")
	}
	defer rows.Close()
	var ret []*db.StoredFile
	for rows.Next() {
		f := new(db.StoredFile)
		if err = rows.Scan(&f.ID, &f.Path, &f.Name, &f.CreatedAt, &f.Temp); err != nil {
			return nil, errors.Wrap(err, "scan sqlite3 row error")
		}
		ret = append(ret, f)
	}
	return ret, errors.Wrap(rows.Err(), "iterate sqlite3 rows error")
}
