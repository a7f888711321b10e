package db

import "github.com/pkg/errors"

// MultiDatabase 多数据库支持
// 写入会对所有 Backend 进行写入
// 读取只会读取第一个库
type MultiDatabase struct {
	backends []Database
}

// NewMultiDatabase 由给定的后端构造 MultiDatabase
func NewMultiDatabase(backends ...Database) *MultiDatabase {
	return &MultiDatabase{
		backends: backends,
	}
}

// UseDB 追加后端
func (db *MultiDatabase) UseDB(backend Database) {
	db.backends = append(db.backends, backend)
}

// Open impl Database
func (db *MultiDatabase) Open() error {
	for _, b := range db.backends {
		if err := b.Open(); err != nil {
			return errors.Wrap(err, "open backend error")
		}
	}
	return nil
}

// InsertFile impl Database
func (db *MultiDatabase) InsertFile(f *StoredFile) error {
	if len(db.backends) == 0 {
		return errors.New("database disabled")
	}
	for _, b := range db.backends {
		if err := b.InsertFile(f); err != nil {
			return errors.Wrap(err, "insert file to backend error")
		}
	}
	return nil
}

// GetFile impl Database
func (db *MultiDatabase) GetFile(id string) (*StoredFile, error) {
	if len(db.backends) == 0 {
		return nil, errors.New("database disabled")
	}
	return db.backends[0].GetFile(id)
}

// DeleteFile impl Database
func (db *MultiDatabase) DeleteFile(id string) error {
	for _, b := range db.backends {
		if err := b.DeleteFile(id); err != nil {
			return errors.Wrap(err, "delete file from backend error")
		}
	}
	return nil
}

// FilesBefore impl Database
func (db *MultiDatabase) FilesBefore(t int64) ([]*StoredFile, error) {
	if len(db.backends) == 0 {
		return nil, errors.New("database disabled")
	}
	return db.backends[0].FilesBefore(t)
}
