// Package cache 文件缓存服务, 将生成的 file_id 映射到本地文件
package cache

import (
	"context"
	"math"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/wxbot/go-wxhttp/db"
	"github.com/wxbot/go-wxhttp/global"
	"github.com/wxbot/go-wxhttp/internal/download"
)

// PollInterval 等待文件落盘时的轮询间隔
const PollInterval = 100 * time.Millisecond

// 常见的媒体文件后缀
var (
	ImageExts = []string{".jpg", ".png", ".gif", ".bmp"}
	VoiceExts = []string{".amr"}
	VideoExts = []string{".mp4"}
)

// ErrNotFound 文件记录不存在
var ErrNotFound = db.ErrNotFound

// Service 文件缓存服务
type Service struct {
	dir   string
	store db.Database
	now   func() time.Time
}

// New 创建文件缓存服务, dir 为临时文件的保存目录
func New(dir string, store db.Database) (*Service, error) {
	if err := global.MkdirAll(dir); err != nil {
		return nil, err
	}
	return &Service{dir: dir, store: store, now: time.Now}, nil
}

// Dir 临时文件目录
func (s *Service) Dir() string {
	return s.dir
}

func (s *Service) tempPath(id, name string) string {
	return filepath.Join(s.dir, id+filepath.Base(name))
}

func (s *Service) insert(id, p, name string, temp bool) error {
	abs, err := filepath.Abs(p)
	if err == nil {
		p = abs
	}
	return s.store.InsertFile(&db.StoredFile{
		ID:        id,
		Path:      p,
		Name:      name,
		CreatedAt: s.now().Unix(),
		Temp:      temp,
	})
}

// FromBytes 从数据缓存文件, name 为空时根据内容推断后缀
func (s *Service) FromBytes(data []byte, name string) (string, error) {
	id := uuid.NewString()
	if name == "" {
		name = id + mimetype.Detect(data).Extension()
	}
	p := s.tempPath(id, name)
	if err := os.WriteFile(p, data, 0o644); err != nil {
		log.Errorf("写入缓存文件失败: %v", err)
		return "", errors.Wrap(err, "write file error")
	}
	if err := s.insert(id, p, name, true); err != nil {
		_ = os.Remove(p)
		return "", err
	}
	return id, nil
}

// FromURL 下载文件并缓存
func (s *Service) FromURL(ctx context.Context, url string, header map[string]string, name string) (string, error) {
	id := uuid.NewString()
	if name == "" {
		name = path.Base(strings.SplitN(url, "?", 2)[0])
	}
	p := s.tempPath(id, name)
	err := download.Request{URL: url, Header: header, Context: ctx}.WriteToFile(p)
	if err != nil {
		log.Errorf("文件下载失败: %v", err)
		return "", errors.Wrap(err, "download file error")
	}
	if err = s.insert(id, p, name, true); err != nil {
		_ = os.Remove(p)
		return "", err
	}
	return id, nil
}

// FromPath 从本地路径缓存文件
//
// duplicate 为 true 时复制到缓存目录并在清理时删除, 否则直接记录原路径, 清理时不会删除原文件
func (s *Service) FromPath(src, name string, duplicate bool) (string, error) {
	if !global.PathExists(src) {
		log.Error("缓存的文件不存在: ", src)
		return "", errors.Wrap(os.ErrNotExist, src)
	}
	id := uuid.NewString()
	if name == "" {
		name = filepath.Base(src)
	}
	p := src
	if duplicate {
		p = s.tempPath(id, name)
		if err := global.CopyFile(src, p); err != nil {
			log.Errorf("复制缓存文件失败: %v", err)
			return "", err
		}
	}
	if err := s.insert(id, p, name, duplicate); err != nil {
		if duplicate {
			_ = os.Remove(p)
		}
		return "", err
	}
	return id, nil
}

// Get 通过 file_id 获取文件记录
func (s *Service) Get(id string) (*db.StoredFile, error) {
	return s.store.GetFile(id)
}

// WaitForPath 等待 stem 加上 exts 中任意后缀的文件出现
//
// 每 PollInterval 检查一次, 超时或 ctx 取消时返回 false
func (s *Service) WaitForPath(ctx context.Context, stem string, exts []string, timeout time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for {
		for _, ext := range exts {
			if p := stem + ext; global.PathExists(p) {
				return p, true
			}
		}
		select {
		case <-ctx.Done():
			return "", false
		case <-ticker.C:
		}
	}
}

// Cleanup 删除创建时间早于 days 天前的记录, 返回实际删除的文件数
func (s *Service) Cleanup(days int) (int, error) {
	cutoff := s.now().Add(-time.Hour * 24 * time.Duration(days))
	files, err := s.store.FilesBefore(cutoff.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "list files error")
	}
	var count int
	var size uint64
	for _, f := range files {
		if f.Temp {
			if info, err := os.Stat(f.Path); err == nil && global.DelFile(f.Path) {
				count++
				size += uint64(info.Size())
			}
		}
		if err = s.store.DeleteFile(f.ID); err != nil {
			return count, err
		}
	}
	log.Infof("清理缓存成功，共清理: %d 个文件, 释放 %s.", count, humanize.Bytes(size))
	return count, nil
}

// Reset 删除所有记录和缓存目录中的所有文件
func (s *Service) Reset() error {
	files, err := s.store.FilesBefore(math.MaxInt64)
	if err != nil {
		return errors.Wrap(err, "list files error")
	}
	for _, f := range files {
		if err = s.store.DeleteFile(f.ID); err != nil {
			return err
		}
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "read cache dir error")
	}
	for _, e := range entries {
		_ = os.RemoveAll(filepath.Join(s.dir, e.Name()))
	}
	log.Info("重置文件缓存...")
	return nil
}
