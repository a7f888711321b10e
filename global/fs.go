package global

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// PathExists 判断给定path是否存在
func PathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || os.IsExist(err)
}

// DelFile 删除一个给定path，并返回删除结果
func DelFile(path string) bool {
	err := os.Remove(path)
	if err != nil {
		// 删除失败
		log.Error(err)
		return false
	}
	log.Debug(path + "删除成功")
	return true
}

// MkdirAll 目录不存在时创建目录
func MkdirAll(path string) error {
	if PathExists(path) {
		return nil
	}
	return errors.Wrap(os.MkdirAll(path, 0o755), "create dir error")
}

// CopyFile 复制文件 src 到 dst
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrap(err, "open source file error")
	}
	defer in.Close()
	if err = MkdirAll(filepath.Dir(dst)); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "create file error")
	}
	if _, err = io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return errors.Wrap(err, "copy file error")
	}
	return errors.Wrap(out.Close(), "close file error")
}
