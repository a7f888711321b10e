package global

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFormat(t *testing.T) {
	entry := &logrus.Entry{
		Time:    time.Date(2022, 9, 1, 8, 30, 0, 0, time.Local),
		Level:   logrus.WarnLevel,
		Message: "连接已断开",
	}
	out, err := LogFormat{}.Format(entry)
	require.NoError(t, err)
	assert.Equal(t, "[2022-09-01 08:30:00] [WARNING]: 连接已断开 \n", string(out))

	out, err = LogFormat{EnableColor: true}.Format(entry)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(out), colorCodeWarn))
	assert.True(t, strings.HasSuffix(string(out), colorReset))
}

func TestGetLogLevel(t *testing.T) {
	assert.Len(t, GetLogLevel("trace"), 7)
	assert.Contains(t, GetLogLevel("debug"), logrus.DebugLevel)
	assert.NotContains(t, GetLogLevel("warn"), logrus.InfoLevel)
	assert.Equal(t, GetLogLevel("info"), GetLogLevel("unknown"))
}

type failFormatter struct{}

func (failFormatter) Format(*logrus.Entry) ([]byte, error) {
	return nil, errors.New("format failed")
}

func TestLocalHook(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)
	defer logrus.SetFormatter(new(logrus.TextFormatter))

	var buf bytes.Buffer
	hook := NewLocalHook(&buf, LogFormat{}, LogFormat{}, GetLogLevel("warn")...)
	assert.Equal(t, GetLogLevel("warn"), hook.Levels())
	require.NoError(t, hook.Fire(&logrus.Entry{Level: logrus.ErrorLevel, Message: "写入文件"}))
	assert.Contains(t, buf.String(), "[ERROR]: 写入文件")

	hook.SetFormatter(LogFormat{}, failFormatter{})
	assert.Error(t, hook.Fire(&logrus.Entry{Message: "x"}))

	assert.Equal(t, logrus.AllLevels, NewLocalHook(nil, LogFormat{}, LogFormat{}).Levels())
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))
	assert.True(t, PathExists(src))

	dst := filepath.Join(dir, "sub", "b.txt")
	require.NoError(t, CopyFile(src, dst))
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	assert.Error(t, CopyFile(filepath.Join(dir, "missing"), dst))
	assert.True(t, DelFile(dst))
	assert.False(t, PathExists(dst))
	assert.False(t, DelFile(dst))
}

func TestBuffer(t *testing.T) {
	buf := NewBuffer()
	buf.WriteString("data")
	PutBuffer(buf)
	assert.Equal(t, 0, NewBuffer().Len())
}

func TestBufferPoolDropsLarge(t *testing.T) {
	p := NewBufferPool(64)
	large := bytes.NewBuffer(make([]byte, 0, 128))
	p.Put(large)
	assert.Less(t, p.Get().Cap(), 64)

	small := p.Get()
	small.WriteString("data")
	p.Put(small)
	assert.Equal(t, 0, p.Get().Len())
	assert.NotPanics(t, func() { p.Put(nil) })
}
