package filter

import (
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

var (
	filters     = make(map[string]Filter)
	filterMutex sync.RWMutex
)

// Load 读取过滤规则文件
func Load(file string) (Filter, error) {
	bs, err := os.ReadFile(file)
	if err != nil {
		return nil, errors.Wrap(err, "read filter file error")
	}
	if !gjson.ValidBytes(bs) {
		return nil, errors.New("filter file is not valid json")
	}
	return Generate("and", gjson.ParseBytes(bs))
}

// Add 加载过滤规则文件, 同一文件只加载一次
func Add(file string) {
	if file == "" {
		return
	}
	filterMutex.RLock()
	_, ok := filters[file]
	filterMutex.RUnlock()
	if ok {
		return
	}
	f, err := Load(file)
	if err != nil {
		log.Errorf("加载事件过滤器 %v 失败: %v", file, err)
		return
	}
	filterMutex.Lock()
	filters[file] = f
	filterMutex.Unlock()
	log.Infof("已加载事件过滤器: %v", file)
}

// Find returns the filter for the given file
func Find(file string) Filter {
	if file == "" {
		return nil
	}
	filterMutex.RLock()
	defer filterMutex.RUnlock()
	return filters[file]
}
