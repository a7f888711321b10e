// Package config 包含go-wxhttp操作配置文件的相关函数
package config

import (
	"bufio"
	_ "embed" // embed the default config file
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// defaultConfig 默认配置文件
//
//go:embed default_config.yml
var defaultConfig string

// Config 总配置文件
type Config struct {
	WeChat struct {
		Driver       string               `yaml:"driver"`
		MediaTimeout int                  `yaml:"media-timeout"`
		Drivers      map[string]yaml.Node `yaml:"drivers"`
	} `yaml:"wechat"`

	Heartbeat struct {
		Disabled bool `yaml:"disabled"`
		Interval int  `yaml:"interval"`
	} `yaml:"heartbeat"`

	Output struct {
		LogLevel    string `yaml:"log-level"`
		LogAging    int    `yaml:"log-aging"`
		LogForceNew bool   `yaml:"log-force-new"`
		LogColorful *bool  `yaml:"log-colorful"`
		Debug       bool   `yaml:"debug"`
	} `yaml:"output"`

	FileCache struct {
		Path string `yaml:"path"`
		Days int    `yaml:"days"`
		Cron string `yaml:"cron"`

		DownloadTimeout int `yaml:"download-timeout"`
	} `yaml:"file-cache"`

	Servers  []map[string]yaml.Node `yaml:"servers"`
	Database map[string]yaml.Node   `yaml:"database"`
}

// MiddleWares 通信中间件
type MiddleWares struct {
	AccessToken string `yaml:"access-token"`
	Filter      string `yaml:"filter"`
	RateLimit   struct {
		Enabled   bool    `yaml:"enabled"`
		Frequency float64 `yaml:"frequency"`
		Bucket    int     `yaml:"bucket"`
	} `yaml:"rate-limit"`
}

// Server 的简介和初始配置
type Server struct {
	Brief   string
	Default string
}

var serverconfs []*Server

// AddServer 添加该服务的简介和默认配置
func AddServer(s *Server) {
	serverconfs = append(serverconfs, s)
}

// Parse 从默认配置文件路径中获取
func Parse(path string) *Config {
	file, err := os.ReadFile(path)
	if err != nil {
		generateConfig(path)
		os.Exit(0)
	}
	config, err := Load(file)
	if err != nil {
		log.Fatal("配置文件不合法!", err)
	}
	return config
}

// Load 展开环境变量后解析配置文件
func Load(content []byte) (*Config, error) {
	config := &Config{}
	s := expand(string(content), os.Getenv)
	if err := yaml.NewDecoder(strings.NewReader(s)).Decode(config); err != nil {
		return nil, errors.Wrap(err, "decode config error")
	}
	return config, nil
}

var envRegexp = regexp.MustCompile(`\${([a-zA-Z_]+[a-zA-Z0-9_:/.]*)}`)

// expand 使用正则进行环境变量展开
// os.ExpandEnv 字符 $ 无法逃逸
// https://github.com/golang/go/issues/43482
func expand(s string, mapping func(string) string) string {
	return envRegexp.ReplaceAllStringFunc(s, func(s string) string {
		s = strings.Trim(s, "${}")
		before, after, ok := strings.Cut(s, ":")
		m := mapping(before)
		if ok && m == "" {
			return after
		}
		return m
	})
}

// generateConfig 生成配置文件
func generateConfig(path string) {
	fmt.Println("未找到配置文件，正在为您生成配置文件中！")
	sb := strings.Builder{}
	sb.WriteString(defaultConfig)
	hint := "请选择你需要的通信方式:"
	for i, s := range serverconfs {
		hint += fmt.Sprintf("\n> %d: %s", i, s.Brief)
	}
	hint += `
请输入你需要的编号(0-9)，可输入多个，同一编号也可输入多个(如: 012)
您的选择是:`
	fmt.Print(hint)
	input := bufio.NewReader(os.Stdin)
	readString, err := input.ReadString('\n')
	if err != nil {
		log.Fatal("输入不合法: ", err)
	}
	for _, r := range readString {
		r -= '0'
		if r >= 0 && r < 10 && int(r) < len(serverconfs) {
			sb.WriteString(serverconfs[r].Default)
		}
	}
	_ = os.WriteFile(path, []byte(sb.String()), 0o644)
	fmt.Printf("默认配置文件已生成，请修改 %s 后重新启动!\n", path)
	_, _ = input.ReadString('\n')
}
