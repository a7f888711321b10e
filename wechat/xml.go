package wechat

import (
	"encoding/xml"
	"strings"

	"github.com/pkg/errors"
)

// xmlNode 通用的 xml 节点, 用于读取微信消息中的结构化内容
type xmlNode struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Content string     `xml:",chardata"`
	Nodes   []*xmlNode `xml:",any"`
}

func parseXML(raw string) (*xmlNode, error) {
	n := new(xmlNode)
	if err := xml.Unmarshal([]byte(raw), n); err != nil {
		return nil, errors.Wrap(err, "解析xml失败")
	}
	return n, nil
}

// Find 以 a/b/c 形式的路径查找子节点, 不存在时返回 nil
func (n *xmlNode) Find(path string) *xmlNode {
	cur := n
	for _, name := range strings.Split(strings.TrimPrefix(path, "./"), "/") {
		if cur == nil {
			return nil
		}
		var next *xmlNode
		for _, c := range cur.Nodes {
			if c.XMLName.Local == name {
				next = c
				break
			}
		}
		cur = next
	}
	return cur
}

// Text 子节点的文本, 节点不存在时返回空字符串
func (n *xmlNode) Text(path string) string {
	if c := n.Find(path); c != nil {
		return strings.TrimSpace(c.Content)
	}
	return ""
}

// Attr 节点属性
func (n *xmlNode) Attr(name string) string {
	if n == nil {
		return ""
	}
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}
