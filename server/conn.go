package server

import (
	"bytes"
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/wxbot/go-wxhttp/global"
	"github.com/wxbot/go-wxhttp/internal/base"
	"github.com/wxbot/go-wxhttp/internal/onebot"
	"github.com/wxbot/go-wxhttp/modules/api"
	"github.com/wxbot/go-wxhttp/wechat"
)

const (
	writeTimeout = time.Second * 15
	eventQueue   = 128 // 每个连接待推送事件的上限, 超出时断开该连接
)

type frame struct {
	typ    int
	buffer *bytes.Buffer
}

type webSocketConn struct {
	*websocket.Conn
	sync.Mutex
	id        int
	apiCaller *api.Caller
	jobs      chan frame
	events    chan []byte
	closeOnce sync.Once
	done      chan struct{}
}

func newWebSocketConn(c *websocket.Conn, caller *api.Caller) *webSocketConn {
	return &webSocketConn{
		Conn:      c,
		apiCaller: caller,
		jobs:      make(chan frame, 64),
		events:    make(chan []byte, eventQueue),
		done:      make(chan struct{}),
	}
}

func (c *webSocketConn) send(typ int, data []byte) error {
	c.Lock()
	defer c.Unlock()
	_ = c.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.WriteMessage(typ, data)
}

// close 关闭连接, 可重复调用
func (c *webSocketConn) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.Conn.Close()
	})
}

// push 将事件放入连接的推送队列, 队列已满或连接已关闭时返回 false
func (c *webSocketConn) push(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.events <- data:
		return true
	default:
		return false
	}
}

// pushLoop 按入队顺序发送事件, 发送失败时关闭连接
func (c *webSocketConn) pushLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.events:
			if err := c.send(websocket.TextMessage, data); err != nil {
				log.Warnf("向 WebSocket 连接 %v 推送Event时出现错误: %v", c.id, err)
				c.close()
				return
			}
		}
	}
}

// listen 读取请求帧, 由 worker 按到达顺序依次处理, 连接断开时返回
func (c *webSocketConn) listen(ctx context.Context) {
	go c.work(ctx)
	go c.pushLoop()
	for {
		buffer := global.NewBuffer()
		t, reader, err := c.NextReader()
		if err != nil {
			global.PutBuffer(buffer)
			log.Debugf("读取 WebSocket 连接 %v 时出现错误: %v", c.id, err)
			return
		}
		if _, err = buffer.ReadFrom(reader); err != nil {
			global.PutBuffer(buffer)
			log.Debugf("读取 WebSocket 连接 %v 时出现错误: %v", c.id, err)
			return
		}
		select {
		case c.jobs <- frame{typ: t, buffer: buffer}:
		case <-c.done:
			global.PutBuffer(buffer)
			return
		}
	}
}

func (c *webSocketConn) work(ctx context.Context) {
	for {
		select {
		case <-c.done:
			return
		case f := <-c.jobs:
			c.handleRequest(ctx, f.typ, f.buffer.Bytes())
			global.PutBuffer(f.buffer)
		}
	}
}

func (c *webSocketConn) handleRequest(ctx context.Context, typ int, payload []byte) {
	defer func() {
		if err := recover(); err != nil {
			log.Errorf("处置WS命令时发生无法恢复的异常：%v\n%s", err, debug.Stack())
			c.close()
		}
	}()
	req, hasEcho, err := decodeFrame(typ, payload)
	if err != nil {
		log.Warnf("解析 WebSocket 连接 %v 的请求失败: %v", c.id, err)
		return
	}
	if !hasEcho {
		log.Debugf("WebSocket 连接 %v 的请求 %v 未携带 echo, 已忽略.", c.id, req.Action)
		return
	}
	ret := c.apiCaller.Call(ctx, req)
	data, err := encodeFrame(typ, ret)
	if err != nil {
		log.Warnf("编码动作 %v 的响应失败: %v", req.Action, err)
		return
	}
	if err = c.send(typ, data); err != nil {
		log.Warnf("向 WebSocket 连接 %v 发送响应时出现错误: %v", c.id, err)
		c.close()
	}
}

// connTable 一个连接服务持有的全部 WebSocket 连接
type connTable struct {
	mu     sync.Mutex
	conns  map[int]*webSocketConn
	filter string
}

func newConnTable(filter string) *connTable {
	return &connTable{conns: make(map[int]*webSocketConn), filter: filter}
}

// add 登记连接并分配当前最小的空闲序号
func (t *connTable) add(c *webSocketConn) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := 1
	for {
		if _, ok := t.conns[id]; !ok {
			break
		}
		id++
	}
	c.id = id
	t.conns[id] = c
	return id
}

// remove 移除并关闭连接, 可重复调用
//
// 序号在连接关闭后会被复用, 只有表中登记的仍是 c 时才会删除, 否则返回 false.
func (t *connTable) remove(c *webSocketConn) bool {
	t.mu.Lock()
	ok := t.conns[c.id] == c
	if ok {
		delete(t.conns, c.id)
	}
	t.mu.Unlock()
	c.close()
	return ok
}

func (t *connTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// closeAll 关闭全部连接
func (t *connTable) closeAll() {
	t.mu.Lock()
	conns := t.conns
	t.conns = make(map[int]*webSocketConn)
	t.mu.Unlock()
	for _, c := range conns {
		c.close()
	}
}

// onBotPushEvent 将事件放入每个连接的推送队列, 不等待发送完成
//
// 队列已满的连接会被断开, 一个连接阻塞不会影响其他连接.
func (t *connTable) onBotPushEvent(e *wechat.Event) {
	if !allow(t.filter, e) {
		return
	}
	t.mu.Lock()
	conns := make([]*webSocketConn, 0, len(t.conns))
	for id := 1; len(conns) < len(t.conns); id++ {
		if c, ok := t.conns[id]; ok {
			conns = append(conns, c)
		}
	}
	t.mu.Unlock()
	for _, c := range conns {
		log.Debugf("向 WebSocket 连接 %v 推送Event: %s", c.id, e.JSONBytes())
		if !c.push(e.JSONBytes()) {
			log.Warnf("WebSocket 连接 %v 的推送队列已满或已关闭, 将断开连接.", c.id)
			t.remove(c)
		}
	}
}

// greet 向新连接推送 connect 与 status_update 元事件
func greet(c *webSocketConn, b *wechat.Bot) error {
	for _, p := range []onebot.Payload{
		onebot.NewConnect(base.Version),
		onebot.NewStatusUpdate(b.Status()),
	} {
		if err := c.send(websocket.TextMessage, wechat.NewEvent(p).JSONBytes()); err != nil {
			return err
		}
	}
	return nil
}
