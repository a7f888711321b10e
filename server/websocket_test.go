package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
	"gopkg.in/yaml.v3"

	"github.com/wxbot/go-wxhttp/internal/onebot"
	"github.com/wxbot/go-wxhttp/wechat"
)

func newTestWS(t *testing.T, conf *WebsocketServer) (*webSocketServer, string) {
	ctx, cancel := context.WithCancel(context.Background())
	s := newWebSocketServer(ctx, newTestBot(t), conf)
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	t.Cleanup(cancel)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	conn, _, err := dialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readText(t *testing.T, conn *websocket.Conn) gjson.Result {
	_ = conn.SetReadDeadline(time.Now().Add(time.Second * 5))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, typ)
	return gjson.ParseBytes(data)
}

// readGreeting 读取连接后推送的 connect 与 status_update
func readGreeting(t *testing.T, conn *websocket.Conn) {
	connect := readText(t, conn)
	assert.Equal(t, "meta", connect.Get("type").String())
	assert.Equal(t, "connect", connect.Get("detail_type").String())
	assert.Equal(t, onebot.Impl, connect.Get("version.impl").String())
	status := readText(t, conn)
	assert.Equal(t, "status_update", status.Get("detail_type").String())
	assert.True(t, status.Get("status.bots.0.online").Bool())
}

func TestWebSocketEcho(t *testing.T) {
	_, url := newTestWS(t, &WebsocketServer{})
	conn := dial(t, url, nil)
	assert.Equal(t, onebot.Protocol, conn.Subprotocol())
	readGreeting(t, conn)

	// 未携带 echo 的请求被忽略, 响应按请求顺序返回
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_status","params":{}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_status","params":{},"echo":"abc"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_version","echo":2}`)))

	ret := readText(t, conn)
	assert.Equal(t, "abc", ret.Get("echo").String())
	assert.Equal(t, int64(0), ret.Get("retcode").Int())
	assert.True(t, ret.Get("data.good").Bool())

	ret = readText(t, conn)
	assert.Equal(t, int64(2), ret.Get("echo").Int())
	assert.Equal(t, onebot.Impl, ret.Get("data.impl").String())

	// echo 原样返回, 不经过数值或对象的重新编码
	for _, echo := range []string{`12345678901234567890`, `{"n":1.0,"k":[1e2]}`} {
		require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_version","echo":`+echo+`}`)))
		assert.Equal(t, echo, readText(t, conn).Get("echo").Raw)
	}
}

func TestWebSocketMsgpack(t *testing.T) {
	_, url := newTestWS(t, &WebsocketServer{})
	conn := dial(t, url, nil)
	readGreeting(t, conn)

	req, err := msgpack.Marshal(map[string]any{"action": "get_version", "params": map[string]any{}, "echo": "bin"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, req))

	_ = conn.SetReadDeadline(time.Now().Add(time.Second * 5))
	typ, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.BinaryMessage, typ)
	var ret struct {
		Status string         `msgpack:"status"`
		Data   map[string]any `msgpack:"data"`
		Echo   string         `msgpack:"echo"`
	}
	require.NoError(t, msgpack.Unmarshal(data, &ret))
	assert.Equal(t, "ok", ret.Status)
	assert.Equal(t, "bin", ret.Echo)
	assert.Equal(t, onebot.Impl, ret.Data["impl"])
}

func TestWebSocketAuth(t *testing.T) {
	conf := &WebsocketServer{}
	conf.AccessToken = "secret"
	_, url := newTestWS(t, conf)

	cases := []struct {
		header http.Header
		reason string
	}{
		{nil, "缺少访问令牌"},
		{http.Header{"Authorization": []string{"Bearer wrong"}}, "访问令牌错误"},
	}
	for _, c := range cases {
		conn := dial(t, url, c.header)
		_ = conn.SetReadDeadline(time.Now().Add(time.Second * 5))
		_, _, err := conn.ReadMessage()
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
		assert.Equal(t, c.reason, closeErr.Text)
	}

	conn := dial(t, url+"?access_token=secret", nil)
	readGreeting(t, conn)
}

func TestWebSocketBroadcast(t *testing.T) {
	s, url := newTestWS(t, &WebsocketServer{})
	a := dial(t, url, nil)
	readGreeting(t, a)
	b := dial(t, url, nil)
	readGreeting(t, b)
	require.Eventually(t, func() bool { return s.conns.len() == 2 }, time.Second*5, time.Millisecond*10)

	s.conns.onBotPushEvent(wechat.NewEvent(onebot.NewHeartbeat(time.Second)))
	for _, conn := range []*websocket.Conn{a, b} {
		e := readText(t, conn)
		assert.Equal(t, "heartbeat", e.Get("detail_type").String())
		assert.Equal(t, int64(1000), e.Get("interval").Int())
	}

	// 关闭连接后序号会被复用
	_ = a.Close()
	require.Eventually(t, func() bool { return s.conns.len() == 1 }, time.Second*5, time.Millisecond*10)
	c := dial(t, url, nil)
	readGreeting(t, c)
	require.Eventually(t, func() bool { return s.conns.len() == 2 }, time.Second*5, time.Millisecond*10)
	s.conns.mu.Lock()
	_, ok := s.conns.conns[1]
	s.conns.mu.Unlock()
	assert.True(t, ok)

	s.conns.onBotPushEvent(wechat.NewEvent(onebot.NewHeartbeat(time.Second * 2)))
	assert.Equal(t, int64(2000), readText(t, b).Get("interval").Int())
	assert.Equal(t, int64(2000), readText(t, c).Get("interval").Int())
}

func TestConcurrentConnections(t *testing.T) {
	_, url := newTestWS(t, &WebsocketServer{})
	a := dial(t, url, nil)
	readGreeting(t, a)
	b := dial(t, url, nil)
	readGreeting(t, b)

	done := make(chan string, 2)
	for _, c := range []struct {
		conn *websocket.Conn
		echo string
	}{{a, "a"}, {b, "b"}} {
		go func(conn *websocket.Conn, echo string) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_status","echo":"`+echo+`"}`))
			_ = conn.SetReadDeadline(time.Now().Add(time.Second * 5))
			_, data, err := conn.ReadMessage()
			if err != nil {
				done <- ""
				return
			}
			done <- gjson.GetBytes(data, "echo").String()
		}(c.conn, c.echo)
	}
	got := []string{<-done, <-done}
	assert.ElementsMatch(t, []string{"a", "b"}, got)
}

func TestWebSocketReverse(t *testing.T) {
	up := websocket.Upgrader{Subprotocols: []string{onebot.Protocol}}
	var count atomic.Int32
	headers := make(chan http.Header, 8)
	responses := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Clone()
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()
		if count.Add(1) > 1 {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
		for i := 0; i < 2; i++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_self_info","echo":"rev"}`))
		if _, data, err := conn.ReadMessage(); err == nil {
			responses <- data
		}
	}))
	defer srv.Close()

	var node yaml.Node
	conf := "url: ws" + strings.TrimPrefix(srv.URL, "http") + "\nreconnect-interval: 50\nmiddlewares:\n  access-token: secret\n"
	require.NoError(t, yaml.Unmarshal([]byte(conf), &node))

	bot := newTestBot(t)
	ctx, cancel := context.WithCancel(context.Background())
	exited := make(chan struct{})
	go func() {
		runWebSocketClient(ctx, bot, node)
		close(exited)
	}()

	select {
	case h := <-headers:
		assert.Equal(t, "Bearer secret", h.Get("Authorization"))
		assert.Equal(t, onebot.Protocol, h.Get("Sec-WebSocket-Protocol"))
		assert.Contains(t, h.Get("User-Agent"), "go-wxhttp")
	case <-time.After(time.Second * 5):
		t.Fatal("reverse websocket not connected")
	}
	select {
	case data := <-responses:
		j := gjson.ParseBytes(data)
		assert.Equal(t, "rev", j.Get("echo").String())
		assert.Equal(t, "wxid_bot", j.Get("data.user_id").String())
	case <-time.After(time.Second * 5):
		t.Fatal("no response from reverse websocket")
	}

	// 服务端断开后会重新连接
	require.Eventually(t, func() bool { return count.Load() >= 2 }, time.Second*5, time.Millisecond*10)

	cancel()
	select {
	case <-exited:
	case <-time.After(time.Second * 5):
		t.Fatal("reverse websocket client not stopped")
	}
}

func TestWebSocketFilter(t *testing.T) {
	file := filepath.Join(t.TempDir(), "filter.json")
	require.NoError(t, os.WriteFile(file, []byte(`{"type":"message"}`), 0o644))
	conf := &WebsocketServer{}
	conf.Filter = file
	s, url := newTestWS(t, conf)
	conn := dial(t, url, nil)
	readGreeting(t, conn)
	require.Eventually(t, func() bool { return s.conns.len() == 1 }, time.Second*5, time.Millisecond*10)

	self := &onebot.Self{Platform: onebot.Platform, UserID: "wxid_bot"}
	s.conns.onBotPushEvent(wechat.NewEvent(onebot.NewHeartbeat(time.Second)))
	s.conns.onBotPushEvent(wechat.NewEvent(onebot.NewPrivateMessage(self, "1", "wxid_a", onebot.Message{onebot.Text("hi")})))
	e := readText(t, conn)
	assert.Equal(t, "message", e.Get("type").String())
	assert.Equal(t, "wxid_a", e.Get("user_id").String())
}

// newConnPair 返回服务端包装后的连接与对应的客户端连接
func newConnPair(t *testing.T) (*webSocketConn, *websocket.Conn) {
	accepted := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		accepted <- c
	}))
	t.Cleanup(srv.Close)
	client := dial(t, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	select {
	case c := <-accepted:
		conn := newWebSocketConn(c, nil)
		t.Cleanup(conn.close)
		return conn, client
	case <-time.After(time.Second * 5):
		t.Fatal("websocket not accepted")
		return nil, nil
	}
}

func TestConnTableStaleRemove(t *testing.T) {
	table := newConnTable("")
	a, _ := newConnPair(t)
	b, _ := newConnPair(t)

	assert.Equal(t, 1, table.add(a))
	assert.True(t, table.remove(a))
	assert.Equal(t, 1, table.add(b))

	// a 的延迟移除不能影响复用了同一序号的 b
	assert.False(t, table.remove(a))
	assert.Equal(t, 1, table.len())
	table.mu.Lock()
	assert.Same(t, b, table.conns[1])
	table.mu.Unlock()
	select {
	case <-b.done:
		t.Fatal("b closed by stale remove")
	default:
	}

	assert.True(t, table.remove(b))
	assert.False(t, table.remove(b))
	assert.Zero(t, table.len())
}

func TestStalledConnection(t *testing.T) {
	table := newConnTable("")
	stalled, _ := newConnPair(t)
	live, client := newConnPair(t)
	table.add(stalled)
	table.add(live)
	go live.pushLoop()

	// stalled 没有发送协程, 队列满后被断开, 不会阻塞其他连接
	done := make(chan struct{})
	go func() {
		for i := 0; i <= eventQueue; i++ {
			table.onBotPushEvent(wechat.NewEvent(onebot.NewHeartbeat(time.Second)))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("event fan-out blocked by stalled connection")
	}
	assert.Equal(t, 1, table.len())
	<-stalled.done

	for i := 0; i <= eventQueue; i++ {
		assert.Equal(t, "heartbeat", readText(t, client).Get("detail_type").String())
	}
}
