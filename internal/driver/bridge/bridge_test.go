package bridge

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wxbot/go-wxhttp/internal/driver"
)

func newTestServer(t *testing.T, api func(method string, params gjson.Result) string, push func(*websocket.Conn)) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		method := strings.TrimPrefix(r.URL.Path, "/api/")
		_, _ = io.WriteString(w, api(method, gjson.ParseBytes(body)))
	})
	mux.HandleFunc("/message", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		push(conn)
	})
	s := httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func TestBridgeCall(t *testing.T) {
	s := newTestServer(t, func(method string, params gjson.Result) string {
		switch method {
		case "get_self_info":
			return `{"code":0,"data":{"wxId":"wxid_self","wxNickName":"bot","wxFilePath":"C:\\WeChat Files\\wxid_self"}}`
		case "get_groupmember_nickname":
			if params.Get("wxid").String() == "wxid_a" {
				return `{"code":0,"data":"Alice"}`
			}
			return `{"code":0,"data":""}`
		case "search_friend_by_remark":
			return `{"code":0,"data":null}`
		case "get_friend_list":
			return `{"code":0,"data":[{"wxid":"x","wxId":"wxid_a","wxNickName":"Alice","wxVerifyFlag":1}]}`
		default:
			return `{"code":-1,"msg":"failed"}`
		}
	}, func(*websocket.Conn) {})

	b := New(s.URL, 0, time.Second)
	info, err := b.SelfInfo()
	require.NoError(t, err)
	assert.Equal(t, "wxid_self", info.WxID)
	assert.Equal(t, "bot", info.Nickname)

	name, err := b.GroupMemberNickname("1@chatroom", "wxid_a")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	_, err = b.SearchByRemark("nobody")
	assert.ErrorIs(t, err, driver.ErrNotFound)

	friends, err := b.FriendList()
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, int64(1), friends[0].VerifyFlag)

	assert.Error(t, b.SetGroupName("1@chatroom", "test"))
}

func TestBridgeMessages(t *testing.T) {
	s := newTestServer(t, func(method string, _ gjson.Result) string {
		if method == "is_login" {
			return `{"code":0,"data":true}`
		}
		return `{"code":0,"data":null}`
	}, func(conn *websocket.Conn) {
		_ = conn.WriteMessage(websocket.BinaryMessage, []byte{0x01})
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`not json`))
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":1,"msgid":42,"message":"hi","sender":"wxid_a","wxid":"wxid_a","self":"wxid_self","timestamp":1680000000}`))
		time.Sleep(time.Second)
		_ = conn.Close()
	})

	b := New(s.URL, time.Millisecond*100, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, b.Start(ctx, t.TempDir()))

	select {
	case msg := <-b.Messages():
		assert.Equal(t, driver.TextMsg, msg.Type)
		assert.Equal(t, int64(42), msg.MsgID)
		assert.Equal(t, "hi", msg.Message)
	case <-time.After(time.Second * 3):
		t.Fatal("no message received")
	}

	require.NoError(t, b.Close())
	_, ok := <-b.Messages()
	assert.False(t, ok)
}

func TestMessageURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:18888/message", New("http://127.0.0.1:18888/", 0, 0).messageURL())
	assert.Equal(t, "wss://example.com/message", New("https://example.com", 0, 0).messageURL())
}
