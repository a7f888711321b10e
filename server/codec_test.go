package server

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wxbot/go-wxhttp/internal/onebot"
)

func TestJSONEchoUnmodified(t *testing.T) {
	for _, echo := range []string{
		`"abc"`,
		`12345678901234567890`,
		`{"n":1.0,"k":[1e2]}`,
		`null`,
	} {
		req, ok, err := decodeFrame(websocket.TextMessage, []byte(`{"action":"get_status","echo":`+echo+`}`))
		require.NoError(t, err, echo)
		require.True(t, ok, echo)

		resp := onebot.OK(nil)
		resp.Echo = req.Echo
		data, err := encodeFrame(websocket.TextMessage, resp)
		require.NoError(t, err, echo)
		assert.Equal(t, echo, gjson.GetBytes(data, "echo").Raw, echo)
	}

	_, ok, err := decodeFrame(websocket.TextMessage, []byte(`{"action":"get_status"}`))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMsgpackEchoUnmodified(t *testing.T) {
	big := uint64(12345678901234567890)
	for _, echo := range []any{"bin", big, map[string]any{"n": 1.0, "k": []any{int64(100)}}} {
		want, err := msgpack.Marshal(echo)
		require.NoError(t, err)
		body, err := msgpack.Marshal(map[string]any{"action": "get_status", "echo": msgpack.RawMessage(want)})
		require.NoError(t, err)

		req, ok, err := decodeFrame(websocket.BinaryMessage, body)
		require.NoError(t, err)
		require.True(t, ok)

		resp := onebot.OK(nil)
		resp.Echo = req.Echo
		data, err := encodeFrame(websocket.BinaryMessage, resp)
		require.NoError(t, err)
		var ret struct {
			Echo msgpack.RawMessage `msgpack:"echo"`
		}
		require.NoError(t, msgpack.Unmarshal(data, &ret))
		assert.Equal(t, want, []byte(ret.Echo), echo)
	}

	body, err := msgpack.Marshal(map[string]any{"action": "get_status"})
	require.NoError(t, err)
	_, ok, err := decodeFrame(websocket.BinaryMessage, body)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInvalidFrame(t *testing.T) {
	for _, c := range []struct {
		typ  int
		data string
	}{
		{websocket.TextMessage, `not json`},
		{websocket.TextMessage, `[1,2]`},
		{websocket.BinaryMessage, "\xc1"},
		{websocket.PingMessage, `{}`},
	} {
		_, _, err := decodeFrame(c.typ, []byte(c.data))
		assert.Error(t, err, c.data)
	}
}
