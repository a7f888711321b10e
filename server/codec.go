package server

import (
	"bytes"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wxbot/go-wxhttp/internal/onebot"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errInvalidFrame = errors.New("invalid frame")

// decodeJSON 解析 json 格式的动作请求
func decodeJSON(data []byte) (*onebot.Request, bool, error) {
	if !gjson.ValidBytes(data) {
		return nil, false, errInvalidFrame
	}
	j := gjson.ParseBytes(data)
	if !j.IsObject() {
		return nil, false, errInvalidFrame
	}
	req := onebot.ParseRequest(j)
	echo := j.Get("echo")
	if echo.Exists() {
		// 保留原始文本, 避免大整数和对象被重新编码
		req.Echo = jsoniter.RawMessage(echo.Raw)
	}
	return req, echo.Exists(), nil
}

// msgpackEcho 只取出 echo 的原始编码
type msgpackEcho struct {
	Echo msgpack.RawMessage `msgpack:"echo"`
}

// decodeMsgpack 解析 MessagePack 格式的动作请求, 参数转为 json 后交由 gjson 读取
func decodeMsgpack(data []byte) (*onebot.Request, bool, error) {
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, false, errors.Wrap(err, "decode msgpack error")
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, false, errors.Wrap(err, "convert msgpack error")
	}
	req := onebot.ParseRequest(gjson.ParseBytes(raw))
	if _, ok := m["echo"]; !ok {
		return req, false, nil
	}
	var echo msgpackEcho
	if err = msgpack.Unmarshal(data, &echo); err != nil {
		return nil, false, errors.Wrap(err, "decode msgpack echo error")
	}
	req.Echo = echo.Echo
	return req, true, nil
}

// decodeFrame 按帧类型解析动作请求, 第二个返回值表示请求是否携带 echo
func decodeFrame(typ int, data []byte) (*onebot.Request, bool, error) {
	switch typ {
	case websocket.TextMessage:
		return decodeJSON(data)
	case websocket.BinaryMessage:
		return decodeMsgpack(data)
	default:
		return nil, false, errInvalidFrame
	}
}

// marshalMsgpack 使用 json tag 编码, 与 json 响应的字段名保持一致
func marshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// encodeFrame 按请求的帧类型编码响应
func encodeFrame(typ int, resp *onebot.Response) ([]byte, error) {
	if typ == websocket.BinaryMessage {
		return marshalMsgpack(resp)
	}
	return json.Marshal(resp)
}
