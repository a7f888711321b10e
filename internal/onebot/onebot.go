package onebot

import (
	"github.com/tidwall/gjson"
)

// Self 机器人自身标识
//
// https://12.onebot.dev/connect/data-protocol/basic-types/#_10
type Self struct {
	Platform string `json:"platform"`
	UserID   string `json:"user_id"`
}

// Request 动作请求是应用端为了主动向 OneBot 实现请求服务而发送的数据
//
// https://12.onebot.dev/connect/data-protocol/action-request/
type Request struct {
	Action string       // 动作名称
	Params gjson.Result // 动作参数
	Self   *Self        // 机器人自身标识
	Echo   any          // 每次请求的唯一标识, 原样返回
}

// Response 动作响应是 OneBot 实现收到应用端的动作请求并处理完毕后，发回应用端的数据
//
// https://12.onebot.dev/connect/data-protocol/action-response/
type Response struct {
	Status  string `json:"status"`         // 执行状态，必须是 ok、failed 中的一个
	Code    int64  `json:"retcode"`        // 返回码
	Data    any    `json:"data"`           // 响应数据
	Message string `json:"message"`        // 错误信息
	Echo    any    `json:"echo,omitempty"` // 动作请求中的 echo 字段值
}

// OK 生成成功返回值
func OK(data any) *Response {
	return &Response{Status: "ok", Code: RetOK, Data: data}
}

// Failed 生成失败返回值
func Failed(code int64, msg string) *Response {
	return &Response{Status: "failed", Code: code, Message: msg}
}

// ParseRequest 从 json 中解析动作请求, 缺失的 params 视为空对象
func ParseRequest(j gjson.Result) *Request {
	req := &Request{
		Action: j.Get("action").String(),
		Params: j.Get("params"),
	}
	if !req.Params.Exists() || req.Params.Type == gjson.Null {
		req.Params = gjson.Parse("{}")
	}
	if self := j.Get("self"); self.IsObject() {
		req.Self = &Self{
			Platform: self.Get("platform").String(),
			UserID:   self.Get("user_id").String(),
		}
	}
	return req
}
