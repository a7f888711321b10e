package onebot

import "fmt"

// 返回码
//
// https://12.onebot.dev/connect/data-protocol/action-response/#_3
const (
	RetOK int64 = 0

	RetBadRequest          int64 = 10001 // 无效的动作请求
	RetUnsupportedAction   int64 = 10002 // 不支持的动作请求
	RetBadParam            int64 = 10003 // 无效的动作请求参数
	RetUnsupportedParam    int64 = 10004 // 不支持的动作请求参数
	RetInternalHandleError int64 = 20002 // 内部处理错误

	RetFileError     int64 = 32000 // 文件系统错误
	RetDownloadError int64 = 33000 // 网络下载错误
	RetPlatformError int64 = 35000 // 平台操作失败
	RetNotFound      int64 = 35001 // 未找到联系人
)

// Error 携带返回码的动作错误
type Error struct {
	Code    int64
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("retcode %d: %s", e.Code, e.Message)
}

// NewError 生成一个携带返回码的错误
func NewError(code int64, msg string) *Error {
	return &Error{Code: code, Message: msg}
}

// 常用错误
var (
	ErrParam        = NewError(RetBadParam, "参数缺失")
	ErrFileNotFound = NewError(RetFileError, "未找到该文件")
	ErrFileOperate  = NewError(RetFileError, "操作文件失败")
	ErrDownload     = NewError(RetDownloadError, "下载文件失败")
	ErrPlatform     = NewError(RetPlatformError, "操作失败")
	ErrNotFound     = NewError(RetNotFound, "未找到联系人")
	ErrNotMember    = NewError(RetNotFound, "群内没有该联系人")
)
