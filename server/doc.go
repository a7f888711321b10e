// Package server 包含HTTP,WebSocket,反向WebSocket请求处理的相关函数与结构体
package server
