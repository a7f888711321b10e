package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wxbot/go-wxhttp/internal/onebot"
)

func TestRateLimitCancelled(t *testing.T) {
	limit := rateLimit(0.01, 1)
	req := &onebot.Request{Action: "get_status"}

	assert.Nil(t, limit(context.Background(), req))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ret := limit(ctx, req)
	require.NotNil(t, ret)
	assert.Equal(t, "failed", ret.Status)
	assert.Equal(t, onebot.RetInternalHandleError, ret.Code)

	// 令牌不足且超时时间内无法补充
	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	ret = limit(ctx, req)
	require.NotNil(t, ret)
	assert.Equal(t, onebot.RetInternalHandleError, ret.Code)
}
