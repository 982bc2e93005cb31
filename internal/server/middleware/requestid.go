package middleware

import (
	"github.com/gin-gonic/gin"

	"storyforge/internal/pkg/id"
)

// RequestIDKey 请求ID在上下文和响应头中的键
const RequestIDKey = "X-Request-ID"

// RequestID 请求ID中间件
// 客户端带了就透传，没带就生成一个，方便跨服务追踪日志
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDKey)
		if requestID == "" {
			requestID = id.New()
		}

		c.Set(RequestIDKey, requestID)
		c.Writer.Header().Set(RequestIDKey, requestID)
		c.Next()
	}
}
