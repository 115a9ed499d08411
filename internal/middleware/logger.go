package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"tradeflow/internal/consts"
	"tradeflow/pkg/logger"
)

func Logger(c *gin.Context) {
	t := time.Now()
	reqPath := c.Request.URL.Path

	c.Next()

	logger.Info("[Request]",
		logger.Pair(consts.RequestId, c.GetString(consts.RequestId)),
		logger.Pair("host", c.ClientIP()),
		logger.Pair("method", c.Request.Method),
		logger.Pair("path", reqPath),
		logger.Pair("status", c.Writer.Status()),
		logger.Pair("cost", time.Since(t)))
}

// Recovery handler 里的 panic 记日志后返回 500
func Recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, err any) {
		logger.Errorf("panic in %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		c.AbortWithStatus(500)
	})
}

func NewMiddleware() []gin.HandlerFunc {
	return []gin.HandlerFunc{Recovery(), RequestId(), Logger, NoCache(), Secure()}
}
