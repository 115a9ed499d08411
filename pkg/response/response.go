package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"tradeflow/internal/consts"
)

const (
	CodeSuccess      = 0
	CodeFailed       = 1
	CodeRequireAuth  = 401
	CodeTooManyCalls = 429
)

// 代表响应给客户端的的一个消息结构，包括错误码，错误信息，响应数据
type ApiResponse struct {
	RequestId string      `json:"request_id"` // 请求的唯一ID
	Code      int         `json:"code"`       // 错误码 0表示无错误
	Message   string      `json:"message"`    // 提示信息
	Data      interface{} `json:"data"`
}

// 发送json格式数据，err 不为空时返回 400
func JSON(c *gin.Context, err error, data interface{}) {
	if err != nil {
		c.JSON(http.StatusBadRequest, ApiResponse{
			RequestId: c.GetString(consts.RequestId),
			Code:      CodeFailed,
			Message:   err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      CodeSuccess,
		Message:   "success",
		Data:      data,
	})
}

// token鉴权失败，返回401
func RequireAuthErr(c *gin.Context, err error) {
	message := "unknow error."
	if err != nil {
		message = err.Error()
	}
	c.JSON(http.StatusUnauthorized, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      CodeRequireAuth,
		Message:   "invalid token:" + message,
	})
}

// 请求频繁，返回429
func TooManyRequests(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, ApiResponse{
		RequestId: c.GetString(consts.RequestId),
		Code:      CodeTooManyCalls,
		Message:   "The request is too frequent. Please try again later.",
	})
}
