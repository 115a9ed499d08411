package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"tradeflow/internal/consts"
	"tradeflow/pkg/jwt"
	"tradeflow/pkg/response"
)

// 请求头的形式为 Authorization: Bearer token
const authorizationHeader = "Authorization"

// AuthToken 管理接口鉴权；secret 为空时管理接口全部拒绝。rc 可以为空，此时不检查黑名单
func AuthToken(secret string, rc *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			response.RequireAuthErr(c, errors.New("admin api disabled"))
			c.Abort()
			return
		}
		tokenStr, err := getJwtFromHeader(c)
		if err != nil {
			response.RequireAuthErr(c, err)
			c.Abort()
			return
		}
		if jwt.IsInBlackList(c, rc, tokenStr) {
			response.RequireAuthErr(c, errors.New("token revoked"))
			c.Abort()
			return
		}
		claims, err := jwt.ParseToken(tokenStr, secret)
		if err != nil {
			response.RequireAuthErr(c, err)
			c.Abort()
			return
		}

		c.Set(consts.AdminSub, claims.Sub)
		c.Set(consts.JWTToken, tokenStr)
		c.Next()
	}
}

func getJwtFromHeader(c *gin.Context) (string, error) {
	aHeader := c.Request.Header.Get(authorizationHeader)
	if len(aHeader) == 0 {
		return "", errors.New("token is empty")
	}
	strs := strings.SplitN(aHeader, " ", 2)
	if len(strs) != 2 || strs[0] != "Bearer" {
		return "", errors.New("token 不符合规则")
	}
	return strs[1], nil
}
