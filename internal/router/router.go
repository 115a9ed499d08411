package router

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"tradeflow/internal/consts"
	"tradeflow/internal/handler/admin"
	"tradeflow/internal/handler/ping"
	"tradeflow/internal/handler/position"
	"tradeflow/internal/metrics"
	"tradeflow/internal/middleware"
)

type ApiRouter struct {
	positionHandler *position.PositionHandler
	adminHandler    *admin.AdminHandler
	secret          string
	rc              *redis.Client
}

// NewApiRouter secret 为空时管理接口不可用
func NewApiRouter(ph *position.PositionHandler, ah *admin.AdminHandler, secret string, rc *redis.Client) *ApiRouter {
	return &ApiRouter{positionHandler: ph, adminHandler: ah, secret: secret, rc: rc}
}

func (api *ApiRouter) Load(g *gin.Engine) {
	g.GET("/ping", ping.Ping())
	g.GET("/metrics", gin.WrapH(metrics.Handler()))

	base := g.Group("/api/v1")

	p := base.Group("/positions")
	{
		p.GET("/list", api.positionHandler.PositionGetList())
		p.GET("/detail", api.positionHandler.PositionGetDetail())
	}
	base.GET("/orders/list", api.positionHandler.OrderGetList())

	w := base.Group("/workers", middleware.AuthToken(api.secret, api.rc))
	{
		w.GET("/list", api.adminHandler.WorkerGetList())
		w.POST("/start", middleware.AntiDuplicate(500, consts.DuplicateThreshold), api.adminHandler.WorkerStart())
		w.POST("/stop", middleware.AntiDuplicate(500, consts.DuplicateThreshold), api.adminHandler.WorkerStop())
	}
	base.POST("/auth/logout", middleware.AuthToken(api.secret, api.rc), api.adminHandler.Logout())
}
