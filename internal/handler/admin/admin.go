package admin

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"tradeflow/internal/consts"
	"tradeflow/pkg/jwt"
	"tradeflow/pkg/logger"
	"tradeflow/pkg/response"
)

// WorkerControl 由 worker.Engine 实现
type WorkerControl interface {
	Running() []string
	Start(id string) error
	Stop(id string) error
}

type AdminHandler struct {
	engine WorkerControl
	secret string
	rc     *redis.Client
}

// NewAdminHandler rc 为空时不支持注销 token
func NewAdminHandler(engine WorkerControl, secret string, rc *redis.Client) *AdminHandler {
	return &AdminHandler{engine: engine, secret: secret, rc: rc}
}

type workerReq struct {
	ID string `json:"id" binding:"required"`
}

func (h *AdminHandler) WorkerGetList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response.JSON(ctx, nil, h.engine.Running())
	}
}

func (h *AdminHandler) WorkerStart() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req workerReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		if err := h.engine.Start(req.ID); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		logger.Infof("worker %s started by %s", req.ID, ctx.GetString(consts.AdminSub))
		response.JSON(ctx, nil, h.engine.Running())
	}
}

func (h *AdminHandler) WorkerStop() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req workerReq
		if err := ctx.ShouldBindJSON(&req); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		if err := h.engine.Stop(req.ID); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		logger.Infof("worker %s stopped by %s", req.ID, ctx.GetString(consts.AdminSub))
		response.JSON(ctx, nil, h.engine.Running())
	}
}

// Logout 当前 token 加入黑名单
func (h *AdminHandler) Logout() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if h.rc == nil {
			response.JSON(ctx, errors.New("token revocation needs redis"), nil)
			return
		}
		if err := jwt.JoinBlackList(ctx, h.rc, ctx.GetString(consts.JWTToken), h.secret); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, nil)
	}
}
