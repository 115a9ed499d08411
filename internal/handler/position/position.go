package position

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"tradeflow/internal/model"
	"tradeflow/internal/store"
	"tradeflow/pkg/response"
)

// OrderLedger 订单流水查询，只有 mysql 流水时可用
type OrderLedger interface {
	OrderListByInstrument(ctx context.Context, instrument string, limit int) ([]model.OrderRecord, error)
}

type PositionHandler struct {
	store  store.Store
	ledger OrderLedger
}

// NewPositionHandler ledger 可以为空
func NewPositionHandler(st store.Store, ledger OrderLedger) *PositionHandler {
	return &PositionHandler{store: st, ledger: ledger}
}

type detailReq struct {
	ID string `form:"id" binding:"required"`
}

type orderListReq struct {
	Instrument string `form:"instrument" binding:"required"`
	Limit      int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

func (h *PositionHandler) PositionGetList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		list, err := h.store.List(ctx)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, list)
	}
}

// PositionGetDetail 品种 id 带 "/"，用 query 参数传
func (h *PositionHandler) PositionGetDetail() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		var req detailReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		rec, err := h.store.Load(ctx, req.ID)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, rec)
	}
}

func (h *PositionHandler) OrderGetList() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if h.ledger == nil {
			response.JSON(ctx, errors.New("order ledger is not stored in the database"), nil)
			return
		}
		var req orderListReq
		if err := ctx.ShouldBindQuery(&req); err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		if req.Limit == 0 {
			req.Limit = 50
		}
		list, err := h.ledger.OrderListByInstrument(ctx, req.Instrument, req.Limit)
		if err != nil {
			response.JSON(ctx, err, nil)
			return
		}
		response.JSON(ctx, nil, list)
	}
}
