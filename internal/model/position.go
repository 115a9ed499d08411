package model

import (
	"fmt"
	"strings"
	"time"
)

// PositionAction 仓位状态
type PositionAction string

const (
	Flat  PositionAction = "FLAT"
	Long  PositionAction = "LONG"
	Short PositionAction = "SHORT"
)

func ParsePositionAction(s string) (PositionAction, error) {
	switch PositionAction(strings.ToUpper(strings.TrimSpace(s))) {
	case Flat, "":
		return Flat, nil
	case Long:
		return Long, nil
	case Short:
		return Short, nil
	default:
		return Flat, fmt.Errorf("unknown position action %q", s)
	}
}

// PositionRecord 单个品种的持久化仓位，整条记录覆盖写
type PositionRecord struct {
	Instrument string              `json:"instrument"`
	Action     PositionAction      `json:"action"`
	OrderRefs  map[string]OrderRef `json:"order_refs,omitempty"` // venue -> 开仓订单号，未下单的 venue 不出现
	UpdatedAt  time.Time           `json:"updated_at"`
}

// FlatRecord 空仓记录，等价于记录不存在
func FlatRecord(instrument string) PositionRecord {
	return PositionRecord{Instrument: instrument, Action: Flat}
}

func (r PositionRecord) IsFlat() bool {
	return r.Action == Flat || r.Action == ""
}
