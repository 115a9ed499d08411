package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"tradeflow/conf"
	"tradeflow/internal/model"
)

// Store 每个品种一条仓位记录，只有持有该品种的 worker 会写
type Store interface {
	// Load 记录不存在时返回 FLAT
	Load(ctx context.Context, instrument string) (model.PositionRecord, error)
	// Save 整条记录覆盖写，要么全部成功要么保留旧记录
	Save(ctx context.Context, rec model.PositionRecord) error
	// List 状态页使用
	List(ctx context.Context) ([]model.PositionRecord, error)
}

// New 按配置选择存储，mysql 需要传入已经初始化的 db
func New(cfg conf.StoreConfig, db *gorm.DB) (Store, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(cfg.Dir)
	case "mysql", "gorm":
		if db == nil {
			return nil, fmt.Errorf("store driver %q requires a database", cfg.Driver)
		}
		return NewGormStore(db)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
