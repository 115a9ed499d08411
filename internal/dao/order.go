package dao

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"tradeflow/internal/model"
)

// OrderDao 订单流水表，同时实现 recorder.Recorder
type OrderDao struct {
	db *gorm.DB
}

func NewOrderDao(db *gorm.DB) (*OrderDao, error) {
	if err := db.AutoMigrate(&model.OrderRecord{}); err != nil {
		return nil, fmt.Errorf("migrate order_record: %w", err)
	}
	return &OrderDao{db: db}, nil
}

// 插入下单记录
func (d *OrderDao) InsertOrderRecord(ctx context.Context, record *model.OrderRecord) error {
	return d.db.WithContext(ctx).Create(record).Error
}

// 某个品种最近的流水，按时间倒序
func (d *OrderDao) OrderListByInstrument(ctx context.Context, instrument string, limit int) (records []model.OrderRecord, err error) {
	err = d.db.WithContext(ctx).Model(&model.OrderRecord{}).
		Where("instrument = ?", instrument).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&records).Error
	return
}

// 按客户端订单号查找，重启后用来确认一条腿是否已经下过
func (d *OrderDao) OrderGetByClientID(ctx context.Context, clientOrderID string) (or model.OrderRecord, found bool, err error) {
	res := d.db.WithContext(ctx).Model(&model.OrderRecord{}).
		Where("client_order_id = ?", clientOrderID).
		Order("id DESC").
		Limit(1).
		Find(&or)
	return or, res.RowsAffected > 0, res.Error
}

func (d *OrderDao) Record(result any) error {
	switch r := result.(type) {
	case *model.OrderRecord:
		return d.InsertOrderRecord(context.Background(), r)
	case model.OrderRecord:
		return d.InsertOrderRecord(context.Background(), &r)
	default:
		return fmt.Errorf("order dao: unsupported record %T", result)
	}
}
