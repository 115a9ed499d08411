package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"tradeflow/internal/model"
)

// PositionRow 仓位表
type PositionRow struct {
	Instrument string                                        `gorm:"column:instrument;primaryKey;size:32"`
	Action     string                                        `gorm:"column:action;size:8"`
	OrderRefs  datatypes.JSONType[map[string]model.OrderRef] `gorm:"column:order_refs"` // venue -> 订单号
	UpdatedAt  time.Time                                     `gorm:"column:updated_at"`
}

func (PositionRow) TableName() string {
	return "position_record"
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&PositionRow{}); err != nil {
		return nil, fmt.Errorf("migrate position_record: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Load(ctx context.Context, instrument string) (model.PositionRecord, error) {
	var row PositionRow
	err := s.db.WithContext(ctx).Where("instrument = ?", instrument).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.FlatRecord(instrument), nil
	}
	if err != nil {
		return model.PositionRecord{}, fmt.Errorf("load position %s: %w", instrument, err)
	}
	return fromRow(row)
}

// Save 单条 upsert，一次写入
func (s *GormStore) Save(ctx context.Context, rec model.PositionRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "instrument"}},
		DoUpdates: clause.AssignmentColumns([]string{"action", "order_refs", "updated_at"}),
	}).Create(&row).Error
}

func (s *GormStore) List(ctx context.Context) ([]model.PositionRecord, error) {
	var rows []PositionRow
	if err := s.db.WithContext(ctx).Order("instrument").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]model.PositionRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func toRow(rec model.PositionRecord) (PositionRow, error) {
	action := rec.Action
	if action == "" {
		action = model.Flat
	}
	refs := rec.OrderRefs
	if refs == nil {
		refs = map[string]model.OrderRef{}
	}
	return PositionRow{
		Instrument: rec.Instrument,
		Action:     string(action),
		OrderRefs:  datatypes.NewJSONType(refs),
		UpdatedAt:  rec.UpdatedAt,
	}, nil
}

func fromRow(row PositionRow) (model.PositionRecord, error) {
	action, err := model.ParsePositionAction(row.Action)
	if err != nil {
		return model.PositionRecord{}, fmt.Errorf("position %s: %w", row.Instrument, err)
	}
	rec := model.PositionRecord{Instrument: row.Instrument, Action: action, UpdatedAt: row.UpdatedAt}
	if refs := row.OrderRefs.Data(); len(refs) > 0 {
		rec.OrderRefs = refs
	}
	return rec, nil
}
