package dao

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"tradeflow/internal/model"
)

func newOrderDao(t *testing.T) *OrderDao {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	d, err := NewOrderDao(db)
	require.NoError(t, err)
	return d
}

func TestOrderDaoRecord(t *testing.T) {
	d := newOrderDao(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 10, 30, 0, 0, time.UTC)

	require.NoError(t, d.Record(model.OrderRecord{
		Instrument: "/ES", Venue: "schwab", Side: model.SellToClose, Quantity: 1,
		OrderRef: "A1", ClientOrderID: "c-1", State: model.OrderFilled, CreatedAt: base,
	}))
	require.NoError(t, d.Record(&model.OrderRecord{
		Instrument: "/ES", Venue: "schwab", Side: model.SellToOpen, Quantity: 1,
		OrderRef: "A2", ClientOrderID: "c-2", State: model.OrderFilled, CreatedAt: base.Add(time.Second),
	}))
	assert.Error(t, d.Record("not a record"))

	list, err := d.OrderListByInstrument(ctx, "/ES", 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.SellToOpen, list[0].Side)

	rec, found, err := d.OrderGetByClientID(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, model.OrderRef("A1"), rec.OrderRef)

	_, found, err = d.OrderGetByClientID(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}
