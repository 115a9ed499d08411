package exchange

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradeflow/internal/model"
)

type captureRecorder struct {
	mu   sync.Mutex
	recs []*model.OrderRecord
}

func (r *captureRecorder) Record(result any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, result.(*model.OrderRecord))
	return nil
}

type countingBroker struct {
	*PaperBroker
	mu       sync.Mutex
	resolves int
}

func (b *countingBroker) ResolveAccount(ctx context.Context, id string) (string, error) {
	b.mu.Lock()
	b.resolves++
	b.mu.Unlock()
	return b.PaperBroker.ResolveAccount(ctx, id)
}

func newTestExecutor(b Broker, rec *captureRecorder) *Executor {
	opts := []Option{WithRetryDelay(time.Millisecond), WithPollInterval(time.Millisecond)}
	if rec != nil {
		opts = append(opts, WithRecorder(rec))
	}
	return NewExecutor([]Venue{{Name: "schwab", AccountID: "123", Broker: b}}, opts...)
}

func buyLeg() model.Leg {
	return model.Leg{Instrument: "AAPL", Venue: "schwab", Symbol: "AAPL", Side: model.BuyToOpen, Quantity: 10}
}

func TestConfirmPendingThenFilled(t *testing.T) {
	b := NewPaperBroker(0)
	b.SetPendingPolls(2)
	rec := &captureRecorder{}
	e := newTestExecutor(b, rec)

	fill, err := e.Execute(context.Background(), buyLeg())
	require.NoError(t, err)
	assert.Equal(t, 10, fill.Quantity)
	assert.NotEmpty(t, fill.Ref)

	require.Len(t, rec.recs, 1)
	assert.Equal(t, model.OrderFilled, rec.recs[0].State)
	assert.Equal(t, fill.Ref, rec.recs[0].OrderRef)
	assert.NotEmpty(t, rec.recs[0].ClientOrderID)
}

func TestRejectedIsTerminal(t *testing.T) {
	b := NewPaperBroker(0)
	b.RejectNext(1)
	rec := &captureRecorder{}
	e := newTestExecutor(b, rec)

	_, err := e.Execute(context.Background(), buyLeg())
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrOrderRejected))
	assert.Len(t, b.Placed(), 1, "rejection must not be retried")
	require.Len(t, rec.recs, 1)
	assert.Equal(t, model.OrderRejected, rec.recs[0].State)
}

func TestPlacementRetriedUntilAccepted(t *testing.T) {
	b := NewPaperBroker(0)
	b.FailNextPlacements(3)
	e := newTestExecutor(b, nil)

	fill, err := e.Execute(context.Background(), buyLeg())
	require.NoError(t, err)
	assert.Equal(t, 10, fill.Quantity)
	assert.Len(t, b.Placed(), 1)
}

func TestLostAckIsAdoptedNotDuplicated(t *testing.T) {
	b := NewPaperBroker(0)
	b.LoseNextAcks(1)
	e := newTestExecutor(b, nil)

	leg := buyLeg()
	leg.ClientOrderID = "fixed-client-id"
	fill, err := e.Execute(context.Background(), leg)
	require.NoError(t, err)

	placed := b.Placed()
	require.Len(t, placed, 1)
	assert.Equal(t, "fixed-client-id", placed[0].ClientOrderID)
	ref, found, _ := b.LookupOrder(context.Background(), "paper-123", "fixed-client-id")
	require.True(t, found)
	assert.Equal(t, ref, fill.Ref)
}

func TestStatusErrorsArePolledThrough(t *testing.T) {
	b := NewPaperBroker(0)
	b.FailNextStatus(3)
	e := newTestExecutor(b, nil)

	fill, err := e.Execute(context.Background(), buyLeg())
	require.NoError(t, err)
	assert.Equal(t, 10, fill.Quantity)
}

func TestPlacementStopsWithContext(t *testing.T) {
	b := NewPaperBroker(0)
	b.FailNextPlacements(1 << 30)
	e := newTestExecutor(b, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := e.Execute(ctx, buyLeg())
	require.Error(t, err)
	assert.Empty(t, b.Placed())
}

func TestConfirmSurvivesCancelledCaller(t *testing.T) {
	b := NewPaperBroker(20 * time.Millisecond)
	e := newTestExecutor(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := e.Execute(ctx, buyLeg())
		done <- err
	}()
	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		// 订单已被接受，取消调用方不放弃确认
		if len(b.Placed()) == 1 {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation did not finish")
	}
}

func TestAccountResolvedOnce(t *testing.T) {
	b := &countingBroker{PaperBroker: NewPaperBroker(0)}
	e := newTestExecutor(b, nil)

	for i := 0; i < 3; i++ {
		_, err := e.Execute(context.Background(), buyLeg())
		require.NoError(t, err)
	}
	assert.Equal(t, 1, b.resolves)
}

func TestUnknownVenue(t *testing.T) {
	e := newTestExecutor(NewPaperBroker(0), nil)
	leg := buyLeg()
	leg.Venue = "ibkr"
	_, err := e.Execute(context.Background(), leg)
	assert.Error(t, err)
}

func TestFetchBarsUsesFirstVenue(t *testing.T) {
	first := NewPaperBroker(0)
	second := NewPaperBroker(0)
	bars := []model.Bar{{Timestamp: time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC), Close: 1}}
	first.SetBars("AAPL", bars)

	e := NewExecutor([]Venue{
		{Name: "schwab", AccountID: "1", Broker: first},
		{Name: "tastytrade", AccountID: "2", Broker: second},
	})
	got, err := e.FetchBars(context.Background(), "AAPL", model.Interval{Raw: "5", Kind: model.IntervalMinute, Minutes: 5})
	require.NoError(t, err)
	assert.Equal(t, bars, got)
	assert.Equal(t, []string{"schwab", "tastytrade"}, e.Venues())
}

func TestPaperSyntheticBars(t *testing.T) {
	b := NewPaperBroker(0)
	b.SetInitialPrice("MSFT", 400)
	iv, _ := model.ParseInterval("15")
	bars, err := b.FetchBars(context.Background(), "MSFT", iv)
	require.NoError(t, err)
	require.Len(t, bars, 200)
	for i := 1; i < len(bars); i++ {
		require.True(t, bars[i].Timestamp.After(bars[i-1].Timestamp))
		require.Greater(t, bars[i].Close, 0.0)
	}
	assert.InDelta(t, 400, bars[0].Open, 0.001)
}

func TestCancelledCallerPlacesNothing(t *testing.T) {
	b := NewPaperBroker(0)
	e := newTestExecutor(b, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Execute(ctx, buyLeg())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, b.Placed())
}

// cancelInPlace 券商接受订单的同时调用方被取消
type cancelInPlace struct {
	*PaperBroker
	cancel context.CancelFunc
}

func (b *cancelInPlace) PlaceOrder(ctx context.Context, req model.OrderRequest) (model.OrderRef, error) {
	ref, err := b.PaperBroker.PlaceOrder(ctx, req)
	b.cancel()
	return ref, err
}

func TestAcceptedOrderConfirmedWhenCancelledDuringPlace(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := &cancelInPlace{PaperBroker: NewPaperBroker(0), cancel: cancel}
	rec := &captureRecorder{}
	e := newTestExecutor(b, rec)

	fill, err := e.Execute(ctx, buyLeg())
	require.NoError(t, err)
	assert.NotEmpty(t, fill.Ref)
	assert.Equal(t, 10, fill.Quantity)
	require.Len(t, b.Placed(), 1)
	require.Len(t, rec.recs, 1)
	assert.Equal(t, model.OrderFilled, rec.recs[0].State)
	assert.Equal(t, fill.Ref, rec.recs[0].OrderRef)
}

func TestLostAckAdoptedWhenCancelledDuringRetry(t *testing.T) {
	b := NewPaperBroker(0)
	b.LoseNextAcks(1)
	e := NewExecutor([]Venue{{Name: "schwab", AccountID: "123", Broker: b}},
		WithRetryDelay(time.Minute), WithPollInterval(time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	fill, err := e.Execute(ctx, buyLeg())
	require.NoError(t, err)
	assert.NotEmpty(t, fill.Ref)
	assert.Len(t, b.Placed(), 1, "the accepted order is adopted, not placed again")
}
