package timegate

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"tradeflow/internal/model"
)

// 每周运行窗口长度：周日 18:00 到周五 17:00
const weeklyWindow = 4*24*time.Hour + 23*time.Hour

// Gate 判断当前是否允许交易，以及下一次按周期对齐的唤醒时间
type Gate struct {
	loc          *time.Location
	resetWeekday time.Weekday
	reset        Clock
	cal          Calendar
	open         Clock // 常规开盘时间，日历查不到当天时使用
	close        Clock
}

type Options struct {
	Location     *time.Location
	ResetWeekday time.Weekday
	Reset        Clock
	Calendar     Calendar
	SessionOpen  Clock
	SessionClose Clock
}

func New(opts Options) *Gate {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &Gate{
		loc:          loc,
		resetWeekday: opts.ResetWeekday,
		reset:        opts.Reset,
		cal:          opts.Calendar,
		open:         opts.SessionOpen,
		close:        opts.SessionClose,
	}
}

func ParseWeekday(s string) (time.Weekday, error) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.EqualFold(d.String(), s) || strings.EqualFold(d.String()[:3], s) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("invalid weekday %q", s)
}

func (g *Gate) Location() *time.Location {
	return g.loc
}

// WindowStart 最近一次（不晚于 now）的周重置时间
func (g *Gate) WindowStart(now time.Time) time.Time {
	now = now.In(g.loc)
	back := (int(now.Weekday()) - int(g.resetWeekday) + 7) % 7
	y, m, d := now.Date()
	start := time.Date(y, m, d-back, g.reset.Hour, g.reset.Minute, 0, 0, g.loc)
	if now.Before(start) {
		// 还没到本周的重置时间，用上一周的
		start = time.Date(y, m, d-back-7, g.reset.Hour, g.reset.Minute, 0, 0, g.loc)
	}
	return start
}

// WindowEnd 窗口结束时间，按墙上时间计算
func (g *Gate) WindowEnd(start time.Time) time.Time {
	y, m, d := start.Date()
	return time.Date(y, m, d+4, start.Hour()+23, start.Minute(), 0, 0, g.loc)
}

// IsWithinWeeklyWindow 两端都包含
func (g *Gate) IsWithinWeeklyWindow(now time.Time) bool {
	start := g.WindowStart(now)
	end := g.WindowEnd(start)
	return !now.Before(start) && !now.After(end)
}

func (g *Gate) IsHoliday(date time.Time) bool {
	if g.cal == nil {
		return false
	}
	return g.cal.IsHoliday(date.In(g.loc))
}

// MarketHours 周末和节假日返回 false，否则返回开盘时间和收盘前一分钟
func (g *Gate) MarketHours(date time.Time) (open, last time.Time, ok bool) {
	date = date.In(g.loc)
	if isWeekend(date) {
		return time.Time{}, time.Time{}, false
	}
	if g.cal == nil {
		return g.open.On(date, g.loc), g.close.On(date, g.loc).Add(-time.Minute), true
	}
	open, closeAt, ok := g.cal.SessionHours(date)
	if !ok {
		return time.Time{}, time.Time{}, false
	}
	return open, closeAt.Add(-time.Minute), true
}

// NextSessionOpen 下一个交易日的开盘时间（严格晚于 now）
func (g *Gate) NextSessionOpen(now time.Time) time.Time {
	now = now.In(g.loc)
	for i := 0; i < 14; i++ {
		day := now.AddDate(0, 0, i)
		open, _, ok := g.MarketHours(day)
		if ok && open.After(now) {
			return open
		}
	}
	return g.open.On(now.AddDate(0, 0, 1), g.loc)
}

// NextAlignedWake 计算下一次运行策略的时间，返回值严格晚于 now。
// 分钟周期向上取整；1h/4h/1d 按交易时段对齐，券商的 K 线以开盘时间为锚点，而不是整点。
func (g *Gate) NextAlignedWake(now time.Time, iv model.Interval, continuous bool) (time.Time, error) {
	now = now.In(g.loc)
	switch iv.Kind {
	case model.IntervalMinute:
		if iv.Minutes <= 0 {
			return time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidInterval, iv.Raw)
		}
		y, m, d := now.Date()
		minutes := (now.Minute()/iv.Minutes + 1) * iv.Minutes
		return time.Date(y, m, d, now.Hour(), minutes, 0, 0, g.loc), nil
	case model.IntervalSymbolic:
		if continuous {
			return g.continuousWake(now, iv)
		}
		return g.sessionWake(now, iv)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidInterval, iv.Raw)
	}
}

// 全天交易品种的检查点
var fourHourBlocks = []int{2, 6, 10, 14, 18, 22}

func (g *Gate) continuousWake(now time.Time, iv model.Interval) (time.Time, error) {
	y, m, d := now.Date()
	switch iv.Raw {
	case "1h":
		return time.Date(y, m, d, now.Hour()+1, 0, 0, 0, g.loc), nil
	case "4h":
		for _, h := range fourHourBlocks {
			cp := time.Date(y, m, d, h, 0, 0, 0, g.loc)
			if cp.After(now) {
				return cp, nil
			}
		}
		return time.Date(y, m, d+1, fourHourBlocks[0], 0, 0, 0, g.loc), nil
	case "1d":
		return time.Date(y, m, d+1, 0, 0, 0, 0, g.loc), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", model.ErrInvalidInterval, iv.Raw)
}

func (g *Gate) sessionWake(now time.Time, iv model.Interval) (time.Time, error) {
	for i := 0; i < 2; i++ {
		day := now.AddDate(0, 0, i)
		cps, err := g.sessionCheckpoints(day, iv)
		if err != nil {
			return time.Time{}, err
		}
		for _, cp := range cps {
			if cp.After(now) {
				return cp, nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("%w: no checkpoint for %q", model.ErrInvalidInterval, iv.Raw)
}

// sessionCheckpoints 以开盘时间为锚：1h -> 开盘+1h, +2h ...；4h -> 开盘+4h；最后一个检查点都是收盘前一分钟
func (g *Gate) sessionCheckpoints(day time.Time, iv model.Interval) ([]time.Time, error) {
	open, last, ok := g.MarketHours(day)
	if !ok {
		open = g.open.On(day, g.loc)
		last = g.close.On(day, g.loc).Add(-time.Minute)
	}

	var step time.Duration
	switch iv.Raw {
	case "1h":
		step = time.Hour
	case "4h":
		step = 4 * time.Hour
	case "1d":
		return []time.Time{last}, nil
	default:
		return nil, fmt.Errorf("%w: %q", model.ErrInvalidInterval, iv.Raw)
	}

	var cps []time.Time
	for cp := open.Add(step); cp.Before(last); cp = cp.Add(step) {
		cps = append(cps, cp)
	}
	return append(cps, last), nil
}
