package timegate

import (
	"fmt"
	"time"
)

// Calendar 交易日历：节假日与交易时段
type Calendar interface {
	IsHoliday(date time.Time) bool
	// SessionHours 返回当日开盘、收盘时间，周末和节假日返回 false
	SessionHours(date time.Time) (open, close time.Time, ok bool)
}

// Clock 一天中的时刻
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On 把时刻放到 date 所在的日期上
func (c Clock) On(date time.Time, loc *time.Location) time.Time {
	y, m, d := date.In(loc).Date()
	return time.Date(y, m, d, c.Hour, c.Minute, 0, 0, loc)
}

// NYSECalendar 按 NYSE 规则计算的休市日历，另外支持配置额外休市日
type NYSECalendar struct {
	loc        *time.Location
	open       Clock
	close      Clock
	earlyClose Clock
	extra      map[string]bool // 2006-01-02
}

func NewNYSECalendar(loc *time.Location, open, close Clock, extraHolidays []string) (*NYSECalendar, error) {
	extra := make(map[string]bool, len(extraHolidays))
	for _, s := range extraHolidays {
		d, err := time.ParseInLocation("2006-01-02", s, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid extra holiday %q: %w", s, err)
		}
		extra[d.Format("2006-01-02")] = true
	}
	return &NYSECalendar{
		loc:        loc,
		open:       open,
		close:      close,
		earlyClose: Clock{Hour: 13},
		extra:      extra,
	}, nil
}

func isWeekend(date time.Time) bool {
	wd := date.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (c *NYSECalendar) IsHoliday(date time.Time) bool {
	d := date.In(c.loc)
	if c.extra[d.Format("2006-01-02")] {
		return true
	}
	y, m, day := d.Date()
	for _, h := range nyseHolidays(y, c.loc) {
		hy, hm, hd := h.Date()
		if hy == y && hm == m && hd == day {
			return true
		}
	}
	return false
}

func (c *NYSECalendar) SessionHours(date time.Time) (time.Time, time.Time, bool) {
	d := date.In(c.loc)
	if isWeekend(d) || c.IsHoliday(d) {
		return time.Time{}, time.Time{}, false
	}
	closeAt := c.close
	if c.isEarlyClose(d) {
		closeAt = c.earlyClose
	}
	return c.open.On(d, c.loc), closeAt.On(d, c.loc), true
}

// 独立日前一天、感恩节次日、平安夜 13:00 提前收盘
// 调用前已排除周末和节假日（7/3、12/24 因周末顺延成为休市日的情况）
func (c *NYSECalendar) isEarlyClose(d time.Time) bool {
	y, m, day := d.Date()
	switch {
	case m == time.July && day == 3:
		return true
	case m == time.November && d.Weekday() == time.Friday:
		tg := nthWeekday(y, time.November, time.Thursday, 4, c.loc)
		return day == tg.Day()+1
	case m == time.December && day == 24:
		return true
	}
	return false
}

// nyseHolidays 某一年的全部休市日（已处理周末顺延）
func nyseHolidays(year int, loc *time.Location) []time.Time {
	date := func(m time.Month, d int) time.Time {
		return time.Date(year, m, d, 0, 0, 0, 0, loc)
	}

	var days []time.Time
	// 元旦落在周六不补休，周日顺延到周一
	ny := date(time.January, 1)
	switch ny.Weekday() {
	case time.Saturday:
	case time.Sunday:
		days = append(days, ny.AddDate(0, 0, 1))
	default:
		days = append(days, ny)
	}

	days = append(days,
		nthWeekday(year, time.January, time.Monday, 3, loc),
		nthWeekday(year, time.February, time.Monday, 3, loc),
		easter(year, loc).AddDate(0, 0, -2),
		lastWeekday(year, time.May, time.Monday, loc),
		observed(date(time.July, 4)),
		nthWeekday(year, time.September, time.Monday, 1, loc),
		nthWeekday(year, time.November, time.Thursday, 4, loc),
		observed(date(time.December, 25)),
	)
	if year >= 2022 {
		days = append(days, observed(date(time.June, 19)))
	}
	return days
}

// 周六提前到周五，周日顺延到周一
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(year int, month time.Month, wd time.Weekday, n int, loc *time.Location) time.Time {
	first := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	return first.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(year int, month time.Month, wd time.Weekday, loc *time.Location) time.Time {
	last := time.Date(year, month+1, 0, 0, 0, 0, 0, loc)
	offset := (int(last.Weekday()) - int(wd) + 7) % 7
	return last.AddDate(0, 0, -offset)
}

// easter 公历复活节（Anonymous Gregorian algorithm）
func easter(year int, loc *time.Location) time.Time {
	a := year % 19
	b := year / 100
	c := year % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, loc)
}
