package model

import (
	"sort"
	"time"
)

// Bar 一根 K 线，时间为交易所本地时间
type Bar struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
}

// NormalizeBars 按时间升序排列并去掉重复时间戳，同一时间戳保留最后出现的那根
func NormalizeBars(bars []Bar) []Bar {
	if len(bars) == 0 {
		return bars
	}
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})

	n := 0
	for i := range out {
		if n > 0 && out[n-1].Timestamp.Equal(out[i].Timestamp) {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n]
}

// DropUnclosed 最后一根 K 线与当前时间同一分钟时说明还没收盘，丢弃
func DropUnclosed(bars []Bar, now time.Time) []Bar {
	if len(bars) == 0 {
		return bars
	}
	last := bars[len(bars)-1].Timestamp.In(now.Location())
	if last.Hour() == now.Hour() && last.Minute() == now.Minute() {
		return bars[:len(bars)-1]
	}
	return bars
}

func Closes(bars []Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	return closes
}
