package config

import (
	"errors"
	"os"
	"sync"
	"time"
)

// 品种参数与期货合约表，都是运行期间可能被外部更新的文件

var (
	ErrInvalidParams     = errors.New("invalid instrument params")
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// watchedFile 根据修改时间和大小判断是否需要重新加载
type watchedFile struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	loaded  bool
}

// changed 文件变化（或第一次读取）时返回 true
func (w *watchedFile) changed() (bool, error) {
	fi, err := os.Stat(w.path)
	if err != nil {
		return false, err
	}
	if w.loaded && fi.ModTime().Equal(w.modTime) && fi.Size() == w.size {
		return false, nil
	}
	w.modTime = fi.ModTime()
	w.size = fi.Size()
	return true, nil
}

func (w *watchedFile) invalidate() {
	w.loaded = false
}
