package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"tradeflow/internal/model"
	"tradeflow/pkg/logger"
)

// FileStore 每个品种一个 json 文件：trades/_ES.json
type FileStore struct {
	dir string
	mu  sync.Mutex
}

func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		dir = "trades"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(instrument string) string {
	return filepath.Join(s.dir, logger.FileSafe(instrument)+".json")
}

func (s *FileStore) Load(_ context.Context, instrument string) (model.PositionRecord, error) {
	data, err := os.ReadFile(s.path(instrument))
	if errors.Is(err, fs.ErrNotExist) {
		return model.FlatRecord(instrument), nil
	}
	if err != nil {
		return model.PositionRecord{}, fmt.Errorf("read position %s: %w", instrument, err)
	}
	if len(data) == 0 {
		return model.FlatRecord(instrument), nil
	}

	var rec model.PositionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return model.PositionRecord{}, fmt.Errorf("decode position %s: %w", instrument, err)
	}
	if rec.Action == "" {
		rec.Action = model.Flat
	}
	rec.Instrument = instrument
	return rec, nil
}

// Save 先写临时文件再 rename，进程中途退出不会留下半条记录
func (s *FileStore) Save(_ context.Context, rec model.PositionRecord) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("encode position %s: %w", rec.Instrument, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write position %s: %w", rec.Instrument, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync position %s: %w", rec.Instrument, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), s.path(rec.Instrument)); err != nil {
		return fmt.Errorf("replace position %s: %w", rec.Instrument, err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context) ([]model.PositionRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var out []model.PositionRecord
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		// 文件名里的 "_" 还原成 "/" 只对期货前缀成立
		id := strings.TrimSuffix(name, ".json")
		if strings.HasPrefix(id, "_") {
			id = "/" + id[1:]
		}
		rec, err := s.Load(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out, nil
}
