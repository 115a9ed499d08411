package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"tradeflow/internal/model"
)

type contractRow struct {
	product    string
	active     bool
	nextActive bool
	symbol     string
	expiresAt  time.Time
}

// ContractResolver 把 /ES 这样的连续品种换成当前主力合约，主力到期后切到下一个
type ContractResolver struct {
	file watchedFile
	rows []contractRow
}

func NewContractResolver(path string) *ContractResolver {
	return &ContractResolver{file: watchedFile{path: path}}
}

// Resolve 非期货品种原样返回
func (r *ContractResolver) Resolve(id string, now time.Time) (string, error) {
	if !model.IsContinuous(id) {
		return id, nil
	}
	product := strings.TrimPrefix(id, "/")

	r.file.mu.Lock()
	defer r.file.mu.Unlock()
	if err := r.reload(); err != nil {
		return "", err
	}

	var active, next *contractRow
	for i := range r.rows {
		row := &r.rows[i]
		if row.product != product {
			continue
		}
		if row.active && active == nil {
			active = row
		}
		if row.nextActive && next == nil {
			next = row
		}
	}
	if active == nil {
		return "", fmt.Errorf("no active contract for %s", id)
	}
	if !active.expiresAt.IsZero() && !active.expiresAt.After(now) {
		if next == nil {
			return "", fmt.Errorf("active contract %s expired and no next contract for %s", active.symbol, id)
		}
		return next.symbol, nil
	}
	return active.symbol, nil
}

func (r *ContractResolver) reload() error {
	changed, err := r.file.changed()
	if err != nil {
		return fmt.Errorf("stat instruments %s: %w", r.file.path, err)
	}
	if !changed {
		return nil
	}

	f, err := os.Open(r.file.path)
	if err != nil {
		r.file.invalidate()
		return err
	}
	defer f.Close()

	rows, err := readContracts(f)
	if err != nil {
		r.file.invalidate()
		return fmt.Errorf("read instruments %s: %w", r.file.path, err)
	}
	r.rows = rows
	r.file.loaded = true
	return nil
}

func readContracts(src io.Reader) ([]contractRow, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}
	for _, need := range []string{"product-code", "active-month", "next-active-month", "exchange-symbol"} {
		if _, ok := col[need]; !ok {
			return nil, fmt.Errorf("missing column %q", need)
		}
	}
	get := func(rec []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	var rows []contractRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := contractRow{
			product:    get(rec, "product-code"),
			active:     cast.ToBool(get(rec, "active-month")),
			nextActive: cast.ToBool(get(rec, "next-active-month")),
			symbol:     get(rec, "exchange-symbol"),
		}
		if s := get(rec, "expires-at"); s != "" {
			if row.expiresAt, err = cast.ToTimeE(s); err != nil {
				return nil, fmt.Errorf("expires-at %q: %w", s, err)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
