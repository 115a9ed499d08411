package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
	"go.uber.org/multierr"
	"tradeflow/internal/model"
)

// ParamSource 品种参数，每轮循环都会重新读取
type ParamSource interface {
	Get(id string) (model.InstrumentParams, error)
	IDs() ([]string, error)
}

// paramObject 新格式
type paramObject struct {
	Interval   string         `json:"interval"`
	Trade      any            `json:"trade"`
	Trend1     trendObject    `json:"trend1"`
	Trend2     trendObject    `json:"trend2"`
	Quantities map[string]any `json:"quantities"`
}

type trendObject struct {
	Kind   string `json:"kind"`
	Period any    `json:"period"`
}

// FileParamSource 读取 jsons/tickers.json：
//
//	{"/ES": ["500t", "1", "TRUE", "10", "EMA", "20", "SMA", "2"], "AAPL": {...}}
//
// 数组是旧格式 [周期, venue1 数量, 交易开关, 周期1, 均线1, 周期2, 均线2, venue2 数量]
type FileParamSource struct {
	file   watchedFile
	venues []string // 旧格式中两个数量列对应的 venue

	params map[string]model.InstrumentParams
	errs   map[string]error
	ids    []string
}

func NewFileParamSource(path string, venues []string) *FileParamSource {
	return &FileParamSource{file: watchedFile{path: path}, venues: venues}
}

func (s *FileParamSource) Get(id string) (model.InstrumentParams, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	if err := s.reload(); err != nil {
		return model.InstrumentParams{}, err
	}
	if err, ok := s.errs[id]; ok {
		return model.InstrumentParams{}, err
	}
	p, ok := s.params[id]
	if !ok {
		return model.InstrumentParams{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, id)
	}
	return p, nil
}

// IDs 包括参数无效的品种
func (s *FileParamSource) IDs() ([]string, error) {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	if err := s.reload(); err != nil {
		return nil, err
	}
	return append([]string(nil), s.ids...), nil
}

// Validate 返回所有无效品种的错误
func (s *FileParamSource) Validate() error {
	s.file.mu.Lock()
	defer s.file.mu.Unlock()
	if err := s.reload(); err != nil {
		return err
	}
	var errs error
	for _, id := range s.ids {
		errs = multierr.Append(errs, s.errs[id])
	}
	return errs
}

func (s *FileParamSource) reload() error {
	changed, err := s.file.changed()
	if err != nil {
		return fmt.Errorf("stat params %s: %w", s.file.path, err)
	}
	if !changed {
		return nil
	}

	data, err := os.ReadFile(s.file.path)
	if err != nil {
		s.file.invalidate()
		return fmt.Errorf("read params %s: %w", s.file.path, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		s.file.invalidate()
		return fmt.Errorf("decode params %s: %w", s.file.path, err)
	}

	params := make(map[string]model.InstrumentParams, len(raw))
	errs := make(map[string]error)
	ids := make([]string, 0, len(raw))
	for id, msg := range raw {
		ids = append(ids, id)
		p, err := s.parse(id, msg)
		if err != nil {
			errs[id] = fmt.Errorf("%w: %s: %v", ErrInvalidParams, id, err)
			continue
		}
		params[id] = p
	}
	sort.Strings(ids)

	s.params, s.errs, s.ids = params, errs, ids
	s.file.loaded = true
	return nil
}

func (s *FileParamSource) parse(id string, msg json.RawMessage) (model.InstrumentParams, error) {
	trimmed := strings.TrimSpace(string(msg))
	if strings.HasPrefix(trimmed, "[") {
		var row []any
		if err := json.Unmarshal(msg, &row); err != nil {
			return model.InstrumentParams{}, err
		}
		return s.parseRow(id, row)
	}
	var obj paramObject
	if err := json.Unmarshal(msg, &obj); err != nil {
		return model.InstrumentParams{}, err
	}
	return parseObject(id, obj)
}

func (s *FileParamSource) parseRow(id string, row []any) (model.InstrumentParams, error) {
	if len(row) < 7 {
		return model.InstrumentParams{}, fmt.Errorf("expected 8 columns, got %d", len(row))
	}
	qty := map[string]any{}
	if len(s.venues) > 0 {
		qty[s.venues[0]] = row[1]
	}
	if len(s.venues) > 1 && len(row) > 7 {
		qty[s.venues[1]] = row[7]
	}
	return parseObject(id, paramObject{
		Interval:   cast.ToString(row[0]),
		Trade:      row[2],
		Trend1:     trendObject{Kind: cast.ToString(row[4]), Period: row[3]},
		Trend2:     trendObject{Kind: cast.ToString(row[6]), Period: row[5]},
		Quantities: qty,
	})
}

func parseObject(id string, obj paramObject) (model.InstrumentParams, error) {
	p := model.InstrumentParams{ID: id, Quantities: make(map[string]int, len(obj.Quantities))}
	var errs error

	iv, err := model.ParseInterval(obj.Interval)
	errs = multierr.Append(errs, err)
	p.Interval = iv

	if obj.Trade != nil {
		on, err := cast.ToBoolE(obj.Trade)
		errs = multierr.Append(errs, err)
		p.TradeEnabled = on
	}

	p.Trend1, err = parseTrend(obj.Trend1)
	errs = multierr.Append(errs, err)
	p.Trend2, err = parseTrend(obj.Trend2)
	errs = multierr.Append(errs, err)

	for venue, raw := range obj.Quantities {
		q, err := cast.ToIntE(raw)
		if err == nil && q < 0 {
			err = fmt.Errorf("negative quantity %d for %s", q, venue)
		}
		errs = multierr.Append(errs, err)
		p.Quantities[venue] = q
	}
	return p, errs
}

func parseTrend(t trendObject) (model.TrendDef, error) {
	kind, err := model.ParseTrendKind(t.Kind)
	if err != nil {
		return model.TrendDef{}, err
	}
	period, err := cast.ToIntE(t.Period)
	if err != nil {
		return model.TrendDef{}, fmt.Errorf("period for %s: %w", kind, err)
	}
	if period <= 0 {
		return model.TrendDef{}, fmt.Errorf("period for %s must be positive, got %d", kind, period)
	}
	return model.TrendDef{Kind: kind, Period: period}, nil
}
