package recorder

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entry struct {
	Instrument string `json:"instrument"`
	Side       string `json:"side"`
}

func (e entry) RecordKey() string { return e.Instrument }

func TestJSONFileRecorderAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "orders.json")
	r := NewJSONFileRecorder(path)
	require.NoError(t, r.Record(entry{"/ES", "buy_to_open"}))
	require.NoError(t, r.Record(entry{"/ES", "sell_to_close"}))
	require.NoError(t, r.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var got []entry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "sell_to_close", got[1].Side)
}

type fakeProducer struct {
	keys   []string
	values []any
}

func (p *fakeProducer) Produce(_ context.Context, key []byte, v any) error {
	p.keys = append(p.keys, string(key))
	p.values = append(p.values, v)
	return nil
}

func (p *fakeProducer) Close() {}

func TestKafkaRecorderUsesRecordKey(t *testing.T) {
	p := &fakeProducer{}
	r := NewKafkaRecorder(p)
	require.NoError(t, r.Record(entry{"AAPL", "buy_to_open"}))
	require.NoError(t, r.Record(map[string]string{"k": "v"}))
	assert.Equal(t, []string{"AAPL", ""}, p.keys)
}
