package simulation

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaggedRows(t *testing.T) {
	sim := TaggedRows{Dir: t.TempDir(), Keyspace: "sim_tagged", Rows: 1200, Shards: 3, Workers: 4}
	res, err := sim.Run(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, 2*600, res.Rebuilt)
	assert.Equal(t, map[string]int{
		"state=CA":          360,
		"state=LA":          120,
		"state=NY":          240,
		"state=TX":          480,
		"state=NONEXISTENT": 0,
		"tags=tag1":         480,
		"tags=tag2":         480,
		"tags=tag3":         240,
	}, res.Counts)

	require.Len(t, res.Records, 3)
	assert.Equal(t, "write_before_index", res.Records[0].Phase)
	assert.Equal(t, 600, res.Records[0].OpsCount)
	assert.Equal(t, "write_after_index", res.Records[1].Phase)
	assert.Equal(t, 600, res.Records[1].OpsCount)
	assert.Equal(t, "count", res.Records[2].Phase)
	assert.Equal(t, 8, res.Records[2].OpsCount)
}

func TestTaggedRowsFlushed(t *testing.T) {
	sim := TaggedRows{Dir: t.TempDir(), Keyspace: "sim_flushed", Rows: 400, IndexAt: 100, Shards: 2, FlushThreshold: 50}
	res, err := sim.Run(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 120, res.Counts["state=CA"])
	assert.Equal(t, 160, res.Counts["state=TX"])
}

func TestTaggedRowsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sim := TaggedRows{Dir: t.TempDir(), Keyspace: "sim_canceled", Rows: 100}
	_, err := sim.Run(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStatsCompute(t *testing.T) {
	s := NewStats()
	for i := 100; i >= 1; i-- {
		s.Record(time.Duration(i) * time.Millisecond)
	}
	p50, p95, p99, opsSec := s.Compute(100, 2*time.Second)
	assert.Equal(t, 50*time.Millisecond, p50)
	assert.Equal(t, 95*time.Millisecond, p95)
	assert.Equal(t, 99*time.Millisecond, p99)
	assert.Equal(t, 50.0, opsSec)

	p50, _, _, opsSec = NewStats().Compute(0, 0)
	assert.Zero(t, p50)
	assert.Zero(t, opsSec)
}

func TestWriteCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	err := WriteCSV(path, []ResultRecord{{
		TestName:  testName,
		RunNumber: 2,
		Phase:     "count",
		OpsCount:  8,
		OpsSec:    12.5,
		TotalTime: 1500 * time.Millisecond,
	}})
	require.NoError(t, err)

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "phase", rows[0][2])
	assert.Equal(t, []string{"TaggedRows", "2", "count", "8", "12.50", "0.00", "0.00", "0.00", "1500"}, rows[1])
}
