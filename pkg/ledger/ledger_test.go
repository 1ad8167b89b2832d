package ledger

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethpandaops/footprint/internal/testutil"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLedger_RecordReplacesUnit(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	l := NewRedis(logrus.New(), client, "footprint")
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, Record{RunID: "a", Region: "2261", Year: 2016, Stage: "fetch", Outcome: "remote_absent"}))
	require.NoError(t, l.Record(ctx, Record{RunID: "b", Region: "2261", Year: 2016, Stage: "import", Outcome: "imported", Layer: "bubd_2016_2261"}))
	require.NoError(t, l.Record(ctx, Record{RunID: "b", Region: "1465", Year: 2016, Stage: "import", Outcome: "skipped"}))

	assert.True(t, mr.Exists("footprint:units:2016"))

	units, err := l.Units(ctx, 2016)
	require.NoError(t, err)
	require.Len(t, units, 2)

	assert.Equal(t, "1465", units[0].Region, "ordered by region code")
	assert.Equal(t, "2261", units[1].Region)
	assert.Equal(t, "imported", units[1].Outcome)
	assert.Equal(t, "b", units[1].RunID)
	assert.False(t, units[1].UpdatedAt.IsZero())

	empty, err := l.Units(ctx, 2014)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisLedger_SkipsUnreadableRecords(t *testing.T) {
	mr, client := testutil.NewMiniredisClient(t)
	l := NewRedis(logrus.New(), client, "footprint")

	mr.HSet("footprint:units:2015", "0264", "not json")
	require.NoError(t, l.Record(context.Background(), Record{Region: "1261", Year: 2015, Outcome: "imported"}))

	units, err := l.Units(context.Background(), 2015)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "1261", units[0].Region)
}

func TestRedisLedger_RunHistory(t *testing.T) {
	_, client := testutil.NewMiniredisClient(t)
	l := NewRedis(logrus.New(), client, "footprint")
	ctx := context.Background()

	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i := range maxHistory + 5 {
		require.NoError(t, l.SaveRun(ctx, Run{
			ID:        fmt.Sprintf("run-%d", i),
			Command:   "run",
			StartedAt: start.Add(time.Duration(i) * time.Hour),
			Status:    "success",
			Units:     map[string]int{"imported": i},
			Years:     []YearSummary{{Year: 2016, Outcome: "diffed", ChangeCount: 3}},
		}))
	}

	latest, err := l.Runs(ctx, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, fmt.Sprintf("run-%d", maxHistory+4), latest[0].ID)
	assert.Equal(t, int64(3), latest[0].Years[0].ChangeCount)

	all, err := l.Runs(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, all, maxHistory, "history is trimmed")

	none, err := l.Runs(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNoop(t *testing.T) {
	l := NewNoop()
	ctx := context.Background()

	require.NoError(t, l.Record(ctx, Record{Region: "2261", Year: 2016}))
	require.NoError(t, l.SaveRun(ctx, Run{ID: "x"}))

	units, err := l.Units(ctx, 2016)
	require.NoError(t, err)
	assert.Empty(t, units)

	runs, err := l.Runs(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
	assert.NoError(t, l.Close())
}
