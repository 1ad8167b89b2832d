package pipeline

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethpandaops/footprint/internal/testutil"
	"github.com/ethpandaops/footprint/pkg/changes"
	"github.com/ethpandaops/footprint/pkg/ledger"
	"github.com/ethpandaops/footprint/pkg/outcome"
	"github.com/ethpandaops/footprint/pkg/regions"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCatalog = regions.Catalog{
	{Code: "14", Regions: []regions.Region{{Code: "1465", Name: "Warszawa"}}},
	{Code: "22", Regions: []regions.Region{{Code: "2261", Name: "Gdańsk"}}},
}

// archiveServer publishes BDOT10k-shaped archives for the given (region, year) units
type archiveServer struct {
	root string
	srv  *httptest.Server
}

func newArchiveServer(t *testing.T) *archiveServer {
	t.Helper()

	a := &archiveServer{root: t.TempDir()}
	a.srv = httptest.NewServer(http.FileServer(http.Dir(a.root)))
	t.Cleanup(a.srv.Close)

	return a
}

func (a *archiveServer) publish(t *testing.T, parent, code string, year int) {
	t.Helper()

	path := filepath.Join(a.root, fmt.Sprint(year), "SHP", parent, fmt.Sprintf("%s_SHP_%d.zip", code, year))
	testutil.WriteZip(t, path, testutil.BDOTArchive(code))
}

func (a *archiveServer) publishGarbage(t *testing.T, parent, code string, year int) {
	t.Helper()

	dir := filepath.Join(a.root, fmt.Sprint(year), "SHP", parent)
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fmt.Sprintf("%s_SHP_%d.zip", code, year)), []byte("not a zip"), 0o600))
}

func testConfig(t *testing.T, baseURL string, from, to int) *Config {
	t.Helper()

	cfg := &Config{
		Logging:     "info",
		TempDir:     t.TempDir(),
		Concurrency: 2,
		Years:       regions.YearRange{From: from, To: to},
		Regions:     testCatalog,
		Changes:     changes.Config{GapPolicy: changes.GapReset},
	}
	cfg.Source.BaseURL = baseURL
	cfg.Source.Timeout = 2 * time.Second
	cfg.SetDefaults()

	return cfg
}

// stage registers the rectangles the fake store imports for a unit's staged layer
func stage(st *testutil.FakeStore, cfg *Config, code string, year int, rects ...testutil.Rect) {
	dir := filepath.Join(cfg.TempDir, fmt.Sprintf("clean_%s_%d", code, year))
	st.RegisterFile(filepath.Join(dir, cfg.Layer.CanonicalBase+".shp"), rects...)
}

func newTestService(t *testing.T, cfg *Config, st *testutil.FakeStore, led ledger.Ledger) *Service {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	svc, err := NewService(log, cfg, st, led)
	require.NoError(t, err)

	return svc
}

func TestService_Run(t *testing.T) {
	src := newArchiveServer(t)
	src.publish(t, "14", "1465", 2015)
	src.publish(t, "22", "2261", 2015)
	src.publish(t, "22", "2261", 2016)
	src.publish(t, "14", "1465", 2017)
	src.publish(t, "22", "2261", 2017)

	st := testutil.NewFakeStore()
	cfg := testConfig(t, src.srv.URL, 2015, 2017)

	stage(st, cfg, "1465", 2015, testutil.Grid(2, 10)...)
	stage(st, cfg, "2261", 2015, testutil.Grid(2, 0)...)
	stage(st, cfg, "2261", 2016, testutil.Grid(3, 0)...)
	stage(st, cfg, "1465", 2017, testutil.Grid(3, 10)...)
	stage(st, cfg, "2261", 2017, testutil.Grid(3, 0)...)

	_, client := testutil.NewMiniredisClient(t)
	led := ledger.NewRedis(logrus.New(), client, "footprint")

	run, err := newTestService(t, cfg, st, led).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StatusSuccess, run.Status)
	assert.Equal(t, map[string]int{"imported": 5, string(outcome.KindRemoteAbsent): 1}, run.Units)

	require.Len(t, run.Years, 3)
	assert.Equal(t, string(changes.OutcomeBaseline), run.Years[0].Outcome)
	assert.Equal(t, int64(4), run.Years[0].SnapshotCount)

	assert.Equal(t, string(changes.OutcomeDiffed), run.Years[1].Outcome)
	assert.Equal(t, int64(1), run.Years[1].ChangeCount, "one square is new in 2016")

	assert.Equal(t, string(changes.OutcomeDiffed), run.Years[2].Outcome)
	assert.Equal(t, int64(6), run.Years[2].SnapshotCount)
	assert.Equal(t, int64(3), run.Years[2].ChangeCount, "Warszawa is new against a Gdańsk-only 2016")

	units, err := led.Units(context.Background(), 2016)
	require.NoError(t, err)
	require.Len(t, units, 2)
	assert.Equal(t, StageFetch, units[0].Stage)
	assert.Equal(t, string(outcome.KindRemoteAbsent), units[0].Outcome)
	assert.Equal(t, "bubd_2016_2261", units[1].Layer)
	assert.Equal(t, run.ID, units[1].RunID)

	runs, err := led.Runs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
}

func TestService_RunIsIdempotent(t *testing.T) {
	src := newArchiveServer(t)
	src.publish(t, "22", "2261", 2015)
	src.publish(t, "22", "2261", 2016)

	st := testutil.NewFakeStore()
	cfg := testConfig(t, src.srv.URL, 2015, 2016)
	stage(st, cfg, "2261", 2015, testutil.Grid(1, 0)...)
	stage(st, cfg, "2261", 2016, testutil.Grid(2, 0)...)

	svc := newTestService(t, cfg, st, nil)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	names := st.Names()
	mutations := st.Mutations()

	second, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, names, st.Names())
	assert.Equal(t, mutations, st.Mutations(), "a rerun creates nothing")
	assert.Equal(t, 2, second.Units[UnitPresent])
	assert.Equal(t, 2, st.Calls("import"), "stored layers are not fetched or imported again")
}

func TestService_RunPicksUpRegionAddedLater(t *testing.T) {
	src := newArchiveServer(t)
	src.publish(t, "22", "2261", 2015)
	src.publish(t, "14", "1465", 2016)
	src.publish(t, "22", "2261", 2016)
	src.publish(t, "12", "1261", 2016)

	st := testutil.NewFakeStore()
	cfg := testConfig(t, src.srv.URL, 2015, 2016)
	cfg.Regions = append(regions.Catalog{
		{Code: "12", Regions: []regions.Region{{Code: "1261", Name: "Kraków"}}},
	}, testCatalog...)

	stage(st, cfg, "2261", 2015, testutil.Grid(2, 0)...)
	stage(st, cfg, "2261", 2016, testutil.Grid(3, 0)...)
	stage(st, cfg, "1465", 2016, testutil.Grid(2, 10)...)
	stage(st, cfg, "1261", 2016, testutil.Grid(4, 20)...)
	st.FailOn("bubd_2016_1261", assert.AnError)

	svc := newTestService(t, cfg, st, nil)

	first, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Units[string(outcome.KindImportFailed)])
	require.Len(t, first.Years, 2)
	assert.Equal(t, int64(5), first.Years[1].SnapshotCount)
	assert.Equal(t, int64(3), first.Years[1].ChangeCount)

	st.FailOn("bubd_2016_1261", nil)

	second, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Units["imported"])
	assert.Equal(t, 3, second.Units[UnitPresent])

	require.Len(t, second.Years, 2)
	assert.Equal(t, "bubd_merged_2016", second.Years[1].Snapshot)
	assert.Equal(t, int64(9), second.Years[1].SnapshotCount, "snapshot is the sum of its regional layers")
	assert.Equal(t, int64(7), second.Years[1].ChangeCount, "Kraków's footprints are new in 2016")

	merged, ok := st.Layer("bubd_merged_2016")
	require.True(t, ok)
	assert.Len(t, merged, 9)
}

func TestService_UnitFailuresAreIsolated(t *testing.T) {
	src := newArchiveServer(t)
	src.publishGarbage(t, "14", "1465", 2015)
	src.publish(t, "22", "2261", 2015)

	st := testutil.NewFakeStore()
	cfg := testConfig(t, src.srv.URL, 2015, 2015)
	stage(st, cfg, "2261", 2015, testutil.Grid(2, 0)...)

	run, err := newTestService(t, cfg, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Units[string(outcome.KindArchiveCorrupt)])
	assert.Equal(t, 1, run.Units["imported"])

	_, ok := st.Layer("bubd_2015_2261")
	assert.True(t, ok)

	_, ok = st.Layer("bubd_2015_1465")
	assert.False(t, ok)

	require.Len(t, run.Years, 1)
	assert.Equal(t, "bubd_2015_2261", run.Years[0].Snapshot, "a single stored layer is its own snapshot")
}

func TestService_ImportFailureIsIsolated(t *testing.T) {
	src := newArchiveServer(t)
	src.publish(t, "14", "1465", 2015)
	src.publish(t, "22", "2261", 2015)

	st := testutil.NewFakeStore()
	cfg := testConfig(t, src.srv.URL, 2015, 2015)
	stage(st, cfg, "1465", 2015, testutil.Grid(1, 10)...)
	stage(st, cfg, "2261", 2015, testutil.Grid(2, 0)...)
	st.FailOn("bubd_2015_1465", assert.AnError)

	run, err := newTestService(t, cfg, st, nil).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, run.Units[string(outcome.KindImportFailed)])
	assert.Equal(t, int64(2), run.Years[0].SnapshotCount)
}

func TestService_LocalFailureAbortsRun(t *testing.T) {
	src := newArchiveServer(t)
	src.publish(t, "22", "2261", 2015)

	st := testutil.NewFakeStore()
	cfg := testConfig(t, src.srv.URL, 2015, 2016)

	// A regular file where the cache directory should be.
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0o600))
	cfg.TempDir = blocker

	run, err := newTestService(t, cfg, st, nil).Run(context.Background())
	require.Error(t, err)
	assert.True(t, outcome.IsFatal(err))
	assert.ErrorIs(t, err, outcome.ErrLocalIO)

	assert.Equal(t, StatusFailed, run.Status)
	assert.Empty(t, run.Years, "no change step after an aborted year")
	assert.Zero(t, st.Mutations())
}

func TestService_Cancelled(t *testing.T) {
	src := newArchiveServer(t)
	st := testutil.NewFakeStore()
	cfg := testConfig(t, src.srv.URL, 2015, 2016)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := newTestService(t, cfg, st, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusFailed, run.Status)
}

func TestService_RunChanges(t *testing.T) {
	st := testutil.NewFakeStore()
	st.AddLayer("bubd_2015_2261", testutil.Grid(2, 0)...)
	st.AddLayer("bubd_2016_2261", testutil.Grid(3, 0)...)
	st.AddLayer("bubd_2016_1465", testutil.Grid(1, 10)...)

	cfg := testConfig(t, "http://127.0.0.1:1", 2015, 2016)

	run, err := newTestService(t, cfg, st, nil).RunChanges(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "changes", run.Command)
	assert.Empty(t, run.Units)
	require.Len(t, run.Years, 2)
	assert.Equal(t, "bubd_merged_new_2016", run.Years[1].Change)
	assert.Equal(t, int64(2), run.Years[1].ChangeCount)
	assert.Zero(t, st.Calls("import"))
}

func TestService_Aggregate(t *testing.T) {
	st := testutil.NewFakeStore()
	st.AddLayer("bubd_2015_2261", testutil.Grid(2, 0)...)
	st.AddLayer("bubd_2016_2261", testutil.Grid(3, 0)...)
	st.AddLayer("bubd_merged_new_2016", testutil.Grid(1, 0)...)

	cfg := testConfig(t, "http://127.0.0.1:1", 2015, 2016)
	svc := newTestService(t, cfg, st, nil)
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }

	report, err := svc.Aggregate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2015, report.From)
	assert.Equal(t, 2016, report.To)
	assert.Equal(t, int64(5), report.Grand())
	assert.Equal(t, "Warszawa", report.Totals[0].Name, "catalog order")
	assert.True(t, report.Changes[1].Present)
	assert.Zero(t, st.Mutations())
}
