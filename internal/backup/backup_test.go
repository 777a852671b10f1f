package backup

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	_ "modernc.org/sqlite"

	"intratool/internal/modules"
	"intratool/internal/storage"
)

func setup(t *testing.T, retention int) (*Service, *storage.Manager) {
	t.Helper()
	log := zaptest.NewLogger(t)
	dir := t.TempDir()
	mgr := storage.New(log, storage.Config{Dir: filepath.Join(dir, "db")}, modules.Default())
	t.Cleanup(func() { _ = mgr.Close() })
	return New(log, mgr, filepath.Join(dir, "backups"), retention), mgr
}

func TestRun_CopiesExistingModules(t *testing.T) {
	ctx := context.Background()
	svc, mgr := setup(t, 7)
	svc.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local) }

	h, err := mgr.Acquire(ctx, "warehouse.db")
	require.NoError(t, err)
	_, err = h.DB().Exec(`INSERT INTO locations (code) VALUES ('B-02')`)
	require.NoError(t, err)
	_, err = mgr.Acquire(ctx, modules.MainFile)
	require.NoError(t, err)

	set, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04T05-06-07", set.Name)

	var names []string
	for _, f := range set.Files {
		names = append(names, f.Name)
		assert.Positive(t, f.Size)
	}
	assert.Equal(t, []string{modules.MainFile, "warehouse.db"}, names)

	copyDB, err := sql.Open("sqlite", filepath.Join(svc.dir, set.Name, "warehouse.db"))
	require.NoError(t, err)
	defer func() { _ = copyDB.Close() }()
	var n int
	require.NoError(t, copyDB.QueryRow(`SELECT COUNT(*) FROM locations WHERE code = 'B-02'`).Scan(&n))
	assert.Equal(t, 1, n)

	// same second: the second set gets a counter suffix
	again, err := svc.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-04T05-06-07-1", again.Name)
}

func TestRun_PrunesToRetention(t *testing.T) {
	ctx := context.Background()
	svc, mgr := setup(t, 2)
	_, err := mgr.Acquire(ctx, modules.MainFile)
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 2, 0, 0, 0, time.Local)
	for i := 0; i < 4; i++ {
		at := start.Add(time.Duration(i) * 24 * time.Hour)
		svc.now = func() time.Time { return at }
		_, err := svc.Run(ctx)
		require.NoError(t, err)
	}

	sets, err := svc.List()
	require.NoError(t, err)
	require.Len(t, sets, 2)
	assert.Equal(t, "2026-01-04T02-00-00", sets[0].Name)
	assert.Equal(t, "2026-01-03T02-00-00", sets[1].Name)
}

func TestRun_FailureLeavesNoPartialSet(t *testing.T) {
	ctx := context.Background()
	svc, mgr := setup(t, 1)
	_, err := mgr.Acquire(ctx, modules.MainFile)
	require.NoError(t, err)

	good, err := svc.Run(ctx)
	require.NoError(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = svc.Run(cancelled)
	require.Error(t, err)

	entries, err := os.ReadDir(svc.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, good.Name, entries[0].Name())

	sets, err := svc.List()
	require.NoError(t, err)
	require.Len(t, sets, 1)
	assert.Equal(t, good.Name, sets[0].Name)
}

func TestList_EmptyDir(t *testing.T) {
	svc, _ := setup(t, 1)
	sets, err := svc.List()
	require.NoError(t, err)
	assert.Empty(t, sets)
}

func TestSchedule_RejectsBadTime(t *testing.T) {
	svc, _ := setup(t, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for _, at := range []string{"noon", "25:00", "12:99", "7"} {
		assert.Error(t, svc.Schedule(ctx, at), at)
	}
	assert.NoError(t, svc.Schedule(ctx, "03:30"))
}
