package viewer

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/OpenTraceLab/OpenTraceScan/pkg/classify"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/device"
	"github.com/OpenTraceLab/OpenTraceScan/pkg/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func saveSession(t *testing.T, dir string, ts time.Time) *device.Session {
	t.Helper()
	s := &device.Session{
		Sample:    "w",
		VoltageV:  0.2,
		Timestamp: ts,
		Devices:   device.Sequence("d", 3),
		Result:    device.Result{},
	}
	s.Result.Set("d1", 1e-8)
	_, err := store.Save(dir, s)
	require.NoError(t, err)
	return s
}

func TestStateReload(t *testing.T) {
	dir := t.TempDir()
	st := NewState(dir, filepath.Join(dir, classify.BookFile))

	require.NoError(t, st.Reload())
	snap := st.Snapshot()
	assert.Nil(t, snap.Session)
	assert.NotNil(t, snap.Book)

	saveSession(t, dir, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, st.Reload())
	st.Select(2)
	snap = st.Snapshot()
	require.NotNil(t, snap.Session)
	assert.Equal(t, 2, snap.Selected)

	st.Select(7)
	assert.Equal(t, -1, st.Snapshot().Selected)
}

func TestStateKeepsDataOnError(t *testing.T) {
	dir := t.TempDir()
	st := NewState(dir, filepath.Join(dir, classify.BookFile))
	saveSession(t, dir, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, st.Reload())

	bad := filepath.Join(dir, "quick_scan_20990101-000000_1V.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	assert.Error(t, st.Reload())

	snap := st.Snapshot()
	assert.Error(t, snap.Err)
	assert.NotNil(t, snap.Session, "previous session stays visible")
}

func TestRelevant(t *testing.T) {
	assert.True(t, relevant("/x/quick_scan_20240101-000000_0.2V.json"))
	assert.True(t, relevant("/x/device_status.json"))
	assert.False(t, relevant("/x/quick_scan_20240101-000000_0.2V.csv"))
	assert.False(t, relevant("/x/.quick_scan_20240101-000000_0.2V-123.tmp"))
	assert.False(t, relevant("/x/sessions.db"))
}

func TestWatchReportsNewSession(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())

	var changes atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- Watch(ctx, dir, 20*time.Millisecond, zaptest.NewLogger(t), func() { changes.Add(1) })
	}()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	saveSession(t, dir, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	require.Eventually(t, func() bool { return changes.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}
