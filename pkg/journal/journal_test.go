package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j, path
}

func TestRecordFillsIDAndTime(t *testing.T) {
	j, _ := openTestJournal(t)

	require.NoError(t, j.Record(Entry{Op: "create", Args: []string{"web"}, OK: true}))

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.NotEmpty(t, entries[0].ID)
	assert.False(t, entries[0].Time.IsZero())
	assert.Equal(t, "create", entries[0].Op)
	assert.True(t, entries[0].OK)
}

func TestRecentReturnsLastNInOrder(t *testing.T) {
	j, _ := openTestJournal(t)

	for _, op := range []string{"create", "assign", "snapshot", "delete"} {
		require.NoError(t, j.Record(Entry{Op: op, OK: true}))
	}

	entries, err := j.Recent(2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "snapshot", entries[0].Op)
	assert.Equal(t, "delete", entries[1].Op)

	all, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, "create", all[0].Op)
	assert.Equal(t, "delete", all[3].Op)
}

func TestRecordsFailures(t *testing.T) {
	j, _ := openTestJournal(t)

	require.NoError(t, j.Record(Entry{
		Op:    "delete",
		Args:  []string{"prod", "--force"},
		OK:    false,
		Error: "state is in use by slot1",
	}))

	entries, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].OK)
	assert.Equal(t, "state is in use by slot1", entries[0].Error)
}

func TestEntriesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(path)
	require.NoError(t, err)
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, j.Record(Entry{ID: "fixed", Time: stamp, Op: "migrate", OK: true}))
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	defer j.Close()

	entries, err := j.Recent(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "fixed", entries[0].ID)
	assert.True(t, stamp.Equal(entries[0].Time))
}
