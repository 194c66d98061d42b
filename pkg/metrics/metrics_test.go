package metrics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmstated/vmstate/pkg/types"
)

type stubSource struct {
	states      []types.StateInfo
	snapshots   []types.SnapshotInfo
	assignments []types.SlotAssignment
	err         error
}

func (s *stubSource) ListStates(context.Context) ([]types.StateInfo, error) {
	return s.states, s.err
}

func (s *stubSource) ListAllSnapshots(context.Context) ([]types.SnapshotInfo, error) {
	return s.snapshots, s.err
}

func (s *stubSource) ListAssignments(context.Context) ([]types.SlotAssignment, error) {
	return s.assignments, s.err
}

// TestExportWritesTextfile tests the full collect-and-write path.
func TestExportWritesTextfile(t *testing.T) {
	src := &stubSource{
		states: []types.StateInfo{
			{Name: "web", Dataset: "microvms/storage/states/web", UsedBytes: 2048, AvailableBytes: 4096},
			{Name: "db", Dataset: "microvms/storage/states/db", UsedBytes: 512, AvailableBytes: 4096},
		},
		snapshots: []types.SnapshotInfo{
			{State: "web", Name: "nightly"},
			{State: "web", Name: "release"},
		},
		assignments: []types.SlotAssignment{
			{Slot: types.Slot{Name: "slot1", Index: 1}, State: "web"},
		},
	}

	path := filepath.Join(t.TempDir(), "vmstate.prom")
	if err := Export(context.Background(), src, path); err != nil {
		t.Fatalf("Export() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	out := string(data)

	want := []string{
		`vmstate_state_used_bytes{state="web"} 2048`,
		`vmstate_state_used_bytes{state="db"} 512`,
		`vmstate_state_available_bytes{state="web"} 4096`,
		`vmstate_snapshot_total{state="web"} 2`,
		`vmstate_snapshot_total{state="db"} 0`,
		`vmstate_slot_assigned_info{slot="slot1",state="web"} 1`,
		`vmstate_last_run_timestamp_seconds`,
	}
	for _, line := range want {
		if !strings.Contains(out, line) {
			t.Errorf("textfile missing %q\noutput:\n%s", line, out)
		}
	}
}

// TestCollectPropagatesSourceErrors tests that a broken source fails collection.
func TestCollectPropagatesSourceErrors(t *testing.T) {
	src := &stubSource{err: errors.New("pool unavailable")}
	e := NewExporter(src)

	if err := e.Collect(context.Background()); err == nil {
		t.Fatal("Collect() expected error, got nil")
	}
}

// TestCollectIsRepeatable tests that a second collection refreshes values.
func TestCollectIsRepeatable(t *testing.T) {
	src := &stubSource{
		states: []types.StateInfo{{Name: "web", UsedBytes: 100, AvailableBytes: 200}},
	}
	e := NewExporter(src)

	if err := e.Collect(context.Background()); err != nil {
		t.Fatalf("first Collect() error = %v", err)
	}

	src.states[0].UsedBytes = 300
	if err := e.Collect(context.Background()); err != nil {
		t.Fatalf("second Collect() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "vmstate.prom")
	if err := e.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read textfile: %v", err)
	}
	if !strings.Contains(string(data), `vmstate_state_used_bytes{state="web"} 300`) {
		t.Errorf("textfile kept stale value:\n%s", data)
	}
}
