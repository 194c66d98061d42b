package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vmstated/vmstate/pkg/types"
)

// Source is the view of the state manager the exporter reads from.
type Source interface {
	ListStates(ctx context.Context) ([]types.StateInfo, error)
	ListAllSnapshots(ctx context.Context) ([]types.SnapshotInfo, error)
	ListAssignments(ctx context.Context) ([]types.SlotAssignment, error)
}

// Exporter gathers state metrics into its own registry so they can be
// written out as a textfile without touching the global registry.
type Exporter struct {
	src Source
	reg *prometheus.Registry

	stateUsed      *prometheus.GaugeVec
	stateAvailable *prometheus.GaugeVec
	snapshotTotal  *prometheus.GaugeVec
	slotAssigned   *prometheus.GaugeVec
	lastRun        prometheus.Gauge
}

// NewExporter creates an exporter reading from src.
func NewExporter(src Source) *Exporter {
	e := &Exporter{
		src: src,
		reg: prometheus.NewRegistry(),

		stateUsed: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vmstate_state_used_bytes",
				Help: "Bytes used by the state's dataset",
			},
			[]string{"state"},
		),
		stateAvailable: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vmstate_state_available_bytes",
				Help: "Bytes available to the state's dataset",
			},
			[]string{"state"},
		),
		snapshotTotal: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vmstate_snapshot_total",
				Help: "Number of snapshots per state",
			},
			[]string{"state"},
		),
		slotAssigned: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "vmstate_slot_assigned_info",
				Help: "Slot to state assignment (always 1)",
			},
			[]string{"slot", "state"},
		),
		lastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "vmstate_last_run_timestamp_seconds",
				Help: "Unix timestamp of the last metrics refresh",
			},
		),
	}

	e.reg.MustRegister(
		e.stateUsed,
		e.stateAvailable,
		e.snapshotTotal,
		e.slotAssigned,
		e.lastRun,
	)
	return e
}

// Collect refreshes every gauge from the source.
func (e *Exporter) Collect(ctx context.Context) error {
	states, err := e.src.ListStates(ctx)
	if err != nil {
		return fmt.Errorf("failed to list states: %w", err)
	}

	snapCounts := make(map[string]int, len(states))
	for _, s := range states {
		e.stateUsed.WithLabelValues(s.Name).Set(float64(s.UsedBytes))
		e.stateAvailable.WithLabelValues(s.Name).Set(float64(s.AvailableBytes))
		snapCounts[s.Name] = 0
	}

	snapshots, err := e.src.ListAllSnapshots(ctx)
	if err != nil {
		return fmt.Errorf("failed to list snapshots: %w", err)
	}
	for _, s := range snapshots {
		snapCounts[s.State]++
	}
	for state, count := range snapCounts {
		e.snapshotTotal.WithLabelValues(state).Set(float64(count))
	}

	assignments, err := e.src.ListAssignments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list assignments: %w", err)
	}
	for _, a := range assignments {
		e.slotAssigned.WithLabelValues(a.Slot.Name, a.State).Set(1)
	}

	e.lastRun.SetToCurrentTime()
	return nil
}

// WriteFile writes the registry to path in the node_exporter textfile
// collector format. The write is atomic (temp file plus rename).
func (e *Exporter) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, e.reg)
}

// Export is the one-shot used after a command runs: refresh everything and
// write the textfile.
func Export(ctx context.Context, src Source, path string) error {
	e := NewExporter(src)
	if err := e.Collect(ctx); err != nil {
		return err
	}
	return e.WriteFile(path)
}
