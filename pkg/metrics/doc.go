// Package metrics exports state statistics for Prometheus via the
// node_exporter textfile collector.
//
// There is no long-running process to scrape, so instead of serving
// /metrics over HTTP the exporter refreshes a private registry from the
// state manager and writes it to a .prom file after each command:
//
//	vmstate_state_used_bytes{state="web"}
//	vmstate_state_available_bytes{state="web"}
//	vmstate_snapshot_total{state="web"}
//	vmstate_slot_assigned_info{slot="slot1",state="web"}
//	vmstate_last_run_timestamp_seconds
//
// node_exporter picks the file up from its --collector.textfile.directory.
// The last_run timestamp lets alerting catch a host where no command has
// refreshed the file for too long.
//
// Like the journal, the export is best-effort: metrics failures are logged
// and never fail the command that triggered them.
package metrics
