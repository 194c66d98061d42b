/*
Package config loads the vm-state configuration file.

Configuration lives at /etc/vm-state/config.yaml (overridable with the
--config flag). Every key has a built-in default matching the standard
microvm host layout, so a missing file is not an error: the tool runs with
pool "microvms", base dataset "storage/states", mountpoints under
/var/lib/microvms/states, slots slot1 through slot5, and systemctl-based VM
control. A present file overrides only the keys it names.

Example:

	pool: microvms
	base_dataset: storage/states
	states_dir: /var/lib/microvms/states
	slots:
	  - slot1
	  - slot2
	  - slot3
	backend: cli
	vm_control: dbus
	stop_grace_period: 2s
	journal_file: /var/lib/microvms/vm-state-journal.db
	metrics_file: /var/lib/node_exporter/vm-state.prom

journal_file and metrics_file are opt-in; empty values disable the
operation journal and the metrics textfile.
*/
package config
