/*
Package registry persists slot-to-state assignments.

The registry is deliberately the dumbest possible durable store: one flat
JSON object in /etc/vm-state-assignments.json, for example

	{
	  "slot1": "ubuntu-base",
	  "slot2": "dev-env"
	}

It only records explicit assignments. Interpretation (a slot absent from
the map defaults to a state named after the slot itself) belongs to
pkg/state, so this package stays a pure codec. Writes are atomic via
temp-file-plus-rename; reads of a missing file return an empty map.
*/
package registry
