/*
Package vmctl controls the per-slot VM systemd units.

Each slot maps to one instance of a systemd template unit (by default
microvm@<slot>.service). This package is the only place that knows that;
everything else deals in slots.

Two strategies implement the same Controller interface:

  - DBusController talks to the systemd manager over the system bus and
    waits for job completion, so Start/Stop/Restart report the real
    outcome of the unit transition.
  - SystemctlController shells out to systemctl through pkg/runner, using
    the is-active exit code as the liveness probe. It exists for hosts
    where the calling context has no bus access.

The strategy is chosen by the vm_control configuration key. Neither
strategy creates or deletes units; slot units are host provisioning,
outside this tool's writing.
*/
package vmctl
