/*
Package runner executes external commands with captured output.

Both command-line strategies in this tool (the zfs backend in pkg/dataset
and the systemctl controller in pkg/vmctl) shell out through this package.
Centralizing the exec path gives every invocation the same timeout
handling, output capture, and debug logging, and lets tests substitute a
scripted runner.Func instead of spawning processes.

A non-zero exit status is not an error here: it comes back in
Result.ExitCode, because callers routinely probe with commands whose exit
code is the answer (systemctl is-active). Errors are reserved for commands
that never ran or ran out of time.
*/
package runner
