// Package journal keeps an append-only history of state operations in a
// local BoltDB file.
//
// Every mutating command records one Entry describing what ran, with what
// arguments, and whether it succeeded. Entries are keyed by a monotonic
// sequence number so cursor order is insertion order, and the history
// command reads them back with Recent.
//
// Recording is best-effort: a journal that cannot be opened or written
// must never fail the operation it describes. Callers log the problem and
// move on.
package journal
