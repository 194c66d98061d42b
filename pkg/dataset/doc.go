/*
Package dataset abstracts the copy-on-write storage engine behind a small
driver interface.

Everything above this package (the state manager, the CLI) speaks in terms
of datasets, snapshots, and clones; nothing above it knows whether those
operations reach the engine through a spawned zfs process or through
libzfs. That keeps the lifecycle logic testable against an in-memory
driver and leaves room for other engines later.

# Architecture

	┌─────────────────── STORAGE BACKEND ───────────────────┐
	│                                                         │
	│  ┌───────────────────────────────────────────┐         │
	│  │              Driver interface              │         │
	│  │  CreateDataset / DestroyDataset / Exists   │         │
	│  │  GetUsage / ListChildren                   │         │
	│  │  CreateSnapshot / DestroySnapshot / List   │         │
	│  │  CloneFromSnapshot (clone + promote)       │         │
	│  └───────┬───────────────┬──────────────┬────┘         │
	│          │               │              │               │
	│  ┌───────▼─────┐  ┌──────▼──────┐  ┌────▼─────┐        │
	│  │  CLIDriver  │  │ LibZFSDriver│  │ MemDriver│        │
	│  │  zfs binary │  │ cgo libzfs  │  │ in-memory│        │
	│  │  via runner │  │ (tag libzfs)│  │ for tests│        │
	│  └─────────────┘  └─────────────┘  └──────────┘        │
	└─────────────────────────────────────────────────────┘

# Strategies

CLIDriver shells out to the zfs command-line tool through pkg/runner and
parses tab-separated -H output. It is the default: it needs nothing at
build time and works with whatever zfs the host ships.

LibZFSDriver binds libzfs directly and is compiled only with -tags libzfs,
since it needs cgo and the zfs development headers. Binaries built without
the tag get a stub constructor returning ErrLibZFSUnavailable, so backend
selection stays a runtime configuration concern.

MemDriver models the engine in memory (hierarchy, snapshot sets, clone
independence, destroy refusals) and backs the pkg/state test suite.

# Error Conventions

DatasetExists reports absence as (false, nil). Everything else wraps
engine failures with errdefs sentinels: not found, already exists,
conflict for datasets with dependents, internal for the rest. The engine's
own message always stays in the error chain.

Sizes and snapshot creation times in listings are parsed best-effort: a
value the driver cannot parse becomes zero rather than failing the whole
listing, because one odd column must not make the inventory unreadable.
*/
package dataset
