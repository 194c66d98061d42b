package dataset

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/docker/go-units"
	"github.com/rs/zerolog"

	"github.com/vmstated/vmstate/pkg/log"
	"github.com/vmstated/vmstate/pkg/runner"
)

const zfsBinary = "zfs"

// creationLayout matches the human form of the zfs creation property,
// e.g. "Thu Apr 27 12:34 2023".
const creationLayout = "Mon Jan _2 15:04 2006"

// CLIDriver drives the storage engine through the zfs command-line tool.
// It needs no cgo and works against whatever zfs the host has installed;
// all output parsing is tab-separated -H mode.
type CLIDriver struct {
	run    runner.Runner
	logger zerolog.Logger
}

// NewCLIDriver creates a CLI-backed driver. A nil runner gets the default
// ExecRunner.
func NewCLIDriver(run runner.Runner) *CLIDriver {
	if run == nil {
		run = runner.New()
	}
	return &CLIDriver{
		run:    run,
		logger: log.WithComponent("dataset"),
	}
}

// CreateDataset implements Driver.
func (d *CLIDriver) CreateDataset(ctx context.Context, path, mountpoint string) error {
	res, err := d.run.Run(ctx, zfsBinary, "create", "-o", "mountpoint="+mountpoint, path)
	if err != nil {
		return fmt.Errorf("failed to run zfs create: %w", err)
	}
	if res.ExitCode != 0 {
		return engineError("create "+path, res)
	}
	return nil
}

// DestroyDataset implements Driver.
func (d *CLIDriver) DestroyDataset(ctx context.Context, path string, recursive bool) error {
	args := []string{"destroy"}
	if recursive {
		args = append(args, "-r")
	}
	args = append(args, path)

	res, err := d.run.Run(ctx, zfsBinary, args...)
	if err != nil {
		return fmt.Errorf("failed to run zfs destroy: %w", err)
	}
	if res.ExitCode != 0 {
		return engineError("destroy "+path, res)
	}
	return nil
}

// DatasetExists implements Driver. A non-zero exit from zfs list means the
// dataset is absent, not that the probe failed.
func (d *CLIDriver) DatasetExists(ctx context.Context, path string) (bool, error) {
	res, err := d.run.Run(ctx, zfsBinary, "list", "-H", path)
	if err != nil {
		return false, fmt.Errorf("failed to run zfs list: %w", err)
	}
	return res.ExitCode == 0, nil
}

// GetUsage implements Driver.
func (d *CLIDriver) GetUsage(ctx context.Context, path string) (Usage, error) {
	res, err := d.run.Run(ctx, zfsBinary, "list", "-H", "-o", "used,avail", path)
	if err != nil {
		return Usage{}, fmt.Errorf("failed to run zfs list: %w", err)
	}
	if res.ExitCode != 0 {
		return Usage{}, engineError("list "+path, res)
	}

	fields := strings.Fields(strings.TrimSpace(res.Stdout))
	if len(fields) < 2 {
		return Usage{}, fmt.Errorf("unexpected zfs list output %q: %w", res.Stdout, errdefs.ErrInternal)
	}
	return Usage{
		UsedBytes:      d.parseSize(fields[0]),
		AvailableBytes: d.parseSize(fields[1]),
	}, nil
}

// ListChildren implements Driver.
func (d *CLIDriver) ListChildren(ctx context.Context, base string) ([]Info, error) {
	res, err := d.run.Run(ctx, zfsBinary, "list", "-H", "-o", "name,used,avail", "-r", base)
	if err != nil {
		return nil, fmt.Errorf("failed to run zfs list: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, engineError("list -r "+base, res)
	}

	var out []Info
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			d.logger.Debug().Str("line", line).Msg("skipping malformed zfs list line")
			continue
		}
		name := fields[0]
		if name == base {
			continue
		}
		rel := strings.TrimPrefix(name, base+"/")
		if rel == name || strings.Contains(rel, "/") {
			// Not under base, or nested deeper than one level.
			continue
		}
		out = append(out, Info{
			Path:           name,
			UsedBytes:      d.parseSize(fields[1]),
			AvailableBytes: d.parseSize(fields[2]),
		})
	}
	return out, nil
}

// CreateSnapshot implements Driver.
func (d *CLIDriver) CreateSnapshot(ctx context.Context, dataset, name string) error {
	snap := dataset + "@" + name
	res, err := d.run.Run(ctx, zfsBinary, "snapshot", snap)
	if err != nil {
		return fmt.Errorf("failed to run zfs snapshot: %w", err)
	}
	if res.ExitCode != 0 {
		return engineError("snapshot "+snap, res)
	}
	return nil
}

// DestroySnapshot implements Driver.
func (d *CLIDriver) DestroySnapshot(ctx context.Context, dataset, name string) error {
	snap := dataset + "@" + name
	res, err := d.run.Run(ctx, zfsBinary, "destroy", snap)
	if err != nil {
		return fmt.Errorf("failed to run zfs destroy: %w", err)
	}
	if res.ExitCode != 0 {
		return engineError("destroy "+snap, res)
	}
	return nil
}

// ListSnapshots implements Driver. The creation column is parsed
// best-effort; an unparseable time degrades to the zero time rather than
// failing the listing.
func (d *CLIDriver) ListSnapshots(ctx context.Context, path string) ([]Snapshot, error) {
	res, err := d.run.Run(ctx, zfsBinary, "list", "-H", "-t", "snapshot", "-o", "name,creation,refer", "-r", path)
	if err != nil {
		return nil, fmt.Errorf("failed to run zfs list: %w", err)
	}
	if res.ExitCode != 0 {
		return nil, engineError("list snapshots "+path, res)
	}

	var out []Snapshot
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimRight(line, " \r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		// The creation column contains spaces, so split on tabs only.
		fields := strings.Split(line, "\t")
		if len(fields) < 3 {
			d.logger.Debug().Str("line", line).Msg("skipping malformed snapshot line")
			continue
		}
		full := strings.TrimSpace(fields[0])
		ds, name, ok := strings.Cut(full, "@")
		if !ok {
			d.logger.Debug().Str("line", line).Msg("skipping snapshot line without '@'")
			continue
		}

		var created time.Time
		if t, perr := time.Parse(creationLayout, strings.TrimSpace(fields[1])); perr == nil {
			created = t
		} else {
			d.logger.Debug().Str("creation", fields[1]).Msg("unparseable snapshot creation time")
		}

		out = append(out, Snapshot{
			Dataset:   ds,
			Name:      name,
			CreatedAt: created,
			SizeBytes: d.parseSize(strings.TrimSpace(fields[2])),
		})
	}
	return out, nil
}

// CloneFromSnapshot implements Driver.
func (d *CLIDriver) CloneFromSnapshot(ctx context.Context, snapshot, target, mountpoint string) error {
	res, err := d.run.Run(ctx, zfsBinary, "clone", "-o", "mountpoint="+mountpoint, snapshot, target)
	if err != nil {
		return fmt.Errorf("failed to run zfs clone: %w", err)
	}
	if res.ExitCode != 0 {
		return engineError("clone "+snapshot, res)
	}

	// Promote so the new dataset owns the shared history and the source
	// can be deleted independently.
	res, err = d.run.Run(ctx, zfsBinary, "promote", target)
	if err != nil {
		return fmt.Errorf("failed to run zfs promote: %w", err)
	}
	if res.ExitCode != 0 {
		return engineError("promote "+target, res)
	}
	return nil
}

// parseSize converts a suffixed zfs size ("12.3G", "24K", "-") to bytes.
// Unparseable values degrade to zero so a single odd column never breaks
// a listing.
func (d *CLIDriver) parseSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" || s == "-" {
		return 0
	}
	n, err := units.RAMInBytes(s)
	if err != nil {
		d.logger.Debug().Str("size", s).Msg("unparseable size, treating as zero")
		return 0
	}
	return n
}

// engineError maps zfs stderr onto the error taxonomy, keeping the engine
// message in the chain.
func engineError(op string, res runner.Result) error {
	msg := strings.TrimSpace(res.Stderr)
	if msg == "" {
		msg = fmt.Sprintf("exit status %d", res.ExitCode)
	}
	switch {
	case strings.Contains(msg, "does not exist"):
		return fmt.Errorf("zfs %s: %s: %w", op, msg, errdefs.ErrNotFound)
	case strings.Contains(msg, "already exists"):
		return fmt.Errorf("zfs %s: %s: %w", op, msg, errdefs.ErrAlreadyExists)
	case strings.Contains(msg, "permission denied"):
		return fmt.Errorf("zfs %s: %s: %w", op, msg, errdefs.ErrPermissionDenied)
	case strings.Contains(msg, "has children"), strings.Contains(msg, "has dependent clones"):
		return fmt.Errorf("zfs %s: %s: %w", op, msg, errdefs.ErrConflict)
	default:
		return fmt.Errorf("zfs %s: %s: %w", op, msg, errdefs.ErrInternal)
	}
}
