package state

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// Ownership applies the service-account ownership policy to a mountpoint.
// Creation paths treat a failure here as a hard failure: a state the VM
// service account cannot write is not usable, even though the dataset
// itself came up fine.
type Ownership interface {
	Apply(path string) error
}

// UnixOwner chowns a path to a named user and group and sets a fixed mode.
// An unresolvable user or group falls back to uid/gid 0, matching hosts
// where the service account has not been provisioned yet.
type UnixOwner struct {
	User  string
	Group string
	Mode  os.FileMode
}

// Apply implements Ownership.
func (o UnixOwner) Apply(path string) error {
	uid := 0
	if u, err := user.Lookup(o.User); err == nil {
		if n, err := strconv.Atoi(u.Uid); err == nil {
			uid = n
		}
	}
	gid := 0
	if g, err := user.LookupGroup(o.Group); err == nil {
		if n, err := strconv.Atoi(g.Gid); err == nil {
			gid = n
		}
	}

	if err := os.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("failed to chown %s to %s:%s: %w", path, o.User, o.Group, err)
	}
	mode := o.Mode
	if mode == 0 {
		mode = 0o755
	}
	if err := os.Chmod(path, mode); err != nil {
		return fmt.Errorf("failed to chmod %s: %w", path, err)
	}
	return nil
}

// NopOwner skips the ownership policy. Tests use it, since applying a real
// chown needs privileges and a provisioned service account.
type NopOwner struct{}

// Apply implements Ownership.
func (NopOwner) Apply(string) error { return nil }
