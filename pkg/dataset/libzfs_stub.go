//go:build !libzfs

package dataset

// NewLibZFSDriver is a stub for binaries built without the libzfs tag.
// Selecting backend "libzfs" in configuration requires a tagged build on a
// host with the zfs development headers.
func NewLibZFSDriver() (Driver, error) {
	return nil, ErrLibZFSUnavailable
}
