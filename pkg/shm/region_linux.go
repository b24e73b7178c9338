//go:build linux

package shm

import (
	"fmt"

	internalshm "github.com/srediag/shm-lock/internal/shm"
)

// CreateMemFd allocates an anonymous memfd-backed region. There is no
// system-wide name: the region's file descriptor must reach the peer
// out-of-band (fd passing or inheritance across fork/exec). Useful when
// stale named objects from prior runs must be impossible by construction.
func CreateMemFd(name string, size int) (*Region, error) {
	sz, err := regionSize(size)
	if err != nil {
		return nil, err
	}
	mapped, err := internalshm.MapRegionMemFd(name, sz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	header, err := initHeader(mapped.Addr)
	if err != nil {
		_ = internalshm.UnmapRegion(mapped)
		return nil, err
	}
	r := &Region{region: mapped, header: header, name: name, owner: true}
	openRegions.Set(name, r)
	return r, nil
}

// Fd returns the descriptor backing a memfd region, for handing to a
// spawned peer. Named regions are reached by name instead.
func (r *Region) Fd() uintptr {
	return r.region.Fd
}
