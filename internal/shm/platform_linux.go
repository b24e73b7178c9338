//go:build linux

package shm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const devShmDir = "/dev/shm"

// RegionPath returns the backing file path for a named region.
func RegionPath(name string) string {
	return filepath.Join(devShmDir, strings.TrimPrefix(name, "/"))
}

// MapRegion maps or creates a shared memory region (Linux implementation).
// Creation is exclusive: an existing object with the same name fails with
// unix.EEXIST so the caller can decide whether to unlink a stale one first.
func MapRegion(opts MapOptions) (*MappedRegion, error) {
	flags := unix.O_RDWR
	if opts.Create {
		flags |= unix.O_CREAT | unix.O_EXCL
	}
	shmPath := RegionPath(opts.Name)
	fd, err := unix.Open(shmPath, flags, 0600)
	if err != nil {
		if err == unix.ENOENT {
			return nil, fmt.Errorf("open %s: %w", shmPath, os.ErrNotExist)
		}
		return nil, fmt.Errorf("open %s: %w", shmPath, err)
	}
	size := opts.Size
	if opts.Create {
		if err := unix.Ftruncate(fd, int64(size)); err != nil {
			_ = unix.Close(fd)
			_ = unix.Unlink(shmPath)
			return nil, fmt.Errorf("ftruncate: %w", err)
		}
	} else {
		var st unix.Stat_t
		if err := unix.Fstat(fd, &st); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("fstat: %w", err)
		}
		size = int(st.Size)
	}
	addr, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	if opts.Create {
		for i := 0; i < len(addr); i++ {
			addr[i] = 0
		}
	}
	return &MappedRegion{
		Addr:    addr,
		Fd:      uintptr(fd),
		Size:    size,
		Name:    opts.Name,
		MapType: MemMapTypeDevShmFile,
	}, nil
}

// MapRegionMemFd creates an anonymous memfd-backed region. The returned
// Fd is the only handle to the region and must reach peers out-of-band.
func MapRegionMemFd(name string, size int) (*MappedRegion, error) {
	memFd, err := unix.MemfdCreate(name, 0)
	if err != nil {
		return nil, fmt.Errorf("memfd_create: %w", err)
	}
	if err := unix.Ftruncate(memFd, int64(size)); err != nil {
		_ = unix.Close(memFd)
		return nil, fmt.Errorf("memfd truncate share memory failed: %w", err)
	}
	addr, err := unix.Mmap(memFd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		_ = unix.Close(memFd)
		return nil, fmt.Errorf("mmap: %w", err)
	}
	for i := 0; i < len(addr); i++ {
		addr[i] = 0
	}
	return &MappedRegion{
		Addr:    addr,
		Fd:      uintptr(memFd),
		Size:    size,
		Name:    name,
		MapType: MemMapTypeMemFd,
	}, nil
}

// UnmapRegion unmaps and closes the shared memory region. The backing
// object itself survives until UnlinkRegion.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	if err := unix.Munmap(region.Addr); err != nil {
		return fmt.Errorf("munmap: %w", err)
	}
	region.Addr = nil
	if err := unix.Close(int(region.Fd)); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}

// UnlinkRegion removes the named backing object so subsequent opens fail.
func UnlinkRegion(name string) error {
	if err := unix.Unlink(RegionPath(name)); err != nil {
		if err == unix.ENOENT {
			return fmt.Errorf("unlink %s: %w", RegionPath(name), os.ErrNotExist)
		}
		return fmt.Errorf("unlink %s: %w", RegionPath(name), err)
	}
	return nil
}
