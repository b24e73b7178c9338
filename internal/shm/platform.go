// Package shm contains platform-specific helpers for mapping named
// shared memory regions and for the kernel wait primitives the lock
// variants are built on.
package shm

// MemMapType enumerates the backing object kinds a region can use.
type MemMapType int

const (
	// MemMapTypeDevShmFile backs the region with a named file that
	// unrelated processes can open by name (/dev/shm on Linux, a named
	// file mapping on Windows).
	MemMapTypeDevShmFile MemMapType = iota
	// MemMapTypeMemFd backs the region with an anonymous memfd whose
	// file descriptor must be passed to peers out-of-band.
	MemMapTypeMemFd
)

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr    []byte
	Fd      uintptr
	Size    int
	Name    string
	MapType MemMapType
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	Name   string
	Size   int
	Create bool
}

// Function implementations are provided in platform-specific files
// (platform_linux.go, platform_windows.go).
