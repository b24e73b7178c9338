// Package shm provides named shared memory regions for cross-process
// mutual exclusion over a fixed, pointer-width-independent byte layout.
//
// A Region is an OS-backed block of bytes reachable by name from any
// process that knows the name. The creating process owns the region's
// lifecycle (Create/Destroy); openers hold a non-owning mapping that is
// unmapped on Close but never removes the underlying object.
//
// The first HeaderSize bytes of every region follow a byte-exact layout
// that is identical across all participating builds, regardless of each
// process's native pointer width. All access to header fields goes
// through the Header accessor type; no raw offsets escape this package.
//
// Example usage:
//
//	region, err := shm.Create(shm.Options{Name: "demo_region"})
//	// ...
//	region.Header().SetPayload(100)
//	// hand region.Name() to the peer process
//	defer region.Destroy()
//
// Peers open the same region with shm.Open(name) and coordinate through
// a lock from the pkg/lock package.
package shm
