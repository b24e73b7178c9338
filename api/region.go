package api

// Region is the contract for a mapped shared memory block. The creator
// owns the backing object's lifecycle; openers only ever Close.
// Implementations live in pkg/shm.
type Region interface {
	// Name is the out-of-band identifier peers open the region by.
	Name() string
	// Size is the mapped size in bytes.
	Size() int
	// Owner reports whether this process created the region.
	Owner() bool
	// Close unmaps without removing the backing object.
	Close() error
	// Destroy unmaps and removes the backing object. Creator-only.
	Destroy() error
}
