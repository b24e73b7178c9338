package shm

import (
	"errors"
	"fmt"
	"os"

	cmap "github.com/orcaman/concurrent-map/v2"

	"github.com/srediag/shm-lock/api"
	"github.com/srediag/shm-lock/internal/logging"
	internalshm "github.com/srediag/shm-lock/internal/shm"
)

// Error taxonomy for region operations. Callers match with errors.Is.
var (
	// ErrAllocation covers create failures: name collision, resource
	// limits, no space left on the backing filesystem.
	ErrAllocation = errors.New("shm: region allocation failed")
	// ErrNotFound is returned by Open when no region with the given
	// name exists.
	ErrNotFound = errors.New("shm: region not found")
	// ErrMapping covers map failures and layout mismatches on open.
	ErrMapping = errors.New("shm: region mapping failed")
)

const (
	// DefaultRegionSize comfortably holds the header and keeps the
	// region a multiple of the alignment unit.
	DefaultRegionSize = 128

	// Mapping sizes must stay a multiple of 16 so the 8-byte words in
	// the header stay aligned on every architecture, ARM in particular.
	regionSizeAlign = 16
)

var internalLogger = logging.Default()

// openRegions tracks every region mapped by this process, keyed by name.
// Create refuses a name with a live mapping here (only objects with no
// local mapping are treated as stale), and DumpRegion resolves names
// through it.
var openRegions = cmap.New[*Region]()

// Options configures Create.
type Options struct {
	// Name identifies the region system-wide. Required.
	Name string
	// Size is the region size in bytes; DefaultRegionSize when zero.
	// Rounded up to the alignment unit, and must hold the header.
	Size int
}

// Region implements api.Region over a mapped shared memory region. The
// creator owns the backing object and removes it with Destroy; openers
// only ever Close.
type Region struct {
	region *internalshm.MappedRegion
	header *Header
	name   string
	owner  bool
}

var _ api.Region = (*Region)(nil)

// Create allocates a new named region, zeroes it and stamps the header.
// A name this process already has mapped is refused. A backing object
// with no live local mapping is treated as stale (left behind by a
// crashed previous run) and unlinked first, so only a creator in a
// concurrent live process collides.
func Create(opts Options) (*Region, error) {
	size, err := regionSize(opts.Size)
	if err != nil {
		return nil, err
	}
	if opts.Name == "" {
		return nil, fmt.Errorf("%w: empty region name", ErrAllocation)
	}
	if _, live := openRegions.Get(opts.Name); live {
		return nil, fmt.Errorf("%w: region %s is already mapped by this process", ErrAllocation, opts.Name)
	}
	shmPath := internalshm.RegionPath(opts.Name)
	if !canCreateOnDevShm(uint64(size), shmPath) {
		return nil, fmt.Errorf("%w: no space left for %d bytes at %s", ErrAllocation, size, shmPath)
	}
	if pathExists(shmPath) {
		internalLogger.Warnf("region %s already exists, unlinking stale object", opts.Name)
		if err := internalshm.UnlinkRegion(opts.Name); err != nil {
			return nil, fmt.Errorf("%w: stale object: %v", ErrAllocation, err)
		}
	}
	mapped, err := internalshm.MapRegion(internalshm.MapOptions{
		Name:   opts.Name,
		Size:   size,
		Create: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAllocation, err)
	}
	header, err := initHeader(mapped.Addr)
	if err != nil {
		_ = internalshm.UnmapRegion(mapped)
		return nil, err
	}
	r := &Region{region: mapped, header: header, name: opts.Name, owner: true}
	openRegions.Set(opts.Name, r)
	internalLogger.Infof("region %s created, size %d", opts.Name, size)
	if logging.DebugMode() {
		internalLogger.Debugf("%s", DumpHeader(r))
	}
	return r, nil
}

// Open maps an existing region by name. The returned Region does not own
// the backing object: Close unmaps, Destroy is refused.
func Open(name string) (*Region, error) {
	mapped, err := internalshm.MapRegion(internalshm.MapOptions{Name: name})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("%w: %v", ErrMapping, err)
	}
	// the header's 8-byte words must stay aligned on ARM
	if isArmArch() && mapped.Size%regionSizeAlign != 0 {
		_ = internalshm.UnmapRegion(mapped)
		return nil, fmt.Errorf("%w: region size %d is not a multiple of %d", ErrMapping, mapped.Size, regionSizeAlign)
	}
	header, err := attachHeader(mapped.Addr)
	if err != nil {
		_ = internalshm.UnmapRegion(mapped)
		return nil, err
	}
	r := &Region{region: mapped, header: header, name: name}
	openRegions.Set(name, r)
	return r, nil
}

// Name returns the out-of-band identifier peers use to Open this region.
func (r *Region) Name() string {
	return r.name
}

// Size returns the mapped size in bytes.
func (r *Region) Size() int {
	return r.region.Size
}

// Header returns the accessor for the region's header fields.
func (r *Region) Header() *Header {
	return r.header
}

// Owner reports whether this process created the region.
func (r *Region) Owner() bool {
	return r.owner
}

// Close unmaps the region. The backing object survives for other
// participants; only the creator's Destroy removes it.
func (r *Region) Close() error {
	if _, ok := openRegions.Get(r.name); ok {
		openRegions.Remove(r.name)
	}
	if r.region == nil {
		return nil
	}
	err := internalshm.UnmapRegion(r.region)
	r.region = nil
	r.header = nil
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMapping, err)
	}
	return nil
}

// Destroy unmaps the region and removes the backing object so that
// subsequent opens fail. Only the creator may call it, and only after all
// other participants have finished: the primitive provides no reference
// counting. Unmap failures are logged, not returned, once the object
// itself has been unlinked.
func (r *Region) Destroy() error {
	if !r.owner {
		return fmt.Errorf("%w: destroy called on non-owning mapping of %s", ErrMapping, r.name)
	}
	if err := r.Close(); err != nil {
		internalLogger.Warnf("region %s unmap during destroy: %v", r.name, err)
	}
	if err := internalshm.UnlinkRegion(r.name); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrMapping, err)
	}
	internalLogger.Infof("region %s destroyed", r.name)
	return nil
}

func regionSize(requested int) (int, error) {
	size := requested
	if size == 0 {
		size = DefaultRegionSize
	}
	if size < HeaderSize {
		return 0, fmt.Errorf("%w: %d bytes cannot hold %d byte header", ErrAllocation, size, HeaderSize)
	}
	if rem := size % regionSizeAlign; rem != 0 {
		size += regionSizeAlign - rem
	}
	return size, nil
}
