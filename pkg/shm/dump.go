package shm

import (
	"fmt"
	"os"

	"github.com/valyala/bytebufferpool"
)

// DumpHeader renders a region's header fields plus a hex dump of the
// header bytes. Values are read without holding any lock; the snapshot
// is diagnostic only.
func DumpHeader(r *Region) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	h := r.Header()
	fmt.Fprintf(buf, "region:%s size:%d lockKind:%s lockWord:%d payload:%d\n",
		r.Name(), r.Size(), h.LockKind(), h.LockWord(), h.PayloadRelaxed())
	for i := 0; i < HeaderSize; i += 16 {
		fmt.Fprintf(buf, "%04x ", i)
		end := i + 16
		if end > HeaderSize {
			end = HeaderSize
		}
		for j := i; j < end; j++ {
			fmt.Fprintf(buf, " %02x", h.mem[j])
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// DumpRegion renders DumpHeader for a region this process currently has
// mapped, resolved by name.
func DumpRegion(name string) (string, error) {
	r, ok := openRegions.Get(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return DumpHeader(r), nil
}

// DebugRegionDetail summarizes the header of the region backed by the
// file at path, read without mapping it. Mirrors the on-disk bytes at
// the moment of the read; concurrent holders may be mid-update.
func DebugRegionDetail(path string) (string, error) {
	mem, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	h, err := attachHeader(mem)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("path:%s lockKind:%s lockWord:%d payload:%d",
		path, h.LockKind(), h.LockWord(), h.PayloadRelaxed()), nil
}
