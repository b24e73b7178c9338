//go:build windows

package shm

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/windows"
)

// RegionPath returns the kernel object name for a named region. Named
// file mappings live in the per-session Local namespace.
func RegionPath(name string) string {
	return `Local\` + name
}

// MapRegion maps or creates a shared memory region (Windows implementation,
// named file mapping backed by the paging file).
func MapRegion(opts MapOptions) (*MappedRegion, error) {
	objName, err := windows.UTF16PtrFromString(RegionPath(opts.Name))
	if err != nil {
		return nil, err
	}
	var handle windows.Handle
	if opts.Create {
		handle, err = windows.CreateFileMapping(
			windows.InvalidHandle, nil, windows.PAGE_READWRITE,
			0, uint32(opts.Size), objName)
		// CreateFileMapping hands back a valid handle to the existing
		// object alongside ERROR_ALREADY_EXISTS; creation is exclusive
		// here, so that counts as failure.
		if err == windows.ERROR_ALREADY_EXISTS {
			_ = windows.CloseHandle(handle)
			return nil, fmt.Errorf("create mapping %s: %w", opts.Name, err)
		}
		if err != nil {
			return nil, fmt.Errorf("create mapping %s: %w", opts.Name, err)
		}
	} else {
		handle, err = windows.OpenFileMapping(windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, false, objName)
		if err != nil {
			if err == windows.ERROR_FILE_NOT_FOUND {
				return nil, fmt.Errorf("open mapping %s: %w", opts.Name, os.ErrNotExist)
			}
			return nil, fmt.Errorf("open mapping %s: %w", opts.Name, err)
		}
	}
	addr, err := windows.MapViewOfFile(handle, windows.FILE_MAP_READ|windows.FILE_MAP_WRITE, 0, 0, uintptr(opts.Size))
	if err != nil {
		_ = windows.CloseHandle(handle)
		return nil, fmt.Errorf("map view %s: %w", opts.Name, err)
	}
	size := opts.Size
	if size == 0 {
		// Opening an existing mapping: the view covers the whole object,
		// ask the VM for its extent.
		var info windows.MemoryBasicInformation
		if err := windows.VirtualQuery(addr, &info, unsafe.Sizeof(info)); err != nil {
			_ = windows.UnmapViewOfFile(addr)
			_ = windows.CloseHandle(handle)
			return nil, fmt.Errorf("query view %s: %w", opts.Name, err)
		}
		size = int(info.RegionSize)
	}
	mem := unsafe.Slice((*byte)(unsafe.Pointer(addr)), size)
	if opts.Create {
		for i := 0; i < len(mem); i++ {
			mem[i] = 0
		}
	}
	return &MappedRegion{
		Addr:    mem,
		Fd:      uintptr(handle),
		Size:    size,
		Name:    opts.Name,
		MapType: MemMapTypeDevShmFile,
	}, nil
}

// UnmapRegion unmaps the view and closes the mapping handle.
func UnmapRegion(region *MappedRegion) error {
	if region == nil || region.Addr == nil {
		return nil
	}
	addr := uintptr(unsafe.Pointer(&region.Addr[0]))
	region.Addr = nil
	if err := windows.UnmapViewOfFile(addr); err != nil {
		return fmt.Errorf("unmap view: %w", err)
	}
	if err := windows.CloseHandle(windows.Handle(region.Fd)); err != nil {
		return fmt.Errorf("close handle: %w", err)
	}
	return nil
}

// UnlinkRegion is a no-op on Windows: a named mapping vanishes once every
// handle to it is closed.
func UnlinkRegion(name string) error {
	return nil
}
