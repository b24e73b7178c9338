package shm

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalshm "github.com/srediag/shm-lock/internal/shm"
)

func testRegionName(t *testing.T) string {
	t.Helper()
	return fmt.Sprintf("shmlock_test_%d_%d", os.Getpid(), time.Now().UnixNano())
}

func skipWithoutSharedMemory(t *testing.T) {
	t.Helper()
	if runtime.GOOS != "linux" {
		t.Skip("needs /dev/shm")
	}
}

func TestRegionCreateOpenDestroy(t *testing.T) {
	skipWithoutSharedMemory(t)
	name := testRegionName(t)

	creator, err := Create(Options{Name: name})
	require.NoError(t, err)
	assert.True(t, creator.Owner())
	assert.Equal(t, DefaultRegionSize, creator.Size())
	creator.Header().SetPayload(100)

	opener, err := Open(name)
	require.NoError(t, err)
	assert.False(t, opener.Owner())
	assert.Equal(t, int64(100), opener.Header().Payload())

	// opener writes are visible to the creator through the same bytes
	opener.Header().SetPayload(250)
	assert.Equal(t, int64(250), creator.Header().Payload())

	require.NoError(t, opener.Close())
	require.NoError(t, creator.Destroy())

	_, err = Open(name)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegionOpenUnknownName(t *testing.T) {
	skipWithoutSharedMemory(t)
	_, err := Open(testRegionName(t))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegionCreateReplacesStaleObject(t *testing.T) {
	skipWithoutSharedMemory(t)
	name := testRegionName(t)

	stale, err := Create(Options{Name: name})
	require.NoError(t, err)
	stale.Header().SetPayload(7)
	// simulate a crash: the mapping goes away without Destroy
	require.NoError(t, stale.Close())

	fresh, err := Create(Options{Name: name})
	require.NoError(t, err)
	defer func() { require.NoError(t, fresh.Destroy()) }()

	// the fresh region starts zeroed, not with the stale payload
	assert.Equal(t, int64(0), fresh.Header().Payload())
}

func TestRegionCreateRefusesLiveMapping(t *testing.T) {
	skipWithoutSharedMemory(t)
	name := testRegionName(t)

	first, err := Create(Options{Name: name})
	require.NoError(t, err)

	// the object is not stale while this process still has it mapped
	_, err = Create(Options{Name: name})
	assert.ErrorIs(t, err, ErrAllocation)

	// once unmapped, the leftover object is stale and gets replaced
	require.NoError(t, first.Close())
	second, err := Create(Options{Name: name})
	require.NoError(t, err)
	require.NoError(t, second.Destroy())
}

func TestRegionSizeRules(t *testing.T) {
	skipWithoutSharedMemory(t)

	_, err := Create(Options{Name: testRegionName(t), Size: HeaderSize - 8})
	assert.ErrorIs(t, err, ErrAllocation)

	r, err := Create(Options{Name: testRegionName(t), Size: HeaderSize + 1})
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Destroy()) }()
	assert.Zero(t, r.Size()%regionSizeAlign)
}

func TestRegionDestroyNonOwner(t *testing.T) {
	skipWithoutSharedMemory(t)
	name := testRegionName(t)

	creator, err := Create(Options{Name: name})
	require.NoError(t, err)
	defer func() { require.NoError(t, creator.Destroy()) }()

	opener, err := Open(name)
	require.NoError(t, err)
	assert.ErrorIs(t, opener.Destroy(), ErrMapping)
	require.NoError(t, opener.Close())
}

func TestRegionMemFd(t *testing.T) {
	skipWithoutSharedMemory(t)

	r, err := CreateMemFd("shmlock_memfd_test", 0)
	require.NoError(t, err)
	r.Header().SetPayload(42)
	assert.Equal(t, int64(42), r.Header().Payload())
	assert.NotZero(t, r.Fd())
	require.NoError(t, r.Destroy())
}

func TestDumpHeader(t *testing.T) {
	skipWithoutSharedMemory(t)
	name := testRegionName(t)

	r, err := Create(Options{Name: name})
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Destroy()) }()
	r.Header().SetPayload(100)

	out := DumpHeader(r)
	assert.Contains(t, out, name)
	assert.Contains(t, out, "payload:100")
}

func TestDumpRegionByName(t *testing.T) {
	skipWithoutSharedMemory(t)
	name := testRegionName(t)

	r, err := Create(Options{Name: name})
	require.NoError(t, err)
	r.Header().SetPayload(250)

	out, err := DumpRegion(name)
	require.NoError(t, err)
	assert.Contains(t, out, "payload:250")

	require.NoError(t, r.Destroy())
	_, err = DumpRegion(name)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDebugRegionDetail(t *testing.T) {
	skipWithoutSharedMemory(t)
	name := testRegionName(t)

	r, err := Create(Options{Name: name})
	require.NoError(t, err)
	defer func() { require.NoError(t, r.Destroy()) }()
	r.Header().SetLockKind(LockKindFutex)
	r.Header().SetPayload(800)

	out, err := DebugRegionDetail(internalshm.RegionPath(name))
	require.NoError(t, err)
	assert.Contains(t, out, "lockKind:futex")
	assert.Contains(t, out, "payload:800")

	_, err = DebugRegionDetail(internalshm.RegionPath(testRegionName(t)))
	assert.Error(t, err)
}

func TestPathExists(t *testing.T) {
	path := "test_path_exists"
	f, err := os.OpenFile(path, os.O_CREATE, os.ModePerm)
	if err != nil {
		t.Fatal(err)
	}
	_ = f.Close()
	assert.Equal(t, true, pathExists(path))
	_ = os.Remove(path)
	assert.Equal(t, false, pathExists(path))
}

func TestCanCreateOnDevShm(t *testing.T) {
	switch runtime.GOOS {
	case "linux":
		// just on /dev/shm, other paths always pass
		assert.Equal(t, true, canCreateOnDevShm(math.MaxUint64, "sdffafds"))
		stat, err := disk.Usage("/dev/shm")
		if err != nil {
			t.Fatal(err)
		}
		assert.Equal(t, true, canCreateOnDevShm(stat.Free, "/dev/shm/xxx"))
		assert.Equal(t, false, canCreateOnDevShm(stat.Free+1, "/dev/shm/yyy"))
	default:
		// always pass off Linux
		assert.Equal(t, true, canCreateOnDevShm(33333, "sdffafds"))
	}
}

func TestIsArmArch(t *testing.T) {
	assert.Equal(t, strings.Contains(runtime.GOARCH, "arm"), isArmArch())
}
