package shm

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The header layout is a cross-build contract: these offsets must never
// move, or differently-compiled participants stop agreeing on the bytes.
func TestHeaderLayoutContract(t *testing.T) {
	assert.Equal(t, 0, magicOffset)
	assert.Equal(t, 4, versionOffset)
	assert.Equal(t, 8, lockWordOffset)
	assert.Equal(t, 12, lockKindOffset)
	assert.Equal(t, 16, lockStateOffset)
	assert.Equal(t, 64, payloadOffset)
	assert.Equal(t, 72, HeaderSize)
}

func TestHeaderInitAndAttach(t *testing.T) {
	mem := make([]byte, DefaultRegionSize)
	h, err := initHeader(mem)
	require.NoError(t, err)

	// stamped magic and version land at the fixed offsets, little-endian
	assert.Equal(t, headerMagic, binary.LittleEndian.Uint32(mem[magicOffset:]))
	assert.Equal(t, headerVersion, binary.LittleEndian.Uint32(mem[versionOffset:]))

	h.SetLockKind(LockKindFutex)
	h.SetPayload(100)
	h.SetLockWord(LockWordLocked)

	// a second participant attaching to the same bytes sees the same fields
	h2, err := attachHeader(mem)
	require.NoError(t, err)
	assert.Equal(t, LockKindFutex, h2.LockKind())
	assert.Equal(t, int64(100), h2.Payload())
	assert.Equal(t, LockWordLocked, h2.LockWord())
}

func TestHeaderAttachRejectsGarbage(t *testing.T) {
	mem := make([]byte, DefaultRegionSize)
	_, err := attachHeader(mem)
	assert.ErrorIs(t, err, ErrMapping)

	short := make([]byte, HeaderSize-1)
	_, err = attachHeader(short)
	assert.ErrorIs(t, err, ErrMapping)
	_, err = initHeader(short)
	assert.ErrorIs(t, err, ErrMapping)
}

func TestHeaderCasLockWord(t *testing.T) {
	mem := make([]byte, DefaultRegionSize)
	h, err := initHeader(mem)
	require.NoError(t, err)

	assert.True(t, h.CasLockWord(LockWordUnlocked, LockWordLocked))
	assert.False(t, h.CasLockWord(LockWordUnlocked, LockWordLocked))
	h.SetLockWord(LockWordUnlocked)
	assert.True(t, h.CasLockWord(LockWordUnlocked, LockWordLocked))
}

func TestHeaderLockStateStamp(t *testing.T) {
	mem := make([]byte, DefaultRegionSize)
	h, err := initHeader(mem)
	require.NoError(t, err)

	stamp := []byte{1, 2, 3, 4}
	require.NoError(t, h.StampLockState(stamp))
	assert.Equal(t, stamp, h.LockState(4))

	// a native object bigger than the reserved span must be refused,
	// not truncated
	tooBig := make([]byte, LockStateSize+1)
	assert.ErrorIs(t, h.StampLockState(tooBig), ErrMapping)
}
