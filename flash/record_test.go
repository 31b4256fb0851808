package flash_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/grissiom/fvs/flash"
	"github.com/grissiom/fvs/flash/simhal"
	"github.com/grissiom/fvs/word"
)

const testPageSize = 128

func newPageFlash(t *testing.T, w word.Width) *simhal.Flash {
	t.Helper()
	return simhal.New(2*testPageSize, testPageSize, w)
}

func Test_StageHeader_Writes_Id_Size_And_Empty_Status(t *testing.T) {
	t.Parallel()

	w := word.Width16
	fl := newPageFlash(t, w)

	require.NoError(t, flash.StageHeader(fl, 0, 0, 5, 4, w))

	buf := make([]byte, flash.HeaderSize(w))
	fl.ReadAt(0, buf)
	h := flash.DecodeHeader(buf, 0, w)

	require.Equal(t, uint32(5), h.ID)
	require.Equal(t, uint32(4), h.Size)
	require.True(t, h.IsReserved(w), "a staged-but-unfilled header must read as reserved")
	require.False(t, h.IsLive(w))
}

func Test_FillAndCommit_Writes_Payload_Then_Commits(t *testing.T) {
	t.Parallel()

	w := word.Width16
	fl := newPageFlash(t, w)

	require.NoError(t, flash.StageHeader(fl, 0, 0, 7, 4, w))
	require.NoError(t, flash.FillAndCommit(fl, 0, 0, []byte{0x12, 0x34, 0x56, 0x78}, w))

	hdr := make([]byte, flash.HeaderSize(w))
	fl.ReadAt(0, hdr)
	h := flash.DecodeHeader(hdr, 0, w)
	require.True(t, h.IsLive(w))

	payload := make([]byte, 4)
	fl.ReadAt(uint32(flash.HeaderSize(w)), payload)
	require.Equal(t, []byte{0x12, 0x34, 0x56, 0x78}, payload)
}

func Test_Tombstone_Zeroes_Id(t *testing.T) {
	t.Parallel()

	w := word.Width32
	fl := newPageFlash(t, w)

	require.NoError(t, flash.StageHeader(fl, 0, 0, 9, 4, w))
	require.NoError(t, flash.FillAndCommit(fl, 0, 0, []byte{1, 2, 3, 4}, w))
	require.NoError(t, flash.Tombstone(fl, 0, 0))

	hdr := make([]byte, flash.HeaderSize(w))
	fl.ReadAt(0, hdr)
	h := flash.DecodeHeader(hdr, 0, w)
	require.True(t, h.IsTombstoned())
}

func Test_RecordLen_Matches_HeaderSize_Plus_Payload(t *testing.T) {
	t.Parallel()

	for _, w := range []word.Width{word.Width16, word.Width32} {
		got := flash.RecordLen(8, w)
		require.Equal(t, flash.HeaderSize(w)+8, got)
	}
}

func Test_Header_IsEndOfLog_When_Id_Is_Erased(t *testing.T) {
	t.Parallel()

	w := word.Width16
	h := flash.Header{ID: w.Erased(), Size: w.Erased(), Status: w.Erased()}
	require.True(t, h.IsEndOfLog(w))
	require.False(t, h.IsLive(w))
	require.False(t, h.IsReserved(w))
	require.False(t, h.IsTombstoned())
}

func Test_StageHeader_On_Bad_Transition_Returns_Error(t *testing.T) {
	t.Parallel()

	w := word.Width16
	fl := newPageFlash(t, w)

	require.NoError(t, flash.StageHeader(fl, 0, 0, 5, 4, w))
	// Re-staging a different id at the same (already-programmed) address
	// would require flipping a 0 bit back to 1: the HAL must reject it.
	err := flash.StageHeader(fl, 0, 0, 6, 4, w)
	require.Error(t, err)
}
